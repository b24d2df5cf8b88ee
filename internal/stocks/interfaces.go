package stocks

import (
	"context"
	"time"
)

// SymbolLister resolves the candidate symbol set from the upstream service.
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]Symbol, error)
}

// Updater refreshes recent daily prices for one symbol. Failures are surfaced
// as TransportError, StatusError, or APIError depending on where the call died.
type Updater interface {
	UpdateSymbol(ctx context.Context, symbol string, days int) (UpdateResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses between batches. Implementations must return early with the
// context error when the context finishes first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
