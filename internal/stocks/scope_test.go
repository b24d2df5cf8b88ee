package stocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func listingFixture() []Symbol {
	return []Symbol{
		{Code: "1101.TW", Name: "Taiwan Cement", Market: MarketTWSE},
		{Code: "2330.TW", Name: "TSMC", Market: MarketTWSE},
		{Code: "2454.TW", Name: "MediaTek", Market: MarketTWSE},
		{Code: "3481.TWO", Name: "Innolux", Market: MarketOTC},
		{Code: "^TWII", Name: "TAIEX", Market: MarketIndex},
	}
}

func TestScopeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{name: "all", scope: Scope{Kind: ScopeAll}},
		{name: "range ok", scope: Scope{Kind: ScopeRange, StartCode: 2000, EndCode: 2999}},
		{name: "range single code", scope: Scope{Kind: ScopeRange, StartCode: 2330, EndCode: 2330}},
		{name: "range inverted", scope: Scope{Kind: ScopeRange, StartCode: 3000, EndCode: 2000}, wantErr: true},
		{name: "range missing start", scope: Scope{Kind: ScopeRange, EndCode: 2999}, wantErr: true},
		{name: "indices ok", scope: Scope{Kind: ScopeIndices, Indices: []int{0, 2}}},
		{name: "indices empty", scope: Scope{Kind: ScopeIndices}, wantErr: true},
		{name: "indices negative", scope: Scope{Kind: ScopeIndices, Indices: []int{-1}}, wantErr: true},
		{name: "limit ok", scope: Scope{Kind: ScopeLimit, Limit: 10}},
		{name: "limit zero", scope: Scope{Kind: ScopeLimit}, wantErr: true},
		{name: "unknown kind", scope: Scope{Kind: "everything"}, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.scope.Validate()
			if tc.wantErr {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestScopeFilterRange(t *testing.T) {
	t.Parallel()

	scope := Scope{Kind: ScopeRange, StartCode: 2000, EndCode: 2999}
	got := scope.Filter(listingFixture())

	require.Len(t, got, 2)
	require.Equal(t, "2330.TW", got[0].Code)
	require.Equal(t, "2454.TW", got[1].Code)
}

func TestScopeFilterRangeSkipsNonNumericCodes(t *testing.T) {
	t.Parallel()

	// Index tickers have no numeric code and can never match a range.
	scope := Scope{Kind: ScopeRange, StartCode: 1, EndCode: 99999}
	got := scope.Filter(listingFixture())

	require.Len(t, got, 4)
	for _, sym := range got {
		require.NotEqual(t, "^TWII", sym.Code)
	}
}

func TestScopeFilterIndices(t *testing.T) {
	t.Parallel()

	scope := Scope{Kind: ScopeIndices, Indices: []int{3, 0, 99}}
	got := scope.Filter(listingFixture())

	// Out-of-range positions are skipped; selection order is preserved.
	require.Len(t, got, 2)
	require.Equal(t, "3481.TWO", got[0].Code)
	require.Equal(t, "1101.TW", got[1].Code)
}

func TestScopeFilterLimit(t *testing.T) {
	t.Parallel()

	scope := Scope{Kind: ScopeLimit, Limit: 2}
	got := scope.Filter(listingFixture())
	require.Len(t, got, 2)
	require.Equal(t, "1101.TW", got[0].Code)

	generous := Scope{Kind: ScopeLimit, Limit: 100}
	require.Len(t, generous.Filter(listingFixture()), 5)
}

func TestScopeFilterAllCopies(t *testing.T) {
	t.Parallel()

	listing := listingFixture()
	got := Scope{Kind: ScopeAll}.Filter(listing)
	require.Equal(t, listing, got)

	got[0].Code = "mutated"
	require.Equal(t, "1101.TW", listing[0].Code)
}
