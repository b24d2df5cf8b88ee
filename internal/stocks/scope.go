package stocks

import (
	"strconv"
	"strings"
)

// ScopeKind selects how the resolved symbol list is narrowed.
type ScopeKind string

// Supported scope kinds.
const (
	ScopeAll     ScopeKind = "all"
	ScopeRange   ScopeKind = "range"
	ScopeIndices ScopeKind = "indices"
	ScopeLimit   ScopeKind = "limit"
)

// Scope narrows the candidate symbol list resolved from the listing service.
// Exactly one kind applies per run.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	// StartCode/EndCode bound the numeric ticker code for ScopeRange.
	StartCode int `json:"start_code,omitempty"`
	EndCode   int `json:"end_code,omitempty"`
	// Indices selects explicit positions in the listing order for ScopeIndices.
	Indices []int `json:"indices,omitempty"`
	// Limit caps the list at the first N symbols for ScopeLimit.
	Limit int `json:"limit,omitempty"`
}

// Validate checks the scope is well formed for its kind.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeAll:
		return nil
	case ScopeRange:
		if s.StartCode <= 0 || s.EndCode <= 0 || s.StartCode > s.EndCode {
			return &ConfigError{Reason: "scope range requires 0 < start <= end"}
		}
		return nil
	case ScopeIndices:
		if len(s.Indices) == 0 {
			return &ConfigError{Reason: "scope indices requires at least one index"}
		}
		for _, idx := range s.Indices {
			if idx < 0 {
				return &ConfigError{Reason: "scope indices must be non-negative"}
			}
		}
		return nil
	case ScopeLimit:
		if s.Limit < 1 {
			return &ConfigError{Reason: "scope limit must be at least 1"}
		}
		return nil
	default:
		return &ConfigError{Reason: "no valid scope selected"}
	}
}

// Filter applies the scope to the resolved listing, preserving order. Indices
// outside the listing are skipped rather than erroring; an empty result is the
// caller's signal to fail the run.
func (s Scope) Filter(symbols []Symbol) []Symbol {
	switch s.Kind {
	case ScopeRange:
		out := make([]Symbol, 0, len(symbols))
		for _, sym := range symbols {
			code, ok := numericCode(sym.Code)
			if !ok {
				continue
			}
			if code >= s.StartCode && code <= s.EndCode {
				out = append(out, sym)
			}
		}
		return out
	case ScopeIndices:
		out := make([]Symbol, 0, len(s.Indices))
		for _, idx := range s.Indices {
			if idx < len(symbols) {
				out = append(out, symbols[idx])
			}
		}
		return out
	case ScopeLimit:
		if s.Limit < len(symbols) {
			return append([]Symbol(nil), symbols[:s.Limit]...)
		}
		return append([]Symbol(nil), symbols...)
	default:
		return append([]Symbol(nil), symbols...)
	}
}

// numericCode extracts the numeric ticker prefix, e.g. 2330 from "2330.TW".
// Index tickers like "^TWII" have no numeric code and never match a range.
func numericCode(code string) (int, bool) {
	base, _, _ := strings.Cut(code, ".")
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return n, true
}
