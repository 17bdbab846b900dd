package engine

import (
	"sort"
	"strings"

	"marketview/internal/domain"

	"github.com/shopspring/decimal"
)

// SortKey selects the field a projection orders by.
type SortKey string

const (
	SortBySymbol        SortKey = "symbol"
	SortByPrice         SortKey = "price"
	SortByChangePercent SortKey = "change_percent_24h"
	SortByQuoteVolume   SortKey = "quote_volume_24h"
	SortByHourlyVolume  SortKey = "hourly_volume"
)

// SortDirection orders a projection ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Projection parameterizes a read-only view over store state.
type Projection struct {
	Key       SortKey
	Direction SortDirection
	Search    string
}

// Project filters and sorts a state snapshot for display. Numeric sort
// keys break ties by symbol ascending so the output is deterministic;
// the symbol key is plain lexicographic. The input slice is not
// modified and the store is never touched.
func Project(states []domain.SymbolState, p Projection) []domain.SymbolState {
	result := make([]domain.SymbolState, 0, len(states))
	search := strings.ToUpper(strings.TrimSpace(p.Search))
	for _, state := range states {
		if search == "" || strings.Contains(state.Symbol, search) {
			result = append(result, state)
		}
	}

	desc := p.Direction == SortDesc
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if p.Key == SortBySymbol || p.Key == "" {
			if desc {
				return a.Symbol > b.Symbol
			}
			return a.Symbol < b.Symbol
		}

		av, bv := sortValue(a, p.Key), sortValue(b, p.Key)
		cmp := av.Cmp(bv)
		if cmp == 0 {
			return a.Symbol < b.Symbol
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return result
}

func sortValue(s domain.SymbolState, key SortKey) decimal.Decimal {
	switch key {
	case SortByPrice:
		return s.Price
	case SortByChangePercent:
		return s.ChangePercent24h
	case SortByQuoteVolume:
		return s.QuoteVolume24h
	case SortByHourlyVolume:
		return s.HourlyWindow.Total
	default:
		return s.Price
	}
}
