package callgraph

import (
	"fmt"
	"sort"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

type SortKey string

const (
	SortCumulative SortKey = "cumulative"
	SortSelf       SortKey = "self"
	SortCalls      SortKey = "calls"
	SortName       SortKey = "name"
)

// SortKeys lists the accepted sort keys, default first.
func SortKeys() []string {
	return []string{string(SortCumulative), string(SortSelf), string(SortCalls), string(SortName)}
}

// ParseSortKey validates a sort key. The empty string selects the default.
func ParseSortKey(key string) (SortKey, error) {
	if key == "" {
		return SortCumulative, nil
	}
	_, err := rowLess(SortKey(key))
	if err != nil {
		return "", err
	}
	return SortKey(key), nil
}

// Row is one function's line in the flat stats table.
type Row struct {
	Function       pstats.FunctionID
	SelfTime       float64
	CumulativeTime float64
	TotalCalls     int64
	PrimitiveCalls int64
}

// SelfPerCall is self time divided by total calls.
func (r Row) SelfPerCall() float64 {
	if r.TotalCalls == 0 {
		return 0
	}
	return r.SelfTime / float64(r.TotalCalls)
}

// CumulativePerCall is cumulative time divided by primitive calls, which
// keeps recursive functions from looking cheaper than they are.
func (r Row) CumulativePerCall() float64 {
	if r.PrimitiveCalls == 0 {
		return 0
	}
	return r.CumulativeTime / float64(r.PrimitiveCalls)
}

// Table projects the index into one row per function. Numeric keys sort
// descending, names ascending. Equal keys keep index insertion order.
func (idx *Index) Table(key SortKey) ([]Row, error) {
	less, err := rowLess(key)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(idx.order))
	for _, id := range idx.order {
		s := idx.stats[id]
		rows = append(rows, Row{
			Function:       id,
			SelfTime:       s.SelfTime,
			CumulativeTime: s.CumulativeTime,
			TotalCalls:     s.TotalCalls,
			PrimitiveCalls: s.PrimitiveCalls,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return less(rows[i], rows[j])
	})
	return rows, nil
}

func rowLess(key SortKey) (func(a, b Row) bool, error) {
	switch key {
	case SortCumulative, "":
		return func(a, b Row) bool { return a.CumulativeTime > b.CumulativeTime }, nil
	case SortSelf:
		return func(a, b Row) bool { return a.SelfTime > b.SelfTime }, nil
	case SortCalls:
		return func(a, b Row) bool { return a.TotalCalls > b.TotalCalls }, nil
	case SortName:
		return func(a, b Row) bool { return a.Function.String() < b.Function.String() }, nil
	default:
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownSortKey)
	}
}
