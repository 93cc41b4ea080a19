package callgraph

import (
	"fmt"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

// Stats are the aggregate statistics of a single function.
type Stats struct {
	PrimitiveCalls int64
	TotalCalls     int64
	SelfTime       float64
	CumulativeTime float64
}

// Index maps every profiled function to its statistics and raw caller
// attribution. It is immutable once built.
type Index struct {
	order   []pstats.FunctionID
	stats   map[pstats.FunctionID]Stats
	callers map[pstats.FunctionID][]pstats.CallerStats
	byName  map[string]pstats.FunctionID
}

// NewIndex validates and indexes raw profile records. Records keep their
// input order, which is the tie-break order for stable table sorting.
func NewIndex(records []pstats.Record) (*Index, error) {
	idx := &Index{
		order:   make([]pstats.FunctionID, 0, len(records)),
		stats:   make(map[pstats.FunctionID]Stats, len(records)),
		callers: make(map[pstats.FunctionID][]pstats.CallerStats, len(records)),
		byName:  make(map[string]pstats.FunctionID, len(records)),
	}

	for _, r := range records {
		err := validateRecord(r)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", r.Function, err)
		}
		if _, exists := idx.stats[r.Function]; exists {
			return nil, fmt.Errorf("function %s: duplicate record: %w", r.Function, ErrMalformedRecord)
		}

		idx.order = append(idx.order, r.Function)
		idx.stats[r.Function] = Stats{
			PrimitiveCalls: r.PrimitiveCalls,
			TotalCalls:     r.TotalCalls,
			SelfTime:       r.SelfTime,
			CumulativeTime: r.CumulativeTime,
		}
		if len(r.Callers) > 0 {
			idx.callers[r.Function] = append([]pstats.CallerStats(nil), r.Callers...)
		}
		idx.byName[r.Function.String()] = r.Function
	}

	return idx, nil
}

func validateRecord(r pstats.Record) error {
	switch {
	case r.SelfTime < 0 || r.CumulativeTime < 0:
		return fmt.Errorf("negative time (self %g, cumulative %g): %w", r.SelfTime, r.CumulativeTime, ErrMalformedRecord)
	case r.PrimitiveCalls < 0 || r.TotalCalls < 0:
		return fmt.Errorf("negative call count (primitive %d, total %d): %w", r.PrimitiveCalls, r.TotalCalls, ErrMalformedRecord)
	case r.CumulativeTime < r.SelfTime:
		return fmt.Errorf("cumulative time %g less than self time %g: %w", r.CumulativeTime, r.SelfTime, ErrMalformedRecord)
	case r.TotalCalls < r.PrimitiveCalls:
		return fmt.Errorf("total calls %d less than primitive calls %d: %w", r.TotalCalls, r.PrimitiveCalls, ErrMalformedRecord)
	}
	return nil
}

// Len is the number of indexed functions.
func (idx *Index) Len() int {
	return len(idx.order)
}

// Functions returns every indexed function in insertion order.
func (idx *Index) Functions() []pstats.FunctionID {
	return append([]pstats.FunctionID(nil), idx.order...)
}

func (idx *Index) Stats(id pstats.FunctionID) (Stats, bool) {
	s, ok := idx.stats[id]
	return s, ok
}

// Callers returns the raw caller attribution for a function, duplicates
// included.
func (idx *Index) Callers(id pstats.FunctionID) []pstats.CallerStats {
	return append([]pstats.CallerStats(nil), idx.callers[id]...)
}

// Lookup finds a function by its display form, see pstats.FunctionID.String.
func (idx *Index) Lookup(name string) (pstats.FunctionID, error) {
	id, ok := idx.byName[name]
	if !ok {
		return pstats.FunctionID{}, fmt.Errorf("%q: %w", name, ErrUnknownFunction)
	}
	return id, nil
}
