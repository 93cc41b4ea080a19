package profiling

import (
	"fmt"
	"io"
	"os"

	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/google/pprof/profile"
)

// ReadFile parses a pprof profile from disk and aggregates it into records
// using the default sample type.
func ReadFile(path string) ([]pstats.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	return Read(f, "")
}

func Read(r io.Reader, sampleType string) ([]pstats.Record, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse pprof: %w", err)
	}
	return FromPprof(p, sampleType)
}

type pair struct {
	caller pstats.FunctionID
	callee pstats.FunctionID
}

// aggregator folds stack samples into per function records.
type aggregator struct {
	order   []pstats.FunctionID
	records map[pstats.FunctionID]*pstats.Record
	// callerOrder keeps caller attribution deterministic per callee.
	callerOrder map[pstats.FunctionID][]pstats.FunctionID
	callers     map[pair]*pstats.CallerStats
}

// FromPprof turns a sampled profile into records. Self time is the value of
// samples where the function is the leaf. Cumulative time counts each sample
// once per function even when it recurses. Total calls count frames,
// primitive calls count samples.
func FromPprof(p *profile.Profile, sampleType string) ([]pstats.Record, error) {
	idx, err := sampleIndex(p, sampleType)
	if err != nil {
		return nil, err
	}
	scale := unitScale(p.SampleType[idx].Unit)

	agg := &aggregator{
		records:     make(map[pstats.FunctionID]*pstats.Record),
		callerOrder: make(map[pstats.FunctionID][]pstats.FunctionID),
		callers:     make(map[pair]*pstats.CallerStats),
	}

	for i, s := range p.Sample {
		if len(s.Value) <= idx {
			return nil, fmt.Errorf("sample %d has %d values, want at least %d", i, len(s.Value), idx+1)
		}
		if s.Value[idx] < 0 {
			return nil, fmt.Errorf("sample %d has negative value %d", i, s.Value[idx])
		}
		stack := frames(s)
		if len(stack) == 0 {
			continue
		}
		agg.add(stack, float64(s.Value[idx])*scale)
	}

	out := make([]pstats.Record, 0, len(agg.order))
	for _, id := range agg.order {
		r := agg.records[id]
		for _, caller := range agg.callerOrder[id] {
			r.Callers = append(r.Callers, *agg.callers[pair{caller: caller, callee: id}])
		}
		out = append(out, *r)
	}
	return out, nil
}

// add folds one leaf-first stack.
func (a *aggregator) add(stack []pstats.FunctionID, value float64) {
	seen := make(map[pstats.FunctionID]bool, len(stack))
	seenPair := make(map[pair]bool, len(stack))

	// Walk from the root so functions are indexed callers first.
	for i := len(stack) - 1; i >= 0; i-- {
		id := stack[i]
		r := a.record(id)
		r.TotalCalls++
		if !seen[id] {
			seen[id] = true
			r.PrimitiveCalls++
			r.CumulativeTime += value
		}
		if i == 0 {
			r.SelfTime += value
		}

		if i == len(stack)-1 {
			continue
		}
		key := pair{caller: stack[i+1], callee: id}
		cs := a.caller(key)
		cs.Calls++
		if !seenPair[key] {
			seenPair[key] = true
			cs.PrimitiveCalls++
			cs.CumulativeTime += value
		}
		if i == 0 {
			cs.SelfTime += value
		}
	}
}

func (a *aggregator) record(id pstats.FunctionID) *pstats.Record {
	r, ok := a.records[id]
	if !ok {
		r = &pstats.Record{Function: id}
		a.records[id] = r
		a.order = append(a.order, id)
	}
	return r
}

func (a *aggregator) caller(key pair) *pstats.CallerStats {
	cs, ok := a.callers[key]
	if !ok {
		cs = &pstats.CallerStats{Caller: key.caller}
		a.callers[key] = cs
		a.callerOrder[key.callee] = append(a.callerOrder[key.callee], key.caller)
	}
	return cs
}

// frames flattens a sample into function ids, leaf first. Inlined functions
// come before the function they were inlined into.
func frames(s *profile.Sample) []pstats.FunctionID {
	stack := make([]pstats.FunctionID, 0, len(s.Location))
	for _, loc := range s.Location {
		if len(loc.Line) == 0 {
			file := ""
			if loc.Mapping != nil {
				file = loc.Mapping.File
			}
			stack = append(stack, pstats.FunctionID{File: file, Name: fmt.Sprintf("0x%x", loc.Address)})
			continue
		}
		for _, line := range loc.Line {
			if line.Function == nil {
				continue
			}
			stack = append(stack, pstats.FunctionID{
				File: line.Function.Filename,
				Line: int(line.Function.StartLine),
				Name: line.Function.Name,
			})
		}
	}
	return stack
}

func sampleIndex(p *profile.Profile, sampleType string) (int, error) {
	if len(p.SampleType) == 0 {
		return 0, fmt.Errorf("profile has no sample types")
	}
	if sampleType == "" {
		sampleType = p.DefaultSampleType
	}
	if sampleType == "" {
		// By convention the last sample type is the default.
		return len(p.SampleType) - 1, nil
	}
	for i, st := range p.SampleType {
		if st.Type == sampleType {
			return i, nil
		}
	}
	return 0, fmt.Errorf("sample type %q not found", sampleType)
}

func unitScale(unit string) float64 {
	switch unit {
	case "nanoseconds":
		return 1e-9
	case "microseconds":
		return 1e-6
	case "milliseconds":
		return 1e-3
	default:
		return 1
	}
}
