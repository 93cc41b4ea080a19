package pstats

import "fmt"

// FunctionID identifies a profiled function by its source location and name.
// It is comparable and used as a map key throughout.
type FunctionID struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Name string `json:"name"`
}

// String renders the id the way the profiler displays it: file:line(name).
// Builtins have no file and render as just their name wrapped in braces.
func (f FunctionID) String() string {
	if f.File == "~" && f.Line == 0 {
		// Builtin functions, e.g. <built-in method builtins.len>
		return fmt.Sprintf("{%s}", f.Name)
	}
	return fmt.Sprintf("%s:%d(%s)", f.File, f.Line, f.Name)
}

// Record is a single raw entry of a profile: one function's aggregate
// statistics and who called it.
type Record struct {
	Function       FunctionID `json:"function"`
	PrimitiveCalls int64      `json:"primitive_calls"`
	TotalCalls     int64      `json:"total_calls"`
	SelfTime       float64    `json:"self_time"`
	CumulativeTime float64    `json:"cumulative_time"`
	// Callers may list the same caller more than once. Each entry is the
	// share of this function's calls and time attributed to that caller.
	Callers []CallerStats `json:"callers,omitempty"`
}

// CallerStats is the portion of a function's calls and time attributable to
// a single caller.
type CallerStats struct {
	Caller         FunctionID `json:"caller"`
	PrimitiveCalls int64      `json:"primitive_calls"`
	Calls          int64      `json:"calls"`
	SelfTime       float64    `json:"self_time"`
	CumulativeTime float64    `json:"cumulative_time"`
}

// Summary returns the total number of calls and the total execution time of a
// set of records. Execution time is the sum of self times, so nested calls are
// not counted twice.
func Summary(records []Record) (totalCalls int64, totalTime float64) {
	for _, r := range records {
		totalCalls += r.TotalCalls
		totalTime += r.SelfTime
	}
	return totalCalls, totalTime
}
