package profiling

import (
	"bytes"
	"time"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/google/pprof/profile"
)

// Converter writes expanded call trees as pprof profiles so they can be
// explored with `go tool pprof` or pushed to Pyroscope.
type Converter struct {
	fid       uint64
	functions map[pstats.FunctionID]*profile.Function
	locations map[pstats.FunctionID]*profile.Location

	protobuf *profile.Profile
}

func New() *Converter {
	return &Converter{
		functions: make(map[pstats.FunctionID]*profile.Function),
		locations: make(map[pstats.FunctionID]*profile.Location),
		protobuf: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "cpu", Unit: "nanoseconds"},
				{Type: "calls", Unit: "count"},
			},
			DefaultSampleType: "cpu",
			Sample:            []*profile.Sample{},
			Mapping:           []*profile.Mapping{},
			Location:          []*profile.Location{},
			Function:          []*profile.Function{},
			Comments:          []string{},
			TimeNanos:         time.Now().UnixNano(),
		},
	}
}

// Convert adds one sample per tree node. A node's value is its exclusive
// time: its own time minus the time of its children. Cut nodes keep their
// full time since their subtree is not expanded.
func (c *Converter) Convert(root *callgraph.Node) *profile.Profile {
	c.recurseNodes(root, nil)
	c.protobuf.DurationNanos = nanos(root.Time)
	return c.protobuf
}

func (c *Converter) Encode() ([]byte, error) {
	var buf bytes.Buffer
	err := c.protobuf.Write(&buf)
	return buf.Bytes(), err
}

func (c *Converter) recurseNodes(n *callgraph.Node, stack []*profile.Location) {
	_, loc := c.function(n.Function)
	// location[0] is the leaf.
	stack = prepend(loc, stack)

	value := nanos(ExclusiveTime(n))
	if value > 0 || n.Calls > 0 {
		c.protobuf.Sample = append(c.protobuf.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{value, n.Calls},
		})
	}

	for _, child := range n.Children {
		c.recurseNodes(child, stack)
	}
}

// ExclusiveTime is the part of a node's time not covered by its children,
// floored at zero.
func ExclusiveTime(n *callgraph.Node) float64 {
	if n.Cut {
		return n.Time
	}
	exclusive := n.Time
	for _, child := range n.Children {
		exclusive -= child.Time
	}
	if exclusive < 0 {
		return 0
	}
	return exclusive
}

func (c *Converter) function(id pstats.FunctionID) (*profile.Function, *profile.Location) {
	if fn, found := c.functions[id]; found {
		return fn, c.locations[id]
	}

	c.fid++
	fn := &profile.Function{
		ID:         c.fid,
		Name:       id.Name,
		SystemName: id.String(),
		Filename:   id.File,
		StartLine:  int64(id.Line),
	}

	c.functions[id] = fn
	c.protobuf.Function = append(c.protobuf.Function, fn)

	loc := &profile.Location{
		ID: c.fid,
		Line: []profile.Line{
			{
				Function: fn,
				Line:     fn.StartLine,
			},
		},
	}
	c.locations[id] = loc
	c.protobuf.Location = append(c.protobuf.Location, loc)
	return fn, loc
}

func nanos(s float64) int64 {
	return int64(s * 1e9)
}

func prepend[T any](x T, s []T) []T {
	return append([]T{x}, s...)
}

// FindFunction returns the function of a location, or nil.
func FindFunction(p *profile.Profile, locationID uint64) *profile.Function {
	for _, loc := range p.Location {
		if loc.ID != locationID || len(loc.Line) == 0 {
			continue
		}
		return loc.Line[0].Function
	}
	return nil
}
