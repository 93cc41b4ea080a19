package cmd_test

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/Emyrk/pstatviz/cmd"
	"github.com/Emyrk/pstatviz/viz"
	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/stretchr/testify/require"
)

const testProfile = "../viz/pstats/testdata/profile.json"

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var stdout bytes.Buffer
	inv := cmd.New().RootCmd().Invoke(args...)
	inv.Stdout = &stdout
	inv.Stderr = io.Discard
	err := inv.Run()
	return stdout.Bytes(), err
}

func TestVizCmd(t *testing.T) {
	out, err := run(t, "viz", testProfile, "--root", "fib.py:3(fib)", "--sort", "self")
	require.NoError(t, err)

	var v callgraph.Visualization
	require.NoError(t, json.Unmarshal(out, &v))
	require.Equal(t, "fib.py:3(fib)", v.Root)
	require.Equal(t, "fib.py:3(fib)", v.Table[0].Name)

	_, err = run(t, "viz", testProfile, "--max-nodes", "2")
	require.ErrorIs(t, err, callgraph.ErrTreeTooLarge)

	_, err = run(t, "viz")
	require.Error(t, err)
}

func TestPprofCmd(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.pb.gz")
	_, err := run(t, "pprof", testProfile, "--output", output)
	require.NoError(t, err)

	records, err := viz.LoadProfile(output)
	require.NoError(t, err)
	require.Len(t, records, 5)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, string(out), "Git Tag: dev")
}
