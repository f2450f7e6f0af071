package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parloop/internal/store"
)

func TestHistoryEmpty(t *testing.T) {
	stdout, _, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	assert.Equal(t, "No generations recorded.\n", stdout)
}

func TestHistoryRequiresDB(t *testing.T) {
	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryAfterGen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "k/axpy.cue", axpyKernel)
	writeFile(t, dir, "k/ramp.cue", rampKernel)
	dbPath := filepath.Join(dir, "h.db")

	_, _, err := execute(t, "gen", filepath.Join(dir, "k"), "--db", dbPath, "-o", filepath.Join(dir, "k.ll"))
	require.NoError(t, err)
	_, _, err = execute(t, "gen", filepath.Join(dir, "k"), "--db", dbPath, "--kernel", "ramp", "-o", filepath.Join(dir, "r.ll"))
	require.NoError(t, err)

	stdout, _, err := execute(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "axpy -> @axpy  threads=0 schedule=runtime")
	assert.Contains(t, stdout, "workers=ramp_parloop_subfn")

	stdout, _, err = execute(t, "--format", "json", "history", "--db", dbPath, "--kernel", "ramp")
	require.NoError(t, err)
	var resp struct {
		Status string             `json:"status"`
		Data   []store.Generation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(2), resp.Data[0].Seq)
	assert.Equal(t, int64(3), resp.Data[1].Seq)
	for _, g := range resp.Data {
		assert.Equal(t, "ramp", g.Kernel)
		assert.Len(t, g.ID, 36)
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	all, err := st.ListGenerations(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
