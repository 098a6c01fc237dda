package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
)

func TestListFilesLexicographicOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	names := []string{"b.txt", "a.txt", "sub/c.txt"}
	for _, n := range names {
		full := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	p, err := pipeline.ListFiles(dir, "").AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 3)
	var got []string
	for _, v := range out {
		s, _ := v.AsString()
		got = append(got, s)
	}
	assert.True(t, got[0] < got[1])
	assert.True(t, got[1] < got[2])
}

func TestListFilesPattern(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("x"), 0o644))

	p, err := pipeline.ListFiles(dir, "*.csv").AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 1)
	s, _ := out[0].AsString()
	assert.Equal(t, filepath.Join(dir, "b.csv"), s)
}
