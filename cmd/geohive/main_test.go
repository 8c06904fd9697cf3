package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const fixture = `{"owners": [{"username": "alice", "datasets": [
  {"slug": "trees", "places": [{"species": "oak", "submission_sets": {"comments": [{"comment": "big"}]}}]}
]}]}`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestSeedDumpInvalidate(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "geohive.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(
		"database: "+filepath.Join(dir, "geohive.db")+"\n"+
			"cache:\n  backend: memory\n"+
			"log:\n  level: error\n"), 0o600))
	seedFile := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedFile, []byte(fixture), 0o600))

	out := run(t, "--config", conf, "seed", seedFile)
	assert.Contains(t, out, "seeded 1 owners, 1 datasets, 1 places, 1 submissions")

	dumpFile := filepath.Join(dir, "alice.json.xz")
	run(t, "--config", conf, "dump", "alice", dumpFile, "--include-submissions")
	f, err := os.Open(dumpFile)
	require.NoError(t, err)
	defer f.Close()
	xr, err := xz.NewReader(f)
	require.NoError(t, err)
	var raw bytes.Buffer
	_, err = raw.ReadFrom(xr)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), `"species":"oak"`)
	assert.Contains(t, raw.String(), `"comment":"big"`)

	out = run(t, "--config", conf, "invalidate", "dataset", "alice", "trees", "--rename", "forest")
	assert.Contains(t, out, "renamed alice/trees to forest")
	renameTo = ""

	out = run(t, "--config", conf, "invalidate", "dataset", "alice", "forest")
	assert.Contains(t, out, "invalidated 4 entries")

	run(t, "--config", conf, "invalidate", "all")
}

func TestDump_UnknownOwnerRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "geohive.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(
		"database: "+filepath.Join(dir, "geohive.db")+"\ncache:\n  backend: memory\nlog:\n  level: error\n"), 0o600))

	dumpFile := filepath.Join(dir, "nobody.json.xz")
	rootCmd.SetArgs([]string{"--config", conf, "dump", "nobody", dumpFile})
	rootCmd.SetOut(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
	assert.NoFileExists(t, dumpFile)
}
