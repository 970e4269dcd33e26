package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

type cliFixture struct {
	dir    string
	config string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	src := filepath.Join(dir, "shop")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "billing.py"),
		[]byte("def charge(order):\n    if order.total > 1000:\n        raise ValueError('limit')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "orders.py"),
		[]byte("import billing\n\ndef place(order):\n    billing.charge(order)\n"), 0o644))

	codebases := filepath.Join(dir, "codebases.yaml")
	require.NoError(t, os.WriteFile(codebases, []byte(
		"codebases:\n  - id: shop\n    name: Shop\n    source: "+src+"\n    language: python\n"), 0o644))

	cfg := filepath.Join(dir, "ruleminer.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"db_path: "+filepath.Join(dir, "data", "ruleminer.db")+"\n"+
			"codebase_config: "+codebases+"\n"+
			"reports_dir: "+filepath.Join(dir, "reports")+"\n"+
			"repo_root: "+filepath.Join(dir, "repos")+"\n"+
			"llm:\n  type: mock\n"+
			"embedding:\n  provider: local\n"+
			"logging:\n  level: error\n  format: text\n  dir: \"\"\n"), 0o644))

	return &cliFixture{dir: dir, config: cfg}
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &rootOptions{stdout: &stdout, stderr: &stderr}
	root := newRootCmd(opts)
	root.SetArgs(append([]string{"--config", f.config, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	f := newCLIFixture(t)
	out, _, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ruleminer "+version)
	assert.Contains(t, out, "storage:")
}

func TestRunStatusSearchReport(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED Shop")
	assert.Contains(t, out, "1/1 runs completed")

	out, _, err = f.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "projects: 1")
	assert.Contains(t, out, "Shop")

	out, _, err = f.run(t, "search", "order", "limit", "--mode", "keyword")
	require.NoError(t, err)
	assert.Contains(t, out, "no matching rules")

	_, _, err = f.run(t, "report", "--run-id", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitDatabase, classify(err).ExitCode)
}

func TestRunUnknownCodebase(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run(t, "run", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run(t, "search", "x", "--mode", "fuzzy")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestResetRequiresConfirmation(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := f.run(t, "reset")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	out, _, err := f.run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "store reset")
}
