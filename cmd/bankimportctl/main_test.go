package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "db", "imports.db"))
	t.Setenv("ARTIFACT_BACKEND", "fs")
	t.Setenv("ARTIFACT_DIR", filepath.Join(dir, "artifacts"))
	return dir
}

func ctl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	base := []string{"-env", "/nonexistent/.env", "-services", "/nonexistent/services.yaml"}
	err := run(context.Background(), append(base, args...), &buf)
	return buf.String(), err
}

func TestCLIPipeline(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "statement.csv")
	require.NoError(t, os.WriteFile(file, []byte("Date,Description,Amount\n05/01/2024,Coffee,-4.50\n06/01/2024,Salary,100\n"), 0644))

	out, err := ctl(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied (sqlite)")

	out, err = ctl(t, "account", "add", "-tenant", "t1", "-company", "c1", "-name", "Operating", "-currency", "EUR", "-id", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "account acct-1 registered")

	out, err = ctl(t, "ingest", "-tenant", "t1", "-company", "c1", file)
	require.NoError(t, err)
	m := regexp.MustCompile(`import ([0-9a-f-]{36})`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = ctl(t, "ingest", "-tenant", "t1", "-company", "c1", file)
	require.NoError(t, err)
	assert.Contains(t, out, "identical file already uploaded")

	out, err = ctl(t, "stage", "-tenant", "t1", id)
	require.NoError(t, err)
	assert.Contains(t, out, "format csv")
	assert.Contains(t, out, "Coffee")

	out, err = ctl(t, "commit", "-tenant", "t1", id, "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 inserted, 0 duplicated of 2 eligible")

	_, err = ctl(t, "commit", "-tenant", "t1", id, "acct-1")
	assert.ErrorContains(t, err, "already committed")

	out, err = ctl(t, "show", "-tenant", "t1", id)
	require.NoError(t, err)
	assert.Contains(t, out, "status: committed")

	out, err = ctl(t, "ledger", "-tenant", "t1", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 entries")
}

func TestCLIUsageErrors(t *testing.T) {
	setupEnv(t)
	_, err := ctl(t)
	assert.ErrorContains(t, err, "usage:")

	_, err = ctl(t, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = ctl(t, "stage", "some-id")
	assert.ErrorContains(t, err, "tenant is required")

	_, err = ctl(t, "ingest", "-tenant", "t1", "x.csv")
	assert.ErrorContains(t, err, "company is required")
}
