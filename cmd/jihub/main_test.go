package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile, envFile = "", ".env"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jihub version "+Version)
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef"))
	assert.Equal(t, "abc", shortCommit("abc"))
}

func TestConfigShowMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jihub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("migrate:\n  owner: acme\n  repo: widgets\n"), 0o600))
	t.Setenv("JIHUB_GITHUB_TOKEN", "ghp_secret1234")

	out, err := execute(t, "config", "show", "--config", path, "--env-file", filepath.Join(dir, "none.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "owner: acme")
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "ghp_secret1234")
}

func TestConfigShowCheckReportsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jihub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("migrate:\n  owner: acme\n"), 0o600))

	_, err := execute(t, "config", "show", "--check", "--config", path, "--env-file", filepath.Join(dir, "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Migrate.Repo")
}
