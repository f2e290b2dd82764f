package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	flags := pflag.NewFlagSet("diffset", pflag.ContinueOnError)
	require.NoError(t, bindFlags(v, flags))
	require.NoError(t, flags.Parse(args))
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	v := newViper(t)

	cfg, err := validate(rawInputFrom(t, v))

	require.NoError(t, err)
	assert.Equal(t, BackendGoGit, cfg.Backend)
	assert.Equal(t, diffset.ToolGit.Name, cfg.Tool.Name)
	assert.Equal(t, diffset.DialectAuto, cfg.Dialect)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.Strict)
	assert.Equal(t, StoreJSONL, cfg.Store)
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	// Can't use t.Parallel with t.Setenv
	dir := t.TempDir()
	path := filepath.Join(dir, "diffset.yaml")
	content := `backend: github
github-owner: octo
github-repo: hello
workers: 8
timeout: 5s
store: sqlite
store-dsn: /tmp/diffset.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("DIFFSET_GITHUB_TOKEN", "secret")

	v := newViper(t, "--config", path, "--workers", "2", "--tool", "hg")
	cfg, err := loadConfig(v)

	require.NoError(t, err)
	assert.Equal(t, BackendGitHub, cfg.Backend)
	assert.Equal(t, "octo", cfg.GitHubOwner)
	assert.Equal(t, "secret", cfg.GitHubToken)
	assert.Equal(t, 2, cfg.Workers, "flags win over the config file")
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, diffset.ToolMercurial.Name, cfg.Tool.Name)
	assert.Equal(t, "sqlite", cfg.Store)
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Parallel()

	_, err := validate(rawInput{
		Backend:   "svnserve",
		Tool:      "cvs",
		Dialect:   "ed",
		Parser:    "magic",
		Workers:   0,
		Timeout:   0,
		Retries:   -1,
		CacheSize: 0,
		Store:     "redis",
	})

	require.Error(t, err)
	for _, field := range []string{"backend", "tool", "dialect", "parser", "workers", "timeout", "retries", "cache-size", "store"} {
		assert.Contains(t, err.Error(), field+":")
	}
}

func TestValidate_GitHubNeedsRepository(t *testing.T) {
	t.Parallel()

	input := validInput()
	input.Backend = BackendGitHub

	_, err := validate(input)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "github-owner and github-repo")
}

func validInput() rawInput {
	return rawInput{
		Backend:   BackendGoGit,
		Repo:      ".",
		Tool:      "git",
		Dialect:   "auto",
		Parser:    ParserNative,
		Workers:   4,
		Timeout:   time.Second,
		CacheSize: 16,
		Store:     StoreJSONL,
		StoreDSN:  "diffsets.jsonl",
		LogLevel:  "info",
	}
}

func rawInputFrom(t *testing.T, v *viper.Viper) rawInput {
	t.Helper()
	var input rawInput
	require.NoError(t, v.Unmarshal(&input))
	return input
}
