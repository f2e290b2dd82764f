package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/cache"
	"github.com/fwojciec/diffset/fetch"
	"github.com/fwojciec/diffset/fs"
	"github.com/fwojciec/diffset/sqlstore"
	"github.com/fwojciec/diffset/upload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backend kinds.
const (
	BackendGoGit  = "gogit"
	BackendGit    = "git"
	BackendGitHub = "github"
)

// Store kinds besides the sqlstore backends.
const StoreJSONL = "jsonl"

// Parser kinds.
const (
	ParserNative  = "native"
	ParserGitDiff = "gitdiff"
)

// rawInput holds the unvalidated configuration from all sources (file, env,
// flags). Viper unmarshals into it.
type rawInput struct {
	Backend      string        `mapstructure:"backend"`
	Repo         string        `mapstructure:"repo"`
	GitHubOwner  string        `mapstructure:"github-owner"`
	GitHubRepo   string        `mapstructure:"github-repo"`
	GitHubToken  string        `mapstructure:"github-token"`
	Tool         string        `mapstructure:"tool"`
	Dialect      string        `mapstructure:"dialect"`
	Parser       string        `mapstructure:"parser"`
	Workers      int           `mapstructure:"workers"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	MaxShift     int           `mapstructure:"max-shift"`
	Strict       bool          `mapstructure:"strict"`
	Verify       bool          `mapstructure:"verify"`
	CheckSources bool          `mapstructure:"check-sources"`
	CacheSize    int           `mapstructure:"cache-size"`
	CacheDir     string        `mapstructure:"cache-dir"`
	Store        string        `mapstructure:"store"`
	StoreDSN     string        `mapstructure:"store-dsn"`
	LogLevel     string        `mapstructure:"log-level"`
	LogFormat    string        `mapstructure:"log-format"`
}

// Config is the validated configuration.
type Config struct {
	Backend      string
	Repo         string
	GitHubOwner  string
	GitHubRepo   string
	GitHubToken  string
	Tool         diffset.SCMTool
	Dialect      diffset.Dialect
	Parser       string
	Workers      int
	Timeout      time.Duration
	Retries      int
	MaxShift     int
	Strict       bool
	Verify       bool
	CheckSources bool
	CacheSize    int
	CacheDir     string // Empty disables the disk cache
	Store        string
	StoreDSN     string
	LogLevel     string
	LogFormat    string
}

// bindFlags registers the configuration flags and binds them to v.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("config", "", "config file (default is .diffset.yaml in . or $HOME)")
	flags.String("backend", BackendGoGit, "repository backend: gogit, git, or github")
	flags.String("repo", ".", "path of the local repository")
	flags.String("github-owner", "", "GitHub repository owner")
	flags.String("github-repo", "", "GitHub repository name")
	flags.String("github-token", "", "GitHub API token")
	flags.String("tool", diffset.ToolGit.Name, "SCM tool: git, hg, svn, or generic")
	flags.String("dialect", "auto", "diff dialect: auto, git, hg, unified, or context")
	flags.String("parser", ParserNative, "diff parser: native or gitdiff")
	flags.Int("workers", upload.DefaultWorkers, "files processed concurrently")
	flags.Duration("timeout", fetch.DefaultTimeout, "timeout per repository call")
	flags.Int("retries", fetch.DefaultMaxRetries, "retries for transient repository errors")
	flags.Int("max-shift", 0, "lines a hunk may drift from its declared position (0 for default)")
	flags.Bool("strict", true, "fail the upload when any file fails")
	flags.Bool("verify", true, "reconstruct every file before saving")
	flags.Bool("check-sources", true, "check that every source blob exists")
	flags.Int("cache-size", cache.DefaultMaxEntries, "blobs kept in memory")
	flags.String("cache-dir", fs.DefaultCacheDir(), "directory for the blob disk cache (empty to disable)")
	flags.String("store", StoreJSONL, "diffset store: jsonl, sqlite, postgresql, or mysql")
	flags.String("store-dsn", "diffsets.jsonl", "store file path or connection string")
	flags.String("log-level", "info", "log level: debug, info, warn, or error")
	flags.String("log-format", "console", "log format: json or console")
	return v.BindPFlags(flags)
}

// loadConfig reads the config file, environment, and flags into a Config.
func loadConfig(v *viper.Viper) (Config, error) {
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".diffset")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	v.SetEnvPrefix("DIFFSET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var input rawInput
	if err := v.Unmarshal(&input); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return validate(input)
}

// validate checks input and converts it into a Config. All problems are
// reported together.
func validate(input rawInput) (Config, error) {
	var errs []error
	cfg := Config{
		Backend:      strings.ToLower(strings.TrimSpace(input.Backend)),
		Repo:         input.Repo,
		GitHubOwner:  input.GitHubOwner,
		GitHubRepo:   input.GitHubRepo,
		GitHubToken:  input.GitHubToken,
		Parser:       input.Parser,
		Workers:      input.Workers,
		Timeout:      input.Timeout,
		Retries:      input.Retries,
		MaxShift:     input.MaxShift,
		Strict:       input.Strict,
		Verify:       input.Verify,
		CheckSources: input.CheckSources,
		CacheSize:    input.CacheSize,
		CacheDir:     input.CacheDir,
		Store:        strings.ToLower(strings.TrimSpace(input.Store)),
		StoreDSN:     input.StoreDSN,
		LogLevel:     input.LogLevel,
		LogFormat:    input.LogFormat,
	}

	switch cfg.Backend {
	case BackendGoGit, BackendGit:
		if cfg.Repo == "" {
			errs = append(errs, errors.New("repo: required for the "+cfg.Backend+" backend"))
		}
	case BackendGitHub:
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			errs = append(errs, errors.New("github-owner and github-repo: required for the github backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend: %q must be gogit, git, or github", input.Backend))
	}

	tool, ok := diffset.LookupTool(strings.ToLower(input.Tool))
	if !ok {
		errs = append(errs, fmt.Errorf("tool: unknown SCM tool %q", input.Tool))
	}
	cfg.Tool = tool

	dialect, ok := diffset.ParseDialect(strings.ToLower(input.Dialect))
	if !ok {
		errs = append(errs, fmt.Errorf("dialect: unknown dialect %q", input.Dialect))
	}
	cfg.Dialect = dialect

	if cfg.Parser != ParserNative && cfg.Parser != ParserGitDiff {
		errs = append(errs, fmt.Errorf("parser: %q must be native or gitdiff", cfg.Parser))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: must be at least 1, got %d", cfg.Workers))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout: must be positive, got %s", cfg.Timeout))
	}
	if cfg.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries: must not be negative, got %d", cfg.Retries))
	}
	if cfg.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("cache-size: must be at least 1, got %d", cfg.CacheSize))
	}

	switch sqlstore.Backend(cfg.Store) {
	case StoreJSONL, sqlstore.SQLite, sqlstore.PostgreSQL, sqlstore.MySQL:
		if cfg.StoreDSN == "" {
			errs = append(errs, errors.New("store-dsn: required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: %q must be jsonl, sqlite, postgresql, or mysql", input.Store))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
