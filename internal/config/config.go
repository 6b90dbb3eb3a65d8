// Package config resolves archive-sweep settings from defaults, an
// optional .env file and ARCHIVE_SWEEP_* environment variables. Command
// line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcliao/archive-sweep/internal/remote"
	"github.com/rcliao/archive-sweep/internal/scan"
)

const (
	EnvPrefix = "ARCHIVE_SWEEP_"

	DefaultDailyCap   = 9999
	DefaultListenAddr = "127.0.0.1:8765"
)

// Config holds every runtime setting.
type Config struct {
	RootPath       string `json:"root_path"`
	StagingPath    string `json:"staging_path"`
	QuarantinePath string `json:"quarantine_path"`
	StatePath      string `json:"state_path"`
	JournalPath    string `json:"journal_path"`

	DailyUploadCap     int      `json:"daily_upload_cap"`
	PrimaryExtension   string   `json:"primary_extension"`
	PriorityExtensions []string `json:"priority_extensions"`
	IgnoredExtensions  []string `json:"ignored_extensions"`

	SearchURL         string        `json:"search_url"`
	DetailsURL        string        `json:"details_url"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	MaxAttempts       int           `json:"max_attempts"`
	BaseDelay         time.Duration `json:"base_delay"`
	SearchRows        int           `json:"search_rows"`
	DuplicateSuffixes []string      `json:"duplicate_suffixes,omitempty"`

	UploadCommand string   `json:"upload_command"`
	UploadArgs    []string `json:"upload_args,omitempty"`

	CheckDelay          time.Duration `json:"check_delay"`
	ValidatePDF         bool          `json:"validate_pdf"`
	CleanupEmptyParents bool          `json:"cleanup_empty_parents"`
	ListenAddr          string        `json:"listen_addr"`
}

// Dir returns the default data directory, ~/.archive-sweep.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".archive-sweep"
	}
	return filepath.Join(home, ".archive-sweep")
}

// Default returns the built-in settings.
func Default() Config {
	dir := Dir()
	return Config{
		StagingPath:         filepath.Join(dir, "staging"),
		QuarantinePath:      filepath.Join(dir, "quarantine"),
		StatePath:           filepath.Join(dir, "state.json"),
		JournalPath:         filepath.Join(dir, "journal.db"),
		DailyUploadCap:      DefaultDailyCap,
		PrimaryExtension:    scan.DefaultPrimaryExt,
		PriorityExtensions:  append([]string(nil), scan.DefaultPriorityExts...),
		IgnoredExtensions:   append([]string(nil), scan.DefaultIgnoredExts...),
		SearchURL:           remote.DefaultSearchURL,
		DetailsURL:          remote.DefaultDetailsURL,
		RequestTimeout:      remote.DefaultTimeout,
		MaxAttempts:         remote.DefaultMaxAttempts,
		BaseDelay:           remote.DefaultBaseDelay,
		SearchRows:          remote.DefaultSearchRows,
		CheckDelay:          time.Second,
		CleanupEmptyParents: true,
		ListenAddr:          DefaultListenAddr,
	}
}

// Load returns defaults overlaid with the .env file and the environment.
// An empty envFile means ./.env when present; a named file must exist.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.RootPath = getEnv("ROOT", c.RootPath)
	c.StagingPath = getEnv("STAGING", c.StagingPath)
	c.QuarantinePath = getEnv("QUARANTINE", c.QuarantinePath)
	c.StatePath = getEnv("STATE", c.StatePath)
	c.JournalPath = getEnv("JOURNAL", c.JournalPath)
	c.PrimaryExtension = getEnv("PRIMARY_EXT", c.PrimaryExtension)
	c.PriorityExtensions = getList("PRIORITY_EXTS", c.PriorityExtensions)
	c.IgnoredExtensions = getList("IGNORED_EXTS", c.IgnoredExtensions)
	c.SearchURL = getEnv("SEARCH_URL", c.SearchURL)
	c.DetailsURL = getEnv("DETAILS_URL", c.DetailsURL)
	c.DuplicateSuffixes = getList("DUPLICATE_SUFFIXES", c.DuplicateSuffixes)
	c.UploadCommand = getEnv("UPLOAD_COMMAND", c.UploadCommand)
	if v, ok := lookup("UPLOAD_ARGS"); ok {
		c.UploadArgs = strings.Fields(v)
	}
	c.ListenAddr = getEnv("LISTEN", c.ListenAddr)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getInt("DAILY_CAP", &c.DailyUploadCap))
	collect(getInt("MAX_ATTEMPTS", &c.MaxAttempts))
	collect(getInt("SEARCH_ROWS", &c.SearchRows))
	collect(getDuration("TIMEOUT", &c.RequestTimeout))
	collect(getDuration("BASE_DELAY", &c.BaseDelay))
	collect(getDuration("CHECK_DELAY", &c.CheckDelay))
	collect(getBool("VALIDATE_PDF", &c.ValidatePDF))
	collect(getBool("CLEANUP_PARENTS", &c.CleanupEmptyParents))
	return errors.Join(errs...)
}

// Validate checks the settings needed for a reconciliation run.
func (c Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root path is required (--root or %sROOT)", EnvPrefix)
	}
	info, err := os.Stat(c.RootPath)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %s is not a directory", c.RootPath)
	}
	if c.StagingPath == "" {
		return errors.New("staging path is required")
	}
	if within(c.StagingPath, c.RootPath) {
		return fmt.Errorf("staging path %s must be outside the root", c.StagingPath)
	}
	if c.DailyUploadCap < 0 {
		return fmt.Errorf("daily upload cap must not be negative, got %d", c.DailyUploadCap)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if !strings.HasPrefix(c.PrimaryExtension, ".") {
		return fmt.Errorf("primary extension %q must start with a dot", c.PrimaryExtension)
	}
	return nil
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	p, err1 := filepath.Abs(path)
	d, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func getEnv(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func getDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}

func getBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}
