package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// AnalysisURL is the base URL of the remote transcription/feedback service.
	AnalysisURL string `json:"analysis_url,omitempty"`

	// AnalysisLanguage is the default target language code sent with
	// analysis requests (e.g. "en", "ja"). Overridable per request.
	AnalysisLanguage string `json:"analysis_language,omitempty"`

	// AnalysisTimeoutSeconds bounds one analysis round trip. 0 means 120.
	AnalysisTimeoutSeconds int `json:"analysis_timeout_seconds,omitempty"`

	// ExtractThresholdBytes is the payload size above which the audio track
	// is extracted from video before upload. 0 means 8 MiB.
	ExtractThresholdBytes int64 `json:"extract_threshold_bytes,omitempty"`

	// ExtractMinRatio rejects an extraction result smaller than this fraction
	// of the input as implausible; the original payload is sent instead.
	// 0 means 0.01.
	ExtractMinRatio float64 `json:"extract_min_ratio,omitempty"`

	// ParagraphPauseSeconds is the inter-segment pause above which the
	// transcript is split into a new paragraph. 0 means 1.5.
	ParagraphPauseSeconds float64 `json:"paragraph_pause_seconds,omitempty"`

	// NewsURL is the endpoint of the topic-news side feature.
	NewsURL string `json:"news_url,omitempty"`

	// NewsCacheTTLSeconds controls how long fetched headlines are reused.
	// 0 means 900 (15 minutes).
	NewsCacheTTLSeconds int `json:"news_cache_ttl_seconds,omitempty"`

	// ListenAddr is the HTTP API bind address for serve mode.
	ListenAddr string `json:"listen_addr,omitempty"`

	// LogLevel is a logrus level name. Empty means info.
	LogLevel string `json:"log_level,omitempty"`

	// LogFile, when set, enables rotated file logging in serve mode.
	LogFile string `json:"log_file,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is
	// locked" errors). 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AnalysisLanguage:       "en",
		AnalysisTimeoutSeconds: 120,
		ExtractThresholdBytes:  8 << 20,
		ExtractMinRatio:        0.01,
		ParagraphPauseSeconds:  1.5,
		NewsCacheTTLSeconds:    900,
		ListenAddr:             "127.0.0.1:8791",
	}
}

// Load loads configuration from baseDir/config.json, merged over defaults.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.parley.
func Load(baseDir string) (*Config, error) {
	raw, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), raw), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays non-zero fields of override onto base and returns the result.
// Neither argument is mutated.
func Merge(base, override *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	merged := *base
	if override == nil {
		return &merged
	}

	if override.AnalysisURL != "" {
		merged.AnalysisURL = override.AnalysisURL
	}
	if override.AnalysisLanguage != "" {
		merged.AnalysisLanguage = override.AnalysisLanguage
	}
	if override.AnalysisTimeoutSeconds > 0 {
		merged.AnalysisTimeoutSeconds = override.AnalysisTimeoutSeconds
	}
	if override.ExtractThresholdBytes > 0 {
		merged.ExtractThresholdBytes = override.ExtractThresholdBytes
	}
	if override.ExtractMinRatio > 0 {
		merged.ExtractMinRatio = override.ExtractMinRatio
	}
	if override.ParagraphPauseSeconds > 0 {
		merged.ParagraphPauseSeconds = override.ParagraphPauseSeconds
	}
	if override.NewsURL != "" {
		merged.NewsURL = override.NewsURL
	}
	if override.NewsCacheTTLSeconds > 0 {
		merged.NewsCacheTTLSeconds = override.NewsCacheTTLSeconds
	}
	if override.ListenAddr != "" {
		merged.ListenAddr = override.ListenAddr
	}
	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
	}
	if override.LogFile != "" {
		merged.LogFile = override.LogFile
	}
	if override.DBMaxOpenConns > 0 {
		merged.DBMaxOpenConns = override.DBMaxOpenConns
	}
	if override.DBMaxIdleConns > 0 {
		merged.DBMaxIdleConns = override.DBMaxIdleConns
	}
	if len(override.DisabledTools) > 0 {
		merged.DisabledTools = append([]string(nil), override.DisabledTools...)
	}
	return &merged
}

// DefaultBaseDir returns ~/.parley, the default data directory.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley"), nil
}
