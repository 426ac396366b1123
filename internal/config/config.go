// Package config loads settings from the environment and an optional
// text2splat.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/forPelevin/text2splat/internal/ports/adapters/gemini"
	"github.com/forPelevin/text2splat/internal/ports/adapters/reconstruct"
)

const (
	DefaultGeminiBaseURL  = gemini.DefaultBaseURL
	DefaultPromptModel    = gemini.DefaultPromptModel
	DefaultVideoModel     = gemini.DefaultVideoModel
	DefaultReconstructURL = reconstruct.DefaultURL
	DefaultViewerBin      = "./tools/brush/target/release/brush_app"
	DefaultViewerBuildDir = "./tools/brush"
	DefaultViewerBuild    = "cargo build --release --bin brush_app"

	// MinPollInterval keeps a misconfigured interval from hammering the
	// operations endpoint.
	MinPollInterval = time.Second

	configName = "text2splat"
)

// WorkDirEnv names the work dir variable; the splat driver sets it for the
// views tool it launches.
const WorkDirEnv = "TEXT2SPLAT_WORK_DIR"

type Settings struct {
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiAllowedHosts []string
	PromptModel        string
	VideoModel         string

	PollInterval    time.Duration
	PollMaxAttempts int

	ReconstructURL string
	WorkDir        string

	// ViewsCommand is split on whitespace; empty means auto-detect.
	ViewsCommand       []string
	ViewerBin          string
	ViewerBuildDir     string
	ViewerBuildCommand []string

	LogLevel  string
	LogFormat string
}

// env names bound to each key; the first name that is set wins.
var envBindings = map[string][]string{
	"gemini_api_key":       {"GEMINI_API_KEY"},
	"gemini_base_url":      {"GEMINI_BASE_URL"},
	"gemini_allowed_hosts": {"GEMINI_ALLOWED_HOSTS"},
	"prompt_model":         {"GEMINI_PROMPT_MODEL"},
	"video_model":          {"VEO_MODEL"},
	"poll_interval":        {"POLL_INTERVAL"},
	"poll_max_attempts":    {"POLL_MAX_ATTEMPTS"},
	"reconstruct_url":      {"RECONSTRUCT_URL"},
	"work_dir":             {WorkDirEnv},
	"views_command":        {"VIEWS_COMMAND"},
	"viewer_bin":           {"VIEWER_BIN"},
	"viewer_build_dir":     {"VIEWER_BUILD_DIR"},
	"viewer_build_command": {"VIEWER_BUILD_COMMAND"},
	"log_level":            {"LOG_LEVEL"},
	"log_format":           {"LOG_FORMAT"},
}

// Load reads settings. configFile may be empty, in which case text2splat.yaml
// is looked up in the working directory and in $HOME/.text2splat; a missing
// file is not an error.
func Load(configFile string) (Settings, error) {
	v := viper.New()

	v.SetDefault("gemini_base_url", DefaultGeminiBaseURL)
	v.SetDefault("prompt_model", DefaultPromptModel)
	v.SetDefault("video_model", DefaultVideoModel)
	v.SetDefault("poll_interval", "6s")
	v.SetDefault("poll_max_attempts", 0)
	v.SetDefault("reconstruct_url", DefaultReconstructURL)
	v.SetDefault("work_dir", ".")
	v.SetDefault("viewer_bin", DefaultViewerBin)
	v.SetDefault("viewer_build_dir", DefaultViewerBuildDir)
	v.SetDefault("viewer_build_command", DefaultViewerBuild)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Settings{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	s := Settings{
		GeminiAPIKey:       strings.TrimSpace(v.GetString("gemini_api_key")),
		GeminiBaseURL:      strings.TrimSpace(v.GetString("gemini_base_url")),
		GeminiAllowedHosts: splitList(v.GetString("gemini_allowed_hosts")),
		PromptModel:        strings.TrimSpace(v.GetString("prompt_model")),
		VideoModel:         strings.TrimSpace(v.GetString("video_model")),
		PollMaxAttempts:    v.GetInt("poll_max_attempts"),
		ReconstructURL:     strings.TrimSpace(v.GetString("reconstruct_url")),
		WorkDir:            strings.TrimSpace(v.GetString("work_dir")),
		ViewsCommand:       strings.Fields(v.GetString("views_command")),
		ViewerBin:          strings.TrimSpace(v.GetString("viewer_bin")),
		ViewerBuildDir:     strings.TrimSpace(v.GetString("viewer_build_dir")),
		ViewerBuildCommand: strings.Fields(v.GetString("viewer_build_command")),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
	}
	interval, err := parseInterval(v.GetString("poll_interval"))
	if err != nil {
		return Settings{}, err
	}
	s.PollInterval = interval
	if s.PollMaxAttempts < 0 {
		return Settings{}, fmt.Errorf("poll_max_attempts must be >= 0")
	}
	return s, nil
}

// parseInterval reads a Go duration ("6s", "1m"); a bare number is seconds.
func parseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var d time.Duration
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(n * float64(time.Second))
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("poll_interval: %w", err)
	}
	if d < MinPollInterval {
		return 0, fmt.Errorf("poll_interval must be >= %s, got %q", MinPollInterval, raw)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
