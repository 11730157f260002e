package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds every runtime knob. Field tags name the TOML keys; the env
// variable of the same name in upper case overrides the file.
type Config struct {
	WorkDir    string `toml:"work_dir"`
	FFmpegPath string `toml:"ffmpeg_path"`
	Port       string `toml:"port"`

	DownloadTimeoutSec    int    `toml:"download_timeout_sec"`
	DownloadMaxAttempts   int    `toml:"download_max_attempts"`
	DownloadBackoffBaseMs int    `toml:"download_backoff_base_ms"`
	DownloadUserAgent     string `toml:"download_user_agent"`

	TranscribeURL     string `toml:"transcribe_url"`
	TranscribeModel   string `toml:"transcribe_model"`
	TranscribeAPIKey  string `toml:"transcribe_api_key"`
	UseMockTranscribe bool   `toml:"use_mock_transcribe"`

	ClassifyURL     string  `toml:"classify_url"`
	UseMockClassify bool    `toml:"use_mock_classify"`
	MockAccent      string  `toml:"mock_accent"`
	MockProbability float64 `toml:"mock_probability"`

	DatasetPath string `toml:"dataset_path"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir:               filepath.Join(os.TempDir(), "accent-analyzer"),
		FFmpegPath:            "ffmpeg",
		Port:                  "8080",
		DownloadTimeoutSec:    120,
		DownloadMaxAttempts:   5,
		DownloadBackoffBaseMs: 1000,
		DownloadUserAgent:     defaultUserAgent,
		TranscribeModel:       "whisper-1",
		MockAccent:            "us",
		MockProbability:       0.9,
		DatasetPath:           "videos.xlsx",
		MaxUploadMB:           200,
	}
}

// Load reads defaults, then the TOML file named by CONFIG_FILE (if any), then
// environment overrides. Callers load .env files beforehand.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("WORK_DIR", &c.WorkDir)
	str("FFMPEG_PATH", &c.FFmpegPath)
	str("PORT", &c.Port)
	num("DOWNLOAD_TIMEOUT_SEC", &c.DownloadTimeoutSec)
	num("DOWNLOAD_MAX_ATTEMPTS", &c.DownloadMaxAttempts)
	num("DOWNLOAD_BACKOFF_BASE_MS", &c.DownloadBackoffBaseMs)
	str("DOWNLOAD_USER_AGENT", &c.DownloadUserAgent)
	str("TRANSCRIBE_URL", &c.TranscribeURL)
	str("TRANSCRIBE_MODEL", &c.TranscribeModel)
	str("TRANSCRIBE_API_KEY", &c.TranscribeAPIKey)
	flag("USE_MOCK_TRANSCRIBE", &c.UseMockTranscribe)
	str("CLASSIFY_URL", &c.ClassifyURL)
	flag("USE_MOCK_CLASSIFY", &c.UseMockClassify)
	str("MOCK_ACCENT", &c.MockAccent)
	if v := strings.TrimSpace(getenv("MOCK_PROBABILITY")); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOCK_PROBABILITY: %w", err))
		} else {
			c.MockProbability = p
		}
	}
	str("DATASET_PATH", &c.DatasetPath)
	num("MAX_UPLOAD_MB", &c.MaxUploadMB)

	return errors.Join(errs...)
}

// Validate reports configuration that cannot produce a working pipeline.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.WorkDir) == "" {
		errs = append(errs, errors.New("work_dir is required"))
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		errs = append(errs, errors.New("ffmpeg_path is required"))
	}
	if c.DownloadTimeoutSec <= 0 {
		errs = append(errs, errors.New("download_timeout_sec must be positive"))
	}
	if c.DownloadMaxAttempts <= 0 {
		errs = append(errs, errors.New("download_max_attempts must be positive"))
	}
	if c.DownloadBackoffBaseMs < 0 {
		errs = append(errs, errors.New("download_backoff_base_ms must not be negative"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateBackends reports model services that are neither configured nor
// mocked. Only commands that run analyses need them.
func (c Config) ValidateBackends() error {
	var errs []error
	if !c.UseMockTranscribe && strings.TrimSpace(c.TranscribeURL) == "" {
		errs = append(errs, errors.New("TRANSCRIBE_URL not set (or set USE_MOCK_TRANSCRIBE=true)"))
	}
	if !c.UseMockClassify && strings.TrimSpace(c.ClassifyURL) == "" {
		errs = append(errs, errors.New("CLASSIFY_URL not set (or set USE_MOCK_CLASSIFY=true)"))
	}
	return errors.Join(errs...)
}

func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

func (c Config) DownloadBackoffBase() time.Duration {
	return time.Duration(c.DownloadBackoffBaseMs) * time.Millisecond
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
