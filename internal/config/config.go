package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize"`
	QueueCapacity int           `yaml:"queueCapacity"`
	WorkerCount   int           `yaml:"workerCount"`
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for workers before forced stop
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
}

// StorageConfig places everything the service writes on disk.
type StorageConfig struct {
	DataDir      string `yaml:"dataDir"`
	DatabasePath string `yaml:"databasePath"` // optional, overrides default dataDir/clipforge.db
	ClipsDir     string `yaml:"clipsDir"`     // optional, default dataDir/clips
	WorkDir      string `yaml:"workDir"`      // optional, default dataDir/work
	CacheDir     string `yaml:"cacheDir"`     // optional, default dataDir/cache
}

// PipelineConfig bounds the external-tool stages.
type PipelineConfig struct {
	DownloadTimeout   time.Duration `yaml:"downloadTimeout"`
	TranscribeTimeout time.Duration `yaml:"transcribeTimeout"`
	RenderTimeout     time.Duration `yaml:"renderTimeout"` // per clip
	MixTimeout        time.Duration `yaml:"mixTimeout"`    // per clip
}

// ToolsConfig names the external binaries and the ASR model.
type ToolsConfig struct {
	FFmpegBin      string `yaml:"ffmpegBin"`
	FFprobeBin     string `yaml:"ffprobeBin"`
	YTDLPBin       string `yaml:"ytdlpBin"`
	WhisperBin     string `yaml:"whisperBin"`
	WhisperModel   string `yaml:"whisperModel"`
	WhisperDiarize bool   `yaml:"whisperDiarize"` // requires a tinydiarize model
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var CLIPFORGE_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("CLIPFORGE_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.ClipsDir, cfg.Storage.WorkDir, cfg.Storage.CacheDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure storage dir %s: %w", dir, err)
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(2 * 1024 * 1024 * 1024) // 2 GiB default
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = 64
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = 1
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.DataDir, "clipforge.db")
	}
	if cfg.Storage.ClipsDir == "" {
		cfg.Storage.ClipsDir = filepath.Join(cfg.Storage.DataDir, "clips")
	}
	if cfg.Storage.WorkDir == "" {
		cfg.Storage.WorkDir = filepath.Join(cfg.Storage.DataDir, "work")
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = filepath.Join(cfg.Storage.DataDir, "cache")
	}

	if cfg.Pipeline.DownloadTimeout == 0 {
		cfg.Pipeline.DownloadTimeout = 30 * time.Minute
	}
	if cfg.Pipeline.TranscribeTimeout == 0 {
		cfg.Pipeline.TranscribeTimeout = 60 * time.Minute
	}
	if cfg.Pipeline.RenderTimeout == 0 {
		cfg.Pipeline.RenderTimeout = 20 * time.Minute
	}
	if cfg.Pipeline.MixTimeout == 0 {
		cfg.Pipeline.MixTimeout = 10 * time.Minute
	}

	if cfg.Tools.FFmpegBin == "" {
		cfg.Tools.FFmpegBin = "ffmpeg"
	}
	if cfg.Tools.FFprobeBin == "" {
		cfg.Tools.FFprobeBin = "ffprobe"
	}
	if cfg.Tools.YTDLPBin == "" {
		cfg.Tools.YTDLPBin = "yt-dlp"
	}
	if cfg.Tools.WhisperBin == "" {
		cfg.Tools.WhisperBin = "whisper-cli"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", cfg.Server.LogLevel)
	}
	if strings.TrimSpace(cfg.Tools.WhisperModel) == "" {
		return errors.New("tools.whisperModel is required")
	}
	return nil
}
