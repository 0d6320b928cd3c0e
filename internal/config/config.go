package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Intake   IntakeConfig   `koanf:"intake"`
	Sandbox  SandboxConfig  `koanf:"sandbox"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Scanner  ScannerConfig  `koanf:"scanner"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type IntakeConfig struct {
	MaxFileSize       int64    `koanf:"max_file_size"`
	AllowedExtensions []string `koanf:"allowed_extensions"`
}

type SandboxConfig struct {
	Backend     string `koanf:"backend"`
	Image       string `koanf:"image"`
	Memory      string `koanf:"memory"`
	CPUs        string `koanf:"cpus"`
	ScratchSize string `koanf:"scratch_size"`
	Slots       int    `koanf:"slots"`
}

type PipelineConfig struct {
	StageTimeout   time.Duration `koanf:"stage_timeout"`
	RasterDPI      int           `koanf:"raster_dpi"`
	Retries        int           `koanf:"retries"`
	DownloadExpiry time.Duration `koanf:"download_expiry"`
}

type ScannerConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
}

type StorageConfig struct {
	WorkDir         string        `koanf:"work_dir"`
	OrphanRetention time.Duration `koanf:"orphan_retention"`
	ReapInterval    time.Duration `koanf:"reap_interval"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load env vars: CS_SANDBOX_MEMORY -> sandbox.memory
	// Only set env vars that have non-empty values to avoid overriding TOML config.
	if err := k.Load(env.ProviderWithValue("CS_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.Replace(
			strings.ToLower(strings.TrimPrefix(key, "CS_")),
			"_", ".", -1,
		)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	// 4. Handle top-level convenience env vars
	if v := os.Getenv("VIRUSTOTAL_API_KEY"); v != "" {
		k.Set("scanner.api_key", v)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// AllowsExtension reports whether ext (without the dot, lower-cased by the
// caller) is on the intake allow-list.
func (c IntakeConfig) AllowsExtension(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
