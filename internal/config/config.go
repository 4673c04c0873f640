package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appdefaults "github.com/lumitv/voice-gateway/config"

	"github.com/lumitv/voice-gateway/internal/logger"
	"github.com/spf13/viper"
)

// Config represents a config.
type Config struct {
	RootDir  string `mapstructure:"-"`
	HTTPAddr string `mapstructure:"http_addr"`

	LiveBackendURL      string `mapstructure:"live_backend_url"`
	LiveProtocolVersion int    `mapstructure:"live_protocol_version"`
	LiveModel           string `mapstructure:"live_model"`
	LiveVoice           string `mapstructure:"live_voice"`
	LiveClientID        string `mapstructure:"live_client_id"`
	LiveAccessToken     string `mapstructure:"live_access_token"`
	LiveSystemPrompt    string `mapstructure:"live_system_prompt"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	MicSampleRate   int    `mapstructure:"mic_sample_rate"`
	MicFormat       string `mapstructure:"mic_format"`
	ChunkIntervalMs int    `mapstructure:"chunk_interval_ms"`
	MaxQueuedChunks int    `mapstructure:"max_queued_chunks"`

	AppTablePath string `mapstructure:"app_table_path"`

	Log logger.Config `mapstructure:"log"`
}

// Load executes the load function.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}

	v := newViper()
	v.SetConfigName("conf")
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return finalize(v, rootDir)
}

// LoadConfig executes the loadConfig function.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	rootDir := strings.TrimSpace(os.Getenv("VGW_ROOT_DIR"))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
		if filepath.Base(rootDir) == "config" {
			rootDir = filepath.Dir(rootDir)
		}
	}

	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}

	return finalize(v, rootDir)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("http_addr", ":8090")
	v.SetDefault("live_protocol_version", 1)
	v.SetDefault("live_model", "gemini-2.0-flash-exp")
	v.SetDefault("live_voice", "Puck")
	v.SetDefault("gemini_model", "gemini-2.0-flash-exp")
	v.SetDefault("mic_sample_rate", 48000)
	v.SetDefault("mic_format", "pcm")
	v.SetDefault("chunk_interval_ms", 2000)
	v.SetDefault("max_queued_chunks", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "voice-gateway.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetEnvPrefix("vgw")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func finalize(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8090"
	}
	if cfg.MicSampleRate <= 0 {
		cfg.MicSampleRate = 48000
	}
	switch strings.ToLower(strings.TrimSpace(cfg.MicFormat)) {
	case "opus":
		cfg.MicFormat = "opus"
	default:
		cfg.MicFormat = "pcm"
	}
	if cfg.ChunkIntervalMs <= 0 {
		cfg.ChunkIntervalMs = 2000
	}
	if cfg.MaxQueuedChunks < 0 {
		cfg.MaxQueuedChunks = 0
	}
	if cfg.AppTablePath != "" && !filepath.IsAbs(cfg.AppTablePath) {
		cfg.AppTablePath = filepath.Join(cfg.RootDir, cfg.AppTablePath)
	}
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("VGW_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
