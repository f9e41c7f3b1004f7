package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/opsdash/internal/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OPSDASH_DATABASE_HOST.
const EnvPrefix = "OPSDASH"

// Config is the process configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Log      LogConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Addr           string
	CORSOrigins    []string
	MaxUploadBytes int64
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// PipelineConfig tunes ingestion.
type PipelineConfig struct {
	InitialBatchSize   int
	MaxBatchSize       int
	GrowthFactor       float64
	Throttle           time.Duration
	Cooldown           time.Duration
	HotWindowDays      int
	DetectionThreshold float64
	HistoryRetention   int
	HeaderScanRows     int
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("pipeline.initial_batch_size", 20)
	v.SetDefault("pipeline.max_batch_size", 100)
	v.SetDefault("pipeline.growth_factor", 1.1)
	v.SetDefault("pipeline.throttle", "100ms")
	v.SetDefault("pipeline.cooldown", "1s")
	v.SetDefault("pipeline.hot_window_days", 60)
	v.SetDefault("pipeline.detection_threshold", 0.5)
	v.SetDefault("pipeline.history_retention", 200)
	v.SetDefault("pipeline.header_scan_rows", 10)
}

// Load reads config.yaml from configPath (optional), a .env file next to it
// (optional) and OPSDASH_* environment overrides, in increasing precedence.
func Load(configPath string) (Config, error) {
	if configPath == "" {
		configPath = "."
	}
	_ = godotenv.Load(filepath.Join(configPath, ".env"))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			CORSOrigins:    splitList(v.GetStringSlice("server.cors_origins")),
			MaxUploadBytes: v.GetInt64("server.max_upload_mb") * 1024 * 1024,
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Pipeline: PipelineConfig{
			InitialBatchSize:   v.GetInt("pipeline.initial_batch_size"),
			MaxBatchSize:       v.GetInt("pipeline.max_batch_size"),
			GrowthFactor:       v.GetFloat64("pipeline.growth_factor"),
			Throttle:           v.GetDuration("pipeline.throttle"),
			Cooldown:           v.GetDuration("pipeline.cooldown"),
			HotWindowDays:      v.GetInt("pipeline.hot_window_days"),
			DetectionThreshold: v.GetFloat64("pipeline.detection_threshold"),
			HistoryRetention:   v.GetInt("pipeline.history_retention"),
			HeaderScanRows:     v.GetInt("pipeline.header_scan_rows"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDBConfig loads only the database section.
func LoadDBConfig(configPath string) (db.Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return db.Config{}, err
	}
	return cfg.Database, nil
}

// Validate rejects pipeline settings the writer cannot run with.
func (c Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.InitialBatchSize < 1:
		return fmt.Errorf("pipeline.initial_batch_size must be at least 1, got %d", p.InitialBatchSize)
	case p.MaxBatchSize < p.InitialBatchSize:
		return fmt.Errorf("pipeline.max_batch_size (%d) is below initial_batch_size (%d)", p.MaxBatchSize, p.InitialBatchSize)
	case p.GrowthFactor < 1:
		return fmt.Errorf("pipeline.growth_factor must be >= 1, got %v", p.GrowthFactor)
	case p.DetectionThreshold <= 0 || p.DetectionThreshold > 1:
		return fmt.Errorf("pipeline.detection_threshold must be in (0, 1], got %v", p.DetectionThreshold)
	case p.HotWindowDays < 1:
		return fmt.Errorf("pipeline.hot_window_days must be at least 1, got %d", p.HotWindowDays)
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
