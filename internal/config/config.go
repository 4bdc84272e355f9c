package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MemoryConfig holds in-memory/JSON archive backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SqliteConfig holds SQLite archive backend settings
type SqliteConfig struct {
	DumpIntervalSeconds int    `json:"dumpIntervalSeconds" mapstructure:"dumpIntervalSeconds"`
	DumpPath            string `json:"dumpPath" mapstructure:"dumpPath"`
}

// StorageConfig selects and configures the archive backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	Sqlite SqliteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// DetectionConfig holds conflict-detection tuning
type DetectionConfig struct {
	HorizonSeconds     int `json:"horizonSeconds" mapstructure:"horizonSeconds"`
	IntervalSeconds    int `json:"intervalSeconds" mapstructure:"intervalSeconds"`
	TrackHistoryLength int `json:"trackHistoryLength" mapstructure:"trackHistoryLength"`
}

// ResolutionConfig holds resolution-engine tuning
type ResolutionConfig struct {
	MaxStrategies int     `json:"maxStrategies" mapstructure:"maxStrategies"`
	MinConfidence float64 `json:"minConfidence" mapstructure:"minConfidence"`
	ExpiryMinutes int     `json:"expiryMinutes" mapstructure:"expiryMinutes"`
}

// CoordinationConfig holds event-fabric tuning
type CoordinationConfig struct {
	IntervalSeconds int `json:"intervalSeconds" mapstructure:"intervalSeconds"`
	BatchSize       int `json:"batchSize" mapstructure:"batchSize"`
	MaxHistory      int `json:"maxHistory" mapstructure:"maxHistory"`
}

// SectorConfig bounds the monitored airspace
type SectorConfig struct {
	Name   string  `json:"name" mapstructure:"name"`
	MinLat float64 `json:"minLat" mapstructure:"minLat"`
	MaxLat float64 `json:"maxLat" mapstructure:"maxLat"`
	MinLon float64 `json:"minLon" mapstructure:"minLon"`
	MaxLon float64 `json:"maxLon" mapstructure:"maxLon"`
}

// Contains reports whether the position lies within the sector bounds.
func (c SectorConfig) Contains(lat, lon float64) bool {
	return lat >= c.MinLat && lat <= c.MaxLat && lon >= c.MinLon && lon <= c.MaxLon
}

// FeedConfig selects and configures the traffic snapshot provider
type FeedConfig struct {
	Type          string `json:"type" mapstructure:"type"`
	AircraftCount int    `json:"aircraftCount" mapstructure:"aircraftCount"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./skyguardlogs")

	viper.SetDefault("detection.horizonSeconds", 300)
	viper.SetDefault("detection.intervalSeconds", 5)
	viper.SetDefault("detection.trackHistoryLength", 10)

	viper.SetDefault("resolution.maxStrategies", 5)
	viper.SetDefault("resolution.minConfidence", 0.5)
	viper.SetDefault("resolution.expiryMinutes", 10)

	viper.SetDefault("coordination.intervalSeconds", 1)
	viper.SetDefault("coordination.batchSize", 10)
	viper.SetDefault("coordination.maxHistory", 1000)

	// Default sector: New York area en-route airspace
	viper.SetDefault("sector.name", "ZNY")
	viper.SetDefault("sector.minLat", 38.0)
	viper.SetDefault("sector.maxLat", 42.0)
	viper.SetDefault("sector.minLon", -76.0)
	viper.SetDefault("sector.maxLon", -72.0)

	viper.SetDefault("feed.type", "sim")
	viper.SetDefault("feed.aircraftCount", 12)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./archives")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpIntervalSeconds", 60)
	viper.SetDefault("storage.sqlite.dumpPath", "./skyguard.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "skyguard")

	viper.SetDefault("influx.enabled", true)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "skyguard-metrics")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "skyguard")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)
	viper.SetDefault("otel.batchTimeoutSeconds", 5)

	viper.SetConfigName("skyguard.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Detection returns the conflict-detection config section.
func Detection() DetectionConfig {
	return DetectionConfig{
		HorizonSeconds:     viper.GetInt("detection.horizonSeconds"),
		IntervalSeconds:    viper.GetInt("detection.intervalSeconds"),
		TrackHistoryLength: viper.GetInt("detection.trackHistoryLength"),
	}
}

// Resolution returns the resolution-engine config section.
func Resolution() ResolutionConfig {
	return ResolutionConfig{
		MaxStrategies: viper.GetInt("resolution.maxStrategies"),
		MinConfidence: viper.GetFloat64("resolution.minConfidence"),
		ExpiryMinutes: viper.GetInt("resolution.expiryMinutes"),
	}
}

// Coordination returns the event-fabric config section.
func Coordination() CoordinationConfig {
	return CoordinationConfig{
		IntervalSeconds: viper.GetInt("coordination.intervalSeconds"),
		BatchSize:       viper.GetInt("coordination.batchSize"),
		MaxHistory:      viper.GetInt("coordination.maxHistory"),
	}
}

// Sector returns the monitored-sector bounds.
func Sector() SectorConfig {
	return SectorConfig{
		Name:   viper.GetString("sector.name"),
		MinLat: viper.GetFloat64("sector.minLat"),
		MaxLat: viper.GetFloat64("sector.maxLat"),
		MinLon: viper.GetFloat64("sector.minLon"),
		MaxLon: viper.GetFloat64("sector.maxLon"),
	}
}

// Feed returns the traffic provider config section.
func Feed() FeedConfig {
	return FeedConfig{
		Type:          viper.GetString("feed.type"),
		AircraftCount: viper.GetInt("feed.aircraftCount"),
	}
}

// Storage returns the archive backend config section.
func Storage() StorageConfig {
	var cfg StorageConfig
	cfg.Type = viper.GetString("storage.type")
	cfg.Memory = MemoryConfig{
		OutputDir:      viper.GetString("storage.memory.outputDir"),
		CompressOutput: viper.GetBool("storage.memory.compressOutput"),
	}
	cfg.Sqlite = SqliteConfig{
		DumpIntervalSeconds: viper.GetInt("storage.sqlite.dumpIntervalSeconds"),
		DumpPath:            viper.GetString("storage.sqlite.dumpPath"),
	}
	return cfg
}

// DumpInterval returns the SQLite dump interval as a duration.
func (c SqliteConfig) DumpInterval() time.Duration {
	return time.Duration(c.DumpIntervalSeconds) * time.Second
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
