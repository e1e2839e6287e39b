// Package config provides configuration management for hlsgate using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultSegmentDuration  = 4 * time.Second
	defaultMaxSegments      = 40
	defaultLiveEdgeSegments = 20
	defaultIdleTimeout      = 120 * time.Second
	defaultSweepInterval    = 15 * time.Second
	defaultLoopInterval     = 1 * time.Second
	defaultFetchTimeout     = 30 * time.Second
	defaultVideoIndex       = 6
	defaultAudioIndex       = 9
	defaultMaxManifestSize  = 8 * 1024 * 1024
	defaultMaxSegmentSize   = 64 * 1024 * 1024

	defaultTokenTTL        = 24 * time.Hour
	defaultLoginRateLimit  = 10
	defaultLoginRateWindow = time.Minute

	defaultEventRetention = 168 * time.Hour
	defaultPruneCron      = "0 3 * * *"

	// defaultUserAgent is presented to upstream DASH origins on every request.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lineup    LineupConfig    `mapstructure:"lineup"`
	Events    EventsConfig    `mapstructure:"events"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	StreamsDir string `mapstructure:"streams_dir"`
	ScratchDir string `mapstructure:"scratch_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StreamingConfig holds the DASH ingest and HLS republish configuration.
type StreamingConfig struct {
	// SegmentDuration is the target duration of emitted HLS segments.
	SegmentDuration time.Duration `mapstructure:"segment_duration"`
	// MaxSegments is the rolling HLS playlist window size.
	MaxSegments int `mapstructure:"max_segments"`
	// LiveEdgeSegments caps how many trailing segments of a dynamic DASH
	// manifest are considered on each poll.
	LiveEdgeSegments int `mapstructure:"live_edge_segments"`
	// IdleTimeout is how long a stream may go unrequested before eviction.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SweepInterval is how often the idle evictor runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// LoopInterval is the pause between pipeline iterations.
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	// ManifestTimeout bounds a single MPD fetch.
	ManifestTimeout time.Duration `mapstructure:"manifest_timeout"`
	// SegmentTimeout bounds a single media segment fetch.
	SegmentTimeout time.Duration `mapstructure:"segment_timeout"`
	// UserAgent is sent on all upstream requests.
	UserAgent string `mapstructure:"user_agent"`
	// PreferredVideoIndex selects the video representation by global index.
	PreferredVideoIndex int `mapstructure:"preferred_video_index"`
	// PreferredAudioIndex selects the audio representation by global index.
	PreferredAudioIndex int `mapstructure:"preferred_audio_index"`
	// MaxManifestSize bounds MPD response bodies.
	// Supports human-readable values like "8MB" or raw byte counts.
	MaxManifestSize ByteSize `mapstructure:"max_manifest_size"`
	// MaxSegmentSize bounds media segment response bodies.
	MaxSegmentSize ByteSize `mapstructure:"max_segment_size"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Secret signs session tokens. Usually provided via the
	// HLSGATE_AUTH_SECRET (or legacy SECRET) environment variable.
	Secret          string        `mapstructure:"secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	CookieName      string        `mapstructure:"cookie_name"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
}

// LineupConfig holds channel and user lineup file configuration.
type LineupConfig struct {
	ChannelsFile string `mapstructure:"channels_file"`
	UsersFile    string `mapstructure:"users_file"`
	// PlaylistFile optionally imports additional channels from an M3U
	// playlist carrying KODIPROP clearkey properties.
	PlaylistFile string `mapstructure:"playlist_file"`
	// Watch reloads lineup files on change.
	Watch bool `mapstructure:"watch"`
}

// EventsConfig holds stream event journal configuration.
type EventsConfig struct {
	Retention time.Duration `mapstructure:"retention"`
	PruneCron string        `mapstructure:"prune_cron"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with HLSGATE_ and use underscores for
// nesting. Example: HLSGATE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hlsgate")
		v.AddConfigPath("$HOME/.hlsgate")
	}

	v.SetEnvPrefix("HLSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The signing secret also honours the bare SECRET variable used by
	// earlier deployments.
	_ = v.BindEnv("auth.secret", "HLSGATE_AUTH_SECRET", "HLSGATE_SECRET", "SECRET")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates configuration from an already
// configured Viper instance. The CLI uses this with the global Viper that
// command flags are bound to.
func FromViper(v *viper.Viper) (*Config, error) {
	// Viper's default decoder handles durations but not types implementing
	// encoding.TextUnmarshaler, which ByteSize needs for values like "8MB".
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))

	var cfg Config
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "hlsgate.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.streams_dir", "streams")
	v.SetDefault("storage.scratch_dir", "scratch")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Streaming defaults
	v.SetDefault("streaming.segment_duration", defaultSegmentDuration)
	v.SetDefault("streaming.max_segments", defaultMaxSegments)
	v.SetDefault("streaming.live_edge_segments", defaultLiveEdgeSegments)
	v.SetDefault("streaming.idle_timeout", defaultIdleTimeout)
	v.SetDefault("streaming.sweep_interval", defaultSweepInterval)
	v.SetDefault("streaming.loop_interval", defaultLoopInterval)
	v.SetDefault("streaming.manifest_timeout", defaultFetchTimeout)
	v.SetDefault("streaming.segment_timeout", defaultFetchTimeout)
	v.SetDefault("streaming.user_agent", defaultUserAgent)
	v.SetDefault("streaming.preferred_video_index", defaultVideoIndex)
	v.SetDefault("streaming.preferred_audio_index", defaultAudioIndex)
	v.SetDefault("streaming.max_manifest_size", defaultMaxManifestSize)
	v.SetDefault("streaming.max_segment_size", defaultMaxSegmentSize)

	// Auth defaults
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", defaultTokenTTL)
	v.SetDefault("auth.cookie_name", "auth")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.login_rate_limit", defaultLoginRateLimit)
	v.SetDefault("auth.login_rate_window", defaultLoginRateWindow)

	// Lineup defaults
	v.SetDefault("lineup.channels_file", "channels.toml")
	v.SetDefault("lineup.users_file", "users.toml")
	v.SetDefault("lineup.playlist_file", "")
	v.SetDefault("lineup.watch", false)

	// Events defaults
	v.SetDefault("events.retention", defaultEventRetention)
	v.SetDefault("events.prune_cron", defaultPruneCron)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
}

// Validate checks the configuration for errors.
// The auth secret is intentionally not validated here so commands that do
// not serve traffic (config dump, version) work without one.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Streaming.SegmentDuration < time.Second {
		return fmt.Errorf("streaming.segment_duration must be at least 1s")
	}
	if c.Streaming.MaxSegments < 1 {
		return fmt.Errorf("streaming.max_segments must be at least 1")
	}
	if c.Streaming.LiveEdgeSegments < 1 {
		return fmt.Errorf("streaming.live_edge_segments must be at least 1")
	}
	if c.Streaming.PreferredVideoIndex < 0 || c.Streaming.PreferredAudioIndex < 0 {
		return fmt.Errorf("streaming preferred indices must not be negative")
	}
	if c.Streaming.MaxManifestSize < 1 {
		return fmt.Errorf("streaming.max_manifest_size must be positive")
	}
	if c.Streaming.MaxSegmentSize < 1 {
		return fmt.Errorf("streaming.max_segment_size must be positive")
	}

	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.Auth.TokenTTL < time.Minute {
		return fmt.Errorf("auth.token_ttl must be at least 1m")
	}

	if c.Lineup.ChannelsFile == "" {
		return fmt.Errorf("lineup.channels_file is required")
	}
	if c.Lineup.UsersFile == "" {
		return fmt.Errorf("lineup.users_file is required")
	}

	if c.Events.Retention < time.Hour {
		return fmt.Errorf("events.retention must be at least 1h")
	}
	if len(strings.Fields(c.Events.PruneCron)) != 5 {
		return fmt.Errorf("events.prune_cron must be a 5-field cron expression")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StreamsPath returns the full path to the HLS output directory.
func (c *StorageConfig) StreamsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.StreamsDir)
}

// ScratchPath returns the full path to the scratch directory used for
// per-iteration temporary files.
func (c *StorageConfig) ScratchPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.ScratchDir)
}
