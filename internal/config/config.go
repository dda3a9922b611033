package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	World     WorldConfig     `toml:"world"`
	Scripting ScriptingConfig `toml:"scripting"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Watchdog  WatchdogConfig  `toml:"watchdog"`
}

type ServerConfig struct {
	Name            string `toml:"name"`
	ProtocolVersion uint32 `toml:"protocol_version"`
	StartTime       int64  // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress      string        `toml:"bind_address"`
	Port             uint16        `toml:"port"`
	MaxPeers         int           `toml:"max_peers"`
	ChannelCount     int           `toml:"channel_count"`
	TickRate         time.Duration `toml:"tick_rate"`
	MaxEventsPerTick int           `toml:"max_events_per_tick"`
}

type WorldConfig struct {
	Name                string `toml:"name"`
	ClassFile           string `toml:"class_file"`
	PlayerClass         string `toml:"player_class"`
	ChunkRadius         int    `toml:"chunk_radius"`
	ChunkSize           uint32 `toml:"chunk_size"`
	StateUpdateInterval int    `toml:"state_update_interval"` // ticks between EntitiesStateUpdate
	MaxNicknameLength   int    `toml:"max_nickname_length"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled             bool    `toml:"enabled"`
	PacketsPerSecond    float64 `toml:"packets_per_second"`
	PacketBurst         int     `toml:"packet_burst"`
	UnexpectedPerSecond float64 `toml:"unexpected_per_second"`
	UnexpectedBurst     int     `toml:"unexpected_burst"` // both zero: unexpected packets are never limited
}

type WatchdogConfig struct {
	Enabled       bool          `toml:"enabled"`
	StallTimeout  time.Duration `toml:"stall_timeout"`
	CheckInterval time.Duration `toml:"check_interval"`
}

// Load reads path over the built-in defaults. Keys missing from the file
// keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse is Load for an in-memory document; name only labels errors.
func Parse(data []byte, name string) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Network.ChannelCount < 2 {
		errs = append(errs, fmt.Errorf("network.channel_count %d: need at least 2", c.Network.ChannelCount))
	}
	if c.Network.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("network.tick_rate must be positive"))
	}
	if c.World.StateUpdateInterval < 1 {
		errs = append(errs, fmt.Errorf("world.state_update_interval %d: must be >= 1", c.World.StateUpdateInterval))
	}
	if c.World.PlayerClass == "" {
		errs = append(errs, errors.New("world.player_class is empty"))
	}
	if c.World.ChunkSize == 0 {
		errs = append(errs, errors.New("world.chunk_size is zero"))
	}
	if c.Watchdog.Enabled && c.Watchdog.StallTimeout <= c.Network.TickRate {
		errs = append(errs, fmt.Errorf("watchdog.stall_timeout %s must exceed tick_rate %s",
			c.Watchdog.StallTimeout, c.Network.TickRate))
	}
	return errors.Join(errs...)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "tsom",
			ProtocolVersion: 1,
		},
		Network: NetworkConfig{
			BindAddress:      "0.0.0.0",
			Port:             14768,
			MaxPeers:         64,
			ChannelCount:     2,
			TickRate:         50 * time.Millisecond,
			MaxEventsPerTick: 1024,
		},
		World: WorldConfig{
			Name:                "sol",
			ClassFile:           "data/yaml/entity_classes.yaml",
			PlayerClass:         "player",
			ChunkRadius:         1,
			ChunkSize:           32,
			StateUpdateInterval: 2,
			MaxNicknameLength:   32,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:             true,
			PacketsPerSecond:    120,
			PacketBurst:         240,
			UnexpectedPerSecond: 1,
			UnexpectedBurst:     5,
		},
		Watchdog: WatchdogConfig{
			Enabled:       true,
			StallTimeout:  10 * time.Second,
			CheckInterval: time.Second,
		},
	}
}
