// Package config loads server and simulation settings from defaults, an
// optional .env file, ARENA_* environment variables and command-line flags,
// in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidTickRate   = errors.New("tick rate must be between 1 and 240")
	ErrInvalidSquadCount = errors.New("squad count must not be negative")
	ErrInvalidLogFormat  = errors.New("log format must be json or console")
)

type ServerConfig struct {
	Addr          string
	ClientDir     string
	PublicURL     string
	DBPath        string
	TicketSecret  string
	TicketTTL     time.Duration
	MaxConnsPerIP int
}

type LogConfig struct {
	Level  string
	Format string
}

type RoomConfig struct {
	TickRate          int
	TeardownDelay     time.Duration
	SquadCount        int
	FollowersPerSquad int
	Seed              int64
}

type SimConfig struct {
	// ShotCooldown is the server-side minimum interval between player shots.
	// Zero trusts the client cadence.
	ShotCooldown time.Duration
	WallStun     bool
}

type Config struct {
	Server ServerConfig
	Log    LogConfig
	Room   RoomConfig
	Sim    SimConfig
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:          ":8080",
			ClientDir:     "../client",
			PublicURL:     "http://localhost:8080",
			DBPath:        "arena.db",
			TicketTTL:     10 * time.Minute,
			MaxConnsPerIP: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Room: RoomConfig{
			TickRate:          60,
			TeardownDelay:     5 * time.Second,
			SquadCount:        3,
			FollowersPerSquad: 4,
		},
	}
}

// Load builds the configuration. envFile may be empty, in which case ".env"
// is tried and silently skipped if missing.
func Load(envFile string, args []string) (Config, error) {
	cfg := Default()

	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet("arena-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.ClientDir, "client", cfg.Server.ClientDir, "Path to client directory")
	fs.StringVar(&cfg.Server.PublicURL, "public-url", cfg.Server.PublicURL, "Base URL used in share links")
	fs.StringVar(&cfg.Server.DBPath, "db", cfg.Server.DBPath, "SQLite telemetry database (empty disables)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format: json or console")
	fs.IntVar(&cfg.Room.TickRate, "tick-rate", cfg.Room.TickRate, "Simulation ticks per second")
	fs.DurationVar(&cfg.Room.TeardownDelay, "teardown", cfg.Room.TeardownDelay, "Empty room grace period")
	fs.IntVar(&cfg.Room.SquadCount, "squads", cfg.Room.SquadCount, "NPC squads per room")
	fs.IntVar(&cfg.Room.FollowersPerSquad, "followers", cfg.Room.FollowersPerSquad, "Followers per squad")
	fs.DurationVar(&cfg.Sim.ShotCooldown, "shot-cooldown", cfg.Sim.ShotCooldown, "Server-side player shot cooldown (0 disables)")
	fs.BoolVar(&cfg.Sim.WallStun, "wall-stun", cfg.Sim.WallStun, "Movers lose control after hitting a wall")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Room.TickRate < 1 || c.Room.TickRate > 240 {
		return ErrInvalidTickRate
	}
	if c.Room.SquadCount < 0 || c.Room.FollowersPerSquad < 0 {
		return ErrInvalidSquadCount
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return ErrInvalidLogFormat
	}
	return nil
}

// TickInterval is the wall-clock period of one simulation tick.
func (c RoomConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("ARENA_ADDR", &cfg.Server.Addr)
	str("ARENA_CLIENT_DIR", &cfg.Server.ClientDir)
	str("ARENA_PUBLIC_URL", &cfg.Server.PublicURL)
	str("ARENA_DB_PATH", &cfg.Server.DBPath)
	str("ARENA_TICKET_SECRET", &cfg.Server.TicketSecret)
	str("ARENA_LOG_LEVEL", &cfg.Log.Level)
	str("ARENA_LOG_FORMAT", &cfg.Log.Format)

	ints := map[string]*int{
		"ARENA_TICK_RATE":        &cfg.Room.TickRate,
		"ARENA_SQUADS":           &cfg.Room.SquadCount,
		"ARENA_FOLLOWERS":        &cfg.Room.FollowersPerSquad,
		"ARENA_MAX_CONNS_PER_IP": &cfg.Server.MaxConnsPerIP,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"ARENA_TEARDOWN_DELAY": &cfg.Room.TeardownDelay,
		"ARENA_TICKET_TTL":     &cfg.Server.TicketTTL,
		"ARENA_SHOT_COOLDOWN":  &cfg.Sim.ShotCooldown,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("ARENA_SEED"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ARENA_SEED: %w", err)
		}
		cfg.Room.Seed = n
	}
	if v, ok := os.LookupEnv("ARENA_WALL_STUN"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARENA_WALL_STUN: %w", err)
		}
		cfg.Sim.WallStun = b
	}
	return nil
}
