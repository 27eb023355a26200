package main

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/star/spacesim/internal/auth"
	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/sim"
	"github.com/star/spacesim/internal/space"
	"github.com/star/spacesim/internal/stream"
)

// envInt reads a positive integer, warning and keeping def on bad input.
func envInt(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envFloat reads a finite float accepted by ok.
func envFloat(logger *slog.Logger, key string, def float64, ok func(float64) bool) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || !ok(f) {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return f
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func positive(f float64) bool { return f > 0 }
func nonNegative(f float64) bool { return f >= 0 }

func loadLogLevel() slog.Level {
	level := slog.LevelInfo
	if v := os.Getenv("SPACESIM_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SPACESIM_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SPACESIM_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SPACESIM_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SPACESIM_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadGridConfig(logger *slog.Logger) space.Config {
	cfg := space.DefaultConfig()
	cfg.CellLength = envFloat(logger, "SPACESIM_CELL_LENGTH", cfg.CellLength, positive)
	cfg.SwitchingThreshold = envFloat(logger, "SPACESIM_SWITCHING_THRESHOLD", cfg.SwitchingThreshold, positive)

	if cfg.SwitchingThreshold >= cfg.CellLength/2 {
		logger.Warn("switching threshold must be under half a cell, using defaults",
			"cell_length", cfg.CellLength,
			"switching_threshold", cfg.SwitchingThreshold,
		)
		cfg = space.DefaultConfig()
	}

	logger.Info("grid config",
		"cell_length", cfg.CellLength,
		"switching_threshold", cfg.SwitchingThreshold,
	)
	return cfg
}

func loadSimConfig(logger *slog.Logger) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Grid = loadGridConfig(logger)
	cfg.Propagation.Workers = envInt(logger, "SPACESIM_SIM_WORKERS", runtime.NumCPU())
	cfg.Propagation.MinParallel = envInt(logger, "SPACESIM_SIM_MIN_PARALLEL", 32)
	cfg.InputQueue = envInt(logger, "SPACESIM_INPUT_QUEUE", cfg.InputQueue)
	cfg.Width = uint32(envInt(logger, "SPACESIM_WIDTH", int(cfg.Width)))
	cfg.Height = uint32(envInt(logger, "SPACESIM_HEIGHT", int(cfg.Height)))
	cfg.HDR = envBool(logger, "SPACESIM_HDR", cfg.HDR)
	cfg.MaxTextureDimension = uint32(envInt(logger, "SPACESIM_MAX_TEXTURE_DIMENSION", 0))
	cfg.StartMJD = envFloat(logger, "SPACESIM_START_MJD", 0, nonNegative)
	cfg.Speed = envFloat(logger, "SPACESIM_SPEED", 1, positive)

	logger.Info("sim config",
		"workers", cfg.Propagation.Workers,
		"width", cfg.Width,
		"height", cfg.Height,
		"hdr", cfg.HDR,
		"start_mjd", cfg.StartMJD,
		"speed", cfg.Speed,
		"input_queue", cfg.InputQueue,
	)
	return cfg
}

func loadTickInterval(logger *slog.Logger) time.Duration {
	ms := envInt(logger, "SPACESIM_TICK_INTERVAL_MS", 16)
	return time.Duration(ms) * time.Millisecond
}

func loadHistoryConfig(logger *slog.Logger) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Capacity = envInt(logger, "SPACESIM_HISTORY_CAPACITY", cfg.Capacity)
	if v := os.Getenv("SPACESIM_HISTORY_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SPACESIM_HISTORY_INTERVAL_MS value, using default", "value", v, "default", cfg.Interval.Milliseconds())
		} else {
			cfg.Interval = time.Duration(n) * time.Millisecond
		}
	}
	cfg.MaxJump = envFloat(logger, "SPACESIM_HISTORY_MAX_JUMP", cfg.MaxJump, positive)

	logger.Info("history config",
		"capacity", cfg.Capacity,
		"interval_ms", cfg.Interval.Milliseconds(),
		"max_jump_days", cfg.MaxJump,
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.DefaultConfig()
	cfg.MaxConcurrentPerIP = envInt(logger, "SPACESIM_STREAM_MAX_CONCURRENT", cfg.MaxConcurrentPerIP)
	cfg.MaxConcurrent = envInt(logger, "SPACESIM_STREAM_MAX_TOTAL", cfg.MaxConcurrent)
	cfg.BandwidthLimit = envInt(logger, "SPACESIM_STREAM_BANDWIDTH_LIMIT", cfg.BandwidthLimit)
	cfg.MaxRate = envInt(logger, "SPACESIM_STREAM_MAX_RATE", cfg.MaxRate)
	cfg.TrustProxy = envBool(logger, "SPACESIM_TRUST_PROXY", false)

	if v := os.Getenv("SPACESIM_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SPACESIM_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"bandwidth_limit", cfg.BandwidthLimit,
		"max_rate", cfg.MaxRate,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}
