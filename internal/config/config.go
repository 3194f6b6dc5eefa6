package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr         = ":8090"
	defaultDBPath             = "inductor.db"
	defaultDataDir            = "/opt/inductor/data"
	defaultMinFreeSpaceMB     = 50
	defaultInQueue            = "inductor.in"
	defaultResponseQueue      = "controller.response"
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultConcurrency        = 10
	defaultMaxRedeliveries    = 5
	defaultPollTimeout        = time.Second
	defaultSpaceCheckInterval = time.Minute
	defaultDrainPollInterval  = 10 * time.Second

	envListenAddr         = "INDUCTOR_LISTEN_ADDR"
	envDBPath             = "INDUCTOR_DB_PATH"
	envLogLevel           = "INDUCTOR_LOG_LEVEL"
	envDataDir            = "INDUCTOR_DATA_DIR"
	envMinFreeSpaceMB     = "INDUCTOR_MIN_FREE_SPACE_MB"
	envInQueue            = "INDUCTOR_IN_QUEUE"
	envResponseQueue      = "INDUCTOR_RESPONSE_QUEUE"
	envRedisAddr          = "INDUCTOR_REDIS_ADDR"
	envRedisPassword      = "INDUCTOR_REDIS_PASSWORD"
	envRedisDB            = "INDUCTOR_REDIS_DB"
	envConsumerID         = "INDUCTOR_CONSUMER_ID"
	envConcurrency        = "INDUCTOR_CONCURRENCY"
	envMaxRedeliveries    = "INDUCTOR_MAX_REDELIVERIES"
	envPollTimeout        = "INDUCTOR_POLL_TIMEOUT"
	envSpaceCheckInterval = "INDUCTOR_SPACE_CHECK_INTERVAL"
	envDrainPollInterval  = "INDUCTOR_DRAIN_POLL_INTERVAL"
	envWorkOrderCmd       = "INDUCTOR_WORKORDER_CMD"
	envActionOrderCmd     = "INDUCTOR_ACTIONORDER_CMD"
	envExecTimeout        = "INDUCTOR_EXEC_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	DataDir        string
	MinFreeSpaceMB int64

	InQueue       string
	ResponseQueue string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConsumerID      string
	Concurrency     int
	MaxRedeliveries int
	PollTimeout     time.Duration

	SpaceCheckInterval time.Duration
	DrainPollInterval  time.Duration

	WorkOrderCmd   []string
	ActionOrderCmd []string
	ExecTimeout    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Unparsable numeric and duration values keep their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:         defaultListenAddr,
		DBPath:             defaultDBPath,
		LogLevel:           slog.LevelInfo,
		DataDir:            defaultDataDir,
		MinFreeSpaceMB:     defaultMinFreeSpaceMB,
		InQueue:            defaultInQueue,
		ResponseQueue:      defaultResponseQueue,
		RedisAddr:          defaultRedisAddr,
		ConsumerID:         defaultConsumerID(),
		Concurrency:        defaultConcurrency,
		MaxRedeliveries:    defaultMaxRedeliveries,
		PollTimeout:        defaultPollTimeout,
		SpaceCheckInterval: defaultSpaceCheckInterval,
		DrainPollInterval:  defaultDrainPollInterval,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(envInQueue); v != "" {
		cfg.InQueue = v
	}
	if v := os.Getenv(envResponseQueue); v != "" {
		cfg.ResponseQueue = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(envConsumerID); v != "" {
		cfg.ConsumerID = v
	}
	cfg.RedisPassword = os.Getenv(envRedisPassword)

	cfg.MinFreeSpaceMB = int64(getenvInt(envMinFreeSpaceMB, int(cfg.MinFreeSpaceMB)))
	cfg.RedisDB = getenvInt(envRedisDB, cfg.RedisDB)
	cfg.Concurrency = getenvInt(envConcurrency, cfg.Concurrency)
	cfg.MaxRedeliveries = getenvInt(envMaxRedeliveries, cfg.MaxRedeliveries)
	cfg.PollTimeout = getenvDuration(envPollTimeout, cfg.PollTimeout)
	cfg.SpaceCheckInterval = getenvDuration(envSpaceCheckInterval, cfg.SpaceCheckInterval)
	cfg.DrainPollInterval = getenvDuration(envDrainPollInterval, cfg.DrainPollInterval)
	cfg.ExecTimeout = getenvDuration(envExecTimeout, cfg.ExecTimeout)

	cfg.WorkOrderCmd = strings.Fields(os.Getenv(envWorkOrderCmd))
	cfg.ActionOrderCmd = strings.Fields(os.Getenv(envActionOrderCmd))

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return cfg
}

// LogValue renders the configuration for the startup log line. The Redis
// password is never included.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen_addr", c.ListenAddr),
		slog.String("db_path", c.DBPath),
		slog.String("data_dir", c.DataDir),
		slog.Int64("min_free_space_mb", c.MinFreeSpaceMB),
		slog.String("in_queue", c.InQueue),
		slog.String("response_queue", c.ResponseQueue),
		slog.String("redis_addr", c.RedisAddr),
		slog.String("consumer_id", c.ConsumerID),
		slog.Int("concurrency", c.Concurrency),
		slog.Int("max_redeliveries", c.MaxRedeliveries),
		slog.Duration("space_check_interval", c.SpaceCheckInterval),
		slog.Duration("drain_poll_interval", c.DrainPollInterval),
	)
}

func defaultConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "inductor"
	}
	return host
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
