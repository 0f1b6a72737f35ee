package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	Output     string `yaml:"output"` // stdout, stderr, file
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"` // MB per file
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig is used when no logging section is configured
var DefaultConfig = Config{
	Level:      "info",
	Format:     "json",
	Output:     "stdout",
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 10,
	Compress:   true,
}

var (
	defaultLogger *logrus.Logger
	once          sync.Once
)

// New creates a configured logrus logger
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	log.SetOutput(buildOutput(cfg))
	return log
}

func buildOutput(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
	default:
		return os.Stdout
	}
}

// Init sets up the shared default logger. Safe to call more than once;
// only the first call takes effect.
func Init(cfg Config) {
	once.Do(func() {
		defaultLogger = New(cfg)
	})
}

// L returns the shared logger, initializing it with defaults if needed
func L() *logrus.Logger {
	if defaultLogger == nil {
		Init(DefaultConfig)
	}
	return defaultLogger
}

// WithFields is a shorthand over the shared logger
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return L().WithFields(logrus.Fields(fields))
}
