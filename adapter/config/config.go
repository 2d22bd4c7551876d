// Package config builds a mapper from a configuration file and the
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crodas/tuicha/adapter/idgenerator"
	"github.com/crodas/tuicha/adapter/memory"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/adapter/mongoclient"
	"github.com/crodas/tuicha/adapter/odm"
	"github.com/crodas/tuicha/domain"
)

// Supported connection drivers.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config represents the mapper configuration
type Config struct {
	DefaultConnection string                      `mapstructure:"default_connection"`
	IDKind            string                      `mapstructure:"id_kind"`
	LogLevel          string                      `mapstructure:"log_level"`
	WriteConcern      WriteConcernConfig          `mapstructure:"write_concern"`
	Connections       map[string]ConnectionConfig `mapstructure:"connections"`
}

// ConnectionConfig represents a named database connection
type ConnectionConfig struct {
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	// Fixtures is a dump loaded into memory connections when opened.
	Fixtures string `mapstructure:"fixtures"`
	// File persists memory connections: it is loaded when opened and
	// rewritten when closed.
	File string `mapstructure:"file"`
}

// WriteConcernConfig represents the acknowledgement requested for writes
type WriteConcernConfig struct {
	W       int  `mapstructure:"w"`
	Journal bool `mapstructure:"journal"`
}

// Load reads the configuration file, if one exists, and the environment.
// A file given with [WithFile] must exist.
// Environment variables use the prefix TUICHA_ and underscores for dots, as
// in TUICHA_CONNECTIONS_DEFAULT_URI.
func Load(options ...Option) (*Config, error) {
	opts := loadOptions{name: "tuicha", paths: []string{"."}, envPrefix: "TUICHA"}
	for _, option := range options {
		option(&opts)
	}

	v := viper.New()
	v.SetDefault("default_connection", metadata.DefaultConnection)
	v.SetDefault("id_kind", "objectid")
	v.SetDefault("log_level", "info")
	v.SetDefault("write_concern.w", 1)

	if opts.file != "" {
		v.SetConfigFile(opts.file)
	} else {
		v.SetConfigName(opts.name)
		for _, path := range opts.paths {
			v.AddConfigPath(path)
		}
	}
	v.SetEnvPrefix(opts.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the drivers and databases of the connections.
func (c *Config) Validate() error {
	if _, err := idgenerator.ParseKind(c.IDKind); err != nil {
		return domain.ConfigurationError{Subject: "id_kind", Reason: err.Error()}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return domain.ConfigurationError{Subject: "log_level", Reason: err.Error()}
	}
	for name, conn := range c.Connections {
		subject := "connections." + name
		switch conn.driver() {
		case DriverMongo:
			if conn.URI == "" {
				return domain.ConfigurationError{Subject: subject, Reason: "uri is required"}
			}
			if conn.File != "" || conn.Fixtures != "" {
				return domain.ConfigurationError{Subject: subject, Reason: "file and fixtures need the memory driver"}
			}
		case DriverMemory:
		default:
			return domain.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("unknown driver %q", conn.Driver)}
		}
		if conn.Database == "" {
			return domain.ConfigurationError{Subject: subject, Reason: "database is required"}
		}
	}
	return nil
}

func (c ConnectionConfig) driver() string {
	if c.Driver == "" {
		return DriverMongo
	}
	return strings.ToLower(c.Driver)
}

// Logger returns a production logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// Open connects every configured connection and returns a mapper using
// them. The returned function disconnects the clients that need it.
func (c *Config) Open(ctx context.Context, options ...odm.Option) (*odm.ODM, func(context.Context) error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := c.Logger()
	if err != nil {
		return nil, nil, err
	}
	kind, _ := idgenerator.ParseKind(c.IDKind)
	registry := metadata.NewRegistry(
		metadata.WithIDGenerator(idgenerator.NewIDGenerator(idgenerator.WithKind(kind))),
		metadata.WithConnection(c.DefaultConnection),
	)

	var closers []func(context.Context) error
	closeAll := func(ctx context.Context) error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	opts := []odm.Option{
		odm.WithRegistry(registry),
		odm.WithLogger(log),
		odm.WithWriteConcern(domain.WriteConcern{W: c.WriteConcern.W, Journal: c.WriteConcern.Journal}),
	}
	for name, conn := range c.Connections {
		client, closer, err := conn.open(ctx, log.With(zap.String("connection", name)))
		if err != nil {
			_ = closeAll(ctx)
			return nil, nil, fmt.Errorf("connection %s: %w", name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		opts = append(opts, odm.WithConnection(name, client, conn.Database))
	}
	return odm.New(append(opts, options...)...), closeAll, nil
}

func (c ConnectionConfig) open(ctx context.Context, log *zap.Logger) (domain.DatabaseClient, func(context.Context) error, error) {
	if c.driver() == DriverMemory {
		client := memory.NewClient(memory.WithLogger(log))
		if c.Fixtures != "" {
			if err := loadFixtures(ctx, client, c.Fixtures); err != nil {
				return nil, nil, err
			}
		}
		if c.File == "" {
			return client, nil, nil
		}
		if err := client.LoadFile(ctx, c.File); err != nil {
			return nil, nil, err
		}
		return client, func(ctx context.Context) error {
			return client.DumpFile(ctx, c.File)
		}, nil
	}
	client, err := mongoclient.Connect(ctx, c.URI, mongoclient.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return client, client.Disconnect, nil
}

func loadFixtures(ctx context.Context, client *memory.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return client.Load(ctx, f)
}
