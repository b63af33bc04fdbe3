// Package config loads the settings of the abload command.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/IQzhan/abload"
	"github.com/IQzhan/abload/source"
)

// Source kinds.
const (
	SourceDir      = "dir"
	SourceHTTP     = "http"
	SourceS3       = "s3"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	LogLevel string         `mapstructure:"log_level"`
}

// SourceConfig selects where bundle content is read from.
type SourceConfig struct {
	Kind      string `mapstructure:"kind"` // dir, http or s3
	Root      string `mapstructure:"root"`
	URL       string `mapstructure:"url"`
	Target    string `mapstructure:"target"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ManifestConfig selects where the manifest is read from. An empty kind reads
// it from the bundle source.
type ManifestConfig struct {
	Kind  string `mapstructure:"kind"` // "", redis or postgres
	URL   string `mapstructure:"url"`
	Key   string `mapstructure:"key"`
	Table string `mapstructure:"table"`
}

type LoaderConfig struct {
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	StrictDependencies bool          `mapstructure:"strict_dependencies"`
}

// Every key has a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.kind", SourceDir)
	v.SetDefault("source.root", ".")
	v.SetDefault("source.target", "manifest.yaml")
	v.SetDefault("source.url", "")
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.access_key", "")
	v.SetDefault("source.secret_key", "")
	v.SetDefault("source.region", "")
	v.SetDefault("source.bucket", "")
	v.SetDefault("source.prefix", "")
	v.SetDefault("source.use_ssl", true)
	v.SetDefault("manifest.kind", "")
	v.SetDefault("manifest.url", "")
	v.SetDefault("manifest.key", "abload:manifest")
	v.SetDefault("manifest.table", "bundles")
	v.SetDefault("loader.fetch_timeout", time.Duration(0))
	v.SetDefault("loader.strict_dependencies", false)
	v.SetDefault("log_level", "info")
}

// Load reads file (when not empty) and ABLOAD_* environment variables.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("ABLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case SourceDir:
		if c.Source.Root == "" {
			errs = append(errs, errors.New("source.root is required for dir source"))
		}
	case SourceHTTP:
		if c.Source.URL == "" {
			errs = append(errs, errors.New("source.url is required for http source"))
		}
	case SourceS3:
		if c.Source.Endpoint == "" || c.Source.Bucket == "" {
			errs = append(errs, errors.New("source.endpoint and source.bucket are required for s3 source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind %q", c.Source.Kind))
	}
	if c.Source.Target == "" && c.Manifest.Kind == "" {
		errs = append(errs, errors.New("source.target is required when the manifest is read from the source"))
	}

	switch c.Manifest.Kind {
	case "":
	case SourceRedis:
		if c.Manifest.URL == "" || c.Manifest.Key == "" {
			errs = append(errs, errors.New("manifest.url and manifest.key are required for redis manifest"))
		}
	case SourcePostgres:
		if c.Manifest.URL == "" || c.Manifest.Table == "" {
			errs = append(errs, errors.New("manifest.url and manifest.table are required for postgres manifest"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown manifest.kind %q", c.Manifest.Kind))
	}

	if c.Loader.FetchTimeout < 0 {
		errs = append(errs, errors.New("loader.fetch_timeout must not be negative"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level: %w", err))
	}
	return errors.Join(errs...)
}

// ApplyLogLevel sets the global zerolog level.
func (c *Config) ApplyLogLevel() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// LoaderOptions returns the loader options described by c.
func (c *Config) LoaderOptions() []abload.Option {
	opts := []abload.Option{
		abload.WithLogger(log.With().Str("component", "abload").Logger()),
		abload.WithRelease(source.Release),
	}
	if c.Loader.FetchTimeout > 0 {
		opts = append(opts, abload.WithFetchTimeout(c.Loader.FetchTimeout))
	}
	if c.Loader.StrictDependencies {
		opts = append(opts, abload.WithStrictDependencies(true))
	}
	return opts
}

// Sources builds the fetcher and manifest provider. The returned close
// function releases manifest store connections.
func (c *Config) Sources(ctx context.Context) (abload.Fetcher, abload.ManifestProvider, func(), error) {
	var fetcher abload.Fetcher
	var provider abload.ManifestProvider
	switch c.Source.Kind {
	case SourceDir:
		d, err := source.NewDir(c.Source.Root, c.Source.Target)
		if err != nil {
			return nil, nil, nil, err
		}
		fetcher, provider = d, d
	case SourceHTTP:
		h, err := source.NewHTTP(c.Source.URL, c.Source.Target, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		fetcher, provider = h, h
	case SourceS3:
		s, err := source.NewS3(source.S3Options{
			Endpoint:  c.Source.Endpoint,
			AccessKey: c.Source.AccessKey,
			SecretKey: c.Source.SecretKey,
			Region:    c.Source.Region,
			UseSSL:    c.Source.UseSSL,
			Bucket:    c.Source.Bucket,
			Prefix:    c.Source.Prefix,
			Target:    c.Source.Target,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		fetcher, provider = s, s
	default:
		return nil, nil, nil, fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}

	closeFn := func() {}
	switch c.Manifest.Kind {
	case SourceRedis:
		r, err := source.NewRedisManifest(ctx, c.Manifest.URL, c.Manifest.Key)
		if err != nil {
			return nil, nil, nil, err
		}
		provider = r
		closeFn = func() { _ = r.Close() }
	case SourcePostgres:
		p, err := source.NewPostgresManifest(ctx, c.Manifest.URL, c.Manifest.Table)
		if err != nil {
			return nil, nil, nil, err
		}
		provider = p
		closeFn = p.Close
	}
	return fetcher, provider, closeFn, nil
}
