// Package config loads the versionize CLI configuration from flags,
// VERSIONIZE_* environment variables, .env files and an optional config
// file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/snapshot"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

const EnvPrefix = "versionize"

const (
	KeyConfig      = "config"
	KeyCodec       = "codec"
	KeyCompression = "compression"
	KeyChecksum    = "checksum"
	KeyDigest      = "digest"
	KeyLogLevel    = "log-level"
	KeyVersionMap  = "version-map"
	KeyUmbrella    = "umbrella"
	KeyWorkers     = "workers"
)

// EnvFiles are loaded by LoadEnv when present.
var EnvFiles = []string{".env", ".env.local"}

// Config is the resolved CLI configuration.
type Config struct {
	Format      encoding.Format
	Compression snapshot.Compression
	Checksum    bool
	Digest      snapshot.Digest
	LogLevel    log.Level
	// VersionMap is the path of a YAML or JSON version map. Empty means
	// fixed-version snapshots.
	VersionMap string
	// Umbrella is the umbrella version snapshots are written at. Zero
	// selects the map's latest.
	Umbrella version.Version
	Workers  int
}

// SetupFlags adds the flags the CLI reads to cmd. The snapshot and
// checker settings (codec, compression, checksum, digest, umbrella,
// workers) are read from the environment and the config file only.
func SetupFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(KeyConfig, "", "configuration file (yaml, json or toml)")
	flags.String(KeyLogLevel, "info", "log level (debug, info, warn, error, silent)")
	flags.String(KeyVersionMap, "", "version map file (yaml or json)")
}

// LoadEnv loads EnvFiles into the process environment. Missing files are
// skipped; variables already set are kept.
func LoadEnv(dir string) error {
	for _, name := range EnvFiles {
		err := godotenv.Load(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}

// New returns a viper instance reading VERSIONIZE_* variables, with the
// flags of cmd bound when cmd is not nil.
func New(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyCodec, "binary")
	v.SetDefault(KeyCompression, "none")
	v.SetDefault(KeyChecksum, true)
	v.SetDefault(KeyDigest, "xxh64")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyUmbrella, 0)
	v.SetDefault(KeyWorkers, 0)

	if cmd != nil {
		if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
			return nil, err
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Load resolves a Config from v, reading the configuration file first when
// one is named.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	format, err := encoding.ParseFormat(v.GetString(KeyCodec))
	if err != nil {
		return nil, err
	}
	comp, err := snapshot.ParseCompression(v.GetString(KeyCompression))
	if err != nil {
		return nil, err
	}
	digest, err := snapshot.ParseDigest(v.GetString(KeyDigest))
	if err != nil {
		return nil, err
	}
	level, err := log.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}
	umbrella := v.GetUint(KeyUmbrella)
	if umbrella > uint(version.Max) {
		return nil, fmt.Errorf("umbrella version %d out of range", umbrella)
	}
	workers := v.GetInt(KeyWorkers)
	if workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", workers)
	}

	return &Config{
		Format:      format,
		Compression: comp,
		Checksum:    v.GetBool(KeyChecksum),
		Digest:      digest,
		LogLevel:    level,
		VersionMap:  v.GetString(KeyVersionMap),
		Umbrella:    version.Version(umbrella),
		Workers:     workers,
	}, nil
}

// LoadVersionMap reads the configured version map, choosing the decoder by
// file extension. It returns nil when no map is configured.
func (c *Config) LoadVersionMap() (*version.Map, error) {
	if c.VersionMap == "" {
		return nil, nil
	}
	f, err := os.Open(c.VersionMap)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m *version.Map
	switch strings.ToLower(filepath.Ext(c.VersionMap)) {
	case ".json":
		m, err = version.LoadJSON(f)
	default:
		m, err = version.LoadYAML(f)
	}
	if err != nil {
		return nil, fmt.Errorf("version map %s: %w", c.VersionMap, err)
	}
	return m, nil
}
