package injector

import (
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/versionize/internal/config"
	"github.com/zeusync/versionize/internal/core/codec"
	"github.com/zeusync/versionize/internal/core/compat"
	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/resolver"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/internal/core/snapshot"
	"github.com/zeusync/versionize/pkg/version"
)

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideEngine,
	ProvideVersionMap,
	ProvideSnapshotCodec,
	ProvideChecker,
	wire.Struct(new(App), "*"),
)

// App bundles the components built from one Config.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Engine    *codec.Engine
	Versions  *version.Map
	Snapshots *snapshot.Codec
	Checker   *compat.Checker
}

func ProvideLogger(cfg *config.Config) *log.Logger {
	return log.New(cfg.LogLevel)
}

// ProvideEngine freezes reg and builds an engine with a resolution cache.
func ProvideEngine(reg *registry.Registry, logger *log.Logger) *codec.Engine {
	reg.Freeze()
	return codec.New(reg,
		codec.WithLogger(logger),
		codec.WithResolutionCache(resolver.NewCache()),
	)
}

func ProvideVersionMap(cfg *config.Config) (*version.Map, error) {
	return cfg.LoadVersionMap()
}

func ProvideSnapshotCodec(cfg *config.Config, engine *codec.Engine, versions *version.Map, logger *log.Logger) (*snapshot.Codec, error) {
	opts := []snapshot.Option{
		snapshot.WithFormat(cfg.Format),
		snapshot.WithCompression(cfg.Compression),
		snapshot.WithChecksum(cfg.Checksum),
		snapshot.WithDigest(cfg.Digest),
		snapshot.WithLogger(logger),
	}
	if versions != nil {
		umbrella := cfg.Umbrella
		if umbrella == version.Unversioned {
			umbrella = versions.Latest()
		}
		if !versions.Has(umbrella) {
			return nil, fmt.Errorf("%w: %d (latest is %d)", version.ErrUnknownUmbrella, umbrella, versions.Latest())
		}
		opts = append(opts, snapshot.WithVersionMap(versions, umbrella))
	}
	return snapshot.New(engine, opts...), nil
}

func ProvideChecker(cfg *config.Config, engine *codec.Engine, logger *log.Logger) *compat.Checker {
	return compat.New(engine,
		compat.WithFormat(cfg.Format),
		compat.WithWorkers(cfg.Workers),
		compat.WithLogger(logger),
	)
}
