//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/versionize/internal/config"
	"github.com/zeusync/versionize/internal/core/schema/registry"
)

func InitializeApp(cfg *config.Config, reg *registry.Registry) (*App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
