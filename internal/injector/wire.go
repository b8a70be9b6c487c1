//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/simview/internal/config"
)

func InitializeViewer(cfg *config.Config) (*Viewer, error) {
	wire.Build(ViewerSet)
	return nil, nil
}
