package corporation

import (
	"github.com/smallbiznis/kigyomail/internal/corporation/repository"
	"github.com/smallbiznis/kigyomail/internal/corporation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("corporation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
