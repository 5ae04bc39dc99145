package mailqueue

import (
	"github.com/smallbiznis/kigyomail/internal/mailqueue/repository"
	"github.com/smallbiznis/kigyomail/internal/mailqueue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mailqueue.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
