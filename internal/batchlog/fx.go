package batchlog

import (
	"github.com/smallbiznis/kigyomail/internal/batchlog/repository"
	"github.com/smallbiznis/kigyomail/internal/batchlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batchlog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
