package scheduler

import (
	"context"

	"github.com/smallbiznis/kigyomail/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the scheduler for on-demand runs.
var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// LoopModule additionally starts the daily run loop.
var LoopModule = fx.Module("scheduler.loop",
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler loop disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
