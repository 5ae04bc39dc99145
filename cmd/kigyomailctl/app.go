package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/observability"
	"github.com/smallbiznis/kigyomail/pkg/db"
	"go.uber.org/fx"
)

const startStopTimeout = 30 * time.Second

// withApp builds a short-lived fx graph, starts it, and hands control to fn.
func withApp(ctx context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	base := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startStopTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startStopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
