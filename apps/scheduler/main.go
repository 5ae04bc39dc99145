package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/batchlog"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/corporation"
	"github.com/smallbiznis/kigyomail/internal/ledger"
	"github.com/smallbiznis/kigyomail/internal/mailqueue"
	"github.com/smallbiznis/kigyomail/internal/observability"
	"github.com/smallbiznis/kigyomail/internal/pipeline"
	"github.com/smallbiznis/kigyomail/internal/ratelimit"
	"github.com/smallbiznis/kigyomail/internal/registry"
	"github.com/smallbiznis/kigyomail/internal/scheduler"
	"github.com/smallbiznis/kigyomail/internal/settlement"
	"github.com/smallbiznis/kigyomail/internal/subscription"
	"github.com/smallbiznis/kigyomail/internal/usage"
	"github.com/smallbiznis/kigyomail/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the jobs
		registry.Module,
		corporation.Module,
		subscription.Module,
		mailqueue.Module,
		ledger.Module,
		usage.Module,
		settlement.Module,
		batchlog.Module,
		pipeline.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
		scheduler.LoopModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
