package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/observability"
	"github.com/smallbiznis/kigyomail/internal/server"
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

		// Cron triggers, webhooks and admin routes. The job loop runs in
		// apps/scheduler.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
