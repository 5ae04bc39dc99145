package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/migration"
	"github.com/smallbiznis/kigyomail/internal/observability"
	"github.com/smallbiznis/kigyomail/internal/scheduler"
	"github.com/smallbiznis/kigyomail/internal/server"
	"github.com/smallbiznis/kigyomail/pkg/db"
	"go.uber.org/fx"
)

// kigyomail runs the HTTP API and the daily job loop in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.LoopModule,
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
