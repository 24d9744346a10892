package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/clock"
	"github.com/smallbiznis/orgservice/internal/config"
	"github.com/smallbiznis/orgservice/internal/migration"
	"github.com/smallbiznis/orgservice/internal/observability"
	"github.com/smallbiznis/orgservice/internal/server"
	"github.com/smallbiznis/orgservice/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface, pulls in the membership and organization domains
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
