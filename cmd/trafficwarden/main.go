package main

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/trafficwarden/internal/account"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/config"
	"github.com/smallbiznis/trafficwarden/internal/migration"
	monitorservice "github.com/smallbiznis/trafficwarden/internal/monitor/service"
	"github.com/smallbiznis/trafficwarden/internal/notification"
	"github.com/smallbiznis/trafficwarden/internal/observability"
	"github.com/smallbiznis/trafficwarden/internal/provider/aliyun"
	"github.com/smallbiznis/trafficwarden/internal/scheduler"
	"github.com/smallbiznis/trafficwarden/internal/server"
	"github.com/smallbiznis/trafficwarden/pkg/db"
)

// The monolith: HTTP surface plus the in-process reconciliation loop.
func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Domain
		account.Module,
		aliyun.Module,
		notification.Module,
		monitorservice.Module,

		// Entry points
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
