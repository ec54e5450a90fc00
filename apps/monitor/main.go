package main

import (
	"context"
	"fmt"
	"os"

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
	"github.com/smallbiznis/trafficwarden/pkg/db"
)

// Cron entry point: one reconciliation pass, report on stdout, exit.
func main() {
	var sched *scheduler.Scheduler

	app := fx.New(
		fx.NopLogger,

		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		account.Module,
		aliyun.Module,
		notification.Module,
		monitorservice.Module,
		fx.Provide(scheduler.New),

		fx.Populate(&sched),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	report, err := sched.RunOnce(ctx)
	_ = app.Stop(ctx)

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println(report)
}
