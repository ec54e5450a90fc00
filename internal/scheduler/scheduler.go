// Package scheduler drives periodic reconciliation passes and journal
// retention.
package scheduler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/config"
	"github.com/smallbiznis/trafficwarden/internal/monitor/service"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Engine *service.Engine
	Store  accountdomain.Store
	Clock  clock.Clock
}

type Scheduler struct {
	log    *zap.Logger
	cfg    config.Config
	engine *service.Engine
	store  accountdomain.Store
	clock  clock.Clock
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:    p.Log.Named("scheduler"),
		cfg:    p.Config,
		engine: p.Engine,
		store:  p.Store,
		clock:  p.Clock,
	}
}

// RunForever reconciles on the configured interval until ctx is
// canceled. The first pass runs immediately.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("reconciliation pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single reconciliation pass, prunes expired journal
// entries and returns the pass report.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	report, err := s.engine.RunPass(ctx)
	if err != nil {
		if jerr := s.store.AppendJournal(ctx, accountdomain.JournalError, "监控失败: "+err.Error()); jerr != nil {
			s.log.Error("journal append failed", zap.Error(jerr))
		}
		return "", err
	}

	for _, line := range strings.Split(report, "\n") {
		if line != "" {
			s.log.Info("account reconciled", zap.String("result", line))
		}
	}
	if err := s.store.AppendJournal(ctx, accountdomain.JournalHeartbeat, report); err != nil {
		s.log.Error("journal append failed", zap.Error(err))
	}

	cutoff := s.clock.Now().Add(-s.cfg.JournalRetention)
	if err := s.store.PruneJournal(ctx, cutoff); err != nil {
		s.log.Warn("journal prune failed", zap.Error(err))
	}
	return report, nil
}
