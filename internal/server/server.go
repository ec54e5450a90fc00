// Package server exposes the agent's HTTP surface: the status API for
// the dashboard, an on-demand refresh hook, the journal and the
// plain-text monitor trigger used by external cron.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/config"
	"github.com/smallbiznis/trafficwarden/internal/monitor/service"
	"github.com/smallbiznis/trafficwarden/internal/notification"
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

type Params struct {
	fx.In

	Engine  *gin.Engine
	Log     *zap.Logger
	Config  config.Config
	Monitor *service.Engine
	Store   accountdomain.Store
	Clock   clock.Clock
	Notify  *notification.Dispatcher
}

type Server struct {
	engine  *gin.Engine
	log     *zap.Logger
	cfg     config.Config
	monitor *service.Engine
	store   accountdomain.Store
	clock   clock.Clock
	notify  *notification.Dispatcher
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:  p.Engine,
		log:     p.Log.Named("server"),
		cfg:     p.Config,
		monitor: p.Monitor,
		store:   p.Store,
		clock:   p.Clock,
		notify:  p.Notify,
	}
	s.registerRoutes()
	return s
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
