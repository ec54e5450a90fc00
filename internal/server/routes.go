package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/status", s.getStatus)
	api.POST("/refresh/:id", s.postRefresh)
	api.GET("/journal", s.getJournal)
	api.POST("/notify/test", s.postNotifyTest)

	s.engine.GET("/monitor", s.runMonitor)
}

func (s *Server) getStatus(c *gin.Context) {
	rows, err := s.monitor.Snapshot(c.Request.Context())
	if err != nil {
		s.log.Error("status snapshot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) postRefresh(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}
	if err := s.monitor.RefreshAccount(c.Request.Context(), id); err != nil {
		if errors.Is(err, accountdomain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		s.log.Error("manual refresh failed", zap.Int64("account_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) getJournal(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.store.RecentJournal(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// postNotifyTest fires a sample notification through one channel using
// the stored settings, so channel credentials can be verified before a
// real alert depends on them.
func (s *Server) postNotifyTest(c *gin.Context) {
	var req struct {
		Channel string `json:"channel"`
		Email   string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	set, err := s.store.LoadSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	switch req.Channel {
	case "email":
		err = s.notify.SendTestEmail(ctx, set.Email, req.Email)
	case "telegram":
		err = s.notify.SendTestTelegram(ctx, set.Telegram)
	case "webhook":
		err = s.notify.SendTestWebhook(ctx, set.Webhook)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unknown channel"})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// runMonitor is the external cron trigger. It requires the configured
// trigger key and answers with the plain-text pass report.
func (s *Server) runMonitor(c *gin.Context) {
	if s.cfg.TriggerKey == "" || c.Query("key") != s.cfg.TriggerKey {
		c.String(http.StatusForbidden, "Access Denied.")
		return
	}

	report, err := s.monitor.RunPass(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}

	now := s.clock.Now().Format("2006-01-02 15:04:05")
	c.String(http.StatusOK, fmt.Sprintf("--- CDT Monitor Start: %s ---\n%s\n--- End ---\n", now, report))
}
