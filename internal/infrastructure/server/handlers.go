package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/domain/orchestrator"
	"github.com/GriffinCanCode/arcade/internal/messaging"
)

// SourceHTTP tags intents injected through the control surface.
const SourceHTTP = "http"

// GameView is the public listing of one catalog entry.
type GameView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms,omitempty"`
	Probe    string   `json:"probe"`
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Current())
}

func (s *Server) getHistory(c *gin.Context) {
	limit := s.opts.Server.History
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events := s.orch.History()
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) listGames(c *gin.Context) {
	games := s.catalog.Games()
	views := make([]GameView, 0, len(games))
	for _, g := range games {
		views = append(views, GameView{
			ID:       g.ID,
			Name:     g.Name,
			Synonyms: g.Synonyms,
			Probe:    g.Health.ProbeType(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"games": views,
		"count": len(views),
	})
}

func (s *Server) reloadManifest(c *gin.Context) {
	cat, err := s.catalog.Reload()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manifest.ErrReloadRejected) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("Manifest reload via HTTP failed", zap.Error(err))
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"active": cat.Len(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"games":     cat.Len(),
		"source":    cat.Source(),
		"loaded_at": cat.LoadedAt(),
	})
}

func (s *Server) postIntent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, messaging.MaxPayloadBytes)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.RecordRejected(messaging.RejectMalformed)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": messaging.ErrPayloadTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	in, err := messaging.DecodeIntent(body)
	if err != nil {
		status, reason := http.StatusBadRequest, messaging.RejectMalformed
		switch {
		case errors.Is(err, messaging.ErrUnsupportedIntent):
			reason = messaging.RejectUnsupported
		case errors.Is(err, messaging.ErrPayloadTooLarge):
			status = http.StatusRequestEntityTooLarge
		}
		s.metrics.RecordRejected(reason)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if in.Source == "" {
		in.Source = SourceHTTP
	}
	s.metrics.RecordIntent(string(in.Type), in.Source)

	if err := s.orch.Submit(in); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrQueueFull) || errors.Is(err, orchestrator.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     in.ID,
		"type":   in.Type,
		"status": "queued",
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   s.orch.Current(),
		"metrics": s.metrics.Snapshot(),
	})
}
