package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/dto"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/repository"
	"order-lifecycle-reconciler/internal/service"
	"order-lifecycle-reconciler/internal/store"
)

// ServiceInfo is the static part of GET /status.
type ServiceInfo struct {
	Name         string
	Version      string
	PollInterval time.Duration
	StartedAt    time.Time
}

type LifecycleController struct {
	Service *service.LifecycleService
	info    ServiceInfo
	now     func() time.Time
}

func NewLifecycleController(s *service.LifecycleService, info ServiceInfo) *LifecycleController {
	return &LifecycleController{Service: s, info: info, now: time.Now}
}

var errBadOverride = errors.New("invalid override")

func parseOverrides(c *gin.Context) (time.Duration, []string, error) {
	var q dto.TriggerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", errBadOverride, err)
	}

	var dwell time.Duration
	if q.Dwell != "" {
		d, err := config.ParseDuration(q.Dwell)
		if err != nil || d <= 0 {
			return 0, nil, fmt.Errorf("%w: dwell %q", errBadOverride, q.Dwell)
		}
		dwell = d
	}

	var collections []string
	for _, name := range strings.Split(q.Collections, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if segs, err := store.Split(name); err != nil || len(segs) != 1 {
			return 0, nil, fmt.Errorf("%w: collection %q", errBadOverride, name)
		}
		collections = append(collections, name)
	}
	return dwell, collections, nil
}

// POST /trigger-auto-confirm
func (ctl *LifecycleController) TriggerAutoConfirm(c *gin.Context) {
	dwell, collections, err := parseOverrides(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	// The pass outlives the request: a client disconnect must not stop it
	// between an order's event write and its status write.
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := ctl.Service.Trigger(ctx, model.TriggerManual, dwell, collections)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, config.ErrInvalidSettings):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case res == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	timeframe := service.FormatDwell(ctl.Service.Defaults().WithOverrides(dwell, nil).Dwell)
	body := dto.NewTriggerResponse(res, timeframe, err, ctl.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// GET /statistics
func (ctl *LifecycleController) GetStatistics(c *gin.Context) {
	dwell, collections, err := parseOverrides(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	stats, err := ctl.Service.Statistics(c.Request.Context(), dwell, collections)
	if stats == nil {
		code := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidSettings) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"success": false, "error": err.Error()})
		return
	}

	body := dto.StatisticsResponse{
		Success:    err == nil,
		Statistics: stats,
		Timeframe:  service.FormatDwell(ctl.Service.Defaults().WithOverrides(dwell, nil).Dwell),
		Timestamp:  ctl.now().UTC(),
	}
	if err != nil {
		body.Error = err.Error()
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// GET /health
func (ctl *LifecycleController) Health(c *gin.Context) {
	now := ctl.now()
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:    "OK",
		Service:   ctl.info.Name,
		Uptime:    now.Sub(ctl.info.StartedAt).Round(time.Second).String(),
		Timestamp: now.UTC(),
	})
}

// GET /status
func (ctl *LifecycleController) Status(c *gin.Context) {
	ctx := c.Request.Context()
	d := ctl.Service.Defaults()

	body := dto.StatusResponse{
		Service: ctl.info.Name,
		Version: ctl.info.Version,
		AutoConfirm: dto.AutoConfirmInfo{
			Enabled:        ctl.info.PollInterval > 0,
			Schedule:       "every " + service.FormatDwell(ctl.info.PollInterval),
			Timeframe:      service.FormatDwell(d.Dwell),
			SourceStatus:   d.TargetStatus,
			TerminalStatus: d.TerminalStatus,
			Collections:    d.Collections,
			Running:        ctl.Service.Running(),
		},
		Timestamp: ctl.now().UTC(),
	}

	stats, err := ctl.Service.Statistics(ctx, 0, nil)
	if err != nil {
		body.Warnings = append(body.Warnings, "statistics: "+err.Error())
	}
	body.Statistics = stats

	last, err := ctl.Service.LastRun(ctx)
	if err != nil {
		body.Warnings = append(body.Warnings, "last run: "+err.Error())
	}
	body.LastRun = last

	c.JSON(http.StatusOK, body)
}

// GET /test-cors
func (ctl *LifecycleController) TestCORS(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "CORS is working!",
		"origin":    c.GetHeader("Origin"),
		"timestamp": ctl.now().UTC(),
	})
}

// GET /orders/:collection/:ownerId/:orderId/assessment
func (ctl *LifecycleController) AssessOrder(c *gin.Context) {
	ref := model.OrderRef{
		Collection: c.Param("collection"),
		OwnerID:    c.Param("ownerId"),
		OrderID:    c.Param("orderId"),
	}

	a, err := ctl.Service.Assess(c.Request.Context(), ref)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	case errors.Is(err, store.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := dto.AssessmentResponse{
		OrderRef:  a.Order,
		Status:    a.Status,
		Decision:  a.Decision.String(),
		Resumable: a.Resumable,
		Gated:     a.Gated,
	}
	if !a.EnteredAt.IsZero() {
		entered := a.EnteredAt.UTC()
		out.EnteredAt = &entered
		out.Elapsed = a.Elapsed.Round(time.Second).String()
	}
	if a.Remaining > 0 {
		out.Remaining = a.Remaining.Round(time.Second).String()
	}
	c.JSON(http.StatusOK, out)
}
