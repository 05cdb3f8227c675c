package webhooks

import (
	"encoding/json"
	"time"

	"github.com/romashka-ai/integration-hub/internal/db/models"
	"gorm.io/gorm"
)

// Health classifications, in override order.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// DefaultTimeRange is used when the caller omits or misspells the range.
const DefaultTimeRange = "24h"

const defaultRecentLimit = 10

var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// WebhookStatus is the per-config slice of a status report.
type WebhookStatus struct {
	ID                 string   `json:"id"`
	Provider           string   `json:"provider"`
	URL                string   `json:"url"`
	Events             []string `json:"events"`
	IsActive           bool     `json:"is_active"`
	RegistrationStatus string   `json:"registration_status"`
	TotalEvents        int64    `json:"total_events"`
	SuccessfulEvents   int64    `json:"successful_events"`
	FailedEvents       int64    `json:"failed_events"`
	PendingEvents      int64    `json:"pending_events"`
	SuccessRate        float64  `json:"success_rate"`
	AvgProcessingMs    float64  `json:"avg_processing_ms"`
	HealthStatus       string   `json:"health_status"`
}

// OverallStats aggregates across every config in the report.
type OverallStats struct {
	TotalWebhooks    int     `json:"total_webhooks"`
	ActiveWebhooks   int     `json:"active_webhooks"`
	HealthyWebhooks  int     `json:"healthy_webhooks"`
	HealthPercentage float64 `json:"health_percentage"`
	TotalEvents      int64   `json:"total_events"`
	SuccessfulEvents int64   `json:"successful_events"`
	FailedEvents     int64   `json:"failed_events"`
	SuccessRate      float64 `json:"success_rate"`
	AvgProcessingMs  float64 `json:"avg_processing_ms"`
}

// QueueStats approximates queue depth from the event log; no broker is wired
// in, so processing is always reported as 0.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// StatusReport is the full response of the status endpoint.
type StatusReport struct {
	Webhooks     []WebhookStatus       `json:"webhooks"`
	Overall      OverallStats          `json:"overall_stats"`
	RecentEvents []models.WebhookEvent `json:"recent_events"`
	Queue        QueueStats            `json:"queue_stats"`
	TimeRange    string                `json:"time_range"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// Aggregator computes webhook health statistics over a requested window.
type Aggregator struct {
	db *gorm.DB

	// RecentLimit overrides the default of 10 recent events when positive.
	RecentLimit int
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// ResolveTimeRange maps a range token to its duration, falling back to the
// default for unknown tokens.
func ResolveTimeRange(tok string) (string, time.Duration) {
	if d, ok := timeRanges[tok]; ok {
		return tok, d
	}
	return DefaultTimeRange, timeRanges[DefaultTimeRange]
}

// Status computes per-config and overall health for a user's webhooks,
// optionally filtered by provider. A user with no configs gets a zeroed
// report, not an error.
func (a *Aggregator) Status(userID, provider, timeRange string) (*StatusReport, error) {
	rangeTok, duration := ResolveTimeRange(timeRange)
	windowStart := time.Now().Add(-duration)

	q := a.db.Where("user_id = ?", userID)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var configs []models.WebhookConfig
	if err := q.Find(&configs).Error; err != nil {
		return nil, err
	}

	report := &StatusReport{
		Webhooks:     []WebhookStatus{},
		RecentEvents: []models.WebhookEvent{},
		TimeRange:    rangeTok,
		GeneratedAt:  time.Now(),
	}

	var avgSum float64
	var avgCount int
	for _, cfg := range configs {
		ws, err := a.configStatus(cfg, windowStart)
		if err != nil {
			return nil, err
		}
		report.Webhooks = append(report.Webhooks, *ws)

		report.Overall.TotalEvents += ws.TotalEvents
		report.Overall.SuccessfulEvents += ws.SuccessfulEvents
		report.Overall.FailedEvents += ws.FailedEvents
		if cfg.IsActive {
			report.Overall.ActiveWebhooks++
		}
		if ws.HealthStatus == HealthHealthy {
			report.Overall.HealthyWebhooks++
		}
		if ws.AvgProcessingMs > 0 {
			avgSum += ws.AvgProcessingMs
			avgCount++
		}
	}

	report.Overall.TotalWebhooks = len(configs)
	report.Overall.HealthPercentage = ratePercent(int64(report.Overall.HealthyWebhooks), int64(len(configs)))
	report.Overall.SuccessRate = ratePercent(report.Overall.SuccessfulEvents, report.Overall.TotalEvents)
	if avgCount > 0 {
		// Mean of per-config means, not re-weighted by event count.
		report.Overall.AvgProcessingMs = avgSum / float64(avgCount)
	}

	if err := a.fillRecentEvents(report, userID, provider); err != nil {
		return nil, err
	}
	if err := a.fillQueueStats(report, userID, provider); err != nil {
		return nil, err
	}
	return report, nil
}

func (a *Aggregator) configStatus(cfg models.WebhookConfig, windowStart time.Time) (*WebhookStatus, error) {
	ws := &WebhookStatus{
		ID:                 cfg.ID,
		Provider:           cfg.Provider,
		URL:                cfg.URL,
		IsActive:           cfg.IsActive,
		RegistrationStatus: cfg.RegistrationStatus,
	}
	if cfg.Events != "" {
		_ = json.Unmarshal([]byte(cfg.Events), &ws.Events)
	}

	scope := func() *gorm.DB {
		return a.db.Model(&models.WebhookEvent{}).
			Where("user_id = ? AND provider = ? AND created_at >= ?", cfg.UserID, cfg.Provider, windowStart)
	}
	if err := scope().Count(&ws.TotalEvents).Error; err != nil {
		return nil, err
	}
	if err := scope().Where("success = ?", true).Count(&ws.SuccessfulEvents).Error; err != nil {
		return nil, err
	}
	if err := scope().Where("processed = ? AND success = ?", true, false).Count(&ws.FailedEvents).Error; err != nil {
		return nil, err
	}
	if err := scope().Where("processed = ?", false).Count(&ws.PendingEvents).Error; err != nil {
		return nil, err
	}

	ws.SuccessRate = ratePercent(ws.SuccessfulEvents, ws.TotalEvents)

	avg, err := a.avgProcessingMs(cfg.UserID, cfg.Provider, windowStart)
	if err != nil {
		return nil, err
	}
	ws.AvgProcessingMs = avg

	// Precedence: unhealthy overrides degraded overrides healthy.
	ws.HealthStatus = HealthHealthy
	if ws.TotalEvents > 0 && ws.SuccessRate < 90 {
		ws.HealthStatus = HealthDegraded
	}
	if (ws.TotalEvents > 0 && ws.SuccessRate < 50) || !cfg.IsActive {
		ws.HealthStatus = HealthUnhealthy
	}
	return ws, nil
}

// avgProcessingMs computes the mean of (processed_at - created_at) over
// events carrying both timestamps. Done in Go to stay portable across the
// sqlite and postgres backends.
func (a *Aggregator) avgProcessingMs(userID, provider string, windowStart time.Time) (float64, error) {
	var events []models.WebhookEvent
	err := a.db.
		Where("user_id = ? AND provider = ? AND created_at >= ? AND processed_at IS NOT NULL", userID, provider, windowStart).
		Find(&events).Error
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	var total float64
	for _, ev := range events {
		total += float64(ev.ProcessedAt.Sub(ev.CreatedAt).Milliseconds())
	}
	return total / float64(len(events)), nil
}

// fillRecentEvents loads the latest events for display, independent of the
// stats window.
func (a *Aggregator) fillRecentEvents(report *StatusReport, userID, provider string) error {
	limit := a.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	q := a.db.Where("user_id = ?", userID)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	return q.Order("created_at DESC").Limit(limit).Find(&report.RecentEvents).Error
}

// fillQueueStats approximates queue depth from events in the last hour.
func (a *Aggregator) fillQueueStats(report *StatusReport, userID, provider string) error {
	hourAgo := time.Now().Add(-time.Hour)
	scope := func() *gorm.DB {
		q := a.db.Model(&models.WebhookEvent{}).Where("user_id = ? AND created_at >= ?", userID, hourAgo)
		if provider != "" {
			q = q.Where("provider = ?", provider)
		}
		return q
	}
	if err := scope().Where("processed = ?", false).Count(&report.Queue.Pending).Error; err != nil {
		return err
	}
	return scope().Where("processed = ? AND success = ?", true, false).Count(&report.Queue.Failed).Error
}

func ratePercent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
