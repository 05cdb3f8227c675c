// Package monitor records integration API requests for the ops endpoint.
package monitor

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/logging"
	"gorm.io/gorm"
)

// MaxMemoryLogs limits the in-memory log cache.
const MaxMemoryLogs = 100

// Monitor manages request logging and statistics.
type Monitor struct {
	db      *gorm.DB
	enabled atomic.Bool

	recentLogs []models.RequestLog
	logsMu     sync.RWMutex

	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
}

// New creates a Monitor and seeds its counters from the database.
func New(db *gorm.DB) *Monitor {
	m := &Monitor{
		db:         db,
		recentLogs: make([]models.RequestLog, 0, MaxMemoryLogs),
	}
	m.loadStatsFromDB()
	m.enabled.Store(true)
	return m
}

// SetEnabled toggles request logging.
func (m *Monitor) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// LogRequest records one request (async DB write, non-blocking).
func (m *Monitor) LogRequest(entry models.RequestLog) {
	if !m.enabled.Load() {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	m.totalRequests.Add(1)
	if entry.Status >= 200 && entry.Status < 400 {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	m.logsMu.Lock()
	m.recentLogs = append([]models.RequestLog{entry}, m.recentLogs...)
	if len(m.recentLogs) > MaxMemoryLogs {
		m.recentLogs = m.recentLogs[:MaxMemoryLogs]
	}
	m.logsMu.Unlock()

	go func(entry models.RequestLog) {
		if err := m.db.Create(&entry).Error; err != nil {
			log.Printf("[Monitor] Failed to save log: %v", err)
		}
	}(entry)
}

// GetLogs returns recent request logs, newest first, with an optional time
// filter in minutes.
func (m *Monitor) GetLogs(limit, sinceMinutes int) []models.RequestLog {
	if limit <= 0 {
		limit = 100
	}

	var logs []models.RequestLog
	query := m.db.Order("timestamp DESC").Limit(limit)
	if sinceMinutes > 0 {
		sinceTime := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		query = query.Where("timestamp >= ?", sinceTime)
	}

	if err := query.Find(&logs).Error; err != nil {
		log.Printf("[Monitor] Failed to get logs from DB: %v", err)
		// Fall back to memory.
		m.logsMu.RLock()
		defer m.logsMu.RUnlock()
		if limit > len(m.recentLogs) {
			limit = len(m.recentLogs)
		}
		return m.recentLogs[:limit]
	}
	return logs
}

// GetStats returns aggregated request statistics.
func (m *Monitor) GetStats() models.RequestStats {
	return models.RequestStats{
		TotalRequests: m.totalRequests.Load(),
		SuccessCount:  m.successCount.Load(),
		ErrorCount:    m.errorCount.Load(),
	}
}

func (m *Monitor) loadStatsFromDB() {
	var total, success, errors int64
	m.db.Model(&models.RequestLog{}).Count(&total)
	m.db.Model(&models.RequestLog{}).Where("status >= 200 AND status < 400").Count(&success)
	m.db.Model(&models.RequestLog{}).Where("status < 200 OR status >= 400").Count(&errors)

	m.totalRequests.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(errors)
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware logs every request passing through it, tagged with a request id.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.NewRequestID()
		}
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		m.LogRequest(models.RequestLog{
			RequestID: requestID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    rec.status,
			Duration:  time.Since(start).Milliseconds(),
		})
	})
}
