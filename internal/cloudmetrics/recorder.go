package cloudmetrics

import (
	"strings"
	"sync"
)

type Recorder interface {
	RecordUsageEvent(orgID, code string)
	RecordRatedCharge(orgID, chargeModel string)
	UpdateActiveSubscriptions(orgID string, count int)
	RecordEngineError(orgID, operation string)
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordUsageEvent(string, string)       {}
func (noopRecorder) RecordRatedCharge(string, string)      {}
func (noopRecorder) UpdateActiveSubscriptions(string, int) {}
func (noopRecorder) RecordEngineError(string, string)      {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordUsageEvent(orgID, code string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordUsageEvent(orgID, code)
}

func RecordRatedCharge(orgID, chargeModel string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRatedCharge(orgID, chargeModel)
}

func UpdateActiveSubscriptions(orgID string, count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.UpdateActiveSubscriptions(orgID, count)
}

func RecordEngineError(orgID, operation string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordEngineError(orgID, operation)
}

func (r *recorder) RecordUsageEvent(orgID, code string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.usageEvents.WithLabelValues(normalizeLabel(orgID), normalizeLabel(code)).Inc()
}

func (r *recorder) RecordRatedCharge(orgID, chargeModel string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.ratedCharges.WithLabelValues(normalizeLabel(orgID), normalizeLabel(chargeModel)).Inc()
}

func (r *recorder) UpdateActiveSubscriptions(orgID string, count int) {
	if r == nil || r.metrics == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	r.metrics.activeSubscriptions.WithLabelValues(normalizeLabel(orgID)).Set(float64(count))
}

func (r *recorder) RecordEngineError(orgID, operation string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.engineErrors.WithLabelValues(normalizeLabel(orgID), normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
