package api

import (
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/state"
	"github.com/Dicklesworthstone/chatcast/internal/target"
)

// HealthResponse is the response from /health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// StatusResponse is the response from /status endpoint.
type StatusResponse struct {
	Running          bool              `json:"running"`
	Backend          string            `json:"backend"`
	Busy             bool              `json:"busy"`
	Layout           state.Layout      `json:"layout"`
	Zoom             float64           `json:"zoom"`
	EnabledCount     int               `json:"enabled_count"`
	ReadinessPolling bool              `json:"readiness_polling"`
	Targets          []TargetStatus    `json:"targets"`
	LastCycle        *broadcast.Result `json:"last_cycle,omitempty"`
}

// TargetStatus is the status of a single target.
type TargetStatus struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Kind        target.Kind `json:"kind"`
	Color       string      `json:"color,omitempty"`
	Enabled     bool        `json:"enabled"`
	Ready       bool        `json:"ready"`
	Mounted     bool        `json:"mounted"`
	LastURL     string      `json:"last_url,omitempty"`
}

// BroadcastRequest is the request body for POST /broadcast.
type BroadcastRequest struct {
	Message string `json:"message"`
}

// EnabledRequest is the request body for PUT /targets/{id}/enabled.
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
	// Force switches a full grid to column instead of refusing.
	Force bool `json:"force,omitempty"`
}

// LayoutRequest is the request body for PUT /layout.
type LayoutRequest struct {
	Layout string `json:"layout"`
}

// ZoomRequest is the request body for PUT /zoom.
type ZoomRequest struct {
	Zoom float64 `json:"zoom"`
}

// ZoomResponse carries the stored, clamped zoom level.
type ZoomResponse struct {
	Zoom float64 `json:"zoom"`
}

// NavigateRequest is the request body for POST /targets/{id}/navigate.
type NavigateRequest struct {
	URL string `json:"url"`
}

// NavigateResponse reports the normalized address that was loaded.
type NavigateResponse struct {
	URL string `json:"url"`
}

// HistoryEntry is one dispatch log row.
type HistoryEntry struct {
	CycleID    string    `json:"cycle_id"`
	TargetID   string    `json:"target_id"`
	Status     string    `json:"status"`
	Surface    string    `json:"surface,omitempty"`
	SubmitPath string    `json:"submit_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
