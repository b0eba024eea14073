package types

// SessionState is the externally visible state of a compositing session
type SessionState string

const (
	SessionStateLoading   SessionState = "loading"
	SessionStateIdle      SessionState = "idle"
	SessionStatePlaying   SessionState = "playing"
	SessionStateExporting SessionState = "exporting"
	SessionStateFailed    SessionState = "failed"
)

// ExportStatus reports the outcome of an export job
type ExportStatus string

const (
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)
