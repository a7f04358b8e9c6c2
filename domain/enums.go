// Package domain defines the core domain models for the bot.
package domain

// RunStatus represents the status of a generation run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "CREATED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusDone      RunStatus = "DONE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RequestType is the type field of an incoming Poe protocol request.
type RequestType string

const (
	RequestTypeQuery          RequestType = "query"
	RequestTypeSettings       RequestType = "settings"
	RequestTypeReportFeedback RequestType = "report_feedback"
	RequestTypeReportError    RequestType = "report_error"
)

// SSE event names emitted to the Poe server.
const (
	EventText  = "text"
	EventError = "error"
	EventDone  = "done"
)
