package client

import "github.com/loykin/warden/internal/api"

// Re-exported request/response shapes so embedders do not import internal
// packages.
type (
	CreateSpec    = api.CreateSpec
	AdjustSpec    = api.AdjustSpec
	RecordSummary = api.RecordSummary
	RecordDetail  = api.RecordDetail
	DaemonMetrics = api.DaemonMetrics
)

// ErrorResponse is the error envelope every endpoint uses.
type ErrorResponse struct {
	Error string `json:"error"`
}
