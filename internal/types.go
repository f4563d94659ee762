package internal

import "time"

// Request statuses recorded by the proxy.
const (
	StatusCached    = "cached"
	StatusCompleted = "completed"
	StatusTruncated = "truncated"
	StatusFailed    = "failed"
	StatusInvalid   = "invalid"
)

type TranslationRecord struct {
	ID             string        `json:"id"`
	InputCode      string        `json:"input_code"`
	InputLanguage  string        `json:"input_language"`
	OutputLanguage string        `json:"output_language"`
	Provider       string        `json:"provider"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	OutputLength   int           `json:"output_length"`
	Latency        time.Duration `json:"latency"`
	Timestamp      time.Time     `json:"timestamp"`
}
