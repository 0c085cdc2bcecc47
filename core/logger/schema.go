package logger

import (
	"slices"
	"strings"
)

// Enumerations accepted in the status and outcome fields. Unknown outcomes
// are dropped from the line, unknown statuses are kept lowercased.
var (
	knownStatus  = []string{"ok", "fail", "skip", "retry", "rejected", "duplicate", "cancelled"}
	knownOutcome = []string{
		"ok", "fail", "panic",
		"started", "advanced", "invalid_phone", "completed", "cancelled", "ignored",
	}
)

func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "":
		return "INFO"
	case "warning":
		return "WARN"
	default:
		return strings.ToUpper(level)
	}
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	return status, slices.Contains(knownStatus, status)
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	return outcome, slices.Contains(knownOutcome, outcome)
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"kind",
	"stage",
	"next_stage",
	"outcome",
	"duration_ms",
	"queue_ms",
	"action",
	"endpoint",
	"order_id",
	"pending",
	"backlog",
	"workers",
	"sessions",
	"form_fields",
	"payload",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"error_kind",
	"cause",
	"retryable",
	"attempt",
	"attempts",
	"elapsed_ms",
}
