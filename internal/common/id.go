package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a pipeline run ID. Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewSummaryID generates a summary record ID. Format: sum_<uuid>
func NewSummaryID() string {
	return "sum_" + uuid.New().String()
}
