package ports

import (
	"context"

	"adapter-persistence-service/internal/core/domain"
)

// TrainingJob is the input handed to the external training routine.
type TrainingJob struct {
	// DataDir holds the selected training files, possibly none.
	DataDir string
	// AdapterDir holds the current adapter; the routine writes its output here.
	AdapterDir string
	Params     domain.TrainingParams
	BaseModel  string
}

// TrainingOutcome is what the routine reports back.
type TrainingOutcome struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Trainer defines the contract for the opaque training routine. Train blocks
// until the routine finishes or ctx is done.
type Trainer interface {
	Train(ctx context.Context, job TrainingJob) (*TrainingOutcome, error)
}
