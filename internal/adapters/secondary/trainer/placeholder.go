// Package trainer holds the training routines the service can hand an
// adapter to.
package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
	"adapter-persistence-service/internal/safetensors"
)

// Placeholder stands in when no training program is configured. It leaves
// the adapter untrained and only guarantees a loadable weight file.
type Placeholder struct{}

func NewPlaceholder() *Placeholder { return &Placeholder{} }

func (p *Placeholder) Train(ctx context.Context, job ports.TrainingJob) (*ports.TrainingOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(job.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	weights := filepath.Join(job.AdapterDir, domain.AdapterWeightsFile)
	if _, err := safetensors.Validate(weights); err != nil {
		log.WithError(err).Debug("Rewriting placeholder weights")
		if err := safetensors.WritePlaceholder(weights); err != nil {
			return nil, fmt.Errorf("write placeholder weights: %w", err)
		}
	}

	return &ports.TrainingOutcome{
		Success: true,
		Message: "no training program configured; adapter weights unchanged",
		Metrics: map[string]float64{
			"files_seen":       float64(len(entries)),
			"examples_trained": 0,
		},
	}, nil
}
