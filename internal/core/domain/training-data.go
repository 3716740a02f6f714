package domain

import (
	"strings"
	"time"
)

// SelectionFilter picks which side of the training flag List returns.
type SelectionFilter int

const (
	SelectAll SelectionFilter = iota
	SelectTrainingOnly
	SelectExcludedOnly
)

// Matches applies the filter to one file's flag.
func (f SelectionFilter) Matches(useForTraining bool) bool {
	switch f {
	case SelectTrainingOnly:
		return useForTraining
	case SelectExcludedOnly:
		return !useForTraining
	default:
		return true
	}
}

// TrainingSelectionMap is metadata.json: filename -> use for training.
// A filename without an entry trains.
type TrainingSelectionMap map[string]bool

func (m TrainingSelectionMap) UseForTraining(filename string) bool {
	v, ok := m[filename]
	if !ok {
		return true
	}
	return v
}

// SelectionSummary counts flag states in the map itself, stale entries included.
type SelectionSummary struct {
	TotalFiles       int
	TrainingFiles    int
	NonTrainingFiles int
}

func (m TrainingSelectionMap) Summary() SelectionSummary {
	s := SelectionSummary{TotalFiles: len(m)}
	for _, use := range m {
		if use {
			s.TrainingFiles++
		}
	}
	s.NonTrainingFiles = s.TotalFiles - s.TrainingFiles
	return s
}

// TrainingDataFile is one uploaded object under the training-data prefix.
type TrainingDataFile struct {
	Filename       string
	Key            string
	Size           int64
	ContentType    string
	UploadedAt     time.Time
	UserID         string
	AvatarID       string
	UseForTraining bool
}

type UploadResult struct {
	File          TrainingDataFile
	FlagPersisted bool
}

// IsReservedTrainingName reports names the service itself writes under the
// training-data prefix.
func IsReservedTrainingName(name string) bool {
	return name == TrainingDataArchiveName || name == BackupDescriptorName
}

// ValidateFilename rejects names that cannot live directly under the
// training-data prefix.
func ValidateFilename(name string) error {
	switch {
	case strings.TrimSpace(name) == "",
		name == ".", name == "..",
		strings.ContainsAny(name, "/\\"),
		IsReservedTrainingName(name):
		return ErrInvalidFilename
	}
	return nil
}
