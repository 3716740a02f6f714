package domain

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Kinds
// ============================================================================

// Every specific error below unwraps to exactly one of these kinds, so callers
// can classify with errors.Is(err, domain.ErrNotFound) and friends.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrTransport  = errors.New("storage unavailable")
	ErrConflict   = errors.New("conflict")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// ============================================================================
// Adapter Errors
// ============================================================================

var (
	ErrAdapterNotFound = newError(ErrNotFound, "adapter not found")
	ErrBackupNotFound  = newError(ErrNotFound, "backup not found")
	ErrInvalidWeights  = newError(ErrValidation, "adapter weights are not a valid safetensors file")
	ErrTrainingFailed  = errors.New("training failed")
)

// ============================================================================
// Training Data Errors
// ============================================================================

var (
	ErrTrainingFileNotFound = newError(ErrNotFound, "training file not found")
	ErrInvalidFilename      = newError(ErrValidation, "invalid training file name")
	ErrMetadataConflict     = newError(ErrConflict, "training metadata was modified concurrently")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	ErrObjectNotFound     = newError(ErrNotFound, "object not found")
	ErrPreconditionFailed = newError(ErrConflict, "object changed since it was read")
	ErrLocalPathNotFound  = newError(ErrNotFound, "local path not found")
	ErrUnsafeArchivePath  = newError(ErrValidation, "archive entry escapes destination directory")
	ErrLockTimeout        = newError(ErrConflict, "timed out waiting for avatar lock")
)

// ============================================================================
// Validation Errors
// ============================================================================

var (
	ErrInvalidUserID     = newError(ErrValidation, "user ID is required")
	ErrInvalidAvatarID   = newError(ErrValidation, "avatar ID is required")
	ErrInvalidBackupType = newError(ErrValidation, "backup_type must be 'adapters' or 'training_data'")
	ErrOwnerMismatch     = newError(ErrValidation, "user ID does not match the configured owner")
	ErrMissingBucket     = newError(ErrValidation, "S3_BUCKET_NAME is required")
	ErrMissingOwnerID    = newError(ErrValidation, "USER_ID is required")
)

// OpError decorates an error with the operation and the avatar it touched.
type OpError struct {
	Op       string
	UserID   string
	AvatarID string
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (user %s, avatar %s): %v", e.Op, e.UserID, e.AvatarID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// WrapOp returns nil for a nil err and never double-wraps.
func WrapOp(op string, ns Namespace, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, UserID: ns.UserID, AvatarID: ns.AvatarID, Err: err}
}
