package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejectionMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create: %w", Reject(ReasonNameTaken, "arena"))

	assert.ErrorIs(t, err, ErrWorldExists)
	assert.NotErrorIs(t, err, ErrWorldNotFound)
	reason, ok := IsRejection(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonNameTaken, reason)
	assert.Equal(t, "world arena: world already exists", Reject(ReasonNameTaken, "arena").Error())
}

func TestRejectionWithCause(t *testing.T) {
	cause := errors.New("disk says no")
	err := RejectWith(ReasonFolderMissing, "old", cause)

	assert.ErrorIs(t, err, ErrWorldFolderMissing)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk says no")
}

func TestIsRejectionIgnoresFaults(t *testing.T) {
	_, ok := IsRejection(NewBackupError("s3", "store", "arena", errors.New("timeout")))
	assert.False(t, ok)
}

func TestBackupErrorUnwrap(t *testing.T) {
	err := NewBackupError("sftp", "list", "", ErrStorageClosed)

	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.Equal(t, "sftp backup list: backup storage is closed", err.Error())
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())

	errs.Add("world.unload.time_until_unload", "expected HH:mm:ss")
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "validation: world.unload.time_until_unload: expected HH:mm:ss", errs.Error())

	errs.Add("paths.storage_type", "unknown")
	assert.Contains(t, errs.Error(), "2 validation errors")
}
