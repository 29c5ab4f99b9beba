package types

// Reason names why a world operation was rejected. Rejections are expected
// outcomes reported back to the caller, never faults.
type Reason int

const (
	ReasonNameTaken Reason = iota
	ReasonNotFound
	ReasonPermissionDenied
	ReasonBuilderPresent
	ReasonBuilderAbsent
	ReasonBlacklisted
	ReasonLimitReached
	ReasonInvalidName
	ReasonFolderMissing
	ReasonFolderExists
	ReasonNewerVersion
	ReasonCancelled
)

func (r Reason) String() string {
	names := [...]string{
		"name_taken", "not_found", "permission_denied", "builder_present", "builder_absent",
		"blacklisted", "limit_reached", "invalid_name", "folder_missing", "folder_exists",
		"newer_version", "cancelled",
	}
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown"
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonNameTaken:
		return ErrWorldExists
	case ReasonNotFound:
		return ErrWorldNotFound
	case ReasonPermissionDenied:
		return ErrPermissionDenied
	case ReasonBuilderPresent:
		return ErrBuilderExists
	case ReasonBuilderAbsent:
		return ErrBuilderNotFound
	case ReasonBlacklisted:
		return ErrDeletionBlacklisted
	case ReasonLimitReached:
		return ErrWorldLimitReached
	case ReasonInvalidName:
		return ErrInvalidName
	case ReasonFolderMissing:
		return ErrWorldFolderMissing
	case ReasonFolderExists:
		return ErrWorldFolderExists
	case ReasonNewerVersion:
		return ErrDataVersionTooHigh
	case ReasonCancelled:
		return ErrCancelled
	default:
		return nil
	}
}
