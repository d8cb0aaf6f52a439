package sentinel

import "errors"

// Sentinel errors for storage facts. Ledger backends return these (optionally
// wrapped) and the capsule service translates them into categorized errors.
//
//   - ErrNotFound: no record at the requested key
//   - ErrAlreadyExists: a record already occupies the key being created
//   - ErrConflict: an optimistic transaction lost its race and gave up retrying
//   - ErrUnavailable: the backing store cannot be reached
//
// Input validation failures never use these; see pkg/domain-errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrUnavailable   = errors.New("unavailable")
)
