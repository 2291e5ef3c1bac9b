package continuity

import "errors"

var (
	ErrRecordNotFound         = errors.New("clinical record not found")
	ErrNotCurrentProfessional = errors.New("caller does not hold the active relation")
	ErrSameOwner              = errors.New("source and target professional are the same")
)
