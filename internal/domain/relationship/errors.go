package relationship

import "errors"

var (
	ErrRelationNotFound      = errors.New("relation not found")
	ErrNoActiveRelation      = errors.New("no active relation")
	ErrActiveRelationExists  = errors.New("active relation already exists")
	ErrAlreadyRequested      = errors.New("request already pending")
	ErrRelationNotPending    = errors.New("relation is not pending")
	ErrNotTargetProfessional = errors.New("caller is not the targeted professional")
	ErrSameProfessional      = errors.New("new professional equals current professional")
	ErrConcurrencyConflict   = errors.New("concurrent relation update")
)
