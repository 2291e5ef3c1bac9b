package relationship

import "time"

// Status is the lifecycle state of a care relationship. Rejected and
// inactive rows are terminal; any later binding between the same pair
// is a new row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected, StatusInactive:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusInactive
}

// CareRelationship binds a patient to the professional responsible for
// their care. At most one row per patient may be active at any instant;
// the database enforces this with a partial unique index. Rows are never
// deleted.
type CareRelationship struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID      string     `gorm:"type:uuid;not null;index" json:"patient_id"`
	ProfessionalID string     `gorm:"type:uuid;not null;index" json:"professional_id"`
	Status         Status     `gorm:"type:varchar(16);not null" json:"status"`
	EndReason      *string    `gorm:"type:text" json:"end_reason,omitempty"`
	RequestedAt    time.Time  `gorm:"not null" json:"requested_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
