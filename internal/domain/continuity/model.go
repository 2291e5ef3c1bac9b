package continuity

import "time"

// ClinicalRecord is a dated clinical entry for a patient. The content is
// opaque to this service; ownership (ProfessionalID) and the append-only
// TransferAnnotations log are the only fields it ever mutates.
type ClinicalRecord struct {
	ID                  string    `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID           string    `gorm:"type:uuid;not null;index" json:"patient_id"`
	ProfessionalID      string    `gorm:"type:uuid;not null;index" json:"professional_id"`
	RecordDate          time.Time `gorm:"not null" json:"record_date"`
	ClinicalContent     string    `gorm:"type:text;not null" json:"clinical_content"`
	TransferAnnotations string    `gorm:"type:text;not null;default:''" json:"transfer_annotations"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferResult reports a completed ownership reassignment.
type TransferResult struct {
	TransferredCount int64  `json:"transferred_count"`
	NewOwnerID       string `json:"new_owner_id"`
}

// TransferParams identifies the records to move: everything the From
// professional owns for the patient.
type TransferParams struct {
	PatientID string
	From      string
	To        string
	Reason    string
}
