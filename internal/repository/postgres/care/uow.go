// Package care provides the unit of work spanning the relation and
// clinical-record tables, backing the change-professional composite.
package care

import (
	"context"

	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	continuityrepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/continuity"
	"github.com/saulpulido52/litam-sub010/internal/repository/postgres/pgerrors"
	relationshiprepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/relationship"
	"gorm.io/gorm"
)

type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Do runs fn with relation and record repositories bound to one
// transaction. Serialization failures surface as the relation domain's
// concurrency conflict so the service layer can retry.
func (u *UnitOfWork) Do(ctx context.Context, fn func(relationshipdomain.Repository, continuitydomain.Repository) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(relationshiprepo.NewPostgres(tx), continuityrepo.NewPostgres(tx))
	})
	if pgerrors.IsSerializationFailure(err) {
		return relationshipdomain.ErrConcurrencyConflict
	}
	return err
}
