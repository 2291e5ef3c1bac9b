package handler

import (
	"github.com/go-playground/validator/v10"
	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	entitlementdomain "github.com/saulpulido52/litam-sub010/internal/domain/entitlement"
	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	"github.com/saulpulido52/litam-sub010/pkg/logger"
)

var validate = validator.New()

type Handlers struct {
	Relations    *relationshipdomain.Service
	Records      *continuitydomain.Service
	Entitlements *entitlementdomain.Service
	Sweeper      *entitlementdomain.Sweeper
	log          logger.Logger
}

func New(
	relations *relationshipdomain.Service,
	records *continuitydomain.Service,
	entitlements *entitlementdomain.Service,
	sweeper *entitlementdomain.Sweeper,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Relations:    relations,
		Records:      records,
		Entitlements: entitlements,
		Sweeper:      sweeper,
		log:          log,
	}
}
