package services

import (
	"errors"

	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// Decision is the outcome of an authorization check. The silent/notify
// split matters: an unknown number under list mode is ignored entirely,
// while a known number missing a permission flag gets a denial reply.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionDenySilent
	DecisionDenyNotify
)

// Allowed is a convenience for callers that only need the boolean contract.
func (d Decision) Allowed() bool { return d == DecisionAllow }

// AuthorizationService evaluates whether a sender may submit datasets or
// request information for a tenant.
type AuthorizationService struct {
	store storage.Store
	log   *zap.Logger
}

// NewAuthorizationService creates the authorization policy evaluator.
func NewAuthorizationService(store storage.Store, log *zap.Logger) *AuthorizationService {
	return &AuthorizationService{store: store, log: log}
}

// CanReceiveDataset decides whether the sender may upload datasets.
func (a *AuthorizationService) CanReceiveDataset(tenantID uint, phone string) Decision {
	return a.evaluate(tenantID, phone, func(n *models.AuthorizedNumber) bool {
		return n.CanSendDataset
	})
}

// CanRequestInfo decides whether the sender may query templates.
func (a *AuthorizationService) CanRequestInfo(tenantID uint, phone string) Decision {
	return a.evaluate(tenantID, phone, func(n *models.AuthorizedNumber) bool {
		return n.CanRequestInfo
	})
}

func (a *AuthorizationService) evaluate(tenantID uint, phone string, allowed func(*models.AuthorizedNumber) bool) Decision {
	tenant, err := a.store.GetTenant(tenantID)
	if err != nil {
		a.log.Warn("authorization check for unknown tenant",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
		return DecisionDenySilent
	}

	switch tenant.AuthorizationMode {
	case models.AuthModeNone:
		return DecisionDenySilent
	case models.AuthModeAll:
		return DecisionAllow
	default: // list
		number, err := a.store.GetAuthorizedNumber(tenantID, phone)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				a.log.Error("authorized number lookup failed",
					zap.Uint("tenant_id", tenantID), zap.Error(err))
			}
			// Unknown numbers are ignored, not told they are unauthorized.
			return DecisionDenySilent
		}
		if !allowed(number) {
			return DecisionDenyNotify
		}
		return DecisionAllow
	}
}
