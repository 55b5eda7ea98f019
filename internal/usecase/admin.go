package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/repository"
)

// AdminService exposes the operator surface: account enable/disable and the
// read-only reporting views over users and the audit trail.
type AdminService struct {
	store     port.UnitOfWork
	reporting port.ReportingRepository
	logger    *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(store port.UnitOfWork, reporting port.ReportingRepository, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		store:     store,
		reporting: reporting,
		logger:    log,
	}
}

// ToggleActive flips the credential's active flag and returns the new
// value. Disabling does not touch live sessions; the account is refused at
// its next password step. The flip itself is not an audited event, matching
// the trail vocabulary.
func (s *AdminService) ToggleActive(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}

	var active bool
	err := s.store.Do(ctx, func(ctx context.Context, repos port.RepositorySet) error {
		credential, err := repos.Credentials.GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		credential.Active = !credential.Active
		active = credential.Active
		return repos.Credentials.Update(ctx, *credential)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}

	s.logger.Info("account active flag changed",
		zap.String("user_id", userID),
		zap.Bool("active", active),
	)
	return active, nil
}

// ListUsers returns every user joined with its credential state.
func (s *AdminService) ListUsers(ctx context.Context) ([]port.AdminUser, error) {
	return s.reporting.ListUsers(ctx)
}

// ListHistory returns audit events newest first, resolved to handles where
// the subject is known. A non-positive limit returns the full trail.
func (s *AdminService) ListHistory(ctx context.Context, limit int) ([]port.HistoryEntry, error) {
	return s.reporting.ListHistory(ctx, limit)
}
