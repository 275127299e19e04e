package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/internal/audit"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

// AdminService lets operators change roles and suspend accounts. Admins cannot target themselves.
type AdminService struct {
	repo  *Repository
	db    txRunner
	audit auditRecorder
	now   func() time.Time
}

func NewAdminService(repo *Repository, db txRunner, recorder auditRecorder) (*AdminService, error) {
	if repo == nil || db == nil || recorder == nil {
		return nil, fmt.Errorf("users admin service: missing dependency")
	}
	return &AdminService{repo: repo, db: db, audit: recorder, now: time.Now}, nil
}

func (s *AdminService) SetRole(ctx context.Context, actorID, userID uuid.UUID, role enums.UserRole) (*UserDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	return s.mutate(ctx, actorID, userID, "user.role_changed", func(repo *Repository, user *models.User, now time.Time) error {
		if err := repo.UpdateRole(ctx, user.ID, role, now); err != nil {
			return err
		}
		user.Role = role
		return nil
	})
}

func (s *AdminService) SetBanned(ctx context.Context, actorID, userID uuid.UUID, banned bool) (*UserDTO, error) {
	action := "user.unbanned"
	if banned {
		action = "user.banned"
	}
	return s.mutate(ctx, actorID, userID, action, func(repo *Repository, user *models.User, now time.Time) error {
		if err := repo.SetBanned(ctx, user.ID, banned, now); err != nil {
			return err
		}
		user.Banned = banned
		user.BannedAt = nil
		if banned {
			user.BannedAt = &now
		}
		return nil
	})
}

func (s *AdminService) mutate(ctx context.Context, actorID, userID uuid.UUID, action string, apply func(*Repository, *models.User, time.Time) error) (*UserDTO, error) {
	if actorID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAction, "admins cannot change their own account")
	}

	var out *UserDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		before := FromModel(user)
		if err := apply(repo, user, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
		out = FromModel(user)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      action,
			EntityType:  "user",
			EntityID:    user.ID,
			Before:      before,
			After:       out,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
