package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/accounts/internal/auth/password"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	"github.com/smallbiznis/accounts/internal/user/domain"
	"github.com/smallbiznis/accounts/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Orgs  orgdomain.Service
	// OrgRepo resolves individual organization uuids for responses.
	OrgRepo orgdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	orgs    orgdomain.Service
	orgRepo orgdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("user.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		orgs:    p.Orgs,
		orgRepo: p.OrgRepo,
	}
}

// Create inserts the user and provisions their individual organization in
// the same transaction.
func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		return nil, domain.ErrInvalidUsername
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		return nil, domain.ErrInvalidEmail
	}
	email := strings.ToLower(addr.Address)

	source := req.Source
	if source == "" {
		source = domain.SourceSquarelet
	}
	if !source.Valid() {
		return nil, domain.ErrInvalidSource
	}

	var hash *string
	if req.Password != "" {
		if err := password.Validate(req.Password); err != nil {
			return nil, errors.Join(domain.ErrInvalidPassword, err)
		}
		encoded, err := password.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		hash = &encoded
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           s.genID.Generate(),
		UUID:         uuid.NewString(),
		Username:     username,
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Source:       source,
		IsStaff:      req.IsStaff,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.UsernameOrEmailExists(ctx, tx, user.Username, user.Email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateUser
		}

		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateUser
			}
			return err
		}

		org, err := s.orgs.CreateIndividual(ctx, tx, orgdomain.IndividualOwner{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
		})
		if err != nil {
			return err
		}

		user.IndividualOrganizationID = org.ID
		return s.repo.SetIndividualOrganization(ctx, tx, user.ID, org.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.String("user_uuid", user.UUID),
		zap.String("source", string(user.Source)),
	)
	return &user, nil
}

func (s *Service) Get(ctx context.Context, userUUID string) (*domain.User, error) {
	userUUID = strings.TrimSpace(userUUID)
	if userUUID == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.found(s.repo.FindByUUID(ctx, s.db, userUUID))
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	if id == 0 {
		return nil, domain.ErrUserNotFound
	}
	return s.found(s.repo.FindByID(ctx, s.db, id))
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.found(s.repo.FindByEmail(ctx, s.db, email))
}

func (s *Service) GetByIndividualOrganization(ctx context.Context, orgUUID string) (*domain.User, error) {
	orgUUID = strings.TrimSpace(orgUUID)
	if orgUUID == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.found(s.repo.FindByIndividualOrganization(ctx, s.db, orgUUID))
}

// Delete removes the user's memberships and individual organization before
// the user row itself.
func (s *Service) Delete(ctx context.Context, userUUID string) error {
	var deleted *domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByUUID(ctx, tx, strings.TrimSpace(userUUID))
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		if err := s.orgs.RemoveUser(ctx, tx, user.ID, user.IndividualOrganizationID); err != nil {
			return err
		}
		deleted = user
		return s.repo.Delete(ctx, tx, user.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("user deleted", zap.String("user_uuid", deleted.UUID))
	return nil
}

func (s *Service) Describe(ctx context.Context, user *domain.User) (*domain.UserResponse, error) {
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	resp := &domain.UserResponse{
		UUID:      user.UUID,
		Username:  user.Username,
		Name:      user.Name,
		Email:     user.Email,
		Source:    user.Source,
		IsStaff:   user.IsStaff,
		CreatedAt: user.CreatedAt,
	}
	if user.IndividualOrganizationID != 0 {
		org, err := s.orgRepo.FindByID(ctx, s.db, user.IndividualOrganizationID)
		if err != nil {
			return nil, err
		}
		if org != nil {
			resp.IndividualOrganization = org.UUID
		}
	}
	return resp, nil
}

func (s *Service) found(user *domain.User, err error) (*domain.User, error) {
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}
