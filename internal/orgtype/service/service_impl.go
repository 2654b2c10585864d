package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/orgtype/domain"
	"github.com/smallbiznis/accounts/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("orgtype.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) CreateType(ctx context.Context, req domain.CreateTypeRequest) (*domain.TypeResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}

	t := domain.OrganizationType{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertType(ctx, s.db, &t); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateType
		}
		return nil, err
	}

	return toTypeResponse(t, nil), nil
}

func (s *Service) GetType(ctx context.Context, id string) (*domain.TypeResponse, error) {
	typeID, err := parseID(id, domain.ErrInvalidType)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.FindType(ctx, s.db, typeID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTypeNotFound
	}
	subtypes, err := s.repo.ListSubtypes(ctx, s.db, t.ID)
	if err != nil {
		return nil, err
	}
	return toTypeResponse(*t, subtypes), nil
}

func (s *Service) ListTypes(ctx context.Context) ([]domain.TypeResponse, error) {
	types, err := s.repo.ListTypes(ctx, s.db)
	if err != nil {
		return nil, err
	}
	subtypes, err := s.repo.ListSubtypes(ctx, s.db, 0)
	if err != nil {
		return nil, err
	}

	byType := make(map[snowflake.ID][]domain.OrganizationSubtype, len(types))
	for _, sub := range subtypes {
		byType[sub.TypeID] = append(byType[sub.TypeID], sub)
	}

	resp := make([]domain.TypeResponse, 0, len(types))
	for _, t := range types {
		resp = append(resp, *toTypeResponse(t, byType[t.ID]))
	}
	return resp, nil
}

// DeleteType refuses to delete a type that still has subtypes. The subtype
// count and the delete run in one transaction.
func (s *Service) DeleteType(ctx context.Context, id string) error {
	typeID, err := parseID(id, domain.ErrInvalidType)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.FindType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrTypeNotFound
		}

		count, err := s.repo.CountSubtypes(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if count > 0 {
			s.log.Info("refusing to delete protected organization type",
				zap.String("type_id", typeID.String()),
				zap.Int64("subtypes", count),
			)
			return domain.ErrTypeProtected
		}

		if err := s.repo.DeleteType(ctx, tx, typeID); err != nil {
			if db.IsForeignKeyErr(err) {
				return domain.ErrTypeProtected
			}
			return err
		}
		return nil
	})
}

func (s *Service) CreateSubtype(ctx context.Context, req domain.CreateSubtypeRequest) (*domain.SubtypeResponse, error) {
	typeID, err := parseID(req.TypeID, domain.ErrInvalidType)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}

	sub := domain.OrganizationSubtype{
		ID:        s.genID.Generate(),
		TypeID:    typeID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.FindType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrTypeNotFound
		}
		if err := s.repo.InsertSubtype(ctx, tx, &sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSubtype
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toSubtypeResponse(sub)
	return &resp, nil
}

func (s *Service) ListSubtypes(ctx context.Context, typeID string) ([]domain.SubtypeResponse, error) {
	var filter snowflake.ID
	if strings.TrimSpace(typeID) != "" {
		id, err := parseID(typeID, domain.ErrInvalidType)
		if err != nil {
			return nil, err
		}
		filter = id
	}

	items, err := s.repo.ListSubtypes(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.SubtypeResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toSubtypeResponse(item))
	}
	return resp, nil
}

// DeleteSubtype removes the subtype and detaches it from every organization.
func (s *Service) DeleteSubtype(ctx context.Context, id string) error {
	subtypeID, err := parseID(id, domain.ErrInvalidSubtype)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindSubtype(ctx, tx, subtypeID)
		if err != nil {
			return err
		}
		if sub == nil {
			return domain.ErrSubtypeNotFound
		}
		if err := s.repo.DeleteAssignmentsBySubtype(ctx, tx, subtypeID); err != nil {
			return err
		}
		return s.repo.DeleteSubtype(ctx, tx, subtypeID)
	})
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}

func toTypeResponse(t domain.OrganizationType, subtypes []domain.OrganizationSubtype) *domain.TypeResponse {
	resp := &domain.TypeResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Subtypes:  make([]domain.SubtypeResponse, 0, len(subtypes)),
		CreatedAt: t.CreatedAt,
	}
	for _, sub := range subtypes {
		resp.Subtypes = append(resp.Subtypes, toSubtypeResponse(sub))
	}
	return resp
}

func toSubtypeResponse(sub domain.OrganizationSubtype) domain.SubtypeResponse {
	return domain.SubtypeResponse{
		ID:        sub.ID.String(),
		TypeID:    sub.TypeID.String(),
		Name:      sub.Name,
		CreatedAt: sub.CreatedAt,
	}
}

func (s *Service) ResolveSubtypes(ctx context.Context, ids []string) ([]domain.OrganizationSubtype, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[snowflake.ID]struct{}, len(ids))
	parsed := make([]snowflake.ID, 0, len(ids))
	for _, raw := range ids {
		id, err := parseID(raw, domain.ErrInvalidSubtype)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		parsed = append(parsed, id)
	}

	items, err := s.repo.FindSubtypes(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if len(items) != len(parsed) {
		return nil, domain.ErrInvalidSubtype
	}
	return items, nil
}
