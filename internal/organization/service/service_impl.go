package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	"github.com/smallbiznis/accounts/internal/observability/metrics"
	"github.com/smallbiznis/accounts/internal/organization/domain"
	orgtypedomain "github.com/smallbiznis/accounts/internal/orgtype/domain"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 50

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Plans    catalogdomain.Repository
	Types    orgtypedomain.Repository
	Subtypes orgtypedomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	plans    catalogdomain.Repository
	types    orgtypedomain.Repository
	subtypes orgtypedomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	m := p.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		plans:    p.Plans,
		types:    p.Types,
		subtypes: p.Subtypes,
		metrics:  m,
	}
}

// Create inserts the organization together with the creator's admin
// membership, a receipt email and a "created" change log entry.
func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if req.CreatorID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	maxUsers := domain.DefaultMaxUsers
	if req.MaxUsers != nil {
		if *req.MaxUsers < 1 {
			return nil, domain.ErrInvalidMaxUsers
		}
		maxUsers = *req.MaxUsers
	}

	email := strings.TrimSpace(req.CreatorEmail)
	if email != "" {
		if email, err = normalizeEmail(email); err != nil {
			return nil, err
		}
	}

	var org domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		planID, err := s.resolvePlan(ctx, tx, req.PlanID, false)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		orgSlug, err := s.uniqueSlug(ctx, tx, name)
		if err != nil {
			return err
		}

		org = domain.Organization{
			ID:        s.genID.Generate(),
			UUID:      uuid.NewString(),
			Name:      name,
			Slug:      orgSlug,
			Private:   req.Private,
			MaxUsers:  maxUsers,
			PlanID:    planID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.provision(ctx, tx, &org, req.CreatorID, email)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMembershipEvent(ctx, "added")
	s.log.Info("organization created",
		zap.String("organization_uuid", org.UUID),
		zap.Int64("creator_id", req.CreatorID.Int64()),
	)

	return s.buildResponse(ctx, s.db, org, true)
}

func (s *Service) CreateIndividual(ctx context.Context, tx *gorm.DB, owner domain.IndividualOwner) (*domain.Organization, error) {
	if owner.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name, err := normalizeName(owner.Username)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(owner.Email)
	if email != "" {
		if email, err = normalizeEmail(email); err != nil {
			return nil, err
		}
	}

	orgSlug, err := s.uniqueSlug(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	org := domain.Organization{
		ID:         s.genID.Generate(),
		UUID:       uuid.NewString(),
		Name:       name,
		Slug:       orgSlug,
		Individual: true,
		Private:    true,
		MaxUsers:   domain.DefaultMaxUsers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.provision(ctx, tx, &org, owner.UserID, email); err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Service) provision(ctx context.Context, tx *gorm.DB, org *domain.Organization, creatorID snowflake.ID, email string) error {
	if err := s.repo.Insert(ctx, tx, org); err != nil {
		return err
	}

	membership := domain.Membership{
		ID:             s.genID.Generate(),
		OrganizationID: org.ID,
		UserID:         creatorID,
		Admin:          true,
		CreatedAt:      org.CreatedAt,
	}
	if err := s.repo.InsertMembership(ctx, tx, &membership); err != nil {
		return err
	}

	if email != "" {
		receipt := domain.ReceiptEmail{
			ID:             s.genID.Generate(),
			OrganizationID: org.ID,
			Email:          email,
			CreatedAt:      org.CreatedAt,
		}
		if err := s.repo.InsertReceiptEmail(ctx, tx, &receipt); err != nil {
			return err
		}
	}

	userID := creatorID
	entry := domain.ChangeLog{
		ID:             s.genID.Generate(),
		OrganizationID: org.ID,
		UserID:         &userID,
		Reason:         domain.ChangeReasonCreated,
		ToPlanID:       org.PlanID,
		ToMaxUsers:     org.MaxUsers,
		CreatedAt:      org.CreatedAt,
	}
	return s.repo.InsertChangeLog(ctx, tx, &entry)
}

func (s *Service) Get(ctx context.Context, viewer domain.Viewer, orgUUID string) (*domain.OrganizationResponse, error) {
	org, err := s.visible(ctx, s.db, viewer, orgUUID)
	if err != nil {
		return nil, err
	}
	admin, err := s.isAdminViewer(ctx, viewer, org.ID)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, s.db, *org, admin)
}

func (s *Service) GetByID(ctx context.Context, viewer domain.Viewer, id snowflake.ID) (*domain.OrganizationResponse, error) {
	org, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return s.Get(ctx, viewer, org.UUID)
}

func (s *Service) Resolve(ctx context.Context, orgUUID string) (*domain.Organization, error) {
	orgUUID = strings.TrimSpace(orgUUID)
	if orgUUID == "" {
		return nil, domain.ErrOrganizationNotFound
	}
	org, err := s.repo.FindByUUID(ctx, s.db, orgUUID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) List(ctx context.Context, viewer domain.Viewer, req domain.ListOrganizationsRequest) (*domain.ListOrganizationsResponse, error) {
	page := req.Pagination.Normalize()
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		MemberID:          viewer.UserID,
		IncludeAllPrivate: viewer.Staff,
		Individual:        req.Individual,
		AfterID:           snowflake.ID(afterID),
		Limit:             page.PageSize + 1,
	})
	if err != nil {
		return nil, err
	}

	items, info := pagination.Trim(items, page.PageSize, func(o domain.Organization) int64 { return o.ID.Int64() })

	subtypes, err := s.assignedSubtypes(ctx, s.db, items)
	if err != nil {
		return nil, err
	}

	results := make([]domain.OrganizationResponse, 0, len(items))
	for _, org := range items {
		results = append(results, toResponse(org, subtypes[org.ID], nil))
	}

	return &domain.ListOrganizationsResponse{
		Results:  results,
		PageInfo: info,
	}, nil
}

// Update applies a partial update. A change to the plan or max_users is
// recorded as an "updated" change log entry.
func (s *Service) Update(ctx context.Context, actor domain.Viewer, orgUUID string, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	var name string
	if req.Name != nil {
		normalized, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		name = normalized
	}
	if req.MaxUsers != nil && *req.MaxUsers < 1 {
		return nil, domain.ErrInvalidMaxUsers
	}

	var emails []string
	if req.ReceiptEmails != nil {
		normalized, err := normalizeEmails(*req.ReceiptEmails)
		if err != nil {
			return nil, err
		}
		emails = normalized
	}

	var subtypeIDs []snowflake.ID
	if req.SubtypeIDs != nil {
		resolved, err := s.subtypes.ResolveSubtypes(ctx, *req.SubtypeIDs)
		if err != nil {
			if errors.Is(err, orgtypedomain.ErrInvalidSubtype) {
				return nil, domain.ErrInvalidSubtype
			}
			return nil, err
		}
		subtypeIDs = make([]snowflake.ID, 0, len(resolved))
		for _, sub := range resolved {
			subtypeIDs = append(subtypeIDs, sub.ID)
		}
	}

	var updated domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindForUpdate(ctx, tx, strings.TrimSpace(orgUUID))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}

		before := *org
		if req.Name != nil {
			org.Name = name
		}
		if req.Private != nil {
			org.Private = *req.Private
		}
		if req.MaxUsers != nil {
			org.MaxUsers = *req.MaxUsers
		}
		if req.PlanID != nil {
			planID, err := s.resolvePlan(ctx, tx, *req.PlanID, org.Individual)
			if err != nil {
				return err
			}
			org.PlanID = planID
		}

		org.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, org); err != nil {
			return err
		}

		if req.ReceiptEmails != nil {
			if err := s.replaceReceiptEmails(ctx, tx, org.ID, emails, org.UpdatedAt); err != nil {
				return err
			}
		}
		if req.SubtypeIDs != nil {
			if err := s.types.ReplaceAssignments(ctx, tx, org.ID, subtypeIDs); err != nil {
				return err
			}
		}

		if !samePlan(before.PlanID, org.PlanID) || before.MaxUsers != org.MaxUsers {
			fromMaxUsers := before.MaxUsers
			entry := domain.ChangeLog{
				ID:             s.genID.Generate(),
				OrganizationID: org.ID,
				Reason:         domain.ChangeReasonUpdated,
				FromPlanID:     before.PlanID,
				ToPlanID:       org.PlanID,
				FromMaxUsers:   &fromMaxUsers,
				ToMaxUsers:     org.MaxUsers,
				CreatedAt:      org.UpdatedAt,
			}
			if actor.UserID != 0 {
				userID := actor.UserID
				entry.UserID = &userID
			}
			if err := s.repo.InsertChangeLog(ctx, tx, &entry); err != nil {
				return err
			}
		}

		updated = *org
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, s.db, updated, true)
}

// Delete removes a group organization and every row it owns. Organizations
// with recorded charges are kept.
func (s *Service) Delete(ctx context.Context, orgUUID string) error {
	var deleted *domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindForUpdate(ctx, tx, strings.TrimSpace(orgUUID))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}
		if org.Individual {
			return domain.ErrIndividualOrganization
		}
		if err := s.purge(ctx, tx, org.ID); err != nil {
			return err
		}
		deleted = org
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("organization deleted", zap.String("organization_uuid", deleted.UUID))
	return nil
}

// RemoveUser drops every membership of the user and deletes their individual organization.
func (s *Service) RemoveUser(ctx context.Context, tx *gorm.DB, userID, individualOrgID snowflake.ID) error {
	if err := s.repo.DeleteMembershipsByUser(ctx, tx, userID); err != nil {
		return err
	}
	if individualOrgID == 0 {
		return nil
	}
	org, err := s.repo.FindByID(ctx, tx, individualOrgID)
	if err != nil {
		return err
	}
	if org == nil {
		return nil
	}
	return s.purge(ctx, tx, org.ID)
}

func (s *Service) purge(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	charges, err := s.repo.CountCharges(ctx, tx, orgID)
	if err != nil {
		return err
	}
	if charges > 0 {
		return domain.ErrOrganizationHasCharges
	}

	if err := s.repo.DeleteMembershipsByOrganization(ctx, tx, orgID); err != nil {
		return err
	}
	if err := s.repo.DeleteReceiptEmails(ctx, tx, orgID); err != nil {
		return err
	}
	if err := s.types.DeleteAssignmentsByOrganization(ctx, tx, orgID); err != nil {
		return err
	}
	if err := s.repo.DeleteChangeLogs(ctx, tx, orgID); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomers(ctx, tx, orgID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tx, orgID); err != nil {
		if db.IsForeignKeyErr(err) {
			return domain.ErrOrganizationHasCharges
		}
		return err
	}
	return nil
}

func (s *Service) HasAdmin(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	if orgID == 0 || userID == 0 {
		return false, nil
	}
	m, err := s.repo.FindMembership(ctx, s.db, orgID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Admin, nil
}

func (s *Service) HasMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	if orgID == 0 || userID == 0 {
		return false, nil
	}
	m, err := s.repo.FindMembership(ctx, s.db, orgID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (s *Service) AddMember(ctx context.Context, orgUUID string, userID snowflake.ID, admin bool) (*domain.MembershipResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var record *domain.MemberRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindForUpdate(ctx, tx, strings.TrimSpace(orgUUID))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}
		if org.Individual {
			return domain.ErrIndividualOrganization
		}

		existing, err := s.repo.FindMembership(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateMembership
		}

		membership := domain.Membership{
			ID:             s.genID.Generate(),
			OrganizationID: org.ID,
			UserID:         userID,
			Admin:          admin,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.repo.InsertMembership(ctx, tx, &membership); err != nil {
			switch {
			case db.IsDuplicateKeyErr(err):
				return domain.ErrDuplicateMembership
			case db.IsForeignKeyErr(err):
				return domain.ErrInvalidUser
			}
			return err
		}

		record, err = s.repo.FindMember(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrInvalidUser
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMembershipEvent(ctx, "added")
	resp := toMembershipResponse(*record)
	return &resp, nil
}

func (s *Service) RemoveMember(ctx context.Context, orgUUID string, userID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindForUpdate(ctx, tx, strings.TrimSpace(orgUUID))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}

		m, err := s.repo.FindMembership(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return domain.ErrMembershipNotFound
		}
		if org.Individual {
			return domain.ErrIndividualOrganization
		}
		if m.Admin {
			if err := s.ensureOtherAdmin(ctx, tx, org.ID); err != nil {
				return err
			}
		}

		rows, err := s.repo.DeleteMembership(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrMembershipNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordMembershipEvent(ctx, "removed")
	return nil
}

func (s *Service) UpdateMembership(ctx context.Context, orgUUID string, userID snowflake.ID, admin bool) (*domain.MembershipResponse, error) {
	var record *domain.MemberRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.FindForUpdate(ctx, tx, strings.TrimSpace(orgUUID))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}

		m, err := s.repo.FindMembership(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return domain.ErrMembershipNotFound
		}
		if m.Admin && !admin {
			if org.Individual {
				return domain.ErrIndividualOrganization
			}
			if err := s.ensureOtherAdmin(ctx, tx, org.ID); err != nil {
				return err
			}
		}

		if m.Admin != admin {
			if _, err := s.repo.UpdateMembershipAdmin(ctx, tx, org.ID, userID, admin); err != nil {
				return err
			}
		}

		record, err = s.repo.FindMember(ctx, tx, org.ID, userID)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrMembershipNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMembershipEvent(ctx, "updated")
	resp := toMembershipResponse(*record)
	return &resp, nil
}

func (s *Service) GetMembership(ctx context.Context, viewer domain.Viewer, orgUUID string, userID snowflake.ID) (*domain.MembershipResponse, error) {
	org, err := s.visible(ctx, s.db, viewer, orgUUID)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindMember(ctx, s.db, org.ID, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrMembershipNotFound
	}
	resp := toMembershipResponse(*record)
	return &resp, nil
}

func (s *Service) ListMemberships(ctx context.Context, viewer domain.Viewer, orgUUID string, page pagination.Pagination) (*domain.ListMembershipsResponse, error) {
	org, err := s.visible(ctx, s.db, viewer, orgUUID)
	if err != nil {
		return nil, err
	}

	page = page.Normalize()
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListMembers(ctx, s.db, org.ID, snowflake.ID(afterID), page.PageSize+1)
	if err != nil {
		return nil, err
	}
	records, info := pagination.Trim(records, page.PageSize, func(r domain.MemberRecord) int64 { return r.MembershipID.Int64() })

	results := make([]domain.MembershipResponse, 0, len(records))
	for _, record := range records {
		results = append(results, toMembershipResponse(record))
	}
	return &domain.ListMembershipsResponse{
		Results:  results,
		PageInfo: info,
	}, nil
}

func (s *Service) ListChangeLogs(ctx context.Context, viewer domain.Viewer, orgUUID string) ([]domain.ChangeLogResponse, error) {
	org, err := s.visible(ctx, s.db, viewer, orgUUID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListChangeLogs(ctx, s.db, org.ID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.ChangeLogResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toChangeLogResponse(item))
	}
	return resp, nil
}

func (s *Service) ListReceiptEmails(ctx context.Context, orgUUID string) ([]string, error) {
	org, err := s.Resolve(ctx, orgUUID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListReceiptEmails(ctx, s.db, org.ID)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(items))
	for _, item := range items {
		if item.Failed {
			continue
		}
		emails = append(emails, item.Email)
	}
	return emails, nil
}

func (s *Service) RecordPaymentFailure(ctx context.Context, orgID snowflake.ID) error {
	org, err := s.repo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return err
	}
	if org == nil {
		return domain.ErrOrganizationNotFound
	}

	maxUsers := org.MaxUsers
	entry := domain.ChangeLog{
		ID:             s.genID.Generate(),
		OrganizationID: org.ID,
		Reason:         domain.ChangeReasonFailed,
		FromPlanID:     org.PlanID,
		ToPlanID:       org.PlanID,
		FromMaxUsers:   &maxUsers,
		ToMaxUsers:     org.MaxUsers,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.InsertChangeLog(ctx, s.db.WithContext(ctx), &entry); err != nil {
		return err
	}
	s.log.Warn("payment failure recorded", zap.String("organization_uuid", org.UUID))
	return nil
}

// visible loads the organization and hides private ones from non-members.
func (s *Service) visible(ctx context.Context, conn *gorm.DB, viewer domain.Viewer, orgUUID string) (*domain.Organization, error) {
	orgUUID = strings.TrimSpace(orgUUID)
	if orgUUID == "" {
		return nil, domain.ErrOrganizationNotFound
	}
	org, err := s.repo.FindByUUID(ctx, conn, orgUUID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	if !org.Private || viewer.Staff {
		return org, nil
	}
	if viewer.UserID == 0 {
		return nil, domain.ErrOrganizationNotFound
	}
	m, err := s.repo.FindMembership(ctx, conn, org.ID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) isAdminViewer(ctx context.Context, viewer domain.Viewer, orgID snowflake.ID) (bool, error) {
	if viewer.Staff {
		return true, nil
	}
	return s.HasAdmin(ctx, orgID, viewer.UserID)
}

func (s *Service) ensureOtherAdmin(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	admins, err := s.repo.CountAdmins(ctx, tx, orgID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}

// resolvePlan maps an empty id to no plan and rejects plans that do not
// serve the organization's kind.
func (s *Service) resolvePlan(ctx context.Context, tx *gorm.DB, raw string, individual bool) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return nil, domain.ErrInvalidPlan
	}
	plan, err := s.plans.FindPlan(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrInvalidPlan
	}
	if individual && !plan.ForIndividuals || !individual && !plan.ForGroups {
		return nil, domain.ErrInvalidPlan
	}
	return &plan.ID, nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "organization"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.repo.SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().Base36()), nil
}

func (s *Service) replaceReceiptEmails(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, emails []string, now time.Time) error {
	if err := s.repo.DeleteReceiptEmails(ctx, tx, orgID); err != nil {
		return err
	}
	for _, email := range emails {
		row := domain.ReceiptEmail{
			ID:             s.genID.Generate(),
			OrganizationID: orgID,
			Email:          email,
			CreatedAt:      now,
		}
		if err := s.repo.InsertReceiptEmail(ctx, tx, &row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) assignedSubtypes(ctx context.Context, conn *gorm.DB, orgs []domain.Organization) (map[snowflake.ID][]domain.SubtypeResponse, error) {
	out := make(map[snowflake.ID][]domain.SubtypeResponse, len(orgs))
	if len(orgs) == 0 {
		return out, nil
	}
	ids := make([]snowflake.ID, 0, len(orgs))
	for _, org := range orgs {
		ids = append(ids, org.ID)
	}
	rows, err := s.types.ListAssigned(ctx, conn, ids)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrganizationID] = append(out[row.OrganizationID], domain.SubtypeResponse{
			ID:   row.SubtypeID.String(),
			Name: row.Name,
			Type: row.TypeName,
		})
	}
	return out, nil
}

func (s *Service) buildResponse(ctx context.Context, conn *gorm.DB, org domain.Organization, withEmails bool) (*domain.OrganizationResponse, error) {
	subtypes, err := s.assignedSubtypes(ctx, conn, []domain.Organization{org})
	if err != nil {
		return nil, err
	}

	var emails []string
	if withEmails {
		rows, err := s.repo.ListReceiptEmails(ctx, conn, org.ID)
		if err != nil {
			return nil, err
		}
		emails = make([]string, 0, len(rows))
		for _, row := range rows {
			emails = append(emails, row.Email)
		}
	}

	resp := toResponse(org, subtypes[org.ID], emails)
	return &resp, nil
}

func toResponse(org domain.Organization, subtypes []domain.SubtypeResponse, emails []string) domain.OrganizationResponse {
	if subtypes == nil {
		subtypes = []domain.SubtypeResponse{}
	}
	var plan *string
	if org.PlanID != nil {
		id := org.PlanID.String()
		plan = &id
	}
	return domain.OrganizationResponse{
		UUID:          org.UUID,
		Name:          org.Name,
		Slug:          org.Slug,
		Individual:    org.Individual,
		Private:       org.Private,
		MaxUsers:      org.MaxUsers,
		Plan:          plan,
		ReceiptEmails: emails,
		Subtypes:      subtypes,
		CreatedAt:     org.CreatedAt,
		UpdatedAt:     org.UpdatedAt,
	}
}

func toMembershipResponse(record domain.MemberRecord) domain.MembershipResponse {
	return domain.MembershipResponse{
		User:                   record.UserUUID,
		Username:               record.Username,
		Name:                   record.Name,
		IndividualOrganization: record.IndividualOrgUUID,
		Admin:                  record.Admin,
		CreatedAt:              record.CreatedAt,
	}
}

func toChangeLogResponse(item domain.ChangeLog) domain.ChangeLogResponse {
	return domain.ChangeLogResponse{
		ID:           item.ID.String(),
		Reason:       item.Reason,
		User:         idString(item.UserID),
		FromPlan:     idString(item.FromPlanID),
		ToPlan:       idString(item.ToPlanID),
		FromMaxUsers: item.FromMaxUsers,
		ToMaxUsers:   item.ToMaxUsers,
		CreatedAt:    item.CreatedAt,
	}
}

func idString(id *snowflake.ID) *string {
	if id == nil {
		return nil
	}
	v := id.String()
	return &v
}

func samePlan(a, b *snowflake.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > 255 {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func normalizeEmails(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		email, err := normalizeEmail(item)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}
