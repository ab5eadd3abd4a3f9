package approvalrule

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/models"
)

var ruleColumns = []string{
	"id", "name", "description", "validation_type_ids", "risk_tier_ids",
	"governance_region_ids", "deployed_region_ids", "required_roles",
	"is_active", "created_at", "updated_at", "deleted_at",
}

// ruleRow is the storage shape of a rule; the dimension sets and roles live
// in JSONB columns.
type ruleRow struct {
	ID                  string                               `db:"id"`
	Name                string                               `db:"name"`
	Description         *string                              `db:"description"`
	ValidationTypeIDs   database.JSONB[[]string]             `db:"validation_type_ids"`
	RiskTierIDs         database.JSONB[[]string]             `db:"risk_tier_ids"`
	GovernanceRegionIDs database.JSONB[[]string]             `db:"governance_region_ids"`
	DeployedRegionIDs   database.JSONB[[]string]             `db:"deployed_region_ids"`
	RequiredRoles       database.JSONB[[]models.ApproverRole] `db:"required_roles"`
	IsActive            bool                                 `db:"is_active"`
	CreatedAt           time.Time                            `db:"created_at"`
	UpdatedAt           time.Time                            `db:"updated_at"`
	DeletedAt           *time.Time                           `db:"deleted_at"`
}

func (row *ruleRow) toModel() *models.ApprovalRule {
	return &models.ApprovalRule{
		ID:                  row.ID,
		Name:                row.Name,
		Description:         row.Description,
		ValidationTypeIDs:   row.ValidationTypeIDs.Data,
		RiskTierIDs:         row.RiskTierIDs.Data,
		GovernanceRegionIDs: row.GovernanceRegionIDs.Data,
		DeployedRegionIDs:   row.DeployedRegionIDs.Data,
		RequiredRoles:       row.RequiredRoles.Data,
		IsActive:            row.IsActive,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		DeletedAt:           row.DeletedAt,
	}
}

// Repository handles approval rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new approval rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new approval rule
func (r *Repository) Create(ctx context.Context, req models.CreateApprovalRuleRequest) (*models.ApprovalRule, error) {
	ctx, span := tracing.StartSpan(ctx, "approvalrule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Create",
		"name":   req.Name,
	})

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	rule := &models.ApprovalRule{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Description:         req.Description,
		ValidationTypeIDs:   req.ValidationTypeIDs,
		RiskTierIDs:         req.RiskTierIDs,
		GovernanceRegionIDs: req.GovernanceRegionIDs,
		DeployedRegionIDs:   req.DeployedRegionIDs,
		RequiredRoles:       req.RequiredRoles,
		IsActive:            req.IsActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("approval_rules")
	sb.Cols("id", "name", "description", "validation_type_ids", "risk_tier_ids", "governance_region_ids", "deployed_region_ids", "required_roles", "is_active", "created_at", "updated_at")
	sb.Values(
		rule.ID, rule.Name, rule.Description,
		database.JSONB[[]string]{Data: rule.ValidationTypeIDs},
		database.JSONB[[]string]{Data: rule.RiskTierIDs},
		database.JSONB[[]string]{Data: rule.GovernanceRegionIDs},
		database.JSONB[[]string]{Data: rule.DeployedRegionIDs},
		database.JSONB[[]models.ApproverRole]{Data: rule.RequiredRoles},
		rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create approval rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approval rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created approval rule")
	return rule, nil
}

// Get retrieves an approval rule by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ApprovalRule, error) {
	ctx, span := tracing.StartSpan(ctx, "approvalrule.Repository.Get")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("approval_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var row ruleRow
	if err := run.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get approval rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval rule")
	}

	return row.toModel(), nil
}

// List retrieves all rules
func (r *Repository) List(ctx context.Context) ([]models.ApprovalRule, error) {
	return r.list(ctx, false)
}

// ListActive retrieves the active rules only; these are the ones evaluated
// when a validation request is created
func (r *Repository) ListActive(ctx context.Context) ([]models.ApprovalRule, error) {
	return r.list(ctx, true)
}

func (r *Repository) list(ctx context.Context, activeOnly bool) ([]models.ApprovalRule, error) {
	ctx, span := tracing.StartSpan(ctx, "approvalrule.Repository.List")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("approval_rules")
	where := []string{sb.IsNull("deleted_at")}
	if activeOnly {
		where = append(where, sb.Equal("is_active", true))
	}
	sb.Where(where...)
	sb.OrderBy("name ASC")

	query, args := sb.Build()
	var rows []ruleRow
	if err := run.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list approval rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approval rules")
	}

	rules := make([]models.ApprovalRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, *rows[i].toModel())
	}
	return rules, nil
}

// Update applies a patch to an approval rule
func (r *Repository) Update(ctx context.Context, id string, req models.UpdateApprovalRuleRequest) (*models.ApprovalRule, error) {
	ctx, span := tracing.StartSpan(ctx, "approvalrule.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.ValidationTypeIDs != nil {
		existing.ValidationTypeIDs = req.ValidationTypeIDs
	}
	if req.RiskTierIDs != nil {
		existing.RiskTierIDs = req.RiskTierIDs
	}
	if req.GovernanceRegionIDs != nil {
		existing.GovernanceRegionIDs = req.GovernanceRegionIDs
	}
	if req.DeployedRegionIDs != nil {
		existing.DeployedRegionIDs = req.DeployedRegionIDs
	}
	if req.RequiredRoles != nil {
		existing.RequiredRoles = req.RequiredRoles
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("approval_rules")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("description", existing.Description),
		sb.Assign("validation_type_ids", database.JSONB[[]string]{Data: existing.ValidationTypeIDs}),
		sb.Assign("risk_tier_ids", database.JSONB[[]string]{Data: existing.RiskTierIDs}),
		sb.Assign("governance_region_ids", database.JSONB[[]string]{Data: existing.GovernanceRegionIDs}),
		sb.Assign("deployed_region_ids", database.JSONB[[]string]{Data: existing.DeployedRegionIDs}),
		sb.Assign("required_roles", database.JSONB[[]models.ApproverRole]{Data: existing.RequiredRoles}),
		sb.Assign("is_active", existing.IsActive),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update approval rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update approval rule")
	}

	return existing, nil
}

// Delete soft deletes an approval rule
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "approvalrule.Repository.Delete")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("approval_rules")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete approval rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete approval rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted approval rule")
	return nil
}
