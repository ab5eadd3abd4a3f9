package modelinventory

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

var modelColumns = []string{
	"id", "name", "description", "owner_id", "status", "risk_tier_id",
	"governance_region_id", "validation_type_id", "validation_frequency_months",
	"last_validated_at", "created_at", "updated_at", "deleted_at",
}

// Repository handles model inventory persistence
type Repository struct {
	db               database.DB
	logger           ectologger.Logger
	defaultFrequency int
}

// NewRepository creates a new model inventory repository. defaultFrequency is
// the validation frequency, in months, applied to models registered without
// one.
func NewRepository(db database.DB, logger ectologger.Logger, defaultFrequency int) *Repository {
	return &Repository{
		db:               db,
		logger:           logger,
		defaultFrequency: defaultFrequency,
	}
}

// Create registers a new model in the inventory
func (r *Repository) Create(ctx context.Context, req models.CreateModelRequest, createdBy string) (*models.Model, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Create",
		"name":   req.Name,
		"owner":  req.OwnerID,
	})

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	frequency := req.ValidationFrequencyMonths
	if frequency <= 0 {
		frequency = r.defaultFrequency
	}

	model := &models.Model{
		ID:                        uuid.New().String(),
		Name:                      req.Name,
		Description:               req.Description,
		OwnerID:                   req.OwnerID,
		Status:                    models.ModelStatusActive,
		RiskTierID:                req.RiskTierID,
		GovernanceRegionID:        req.GovernanceRegionID,
		ValidationTypeID:          req.ValidationTypeID,
		ValidationFrequencyMonths: frequency,
		CreatedAt:                 now,
		UpdatedAt:                 now,
		DeployedRegionIDs:         req.DeployedRegionIDs,
		DelegateIDs:               req.DelegateIDs,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("models")
	sb.Cols("id", "name", "description", "owner_id", "status", "risk_tier_id", "governance_region_id", "validation_type_id", "validation_frequency_months", "created_at", "updated_at")
	sb.Values(model.ID, model.Name, model.Description, model.OwnerID, model.Status, model.RiskTierID, model.GovernanceRegionID, model.ValidationTypeID, model.ValidationFrequencyMonths, model.CreatedAt, model.UpdatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create model")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create model")
	}

	if err := r.setRegions(ctx, run, model.ID, req.DeployedRegionIDs); err != nil {
		return nil, err
	}
	if err := r.setDelegates(ctx, run, model.ID, req.DelegateIDs); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"id": model.ID}).Info("Created model")
	return model, nil
}

// Get retrieves a model by ID with its deployed regions and delegates loaded
func (r *Repository) Get(ctx context.Context, id string) (*models.Model, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.Get")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(modelColumns...)
	sb.From("models")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var model models.Model
	if err := run.GetContext(ctx, &model, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get model")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get model")
	}

	regions, err := r.GetDeployedRegions(ctx, id)
	if err != nil {
		return nil, err
	}
	model.DeployedRegionIDs = regions

	delegates, err := r.GetDelegates(ctx, id)
	if err != nil {
		return nil, err
	}
	model.DelegateIDs = delegates

	return &model, nil
}

// List retrieves models, optionally filtered by status
func (r *Repository) List(ctx context.Context, status *models.ModelStatus, page, pageSize int) ([]models.Model, int, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	run := database.ActiveRunner(ctx, r.db)

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("models")
	countWhere := []string{countSb.IsNull("deleted_at")}
	if status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *status))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := run.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count models")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count models")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(modelColumns...)
	sb.From("models")
	where := []string{sb.IsNull("deleted_at")}
	if status != nil {
		where = append(where, sb.Equal("status", *status))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var results []models.Model
	if err := run.SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list models")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list models")
	}

	return results, totalCount, nil
}

// UpdateStatus moves a model to a new lifecycle status
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.ModelStatus) error {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.UpdateStatus")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("models")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update model status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update model status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Updated model status")
	return nil
}

// SetLastValidatedAt stamps the model's last completed validation date
func (r *Repository) SetLastValidatedAt(ctx context.Context, id string, validatedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.SetLastValidatedAt")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("models")
	sb.Set(
		sb.Assign("last_validated_at", validatedAt),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set last validated date")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set last validated date")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", id))
	}

	return nil
}

// GetDeployedRegions returns the region IDs a model is deployed to
func (r *Repository) GetDeployedRegions(ctx context.Context, modelID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.GetDeployedRegions")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("region_id")
	sb.From("model_regions")
	sb.Where(sb.Equal("model_id", modelID))
	sb.OrderBy("region_id")

	query, args := sb.Build()
	var regions []string
	if err := run.SelectContext(ctx, &regions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get deployed regions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get deployed regions")
	}

	return regions, nil
}

// GetDelegates returns the user IDs delegated to act for the model owner
func (r *Repository) GetDelegates(ctx context.Context, modelID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.GetDelegates")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("delegate_id")
	sb.From("model_delegates")
	sb.Where(sb.Equal("model_id", modelID))
	sb.OrderBy("delegate_id")

	query, args := sb.Build()
	var delegates []string
	if err := run.SelectContext(ctx, &delegates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get delegates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get delegates")
	}

	return delegates, nil
}

// CreateVersion records a model version row
func (r *Repository) CreateVersion(ctx context.Context, modelID, version string, implementationDate *time.Time, isPlaceholder bool) (*models.ModelVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.CreateVersion")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	mv := &models.ModelVersion{
		ID:                 uuid.New().String(),
		ModelID:            modelID,
		Version:            version,
		ImplementationDate: implementationDate,
		IsPlaceholder:      isPlaceholder,
		CreatedAt:          time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("model_versions")
	sb.Cols("id", "model_id", "version", "implementation_date", "is_placeholder", "created_at")
	sb.Values(mv.ID, mv.ModelID, mv.Version, mv.ImplementationDate, mv.IsPlaceholder, mv.CreatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create model version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create model version")
	}

	return mv, nil
}

// LatestImplementationDate returns the most recent implementation date across
// a model's versions, or nil when none carry one
func (r *Repository) LatestImplementationDate(ctx context.Context, modelID string) (*time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "modelinventory.Repository.LatestImplementationDate")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("MAX(implementation_date)")
	sb.From("model_versions")
	sb.Where(
		sb.Equal("model_id", modelID),
		sb.IsNotNull("implementation_date"),
	)

	query, args := sb.Build()
	var latest *time.Time
	if err := run.GetContext(ctx, &latest, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest implementation date")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest implementation date")
	}

	return latest, nil
}

func (r *Repository) setRegions(ctx context.Context, run database.Runner, modelID string, regionIDs []string) error {
	if len(regionIDs) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("model_regions")
	sb.Cols("model_id", "region_id")
	for _, regionID := range regionIDs {
		sb.Values(modelID, regionID)
	}

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set model regions")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set model regions")
	}
	return nil
}

func (r *Repository) setDelegates(ctx context.Context, run database.Runner, modelID string, delegateIDs []string) error {
	if len(delegateIDs) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("model_delegates")
	sb.Cols("model_id", "delegate_id")
	for _, delegateID := range delegateIDs {
		sb.Values(modelID, delegateID)
	}

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set model delegates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set model delegates")
	}
	return nil
}
