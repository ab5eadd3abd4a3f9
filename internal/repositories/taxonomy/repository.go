package taxonomy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/models"
)

var taxonomyColumns = []string{
	"id", "taxonomy", "code", "name", "is_active", "created_at", "deleted_at",
}

// Repository handles reference-data taxonomy lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new taxonomy repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves one taxonomy value
func (r *Repository) GetByID(ctx context.Context, id string) (*models.TaxonomyValue, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.GetByID")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(taxonomyColumns...)
	sb.From("taxonomy_values")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var value models.TaxonomyValue
	if err := run.GetContext(ctx, &value, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("taxonomy value %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get taxonomy value")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get taxonomy value")
	}

	return &value, nil
}

// ListByTaxonomy returns the active values of one taxonomy
func (r *Repository) ListByTaxonomy(ctx context.Context, taxonomy string) ([]models.TaxonomyValue, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.ListByTaxonomy")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(taxonomyColumns...)
	sb.From("taxonomy_values")
	sb.Where(
		sb.Equal("taxonomy", taxonomy),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("code ASC")

	query, args := sb.Build()
	var values []models.TaxonomyValue
	if err := run.SelectContext(ctx, &values, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list taxonomy values")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list taxonomy values")
	}

	return values, nil
}
