package modelinventory

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type execResult struct{}

func (execResult) LastInsertId() (int64, error) { return 0, nil }
func (execResult) RowsAffected() (int64, error) { return 1, nil }

// fakeDB covers the insert path only.
type fakeDB struct {
	database.DB
	queries []string
}

func (f *fakeDB) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	return execResult{}, nil
}

func TestCreate_DefaultsValidationFrequency(t *testing.T) {
	repo := NewRepository(&fakeDB{}, testLogger(), 18)

	created, err := repo.Create(context.Background(), models.CreateModelRequest{
		Name:               "credit scoring",
		OwnerID:            "owner-1",
		RiskTierID:         "tier-1",
		GovernanceRegionID: "emea",
		ValidationTypeID:   "vt-full",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 18, created.ValidationFrequencyMonths)
}

func TestCreate_KeepsExplicitValidationFrequency(t *testing.T) {
	repo := NewRepository(&fakeDB{}, testLogger(), 18)

	created, err := repo.Create(context.Background(), models.CreateModelRequest{
		Name:                      "pricing engine",
		OwnerID:                   "owner-1",
		RiskTierID:                "tier-2",
		GovernanceRegionID:        "emea",
		ValidationTypeID:          "vt-full",
		ValidationFrequencyMonths: 6,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 6, created.ValidationFrequencyMonths)
}
