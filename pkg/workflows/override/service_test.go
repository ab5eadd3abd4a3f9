package override

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/pkg/events"
	"github.com/modelrisk/governor/pkg/identity"
	"github.com/modelrisk/governor/pkg/kafka"
	"github.com/modelrisk/governor/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeTx struct {
	database.Tx
}

func (t *fakeTx) IsOpen() bool                       { return true }
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct {
	database.DB
}

func (f *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakePublisher struct {
	events []kafka.GovernanceEvent
}

func (p *fakePublisher) PublishGovernanceEvent(_ context.Context, event *kafka.GovernanceEvent) error {
	p.events = append(p.events, *event)
	return nil
}

type memOverrides struct {
	overrides map[string]*models.DueDateOverride
}

func (m *memOverrides) Create(_ context.Context, o *models.DueDateOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.IsActive = true
	cp := *o
	m.overrides[o.ID] = &cp
	return nil
}

func (m *memOverrides) GetByID(_ context.Context, id string) (*models.DueDateOverride, error) {
	o, ok := m.overrides[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", id))
	}
	cp := *o
	return &cp, nil
}

func (m *memOverrides) GetActiveByModel(_ context.Context, modelID string) (*models.DueDateOverride, error) {
	for _, o := range m.overrides {
		if o.ModelID == modelID && o.IsActive {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOverrides) GetActiveByRequest(_ context.Context, requestID string) (*models.DueDateOverride, error) {
	for _, o := range m.overrides {
		if o.IsActive && o.ValidationRequestID != nil && *o.ValidationRequestID == requestID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOverrides) ListByModel(_ context.Context, modelID string) ([]models.DueDateOverride, error) {
	out := []models.DueDateOverride{}
	for _, o := range m.overrides {
		if o.ModelID == modelID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOverrides) Clear(_ context.Context, id string, clearedType models.ClearedType, clearedBy string, reason *string) error {
	o, ok := m.overrides[id]
	if !ok || !o.IsActive {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no active override %s", id))
	}
	now := time.Now().UTC()
	o.IsActive = false
	o.ClearedType = &clearedType
	o.ClearedReason = reason
	o.ClearedBy = &clearedBy
	o.ClearedAt = &now
	return nil
}

func (m *memOverrides) LinkSuperseded(_ context.Context, oldID, newID string) error {
	o, ok := m.overrides[oldID]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "not found")
	}
	o.SupersededByOverrideID = &newID
	return nil
}

func (m *memOverrides) Promote(_ context.Context, id, requestID string) error {
	o, ok := m.overrides[id]
	if !ok || !o.IsActive || o.TargetScope != models.OverrideScopeNextCycle {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no promotable override %s", id))
	}
	o.TargetScope = models.OverrideScopeCurrentRequest
	o.ValidationRequestID = &requestID
	return nil
}

type memModels struct {
	models map[string]*models.Model
}

func (m *memModels) Get(_ context.Context, id string) (*models.Model, error) {
	model, ok := m.models[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", id))
	}
	cp := *model
	return &cp, nil
}

type memValidations struct {
	open map[string]*models.ValidationRequest
}

func (m *memValidations) GetOpenByModel(_ context.Context, modelID string) (*models.ValidationRequest, error) {
	req, ok := m.open[modelID]
	if !ok {
		return nil, nil
	}
	return req, nil
}

type memAudit struct {
	entries []models.AuditEntry
}

func (m *memAudit) Record(_ context.Context, entityType, entityID, action, actorID string, changes map[string]any) error {
	m.entries = append(m.entries, models.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Changes:    changes,
	})
	return nil
}

type fixture struct {
	svc         *Service
	overrides   *memOverrides
	inv         *memModels
	validations *memValidations
	audit       *memAudit
	pub         *fakePublisher
}

func newFixture() *fixture {
	overrides := &memOverrides{overrides: map[string]*models.DueDateOverride{}}
	inv := &memModels{models: map[string]*models.Model{}}
	validations := &memValidations{open: map[string]*models.ValidationRequest{}}
	audit := &memAudit{}
	pub := &fakePublisher{}
	logger := testLogger()

	svc := NewService(&fakeDB{}, overrides, inv, validations, audit, events.NewEmitter(pub, logger), logger, 10)
	return &fixture{svc: svc, overrides: overrides, inv: inv, validations: validations, audit: audit, pub: pub}
}

// addModel registers a model whose policy due date is ~6 months out.
func (f *fixture) addModel(id string) *models.Model {
	lastValidated := time.Now().UTC().AddDate(0, -6, 0)
	model := &models.Model{
		ID:                        id,
		Name:                      "model " + id,
		OwnerID:                   "owner-1",
		Status:                    models.ModelStatusActive,
		ValidationFrequencyMonths: 12,
		LastValidatedAt:           &lastValidated,
	}
	f.inv.models[id] = model
	return model
}

var admin = identity.CurrentUser{ID: "admin-1", Role: identity.RoleAdmin}

func validCreate(overrideType models.OverrideType) models.CreateOverrideRequest {
	return models.CreateOverrideRequest{
		OverrideType: overrideType,
		TargetScope:  models.OverrideScopeNextCycle,
		OverrideDate: time.Now().UTC().AddDate(0, 3, 0),
		Reason:       "regulatory finding requires early revalidation",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture()
	model := f.addModel("m1")

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	assert.True(t, o.IsActive)
	assert.Equal(t, model.PolicyDueDate(), o.OriginalCalculatedDate)
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, "override.created", f.pub.events[0].EventType)
}

func TestCreate_NonAdminForbidden(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	user := identity.CurrentUser{ID: "user-1", Role: identity.RoleUser}
	_, err := f.svc.Create(context.Background(), user, "m1", validCreate(models.OverrideTypeOneTime))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestCreate_DateValidation(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	past := validCreate(models.OverrideTypeOneTime)
	past.OverrideDate = time.Now().UTC().AddDate(0, 0, -1)
	_, err := f.svc.Create(context.Background(), admin, "m1", past)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "future")

	// an override may never extend past the policy date
	late := validCreate(models.OverrideTypeOneTime)
	late.OverrideDate = time.Now().UTC().AddDate(2, 0, 0)
	_, err = f.svc.Create(context.Background(), admin, "m1", late)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "accelerate")
}

func TestCreate_ReasonTooShort(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	req := validCreate(models.OverrideTypeOneTime)
	req.Reason = "too short"
	_, err := f.svc.Create(context.Background(), admin, "m1", req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "at least 10 characters")

	// trailing whitespace does not count toward the minimum
	req.Reason = "too short      "
	_, err = f.svc.Create(context.Background(), admin, "m1", req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCreate_CurrentRequestScopeNeedsOpenValidation(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	req := validCreate(models.OverrideTypeOneTime)
	req.TargetScope = models.OverrideScopeCurrentRequest
	_, err := f.svc.Create(context.Background(), admin, "m1", req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	f.validations.open["m1"] = &models.ValidationRequest{ID: "vr-1", ModelID: "m1"}
	o, err := f.svc.Create(context.Background(), admin, "m1", req)
	require.NoError(t, err)
	require.NotNil(t, o.ValidationRequestID)
	assert.Equal(t, "vr-1", *o.ValidationRequestID)
}

func TestCreate_SupersedesExistingActive(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	first, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	second, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypePermanent))
	require.NoError(t, err)

	old := f.overrides.overrides[first.ID]
	assert.False(t, old.IsActive)
	require.NotNil(t, old.ClearedType)
	assert.Equal(t, models.ClearedTypeSuperseded, *old.ClearedType)
	require.NotNil(t, old.SupersededByOverrideID)
	assert.Equal(t, second.ID, *old.SupersededByOverrideID)

	active, err := f.svc.GetActive(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestClear(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	err := f.svc.Clear(context.Background(), admin, "m1", models.ClearOverrideRequest{Reason: "set in error"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	err = f.svc.Clear(context.Background(), admin, "m1", models.ClearOverrideRequest{Reason: "set in error"})
	require.NoError(t, err)

	cleared := f.overrides.overrides[o.ID]
	assert.False(t, cleared.IsActive)
	require.NotNil(t, cleared.ClearedType)
	assert.Equal(t, models.ClearedTypeManual, *cleared.ClearedType)
	require.NotNil(t, cleared.ClearedBy)
	assert.Equal(t, admin.ID, *cleared.ClearedBy)
}

func TestOnValidationApproved_OneTimeClears(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	require.NoError(t, f.svc.OnValidationApproved(context.Background(), "validator-1", "m1"))

	cleared := f.overrides.overrides[o.ID]
	assert.False(t, cleared.IsActive)
	assert.Equal(t, models.ClearedTypeValidationComplete, *cleared.ClearedType)

	active, err := f.svc.GetActive(context.Background(), "m1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestOnValidationApproved_PermanentRollsForward(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypePermanent))
	require.NoError(t, err)

	require.NoError(t, f.svc.OnValidationApproved(context.Background(), "validator-1", "m1"))

	old := f.overrides.overrides[o.ID]
	assert.False(t, old.IsActive)
	assert.Equal(t, models.ClearedTypeRollForward, *old.ClearedType)
	require.NotNil(t, old.SupersededByOverrideID)

	successor, err := f.svc.GetActive(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, successor)
	assert.Equal(t, *old.SupersededByOverrideID, successor.ID)
	assert.Equal(t, models.OverrideScopeNextCycle, successor.TargetScope)
	require.NotNil(t, successor.RolledFromOverrideID)
	assert.Equal(t, o.ID, *successor.RolledFromOverrideID)
	// rolled forward one 12-month cycle
	assert.Equal(t, o.OverrideDate.AddDate(0, 12, 0), successor.OverrideDate)
}

func TestOnValidationApproved_NoActiveOverrideIsNoop(t *testing.T) {
	f := newFixture()
	f.addModel("m1")
	require.NoError(t, f.svc.OnValidationApproved(context.Background(), "validator-1", "m1"))
	assert.Empty(t, f.audit.entries)
}

func TestOnValidationCancelled(t *testing.T) {
	f := newFixture()
	f.addModel("m1")
	f.validations.open["m1"] = &models.ValidationRequest{ID: "vr-1", ModelID: "m1"}

	req := validCreate(models.OverrideTypeOneTime)
	req.TargetScope = models.OverrideScopeCurrentRequest
	o, err := f.svc.Create(context.Background(), admin, "m1", req)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnValidationCancelled(context.Background(), "admin-1", "vr-1"))

	cleared := f.overrides.overrides[o.ID]
	assert.False(t, cleared.IsActive)
	assert.Equal(t, models.ClearedTypeRequestCancelled, *cleared.ClearedType)
}

func TestPromote(t *testing.T) {
	f := newFixture()
	f.addModel("m1")

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	require.NoError(t, f.svc.Promote(context.Background(), "m1", "vr-9"))

	promoted := f.overrides.overrides[o.ID]
	assert.Equal(t, models.OverrideScopeCurrentRequest, promoted.TargetScope)
	require.NotNil(t, promoted.ValidationRequestID)
	assert.Equal(t, "vr-9", *promoted.ValidationRequestID)

	// promoting again is a no-op: the override is no longer NEXT_CYCLE
	require.NoError(t, f.svc.Promote(context.Background(), "m1", "vr-10"))
	assert.Equal(t, "vr-9", *promoted.ValidationRequestID)
}

func TestEffectiveDueDate(t *testing.T) {
	f := newFixture()
	model := f.addModel("m1")

	resolution, err := f.svc.EffectiveDueDate(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyDueDate(), resolution.EffectiveDate)
	assert.Nil(t, resolution.OverrideID)

	o, err := f.svc.Create(context.Background(), admin, "m1", validCreate(models.OverrideTypeOneTime))
	require.NoError(t, err)

	resolution, err = f.svc.EffectiveDueDate(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, o.OverrideDate, resolution.EffectiveDate, "earlier override caps the policy date")
	require.NotNil(t, resolution.OverrideID)
	assert.Equal(t, o.ID, *resolution.OverrideID)
}
