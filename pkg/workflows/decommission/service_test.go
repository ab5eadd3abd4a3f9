package decommission

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

func (t *fakeTx) IsOpen() bool                      { return true }
func (t *fakeTx) Commit(ctx context.Context) error  { return nil }
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

type memRequests struct {
	requests  map[string]*models.DecommissionRequest
	approvals map[string]*models.DecommissionApproval
	history   []models.DecommissionStatusHistory
}

func newMemRequests() *memRequests {
	return &memRequests{
		requests:  map[string]*models.DecommissionRequest{},
		approvals: map[string]*models.DecommissionApproval{},
	}
}

func (m *memRequests) Create(_ context.Context, req *models.DecommissionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memRequests) Get(_ context.Context, id string) (*models.DecommissionRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("decommission request %s not found", id))
	}
	cp := *req
	cp.Approvals = nil
	for _, a := range m.approvals {
		if a.RequestID == id {
			cp.Approvals = append(cp.Approvals, *a)
		}
	}
	return &cp, nil
}

func (m *memRequests) GetActiveByModel(_ context.Context, modelID string) (*models.DecommissionRequest, error) {
	for _, req := range m.requests {
		if req.ModelID == modelID && !req.Status.IsTerminal() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRequests) List(_ context.Context, status *models.DecommissionStatus, modelID *string, page, pageSize int) ([]models.DecommissionRequest, int, error) {
	out := []models.DecommissionRequest{}
	for _, req := range m.requests {
		if status != nil && req.Status != *status {
			continue
		}
		if modelID != nil && req.ModelID != *modelID {
			continue
		}
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (m *memRequests) Update(_ context.Context, req *models.DecommissionRequest) error {
	stored := m.requests[req.ID]
	stored.ReasonID = req.ReasonID
	stored.ReplacementModelID = req.ReplacementModelID
	stored.LastProductionDate = req.LastProductionDate
	stored.GapJustification = req.GapJustification
	stored.ArchiveLocation = req.ArchiveLocation
	stored.DownstreamImpactVerified = req.DownstreamImpactVerified
	return nil
}

func (m *memRequests) SetReview(_ context.Context, id string, validatorSide bool, reviewedBy string, reviewedAt time.Time, comment *string) error {
	req := m.requests[id]
	if validatorSide {
		req.ValidatorReviewedBy = &reviewedBy
		req.ValidatorReviewedAt = &reviewedAt
		req.ValidatorComment = comment
	} else {
		req.OwnerReviewedBy = &reviewedBy
		req.OwnerReviewedAt = &reviewedAt
		req.OwnerComment = comment
	}
	return nil
}

func (m *memRequests) UpdateStatus(_ context.Context, id string, status models.DecommissionStatus, finalReviewedAt *time.Time, rejectionReason, withdrawalReason *string) error {
	req, ok := m.requests[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "not found")
	}
	req.Status = status
	if finalReviewedAt != nil {
		req.FinalReviewedAt = finalReviewedAt
	}
	if rejectionReason != nil {
		req.RejectionReason = rejectionReason
	}
	if withdrawalReason != nil {
		req.WithdrawalReason = withdrawalReason
	}
	return nil
}

func (m *memRequests) AddHistory(_ context.Context, entry *models.DecommissionStatusHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	m.history = append(m.history, *entry)
	return nil
}

func (m *memRequests) ListHistory(_ context.Context, requestID string) ([]models.DecommissionStatusHistory, error) {
	out := []models.DecommissionStatusHistory{}
	for _, h := range m.history {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memRequests) CreateApprovals(_ context.Context, approvals []models.DecommissionApproval) error {
	for i := range approvals {
		if approvals[i].ID == "" {
			approvals[i].ID = uuid.New().String()
		}
		approvals[i].Decision = models.ApprovalDecisionPending
		cp := approvals[i]
		m.approvals[cp.ID] = &cp
	}
	return nil
}

func (m *memRequests) GetApproval(_ context.Context, id string) (*models.DecommissionApproval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval %s not found", id))
	}
	cp := *a
	return &cp, nil
}

func (m *memRequests) DecideApproval(_ context.Context, id string, decision models.ApprovalDecision, decidedBy string, comment *string) (bool, error) {
	a, ok := m.approvals[id]
	if !ok || a.Decision != models.ApprovalDecisionPending {
		return false, nil
	}
	now := time.Now().UTC()
	a.Decision = decision
	a.DecidedBy = &decidedBy
	a.DecidedAt = &now
	a.Comment = comment
	return true, nil
}

func (m *memRequests) CountUndecided(_ context.Context, requestID string) (int, error) {
	count := 0
	for _, a := range m.approvals {
		if a.RequestID == requestID && a.Decision == models.ApprovalDecisionPending {
			count++
		}
	}
	return count, nil
}

type memModels struct {
	models   map[string]*models.Model
	implDate map[string]*time.Time
	versions []models.ModelVersion
}

func newMemModels() *memModels {
	return &memModels{
		models:   map[string]*models.Model{},
		implDate: map[string]*time.Time{},
	}
}

func (m *memModels) Get(_ context.Context, id string) (*models.Model, error) {
	model, ok := m.models[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", id))
	}
	cp := *model
	return &cp, nil
}

func (m *memModels) UpdateStatus(_ context.Context, id string, status models.ModelStatus) error {
	model, ok := m.models[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "not found")
	}
	model.Status = status
	return nil
}

func (m *memModels) CreateVersion(_ context.Context, modelID, version string, implementationDate *time.Time, isPlaceholder bool) (*models.ModelVersion, error) {
	mv := models.ModelVersion{
		ID:                 uuid.New().String(),
		ModelID:            modelID,
		Version:            version,
		ImplementationDate: implementationDate,
		IsPlaceholder:      isPlaceholder,
	}
	m.versions = append(m.versions, mv)
	return &mv, nil
}

func (m *memModels) LatestImplementationDate(_ context.Context, modelID string) (*time.Time, error) {
	return m.implDate[modelID], nil
}

type memTaxonomy struct {
	values map[string]*models.TaxonomyValue
}

func (m *memTaxonomy) GetByID(_ context.Context, id string) (*models.TaxonomyValue, error) {
	v, ok := m.values[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("taxonomy value %s not found", id))
	}
	return v, nil
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
	svc      *Service
	requests *memRequests
	inv      *memModels
	audit    *memAudit
	pub      *fakePublisher
}

func newFixture() *fixture {
	requests := newMemRequests()
	inv := newMemModels()
	tax := &memTaxonomy{values: map[string]*models.TaxonomyValue{
		"reason-obsolete": {ID: "reason-obsolete", Taxonomy: models.TaxonomyDecommissionReason, Code: models.DecommissionReasonObsolete, IsActive: true},
		"reason-replace":  {ID: "reason-replace", Taxonomy: models.TaxonomyDecommissionReason, Code: models.DecommissionReasonReplacement, IsActive: true},
		"tier-1":          {ID: "tier-1", Taxonomy: models.TaxonomyRiskTier, Code: "TIER_1", IsActive: true},
	}}
	audit := &memAudit{}
	pub := &fakePublisher{}
	logger := testLogger()
	emitter := events.NewEmitter(pub, logger)

	svc := NewService(&fakeDB{}, requests, inv, tax, audit, emitter, logger)
	return &fixture{svc: svc, requests: requests, inv: inv, audit: audit, pub: pub}
}

func (f *fixture) addModel(id, ownerID string, regions []string) *models.Model {
	model := &models.Model{
		ID:                        id,
		Name:                      "model " + id,
		OwnerID:                   ownerID,
		Status:                    models.ModelStatusActive,
		RiskTierID:                "tier-1",
		GovernanceRegionID:        "emea",
		ValidationTypeID:          "vt-full",
		ValidationFrequencyMonths: 12,
		DeployedRegionIDs:         regions,
	}
	f.inv.models[id] = model
	return model
}

var (
	owner     = identity.CurrentUser{ID: "owner-1", Role: identity.RoleUser}
	requester = identity.CurrentUser{ID: "analyst-1", Role: identity.RoleUser}
	validator = identity.CurrentUser{ID: "validator-1", Role: identity.RoleValidator}
	admin     = identity.CurrentUser{ID: "admin-1", Role: identity.RoleAdmin}
	global    = identity.CurrentUser{ID: "global-1", Role: identity.RoleGlobalApprover}
)

func regionalFor(regions ...string) identity.CurrentUser {
	return identity.CurrentUser{ID: "regional-1", Role: identity.RoleRegionalApprover, Regions: regions}
}

func createRequest(t *testing.T, f *fixture, user identity.CurrentUser, modelID string) *models.DecommissionRequest {
	t.Helper()
	req, err := f.svc.Create(context.Background(), user, models.CreateDecommissionRequest{
		ModelID:                  modelID,
		ReasonID:                 "reason-obsolete",
		LastProductionDate:       time.Now().UTC().AddDate(0, 1, 0),
		DownstreamImpactVerified: true,
	})
	require.NoError(t, err)
	return req
}

func TestCreate(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us", "uk"})

	req := createRequest(t, f, requester, "m1")

	assert.Equal(t, models.DecommissionStatusPending, req.Status)
	assert.True(t, req.OwnerApprovalRequired, "non-owner creator requires the owner gate")
	assert.Equal(t, models.ModelStatusPendingDecommission, f.inv.models["m1"].Status)
	require.Len(t, f.requests.history, 1)
	assert.Equal(t, models.DecommissionStatusPending, f.requests.history[0].NewStatus)
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, "decommission.status_changed", f.pub.events[0].EventType)
}

func TestCreate_OwnerCreatorSkipsOwnerGate(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)

	req := createRequest(t, f, owner, "m1")
	assert.False(t, req.OwnerApprovalRequired)
}

func TestCreate_RejectsSecondActiveRequest(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	createRequest(t, f, requester, "m1")

	// model is PENDING_DECOMMISSION now, so the status guard fires first
	_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:                  "m1",
		ReasonID:                 "reason-obsolete",
		LastProductionDate:       time.Now().UTC().AddDate(0, 1, 0),
		DownstreamImpactVerified: true,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestCreate_RequiresDownstreamVerification(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)

	_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:            "m1",
		ReasonID:           "reason-obsolete",
		LastProductionDate: time.Now().UTC().AddDate(0, 1, 0),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCreate_ReplacementReasonRequiresReplacement(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)

	_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:                  "m1",
		ReasonID:                 "reason-replace",
		LastProductionDate:       time.Now().UTC().AddDate(0, 1, 0),
		DownstreamImpactVerified: true,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "requires a replacement model")
}

func TestCreate_GapRequiresJustification(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	f.addModel("m2", owner.ID, nil)

	lastProduction := time.Now().UTC().AddDate(0, 1, 0)
	implDate := lastProduction.AddDate(0, 0, 30)
	f.inv.implDate["m2"] = &implDate

	replacement := "m2"
	_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:                  "m1",
		ReasonID:                 "reason-replace",
		ReplacementModelID:       &replacement,
		LastProductionDate:       lastProduction,
		DownstreamImpactVerified: true,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "30 days")

	justification := "parallel run covers the gap"
	req, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:                  "m1",
		ReasonID:                 "reason-replace",
		ReplacementModelID:       &replacement,
		LastProductionDate:       lastProduction,
		GapJustification:         &justification,
		DownstreamImpactVerified: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusPending, req.Status)
}

func TestCreate_BlankGapJustificationRejected(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	f.addModel("m2", owner.ID, nil)

	lastProduction := time.Now().UTC().AddDate(0, 1, 0)
	implDate := lastProduction.AddDate(0, 0, 30)
	f.inv.implDate["m2"] = &implDate

	replacement := "m2"
	for _, justification := range []string{"", "   "} {
		j := justification
		_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
			ModelID:                  "m1",
			ReasonID:                 "reason-replace",
			ReplacementModelID:       &replacement,
			LastProductionDate:       lastProduction,
			GapJustification:         &j,
			DownstreamImpactVerified: true,
		})
		require.Error(t, err, "justification %q", justification)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		assert.Contains(t, err.Error(), "gap justification")
	}
}

func TestCreate_PlaceholderVersionForUnshippedReplacement(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	f.addModel("m2", owner.ID, nil)

	lastProduction := time.Now().UTC().AddDate(0, 1, 0)
	implDate := lastProduction.AddDate(0, 0, -5)
	replacement := "m2"

	_, err := f.svc.Create(context.Background(), requester, models.CreateDecommissionRequest{
		ModelID:                       "m1",
		ReasonID:                      "reason-replace",
		ReplacementModelID:            &replacement,
		ReplacementImplementationDate: &implDate,
		LastProductionDate:            lastProduction,
		DownstreamImpactVerified:      true,
	})
	require.NoError(t, err)

	require.Len(t, f.inv.versions, 1)
	assert.Equal(t, "m2", f.inv.versions[0].ModelID)
	assert.True(t, f.inv.versions[0].IsPlaceholder)
}

func TestUpdate_PlaceholderVersionForReplacementAddedOnPatch(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	f.addModel("m2", owner.ID, nil)
	req := createRequest(t, f, requester, "m1")

	implDate := time.Now().UTC().AddDate(0, 0, 20)
	reason := "reason-replace"
	replacement := "m2"
	_, err := f.svc.Update(context.Background(), requester, req.ID, models.UpdateDecommissionRequest{
		ReasonID:                      &reason,
		ReplacementModelID:            &replacement,
		ReplacementImplementationDate: &implDate,
	})
	require.NoError(t, err)

	require.Len(t, f.inv.versions, 1, "the promised implementation date is kept as a placeholder version")
	assert.Equal(t, "m2", f.inv.versions[0].ModelID)
	assert.True(t, f.inv.versions[0].IsPlaceholder)
	require.NotNil(t, f.inv.versions[0].ImplementationDate)
	assert.Equal(t, implDate, *f.inv.versions[0].ImplementationDate)
}

func TestValidatorReview_RejectionShortCircuits(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := createRequest(t, f, requester, "m1")

	comment := "model still in active use"
	updated, err := f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: false, Comment: &comment})
	require.NoError(t, err)

	assert.Equal(t, models.DecommissionStatusRejected, updated.Status)
	assert.Equal(t, models.ModelStatusActive, f.inv.models["m1"].Status)
	assert.NotNil(t, updated.FinalReviewedAt)

	// the late owner review hits the status guard
	_, err = f.svc.OwnerReview(context.Background(), owner, req.ID, models.ReviewRequest{Approved: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestDualGate_AdvancesOnlyWhenBothApprove(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us", "uk"})
	req := createRequest(t, f, requester, "m1")

	afterValidator, err := f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusPending, afterValidator.Status, "owner gate still outstanding")

	afterOwner, err := f.svc.OwnerReview(context.Background(), owner, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusValidatorApproved, afterOwner.Status)

	// fan-out: one GLOBAL plus one per deployed region
	loaded, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Approvals, 3)
	globals, regionals := 0, 0
	for _, a := range loaded.Approvals {
		assert.Equal(t, models.ApprovalDecisionPending, a.Decision)
		switch a.ApproverType {
		case models.ApproverTypeGlobal:
			globals++
		case models.ApproverTypeRegional:
			regionals++
		}
	}
	assert.Equal(t, 1, globals)
	assert.Equal(t, 2, regionals)
}

func TestDualGate_OwnerFirstOrderEquivalent(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := createRequest(t, f, requester, "m1")

	afterOwner, err := f.svc.OwnerReview(context.Background(), owner, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusPending, afterOwner.Status, "validator gate still outstanding")

	afterValidator, err := f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusValidatorApproved, afterValidator.Status)

	loaded, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Approvals, 2, "fan-out happens exactly once")
}

func TestDualGate_OwnerRejectionFirstShortCircuits(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := createRequest(t, f, requester, "m1")

	comment := "decommissioning is premature"
	rejected, err := f.svc.OwnerReview(context.Background(), owner, req.ID, models.ReviewRequest{Approved: false, Comment: &comment})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusRejected, rejected.Status)
	assert.Equal(t, models.ModelStatusActive, f.inv.models["m1"].Status)

	// the late validator review hits the status guard
	_, err = f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestValidatorReview_NonValidatorForbidden(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	req := createRequest(t, f, requester, "m1")

	_, err := f.svc.ValidatorReview(context.Background(), requester, req.ID, models.ReviewRequest{Approved: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestValidatorReview_SecondReviewConflicts(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	req := createRequest(t, f, requester, "m1")

	_, err := f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)

	// still PENDING (owner gate outstanding), but the validator side is done
	_, err = f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func advanceToStageTwo(t *testing.T, f *fixture, req *models.DecommissionRequest) *models.DecommissionRequest {
	t.Helper()
	_, err := f.svc.ValidatorReview(context.Background(), validator, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	advanced, err := f.svc.OwnerReview(context.Background(), owner, req.ID, models.ReviewRequest{Approved: true})
	require.NoError(t, err)
	require.Equal(t, models.DecommissionStatusValidatorApproved, advanced.Status)
	loaded, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	return loaded
}

func approvalOfType(t *testing.T, req *models.DecommissionRequest, approverType models.ApproverType) models.DecommissionApproval {
	t.Helper()
	for _, a := range req.Approvals {
		if a.ApproverType == approverType {
			return a
		}
	}
	t.Fatalf("no %s approval on request %s", approverType, req.ID)
	return models.DecommissionApproval{}
}

func TestSubmitApproval_AllApprovedRetiresModel(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := advanceToStageTwo(t, f, createRequest(t, f, requester, "m1"))

	globalRow := approvalOfType(t, req, models.ApproverTypeGlobal)
	regionalRow := approvalOfType(t, req, models.ApproverTypeRegional)

	mid, err := f.svc.SubmitApproval(context.Background(), global, req.ID, globalRow.ID, models.SubmitApprovalRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusValidatorApproved, mid.Status, "regional decision still outstanding")

	final, err := f.svc.SubmitApproval(context.Background(), regionalFor("us"), req.ID, regionalRow.ID, models.SubmitApprovalRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusApproved, final.Status)
	assert.Equal(t, models.ModelStatusRetired, f.inv.models["m1"].Status)
	assert.NotNil(t, final.FinalReviewedAt)
}

func TestSubmitApproval_RejectionIsImmediatelyTerminal(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us", "uk"})
	req := advanceToStageTwo(t, f, createRequest(t, f, requester, "m1"))

	globalRow := approvalOfType(t, req, models.ApproverTypeGlobal)
	rejected, err := f.svc.SubmitApproval(context.Background(), global, req.ID, globalRow.ID, models.SubmitApprovalRequest{Approved: false})
	require.NoError(t, err)

	assert.Equal(t, models.DecommissionStatusRejected, rejected.Status)
	assert.Equal(t, models.ModelStatusActive, f.inv.models["m1"].Status)

	// sibling rows stay PENDING for the record
	loaded, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	pending := 0
	for _, a := range loaded.Approvals {
		if a.Decision == models.ApprovalDecisionPending {
			pending++
		}
	}
	assert.Equal(t, 2, pending)
}

func TestSubmitApproval_Permissions(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := advanceToStageTwo(t, f, createRequest(t, f, requester, "m1"))

	globalRow := approvalOfType(t, req, models.ApproverTypeGlobal)
	regionalRow := approvalOfType(t, req, models.ApproverTypeRegional)

	tests := []struct {
		name       string
		user       identity.CurrentUser
		approvalID string
		wantStatus int
	}{
		{"regional approver cannot decide global rows", regionalFor("us"), globalRow.ID, http.StatusForbidden},
		{"global approver cannot decide regional rows", global, regionalRow.ID, http.StatusForbidden},
		{"regional approver needs the row's region", regionalFor("uk"), regionalRow.ID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitApproval(context.Background(), tt.user, req.ID, tt.approvalID, models.SubmitApprovalRequest{Approved: true})
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, httperror.GetStatusCode(err))
		})
	}

	// admin may decide anything
	_, err := f.svc.SubmitApproval(context.Background(), admin, req.ID, globalRow.ID, models.SubmitApprovalRequest{Approved: true})
	require.NoError(t, err)
}

func TestSubmitApproval_AlreadyDecidedConflicts(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, []string{"us"})
	req := advanceToStageTwo(t, f, createRequest(t, f, requester, "m1"))

	globalRow := approvalOfType(t, req, models.ApproverTypeGlobal)
	_, err := f.svc.SubmitApproval(context.Background(), global, req.ID, globalRow.ID, models.SubmitApprovalRequest{Approved: true})
	require.NoError(t, err)

	_, err = f.svc.SubmitApproval(context.Background(), global, req.ID, globalRow.ID, models.SubmitApprovalRequest{Approved: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestWithdraw(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	req := createRequest(t, f, requester, "m1")

	_, err := f.svc.Withdraw(context.Background(), identity.CurrentUser{ID: "stranger", Role: identity.RoleUser}, req.ID, models.WithdrawRequest{Reason: "nope"})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))

	withdrawn, err := f.svc.Withdraw(context.Background(), requester, req.ID, models.WithdrawRequest{Reason: "submitted by mistake"})
	require.NoError(t, err)
	assert.Equal(t, models.DecommissionStatusWithdrawn, withdrawn.Status)
	assert.Equal(t, models.ModelStatusActive, f.inv.models["m1"].Status)

	_, err = f.svc.Withdraw(context.Background(), requester, req.ID, models.WithdrawRequest{Reason: "again"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestUpdate_AuditsOnlyChangedFields(t *testing.T) {
	f := newFixture()
	f.addModel("m1", owner.ID, nil)
	req := createRequest(t, f, requester, "m1")

	before := len(f.audit.entries)
	archive := "s3://archive/m1"
	_, err := f.svc.Update(context.Background(), requester, req.ID, models.UpdateDecommissionRequest{ArchiveLocation: &archive})
	require.NoError(t, err)

	require.Len(t, f.audit.entries, before+1)
	entry := f.audit.entries[len(f.audit.entries)-1]
	assert.Equal(t, "updated", entry.Action)
	assert.Equal(t, map[string]any{"archive_location": archive}, entry.Changes)

	// identical patch is a no-op: no audit entry
	_, err = f.svc.Update(context.Background(), requester, req.ID, models.UpdateDecommissionRequest{ArchiveLocation: &archive})
	require.NoError(t, err)
	assert.Len(t, f.audit.entries, before+1)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(models.DecommissionStatusPending, models.DecommissionStatusValidatorApproved))
	assert.True(t, CanTransition(models.DecommissionStatusValidatorApproved, models.DecommissionStatusApproved))
	assert.False(t, CanTransition(models.DecommissionStatusPending, models.DecommissionStatusApproved))
	assert.False(t, CanTransition(models.DecommissionStatusApproved, models.DecommissionStatusPending))
	assert.False(t, CanTransition(models.DecommissionStatusWithdrawn, models.DecommissionStatusPending))

	err := ValidateTransition(models.DecommissionStatusRejected, models.DecommissionStatusApproved)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}
