package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/declaration"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/engine/auth"
	"hireline/internal/metrics"
	"hireline/internal/migrate"
	"hireline/internal/notify"
	"hireline/internal/ocr"
	"hireline/internal/storage"
)

const tenant = "tenant-1"

var (
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	pdfBytes  = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< >>\n%%EOF\n")
)

type fakeExtractor struct {
	mu     sync.Mutex
	result ocr.Result
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeExtractor) set(res ocr.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = res, err
}

func (f *fakeExtractor) Extract(ctx context.Context, _ []byte, _ string) (ocr.Result, error) {
	f.mu.Lock()
	f.calls++
	res, err, delay := f.result, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ocr.Result{}, ctx.Err()
		}
	}
	return res, err
}

type recorder struct {
	mu            sync.Mutex
	notifications []notify.Notification
	contracts     []domain.ContractDraftRequest
	contractErr   error
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recorder) RequestContract(_ context.Context, req domain.ContractDraftRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts = append(r.contracts, req)
	return r.contractErr
}

func (r *recorder) stages() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Status
	for _, n := range r.notifications {
		if n.Type == notify.TypeStageReached {
			out = append(out, n.Stage)
		}
	}
	return out
}

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Extractor *fakeExtractor
	Collab    *recorder
	Recruiter domain.Actor
	HRD       domain.Actor
	Now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default(tenant)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ex := &fakeExtractor{}
	rec := &recorder{}

	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return now }
	eng.Storage = store
	eng.OCR = ocr.NewProcessor(ex, ocr.DefaultThresholds, 200*time.Millisecond)
	eng.Notifier = rec
	eng.Contracts = rec
	eng.Metrics = metrics.New()

	return &testEnv{
		Engine:    eng,
		Ctx:       context.Background(),
		Extractor: ex,
		Collab:    rec,
		Recruiter: domain.Actor{TenantID: tenant, UserID: "rec-1", Permissions: cfg.RolePermissions([]string{"recruiter"})},
		HRD:       domain.Actor{TenantID: tenant, UserID: "hrd-1", Permissions: cfg.RolePermissions([]string{"hrd"})},
		Now:       now,
	}
}

func (env *testEnv) createCandidate(t *testing.T, id string) domain.Candidate {
	t.Helper()
	c, err := env.Engine.CreateCandidate(env.Ctx, env.Recruiter, engine.CandidateCreateOptions{
		ID:             id,
		FullName:       "Budi Santoso",
		Email:          "budi@example.com",
		EmploymentType: "pkwt",
		Position:       "Warehouse Operator",
	})
	require.NoError(t, err)
	return c
}

// toOnboarding walks the happy path up to onboarding and returns the issued token.
func (env *testEnv) toOnboarding(t *testing.T, id string) string {
	t.Helper()
	env.createCandidate(t, id)
	var res engine.TransitionResult
	for _, to := range []domain.Status{
		domain.StatusScreening,
		domain.StatusScreenedPass,
		domain.StatusSubmitted,
		domain.StatusInterviewScheduled,
		domain.StatusInterviewPassed,
		domain.StatusOnboarding,
	} {
		var err error
		res, err = env.Engine.Transition(env.Ctx, env.Recruiter, id, to, "")
		require.NoError(t, err, "to %s", to)
		require.Equal(t, to, res.Candidate.Status)
	}
	require.NotNil(t, res.Link)
	require.NotEmpty(t, res.Link.Token)
	return res.Link.Token
}

func (env *testEnv) uploadRequired(t *testing.T, token string) {
	t.Helper()
	env.Extractor.set(ocr.Result{Confidence: 0.9, Fields: map[string]string{"nik": "3201234567890001", "nama": "BUDI SANTOSO"}}, nil)
	_, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Filename: "ktp.jpg", Data: jpegBytes})
	require.NoError(t, err)
	_, err = env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "kk", Filename: "kk.pdf", Data: pdfBytes})
	require.NoError(t, err)
}

func (env *testEnv) allChecked() domain.Checklist {
	cl := env.Engine.Config.Checklist()
	return declaration.Checked(cl, declaration.AllIDs(cl)...)
}

// toContractRequested runs a candidate through submission and review and returns the form id.
func (env *testEnv) toContractRequested(t *testing.T, id string) string {
	t.Helper()
	token := env.toOnboarding(t, id)
	env.uploadRequired(t, token)
	_, err := env.Engine.Submit(env.Ctx, token, engine.SubmitInput{
		Fields:    domain.FormPatch{domain.FieldBankName: "BCA", domain.FieldBankAccountNumber: "1234567890"},
		Checklist: env.allChecked(),
	})
	require.NoError(t, err)
	f, err := env.Engine.ReviewForm(env.Ctx, env.Recruiter, id, nil)
	require.NoError(t, err)
	_, err = env.Engine.SubmitForHRD(env.Ctx, env.Recruiter, id)
	require.NoError(t, err)
	return f.ID
}

func TestHappyPathTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")

	history, err := env.Engine.ListTransitions(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, domain.StatusNew, history[0].From)
	assert.Equal(t, domain.StatusOnboarding, history[5].To)
	for _, rec := range history {
		assert.Equal(t, domain.TriggerManual, rec.Trigger)
		assert.Equal(t, "rec-1", rec.ActorID)
	}
	assert.Equal(t, []domain.Status{
		domain.StatusScreening, domain.StatusScreenedPass, domain.StatusSubmitted,
		domain.StatusInterviewScheduled, domain.StatusInterviewPassed, domain.StatusOnboarding,
	}, env.Collab.stages())
}

func TestInvalidTransitionsLeaveStatus(t *testing.T) {
	env := newTestEnv(t)
	env.createCandidate(t, "cand-1")

	_, err := env.Engine.Transition(env.Ctx, env.Recruiter, "cand-1", domain.StatusHired, "")
	var inv *domain.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, domain.StatusNew, inv.From)
	assert.Equal(t, domain.StatusHired, inv.To)

	_, err = env.Engine.Transition(env.Ctx, env.Recruiter, "cand-1", domain.Status("archived"), "")
	require.ErrorAs(t, err, &inv)

	c, err := env.Engine.GetCandidate(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, c.Status)

	history, err := env.Engine.ListTransitions(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmissionEdgeIsNotManual(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")
	_, err := env.Engine.Transition(env.Ctx, env.Recruiter, "cand-1", domain.StatusOnboardingCompleted, "")
	var inv *domain.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, domain.StatusOnboarding, inv.From)
}

func TestRejectFromAnyActiveStage(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")
	res, err := env.Engine.Transition(env.Ctx, env.Recruiter, "cand-1", domain.StatusRejected, "no show")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Candidate.Status)

	_, err = env.Engine.Transition(env.Ctx, env.Recruiter, "cand-1", domain.StatusScreening, "")
	assert.ErrorAs(t, err, new(*domain.InvalidTransitionError))
}

func TestPermissionsAreEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.createCandidate(t, "cand-1")

	_, err := env.Engine.Transition(env.Ctx, env.HRD, "cand-1", domain.StatusScreening, "")
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, auth.PermCandidateTransition, forbidden.Permission)

	_, err = env.Engine.GetCandidate(env.Ctx, domain.Actor{TenantID: tenant}, "cand-1")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	other := env.Recruiter
	other.TenantID = "tenant-2"
	_, err = env.Engine.GetCandidate(env.Ctx, other, "cand-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateCandidateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCandidate(env.Ctx, env.Recruiter, engine.CandidateCreateOptions{FullName: " ", EmploymentType: "pkwt"})
	var v *domain.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "full_name", v.Field)

	_, err = env.Engine.CreateCandidate(env.Ctx, env.Recruiter, engine.CandidateCreateOptions{FullName: "A", EmploymentType: "freelance"})
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "employment_type", v.Field)
}

func TestListCandidatesPaginates(t *testing.T) {
	env := newTestEnv(t)
	for i, id := range []string{"c-1", "c-2", "c-3"} {
		at := env.Now.Add(time.Duration(i) * time.Minute)
		env.Engine.Now = func() time.Time { return at }
		env.createCandidate(t, id)
	}
	page, err := env.Engine.ListCandidates(env.Ctx, env.Recruiter, engine.CandidateListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c-3", page.Items[0].ID)
	assert.Equal(t, "c-2", page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = env.Engine.ListCandidates(env.Ctx, env.Recruiter, engine.CandidateListOptions{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c-1", page.Items[0].ID)
	assert.Empty(t, page.NextCursor)

	_, err = env.Engine.ListCandidates(env.Ctx, env.Recruiter, engine.CandidateListOptions{Status: "bogus"})
	assert.ErrorAs(t, err, new(*domain.ValidationError))
}

func TestEventsAreWrittenForStateChanges(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")
	admin := env.Recruiter
	evts, err := env.Engine.ListEvents(env.Ctx, admin, engine.EventListOptions{Type: "candidate.transition"})
	require.NoError(t, err)
	assert.Len(t, evts, 6)

	evts, err = env.Engine.ListEvents(env.Ctx, admin, engine.EventListOptions{Type: "link.issued"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.NotContains(t, evts[0].Payload, "token")
}
