package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"hireline/internal/declaration"
	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
	"hireline/internal/repo"
)

// formTx is getOrCreate: a candidate has exactly one form, created empty with the tenant's checklist.
func (e Engine) formTx(ctx context.Context, tx *sql.Tx, c domain.Candidate, actorID string) (domain.OnboardingForm, error) {
	f, err := e.Repo.GetFormByCandidate(ctx, tx, c.TenantID, c.ID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return f, err
	}
	now := e.ts()
	f = domain.OnboardingForm{
		ID:          uuid.New().String(),
		TenantID:    c.TenantID,
		CandidateID: c.ID,
		Checklist:   e.Config.Checklist(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertForm(ctx, tx, f); err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := e.emit(ctx, tx, events.FormCreated, c.TenantID, "form", f.ID, actorID, events.EventPayload{"candidate_id": c.ID}); err != nil {
		return domain.OnboardingForm{}, err
	}
	return f, nil
}

// GetOrCreateForm returns the candidate's form, creating it if absent.
func (e Engine) GetOrCreateForm(ctx context.Context, actor domain.Actor, candidateID string) (domain.OnboardingForm, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := auth.Require(actor, auth.PermFormRead); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	f, err := e.formTx(ctx, tx, c, actor.UserID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	return f, tx.Commit()
}

func (e Engine) GetForm(ctx context.Context, actor domain.Actor, candidateID string) (domain.OnboardingForm, error) {
	if err := auth.Require(actor, auth.PermFormRead); err != nil {
		return domain.OnboardingForm{}, err
	}
	return e.Repo.GetFormByCandidate(ctx, nil, actor.TenantID, candidateID)
}

// PublicForm is what the unauthenticated onboarding page renders.
type PublicForm struct {
	CandidateID    string                `json:"candidate_id"`
	CandidateName  string                `json:"candidate_name"`
	EmploymentType string                `json:"employment_type"`
	Position       string                `json:"position,omitempty"`
	ExpiresAt      string                `json:"expires_at" format:"date-time"`
	Form           domain.OnboardingForm `json:"form"`
	Documents      []domain.Document     `json:"documents"`
}

// FormByToken resolves the token and then reads the form.
func (e Engine) FormByToken(ctx context.Context, token string) (PublicForm, error) {
	if err := e.ready(); err != nil {
		return PublicForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PublicForm{}, err
	}
	defer tx.Rollback()
	link, c, err := e.resolve(ctx, tx, token)
	if err != nil {
		return PublicForm{}, e.linkFailure(ctx, "form_by_token", err)
	}
	f, err := e.formTx(ctx, tx, c, auth.CandidateActor(c.ID))
	if err != nil {
		return PublicForm{}, err
	}
	docs, err := e.Repo.ListDocuments(ctx, tx, c.TenantID, c.ID)
	if err != nil {
		return PublicForm{}, err
	}
	if err := tx.Commit(); err != nil {
		return PublicForm{}, err
	}
	return PublicForm{
		CandidateID:    c.ID,
		CandidateName:  c.FullName,
		EmploymentType: c.EmploymentType,
		Position:       c.Position,
		ExpiresAt:      link.ExpiresAt,
		Form:           f,
		Documents:      docs,
	}, nil
}

// PatchForm is the recruiter-side edit. Last write wins per field.
func (e Engine) PatchForm(ctx context.Context, actor domain.Actor, candidateID string, patch domain.FormPatch) (domain.OnboardingForm, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := auth.Require(actor, auth.PermFormReview); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	f, err := e.patchTx(ctx, tx, c, patch, actor.UserID, "recruiter")
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	return f, tx.Commit()
}

// PatchByToken is the candidate's progressive save from the public page.
func (e Engine) PatchByToken(ctx context.Context, token string, patch domain.FormPatch) (domain.OnboardingForm, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()
	_, c, err := e.resolve(ctx, tx, token)
	if err != nil {
		return domain.OnboardingForm{}, e.linkFailure(ctx, "patch", err)
	}
	f, err := e.patchTx(ctx, tx, c, patch, auth.CandidateActor(c.ID), "candidate")
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	return f, tx.Commit()
}

func (e Engine) patchTx(ctx context.Context, tx *sql.Tx, c domain.Candidate, patch domain.FormPatch, actorID, source string) (domain.OnboardingForm, error) {
	if err := patch.Validate(); err != nil {
		return domain.OnboardingForm{}, err
	}
	f, err := e.formTx(ctx, tx, c, actorID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if f.Locked() {
		return domain.OnboardingForm{}, domain.ErrFormLocked
	}
	if len(patch) == 0 {
		return f, nil
	}
	n, err := e.Repo.PatchForm(ctx, tx, c.TenantID, c.ID, patch, e.ts())
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if n == 0 {
		return domain.OnboardingForm{}, domain.ErrFormLocked
	}
	if err := e.emit(ctx, tx, events.FormPatched, c.TenantID, "form", f.ID, actorID, events.EventPayload{
		"fields": patch.Fields(),
		"source": source,
	}); err != nil {
		return domain.OnboardingForm{}, err
	}
	return e.Repo.GetFormByCandidate(ctx, tx, c.TenantID, c.ID)
}

// SubmitInput is the candidate's final submission.
type SubmitInput struct {
	Fields    domain.FormPatch
	Checklist domain.Checklist
}

// Submit validates everything first and only then writes, so a rejected submission
// leaves the form, the link and the candidate status untouched. On success the link is
// consumed and the candidate moves to onboarding_completed.
func (e Engine) Submit(ctx context.Context, token string, in SubmitInput) (domain.OnboardingForm, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()

	token = strings.TrimSpace(token)
	link, c, err := e.resolve(ctx, tx, token)
	if err != nil {
		return domain.OnboardingForm{}, e.linkFailure(ctx, "submit", err)
	}
	if err := domain.CheckTransition(c.Status, domain.StatusOnboardingCompleted, domain.TriggerSubmission); err != nil {
		return domain.OnboardingForm{}, err
	}
	actorID := auth.CandidateActor(c.ID)
	f, err := e.formTx(ctx, tx, c, actorID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if f.Locked() {
		return domain.OnboardingForm{}, domain.ErrFormLocked
	}
	if err := in.Fields.Validate(); err != nil {
		return domain.OnboardingForm{}, err
	}
	merged := declaration.Apply(e.Config.Checklist(), in.Checklist)
	if err := declaration.Validate(merged); err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := e.requireDocuments(ctx, tx, c); err != nil {
		return domain.OnboardingForm{}, err
	}

	now := e.ts()
	if len(in.Fields) > 0 {
		if n, err := e.Repo.PatchForm(ctx, tx, c.TenantID, c.ID, in.Fields, now); err != nil {
			return domain.OnboardingForm{}, err
		} else if n == 0 {
			return domain.OnboardingForm{}, domain.ErrFormLocked
		}
	}
	ok, err := e.Repo.SaveSubmission(ctx, tx, c.TenantID, c.ID, merged, now)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if !ok {
		return domain.OnboardingForm{}, domain.ErrFormLocked
	}
	marked, err := e.consumeLink(ctx, tx, link, repo.HashToken(token), now)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if !marked {
		return domain.OnboardingForm{}, e.linkFailure(ctx, "submit", domain.ErrLinkAlreadyUsed)
	}
	if err := e.emit(ctx, tx, events.FormSubmitted, c.TenantID, "form", f.ID, actorID, events.EventPayload{
		"stage":  "candidate",
		"fields": in.Fields.Fields(),
	}); err != nil {
		return domain.OnboardingForm{}, err
	}
	rec, err := e.transitionTx(ctx, tx, c, domain.StatusOnboardingCompleted, domain.TriggerSubmission, actorID, "")
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	out, err := e.Repo.GetFormByCandidate(ctx, tx, c.TenantID, c.ID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OnboardingForm{}, err
	}
	e.afterTransition(ctx, rec)
	return out, nil
}

func (e Engine) requireDocuments(ctx context.Context, q repo.Querier, c domain.Candidate) error {
	have, err := e.Repo.UsableDocumentKinds(ctx, q, c.TenantID, c.ID)
	if err != nil {
		return err
	}
	var missing []domain.DocumentKind
	for _, k := range e.Config.RequiredDocuments() {
		if !have[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &domain.MissingDocumentsError{Kinds: missing}
	}
	return nil
}

// ReviewForm lets the recruiter correct fields and confirm the data after candidate submission.
func (e Engine) ReviewForm(ctx context.Context, actor domain.Actor, candidateID string, patch domain.FormPatch) (domain.OnboardingForm, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingForm{}, err
	}
	if err := auth.Require(actor, auth.PermFormReview); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if c.Status != domain.StatusOnboardingCompleted {
		return domain.OnboardingForm{}, &domain.FormNotReadyError{Missing: []string{"candidate status onboarding_completed"}}
	}
	f, err := e.patchTx(ctx, tx, c, patch, actor.UserID, "review")
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if f.SubmittedAt == nil {
		return domain.OnboardingForm{}, &domain.FormNotReadyError{Missing: []string{"submitted_at"}}
	}
	ok, err := e.Repo.MarkReviewed(ctx, tx, c.TenantID, f.ID, e.ts())
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if !ok {
		return domain.OnboardingForm{}, domain.ErrFormLocked
	}
	if err := e.emit(ctx, tx, events.FormReviewed, c.TenantID, "form", f.ID, actor.UserID, events.EventPayload{"fields": patch.Fields()}); err != nil {
		return domain.OnboardingForm{}, err
	}
	out, err := e.Repo.GetForm(ctx, tx, c.TenantID, f.ID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	return out, tx.Commit()
}

// ReopenForm undoes the lock left by an HRD rejection. The rejection itself stays in the
// decision history.
func (e Engine) ReopenForm(ctx context.Context, actor domain.Actor, candidateID string) (domain.OnboardingForm, error) {
	if err := auth.Require(actor, auth.PermFormReopen); err != nil {
		return domain.OnboardingForm{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	defer tx.Rollback()
	f, err := e.Repo.GetFormByCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if f.HRDApprovedAt != nil {
		return domain.OnboardingForm{}, &domain.AlreadyDecidedError{FormID: f.ID, Decision: domain.DecisionApproved}
	}
	ok, err := e.Repo.Reopen(ctx, tx, actor.TenantID, f.ID, e.ts())
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	if !ok {
		return domain.OnboardingForm{}, &domain.FormNotReadyError{Missing: []string{"hrd rejection"}}
	}
	if err := e.emit(ctx, tx, events.FormReopened, actor.TenantID, "form", f.ID, actor.UserID, nil); err != nil {
		return domain.OnboardingForm{}, err
	}
	out, err := e.Repo.GetForm(ctx, tx, actor.TenantID, f.ID)
	if err != nil {
		return domain.OnboardingForm{}, err
	}
	return out, tx.Commit()
}

// LinkSummary describes the newest link without exposing any token.
type LinkSummary struct {
	ID        string           `json:"id"`
	State     domain.LinkState `json:"state"`
	ExpiresAt string           `json:"expires_at" format:"date-time"`
	UsedAt    *string          `json:"used_at,omitempty" format:"date-time"`
	CreatedAt string           `json:"created_at" format:"date-time"`
}

// OnboardingStatus is the recruiter-facing read model of an onboarding.
type OnboardingStatus struct {
	Candidate    domain.Candidate       `json:"candidate"`
	LinkState    domain.LinkState       `json:"link_state"`
	Link         *LinkSummary           `json:"link,omitempty"`
	Form         *domain.OnboardingForm `json:"form,omitempty"`
	Documents    []domain.Document      `json:"documents"`
	LastDecision *domain.HRDDecision    `json:"last_decision,omitempty"`
}

func (e Engine) OnboardingStatus(ctx context.Context, actor domain.Actor, candidateID string) (OnboardingStatus, error) {
	if err := auth.Require(actor, auth.PermFormRead); err != nil {
		return OnboardingStatus{}, err
	}
	c, err := e.Repo.GetCandidate(ctx, nil, actor.TenantID, candidateID)
	if err != nil {
		return OnboardingStatus{}, err
	}
	st := OnboardingStatus{Candidate: c, LinkState: domain.LinkNone, Documents: []domain.Document{}}
	link, err := e.Repo.LatestLink(ctx, nil, c.TenantID, c.ID)
	switch {
	case err == nil:
		st.LinkState = link.State(e.now())
		st.Link = &LinkSummary{ID: link.ID, State: st.LinkState, ExpiresAt: link.ExpiresAt, UsedAt: link.UsedAt, CreatedAt: link.CreatedAt}
	case !errors.Is(err, repo.ErrNotFound):
		return OnboardingStatus{}, err
	}
	f, err := e.Repo.GetFormByCandidate(ctx, nil, c.TenantID, c.ID)
	switch {
	case err == nil:
		st.Form = &f
		d, err := e.Repo.LatestHRDDecision(ctx, nil, c.TenantID, f.ID)
		if err == nil {
			st.LastDecision = &d
		} else if !errors.Is(err, repo.ErrNotFound) {
			return OnboardingStatus{}, err
		}
	case !errors.Is(err, repo.ErrNotFound):
		return OnboardingStatus{}, err
	}
	docs, err := e.Repo.ListDocuments(ctx, nil, c.TenantID, c.ID)
	if err != nil {
		return OnboardingStatus{}, err
	}
	if docs != nil {
		st.Documents = docs
	}
	return st, nil
}
