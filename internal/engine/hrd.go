package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
	"hireline/internal/notify"
	"hireline/internal/repo"
)

// PendingForm is one entry of the HRD queue.
type PendingForm struct {
	Form      domain.OnboardingForm `json:"form"`
	Candidate domain.Candidate      `json:"candidate"`
}

// ListPending returns forms submitted for HRD and not yet decided, oldest first.
func (e Engine) ListPending(ctx context.Context, actor domain.Actor) ([]PendingForm, error) {
	if err := auth.Require(actor, auth.PermHRDRead); err != nil {
		return nil, err
	}
	forms, err := e.Repo.ListPendingForms(ctx, nil, actor.TenantID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingForm, 0, len(forms))
	for _, f := range forms {
		c, err := e.Repo.GetCandidate(ctx, nil, actor.TenantID, f.CandidateID)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingForm{Form: f, Candidate: c})
	}
	return out, nil
}

// Approve decides a pending form, hires the candidate and asks the contract collaborator
// for a draft. The decision stands even if that request fails.
func (e Engine) Approve(ctx context.Context, actor domain.Actor, formID string) (domain.ContractDraftRequest, error) {
	if err := e.ready(); err != nil {
		return domain.ContractDraftRequest{}, err
	}
	if err := auth.Require(actor, auth.PermHRDDecide); err != nil {
		return domain.ContractDraftRequest{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	defer tx.Rollback()

	now := e.ts()
	ok, err := e.Repo.DecideApprove(ctx, tx, actor.TenantID, formID, now)
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	if !ok {
		return domain.ContractDraftRequest{}, e.decisionConflict(ctx, tx, actor.TenantID, formID)
	}
	f, err := e.Repo.GetForm(ctx, tx, actor.TenantID, formID)
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, f.CandidateID)
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	rec, err := e.transitionTx(ctx, tx, c, domain.StatusHired, domain.TriggerHRD, actor.UserID, "")
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	d, err := e.recordDecision(ctx, tx, f, domain.DecisionApproved, "", actor.UserID, now)
	if err != nil {
		return domain.ContractDraftRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ContractDraftRequest{}, err
	}

	req := domain.ContractDraftRequest{
		TenantID:    c.TenantID,
		CandidateID: c.ID,
		FormID:      f.ID,
		EmploymentTerms: domain.EmploymentTerms{
			EmploymentType: c.EmploymentType,
			Position:       c.Position,
			CandidateName:  firstNonEmpty(f.FullName, c.FullName),
			IDNumber:       f.IDNumber,
		},
		RequestedBy: actor.UserID,
		RequestedAt: now,
	}
	e.afterDecision(ctx, d)
	e.afterTransition(ctx, rec)
	if e.Contracts != nil {
		e.bestEffort(ctx, "contract", func(ctx context.Context) error { return e.Contracts.RequestContract(ctx, req) })
	}
	return req, nil
}

// Reject sends a pending form back to the recruiter. The comment is mandatory and the
// form stays locked until reopened.
func (e Engine) Reject(ctx context.Context, actor domain.Actor, formID, comment string) (domain.HRDDecision, error) {
	if err := e.ready(); err != nil {
		return domain.HRDDecision{}, err
	}
	if err := auth.Require(actor, auth.PermHRDDecide); err != nil {
		return domain.HRDDecision{}, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return domain.HRDDecision{}, domain.ErrCommentRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	defer tx.Rollback()

	now := e.ts()
	ok, err := e.Repo.DecideReject(ctx, tx, actor.TenantID, formID, comment, now)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	if !ok {
		return domain.HRDDecision{}, e.decisionConflict(ctx, tx, actor.TenantID, formID)
	}
	f, err := e.Repo.GetForm(ctx, tx, actor.TenantID, formID)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, f.CandidateID)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	rec, err := e.transitionTx(ctx, tx, c, domain.StatusOnboardingCompleted, domain.TriggerHRD, actor.UserID, comment)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	d, err := e.recordDecision(ctx, tx, f, domain.DecisionRejected, comment, actor.UserID, now)
	if err != nil {
		return domain.HRDDecision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HRDDecision{}, err
	}
	e.afterDecision(ctx, d)
	e.afterTransition(ctx, rec)
	return d, nil
}

// Decisions returns the decision history of a form, oldest first.
func (e Engine) Decisions(ctx context.Context, actor domain.Actor, formID string) ([]domain.HRDDecision, error) {
	if err := auth.Require(actor, auth.PermHRDRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetForm(ctx, nil, actor.TenantID, formID); err != nil {
		return nil, err
	}
	return e.Repo.ListHRDDecisions(ctx, nil, actor.TenantID, formID)
}

func (e Engine) recordDecision(ctx context.Context, tx *sql.Tx, f domain.OnboardingForm, decision domain.Decision, comment, actorID, now string) (domain.HRDDecision, error) {
	d := domain.HRDDecision{
		ID:          uuid.New().String(),
		TenantID:    f.TenantID,
		FormID:      f.ID,
		CandidateID: f.CandidateID,
		Decision:    decision,
		Comment:     comment,
		ActorID:     actorID,
		DecidedAt:   now,
	}
	if err := e.Repo.InsertHRDDecision(ctx, tx, d); err != nil {
		return domain.HRDDecision{}, err
	}
	evt := events.HRDApproved
	if decision == domain.DecisionRejected {
		evt = events.HRDRejected
	}
	if err := e.emit(ctx, tx, evt, f.TenantID, "form", f.ID, actorID, events.EventPayload{
		"decision_id":  d.ID,
		"candidate_id": f.CandidateID,
		"comment":      comment,
	}); err != nil {
		return domain.HRDDecision{}, err
	}
	return d, nil
}

// decisionConflict explains why the conditional decision write matched no row.
func (e Engine) decisionConflict(ctx context.Context, q repo.Querier, tenantID, formID string) error {
	f, err := e.Repo.GetForm(ctx, q, tenantID, formID)
	if err != nil {
		return err
	}
	switch {
	case f.HRDApprovedAt != nil:
		return &domain.AlreadyDecidedError{FormID: f.ID, Decision: domain.DecisionApproved}
	case f.HRDRejectedAt != nil:
		return &domain.AlreadyDecidedError{FormID: f.ID, Decision: domain.DecisionRejected}
	default:
		return &domain.FormNotReadyError{Missing: []string{"submitted_for_hrd_at"}}
	}
}

func (e Engine) afterDecision(ctx context.Context, d domain.HRDDecision) {
	e.Metrics.HRDDecision(string(d.Decision))
	e.log().InfoContext(ctx, "hrd decision recorded",
		"tenant_id", d.TenantID, "form_id", d.FormID, "candidate_id", d.CandidateID,
		"decision", d.Decision, "actor_id", d.ActorID)
	e.notify(ctx, notify.Notification{
		Type:        notify.TypeHRDDecision,
		TenantID:    d.TenantID,
		CandidateID: d.CandidateID,
		ActorID:     d.ActorID,
		TS:          d.DecidedAt,
		Data:        map[string]any{"form_id": d.FormID, "decision": d.Decision, "comment": d.Comment},
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
