package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
	"hireline/internal/notify"
	"hireline/internal/repo"
)

// TransitionResult carries the updated candidate and, on entry to onboarding, the issued link.
type TransitionResult struct {
	Candidate domain.Candidate       `json:"candidate"`
	Link      *domain.OnboardingLink `json:"link,omitempty"`
}

// Transition applies a recruiter-driven status change. Only manual edges of the table are
// accepted here; submission and HRD edges have their own operations.
func (e Engine) Transition(ctx context.Context, actor domain.Actor, candidateID string, to domain.Status, reason string) (TransitionResult, error) {
	if err := e.ready(); err != nil {
		return TransitionResult{}, err
	}
	if err := auth.Require(actor, auth.PermCandidateTransition); err != nil {
		return TransitionResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TransitionResult{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := domain.CheckTransition(c.Status, to, domain.TriggerManual); err != nil {
		return TransitionResult{}, err
	}
	var res TransitionResult
	switch to {
	case domain.StatusOnboarding:
		if _, err := e.formTx(ctx, tx, c, actor.UserID); err != nil {
			return TransitionResult{}, err
		}
		link, err := e.issueLinkTx(ctx, tx, c, e.Config.Onboarding.LinkTTL, actor.UserID)
		if err != nil {
			return TransitionResult{}, err
		}
		res.Link = &link
	case domain.StatusContractRequested:
		if err := e.submitForHRDTx(ctx, tx, c, actor.UserID); err != nil {
			return TransitionResult{}, err
		}
	}
	rec, err := e.transitionTx(ctx, tx, c, to, domain.TriggerManual, actor.UserID, reason)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return TransitionResult{}, err
	}
	c.Status, c.UpdatedAt = to, rec.TS
	res.Candidate = c
	e.afterTransition(ctx, rec)
	return res, nil
}

// SubmitForHRD moves a reviewed onboarding to contract_requested.
func (e Engine) SubmitForHRD(ctx context.Context, actor domain.Actor, candidateID string) (domain.Candidate, error) {
	res, err := e.Transition(ctx, actor, candidateID, domain.StatusContractRequested, "")
	return res.Candidate, err
}

func (e Engine) ListTransitions(ctx context.Context, actor domain.Actor, candidateID string) ([]domain.TransitionRecord, error) {
	if err := auth.Require(actor, auth.PermCandidateRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetCandidate(ctx, nil, actor.TenantID, candidateID); err != nil {
		return nil, err
	}
	return e.Repo.ListTransitions(ctx, nil, actor.TenantID, candidateID)
}

// transitionTx validates against the table, writes the status with compare-and-set and
// appends the audit record. A concurrent writer that moved the candidate first makes this
// fail with the fresh current status.
func (e Engine) transitionTx(ctx context.Context, tx *sql.Tx, c domain.Candidate, to domain.Status, trigger domain.Trigger, actorID, reason string) (domain.TransitionRecord, error) {
	if err := domain.CheckTransition(c.Status, to, trigger); err != nil {
		return domain.TransitionRecord{}, err
	}
	now := e.ts()
	ok, err := e.Repo.CompareAndSetStatus(ctx, tx, c.TenantID, c.ID, c.Status, to, now)
	if err != nil {
		return domain.TransitionRecord{}, err
	}
	if !ok {
		fresh, err := e.Repo.GetCandidate(ctx, tx, c.TenantID, c.ID)
		if err != nil {
			return domain.TransitionRecord{}, err
		}
		return domain.TransitionRecord{}, &domain.InvalidTransitionError{From: fresh.Status, To: to, Reason: "status changed concurrently"}
	}
	rec := domain.TransitionRecord{
		TenantID:    c.TenantID,
		CandidateID: c.ID,
		From:        c.Status,
		To:          to,
		Trigger:     trigger,
		ActorID:     actorID,
		Reason:      strings.TrimSpace(reason),
		TS:          now,
	}
	if rec.ID, err = e.Repo.InsertTransition(ctx, tx, rec); err != nil {
		return domain.TransitionRecord{}, err
	}
	if err := e.emit(ctx, tx, events.CandidateTransition, c.TenantID, "candidate", c.ID, actorID, events.EventPayload{
		"from":    rec.From,
		"to":      rec.To,
		"trigger": rec.Trigger,
		"reason":  rec.Reason,
	}); err != nil {
		return domain.TransitionRecord{}, err
	}
	return rec, nil
}

func (e Engine) afterTransition(ctx context.Context, rec domain.TransitionRecord) {
	e.Metrics.Transition(string(rec.To), string(rec.Trigger))
	e.log().InfoContext(ctx, "candidate transitioned",
		"tenant_id", rec.TenantID, "candidate_id", rec.CandidateID,
		"from", rec.From, "to", rec.To, "trigger", rec.Trigger, "actor_id", rec.ActorID)
	e.notify(ctx, notify.Notification{
		Type:        notify.TypeStageReached,
		TenantID:    rec.TenantID,
		CandidateID: rec.CandidateID,
		Stage:       rec.To,
		ActorID:     rec.ActorID,
		TS:          rec.TS,
		Data:        map[string]any{"from": rec.From, "trigger": rec.Trigger},
	})
}

// submitForHRDTx stamps submitted_for_hrd_at once the candidate submitted and a recruiter reviewed.
func (e Engine) submitForHRDTx(ctx context.Context, tx *sql.Tx, c domain.Candidate, actorID string) error {
	form, err := e.Repo.GetFormByCandidate(ctx, tx, c.TenantID, c.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.FormNotReadyError{Missing: []string{"submitted_at", "data_reviewed_at"}}
	}
	if err != nil {
		return err
	}
	now := e.ts()
	ok, err := e.Repo.MarkSubmittedForHRD(ctx, tx, c.TenantID, form.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return notReadyForHRD(form)
	}
	return e.emit(ctx, tx, events.FormSubmitted, c.TenantID, "form", form.ID, actorID, events.EventPayload{
		"stage":                "hrd",
		"submitted_for_hrd_at": now,
	})
}

func notReadyForHRD(f domain.OnboardingForm) error {
	if f.HRDApprovedAt != nil {
		return &domain.AlreadyDecidedError{FormID: f.ID, Decision: domain.DecisionApproved}
	}
	var missing []string
	if f.SubmittedAt == nil {
		missing = append(missing, "submitted_at")
	}
	if f.DataReviewedAt == nil {
		missing = append(missing, "data_reviewed_at")
	}
	if f.HRDRejectedAt != nil {
		missing = append(missing, "reopen after hrd rejection")
	}
	if len(missing) == 0 {
		missing = append(missing, "unlocked form")
	}
	return &domain.FormNotReadyError{Missing: missing}
}

func (e Engine) linkTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.Config.Onboarding.LinkTTL
}
