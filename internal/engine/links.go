package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
	"hireline/internal/repo"
)

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueLink mints a fresh link for a candidate in onboarding. Older links are not revoked;
// the read model surfaces only the newest one.
func (e Engine) IssueLink(ctx context.Context, actor domain.Actor, candidateID string, ttl time.Duration) (domain.OnboardingLink, error) {
	if err := e.ready(); err != nil {
		return domain.OnboardingLink{}, err
	}
	if err := auth.Require(actor, auth.PermLinkIssue); err != nil {
		return domain.OnboardingLink{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OnboardingLink{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCandidate(ctx, tx, actor.TenantID, candidateID)
	if err != nil {
		return domain.OnboardingLink{}, err
	}
	if c.Status != domain.StatusOnboarding {
		return domain.OnboardingLink{}, &domain.InvalidTransitionError{From: c.Status, To: domain.StatusOnboarding, Reason: "links are issued only during onboarding"}
	}
	if _, err := e.formTx(ctx, tx, c, actor.UserID); err != nil {
		return domain.OnboardingLink{}, err
	}
	link, err := e.issueLinkTx(ctx, tx, c, e.linkTTL(ttl), actor.UserID)
	if err != nil {
		return domain.OnboardingLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OnboardingLink{}, err
	}
	return link, nil
}

func (e Engine) issueLinkTx(ctx context.Context, tx *sql.Tx, c domain.Candidate, ttl time.Duration, actorID string) (domain.OnboardingLink, error) {
	if ttl <= 0 {
		return domain.OnboardingLink{}, &domain.ValidationError{Field: "ttl", Message: "must be positive"}
	}
	token, err := newToken()
	if err != nil {
		return domain.OnboardingLink{}, err
	}
	now := e.now().UTC()
	link := domain.OnboardingLink{
		ID:          uuid.New().String(),
		TenantID:    c.TenantID,
		CandidateID: c.ID,
		ExpiresAt:   now.Add(ttl).Format(time.RFC3339),
		CreatedBy:   actorID,
		CreatedAt:   now.Format(time.RFC3339),
	}
	if err := e.Repo.InsertLink(ctx, tx, link, repo.HashToken(token)); err != nil {
		return domain.OnboardingLink{}, err
	}
	if err := e.emit(ctx, tx, events.LinkIssued, c.TenantID, "link", link.ID, actorID, events.EventPayload{
		"candidate_id": c.ID,
		"expires_at":   link.ExpiresAt,
	}); err != nil {
		return domain.OnboardingLink{}, err
	}
	link.Token = token
	link.URL = e.publicURL(token)
	return link, nil
}

func (e Engine) publicURL(token string) string {
	base := strings.TrimRight(e.Config.Onboarding.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/" + token
}

// Resolve returns the candidate bound to a usable token.
func (e Engine) Resolve(ctx context.Context, token string) (domain.Candidate, error) {
	_, c, err := e.resolve(ctx, nil, token)
	if err != nil {
		return domain.Candidate{}, e.linkFailure(ctx, "resolve", err)
	}
	return c, nil
}

// resolve checks, in order: known token, not used, not expired.
func (e Engine) resolve(ctx context.Context, q repo.Querier, token string) (domain.OnboardingLink, domain.Candidate, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.OnboardingLink{}, domain.Candidate{}, domain.ErrLinkNotFound
	}
	link, err := e.Repo.GetLinkByHash(ctx, q, repo.HashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return link, domain.Candidate{}, domain.ErrLinkNotFound
	}
	if err != nil {
		return link, domain.Candidate{}, err
	}
	switch link.State(e.now()) {
	case domain.LinkUsed:
		return link, domain.Candidate{}, domain.ErrLinkAlreadyUsed
	case domain.LinkExpired:
		return link, domain.Candidate{}, domain.ErrLinkExpired
	}
	c, err := e.Repo.GetCandidate(ctx, q, link.TenantID, link.CandidateID)
	if err != nil {
		return link, c, err
	}
	return link, c, nil
}

// MarkUsed consumes a token. Repeating it is a no-op.
func (e Engine) MarkUsed(ctx context.Context, token string) error {
	hash := repo.HashToken(strings.TrimSpace(token))
	link, err := e.Repo.GetLinkByHash(ctx, nil, hash)
	if errors.Is(err, repo.ErrNotFound) {
		return e.linkFailure(ctx, "mark_used", domain.ErrLinkNotFound)
	}
	if err != nil {
		return err
	}
	if link.UsedAt != nil {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.consumeLink(ctx, tx, link, hash, e.ts()); err != nil {
		return err
	}
	return tx.Commit()
}

// consumeLink sets used_at only if it is still unset. false means another writer got there first.
func (e Engine) consumeLink(ctx context.Context, tx *sql.Tx, link domain.OnboardingLink, hash, at string) (bool, error) {
	marked, err := e.Repo.MarkLinkUsed(ctx, tx, hash, at)
	if err != nil || !marked {
		return false, err
	}
	if err := e.emit(ctx, tx, events.LinkUsed, link.TenantID, "link", link.ID, auth.CandidateActor(link.CandidateID), nil); err != nil {
		return false, err
	}
	return true, nil
}

// linkFailure logs the precise kind internally and passes the error through.
func (e Engine) linkFailure(ctx context.Context, op string, err error) error {
	if domain.IsLinkError(err) {
		kind := domain.Kind(err)
		e.Metrics.LinkFailure(kind)
		e.log().InfoContext(ctx, "onboarding link rejected", "op", op, "kind", kind)
	}
	return err
}
