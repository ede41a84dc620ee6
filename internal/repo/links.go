package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"hireline/internal/domain"
)

// HashToken is the only form in which onboarding tokens are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const linkColumns = `id,tenant_id,candidate_id,expires_at,used_at,created_by,created_at`

func scanLink(row rowScanner) (domain.OnboardingLink, error) {
	var l domain.OnboardingLink
	var usedAt sql.NullString
	err := row.Scan(&l.ID, &l.TenantID, &l.CandidateID, &l.ExpiresAt, &usedAt, &l.CreatedBy, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	l.UsedAt = ptr(usedAt)
	return l, err
}

func (r Repo) InsertLink(ctx context.Context, q Querier, l domain.OnboardingLink, tokenHash string) error {
	_, err := r.on(q).ExecContext(ctx, `INSERT INTO onboarding_links(id,tenant_id,candidate_id,token_hash,expires_at,used_at,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.TenantID, l.CandidateID, tokenHash, l.ExpiresAt, nullableStringPtr(l.UsedAt), l.CreatedBy, l.CreatedAt)
	return wrap("insert link", err)
}

func (r Repo) GetLinkByHash(ctx context.Context, q Querier, tokenHash string) (domain.OnboardingLink, error) {
	return scanLink(r.on(q).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM onboarding_links WHERE token_hash=?`, tokenHash))
}

// LatestLink returns the most recently issued link for a candidate.
func (r Repo) LatestLink(ctx context.Context, q Querier, tenantID, candidateID string) (domain.OnboardingLink, error) {
	return scanLink(r.on(q).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM onboarding_links
WHERE tenant_id=? AND candidate_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, tenantID, candidateID))
}

// MarkLinkUsed sets used_at once. It reports whether this call was the one that set it.
func (r Repo) MarkLinkUsed(ctx context.Context, q Querier, tokenHash, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_links SET used_at=? WHERE token_hash=? AND used_at IS NULL`, now, tokenHash)
	if err != nil {
		return false, wrap("mark link used", err)
	}
	n, err := affected(res)
	return n == 1, err
}
