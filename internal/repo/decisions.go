package repo

import (
	"context"
	"database/sql"
	"errors"

	"hireline/internal/domain"
)

func (r Repo) InsertHRDDecision(ctx context.Context, q Querier, d domain.HRDDecision) error {
	_, err := r.on(q).ExecContext(ctx, `INSERT INTO hrd_decisions(id,tenant_id,form_id,candidate_id,decision,comment,actor_id,decided_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.TenantID, d.FormID, d.CandidateID, d.Decision, nullable(d.Comment), d.ActorID, d.DecidedAt)
	return wrap("insert hrd decision", err)
}

func (r Repo) ListHRDDecisions(ctx context.Context, q Querier, tenantID, formID string) ([]domain.HRDDecision, error) {
	rows, err := r.on(q).QueryContext(ctx, `SELECT id,tenant_id,form_id,candidate_id,decision,COALESCE(comment,''),actor_id,decided_at
FROM hrd_decisions WHERE tenant_id=? AND form_id=? ORDER BY decided_at ASC, rowid ASC`, tenantID, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HRDDecision
	for rows.Next() {
		var d domain.HRDDecision
		if err := rows.Scan(&d.ID, &d.TenantID, &d.FormID, &d.CandidateID, &d.Decision, &d.Comment, &d.ActorID, &d.DecidedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) LatestHRDDecision(ctx context.Context, q Querier, tenantID, formID string) (domain.HRDDecision, error) {
	var d domain.HRDDecision
	err := r.on(q).QueryRowContext(ctx, `SELECT id,tenant_id,form_id,candidate_id,decision,COALESCE(comment,''),actor_id,decided_at
FROM hrd_decisions WHERE tenant_id=? AND form_id=? ORDER BY decided_at DESC, rowid DESC LIMIT 1`, tenantID, formID).
		Scan(&d.ID, &d.TenantID, &d.FormID, &d.CandidateID, &d.Decision, &d.Comment, &d.ActorID, &d.DecidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}
