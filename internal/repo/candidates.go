package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"hireline/internal/domain"
)

const candidateColumns = `id,tenant_id,full_name,COALESCE(email,''),COALESCE(phone,''),employment_type,COALESCE(position,''),status,created_by,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (domain.Candidate, error) {
	var c domain.Candidate
	err := row.Scan(&c.ID, &c.TenantID, &c.FullName, &c.Email, &c.Phone, &c.EmploymentType, &c.Position, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertCandidate(ctx context.Context, q Querier, c domain.Candidate) error {
	_, err := r.on(q).ExecContext(ctx, `INSERT INTO candidates(id,tenant_id,full_name,email,phone,employment_type,position,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, c.FullName, nullable(c.Email), nullable(c.Phone), c.EmploymentType, nullable(c.Position), c.Status, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return wrap("insert candidate", err)
}

func (r Repo) GetCandidate(ctx context.Context, q Querier, tenantID, id string) (domain.Candidate, error) {
	return scanCandidate(r.on(q).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE tenant_id=? AND id=?`, tenantID, id))
}

type CandidateFilters struct {
	TenantID        string
	Status          domain.Status
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListCandidates pages newest first.
func (r Repo) ListCandidates(ctx context.Context, q Querier, f CandidateFilters) ([]domain.Candidate, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.on(q).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CompareAndSetStatus moves a candidate from one status to another only if it is still at from.
func (r Repo) CompareAndSetStatus(ctx context.Context, q Querier, tenantID, id string, from, to domain.Status, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE candidates SET status=?, updated_at=? WHERE tenant_id=? AND id=? AND status=?`,
		to, now, tenantID, id, from)
	if err != nil {
		return false, wrap("update candidate status", err)
	}
	n, err := affected(res)
	return n == 1, err
}

func (r Repo) InsertTransition(ctx context.Context, q Querier, t domain.TransitionRecord) (int64, error) {
	res, err := r.on(q).ExecContext(ctx, `INSERT INTO candidate_transitions(tenant_id,candidate_id,from_status,to_status,trigger,actor_id,reason,ts) VALUES (?,?,?,?,?,?,?,?)`,
		t.TenantID, t.CandidateID, t.From, t.To, t.Trigger, t.ActorID, nullable(t.Reason), t.TS)
	if err != nil {
		return 0, wrap("insert transition", err)
	}
	return res.LastInsertId()
}

func (r Repo) ListTransitions(ctx context.Context, q Querier, tenantID, candidateID string) ([]domain.TransitionRecord, error) {
	rows, err := r.on(q).QueryContext(ctx, `SELECT id,tenant_id,candidate_id,from_status,to_status,trigger,actor_id,COALESCE(reason,''),ts
FROM candidate_transitions WHERE tenant_id=? AND candidate_id=? ORDER BY id ASC`, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransitionRecord
	for rows.Next() {
		var t domain.TransitionRecord
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CandidateID, &t.From, &t.To, &t.Trigger, &t.ActorID, &t.Reason, &t.TS); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
