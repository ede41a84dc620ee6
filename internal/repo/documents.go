package repo

import (
	"context"
	"database/sql"
	"errors"

	"hireline/internal/domain"
)

func (r Repo) InsertDocument(ctx context.Context, q Querier, d domain.Document) error {
	var conf any
	if d.Confidence != nil {
		conf = *d.Confidence
	}
	_, err := r.on(q).ExecContext(ctx, `INSERT INTO documents(id,tenant_id,candidate_id,kind,file_ref,filename,mime,size,outcome,confidence,extracted_json,uploaded_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.TenantID, d.CandidateID, d.Kind, d.FileRef, nullable(d.Filename), d.MIME, d.Size, d.Outcome, conf, nullableStringPtr(d.ExtractedJSON), d.UploadedAt)
	return wrap("insert document", err)
}

const documentColumns = `id,tenant_id,candidate_id,kind,file_ref,COALESCE(filename,''),mime,size,outcome,confidence,extracted_json,uploaded_at`

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		d         domain.Document
		conf      sql.NullFloat64
		extracted sql.NullString
	)
	err := row.Scan(&d.ID, &d.TenantID, &d.CandidateID, &d.Kind, &d.FileRef, &d.Filename, &d.MIME, &d.Size, &d.Outcome, &conf, &extracted, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if conf.Valid {
		v := conf.Float64
		d.Confidence = &v
	}
	d.ExtractedJSON = ptr(extracted)
	return d, err
}

func (r Repo) GetDocument(ctx context.Context, q Querier, tenantID, candidateID, id string) (domain.Document, error) {
	return scanDocument(r.on(q).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE tenant_id=? AND candidate_id=? AND id=?`, tenantID, candidateID, id))
}

func (r Repo) ListDocuments(ctx context.Context, q Querier, tenantID, candidateID string) ([]domain.Document, error) {
	rows, err := r.on(q).QueryContext(ctx, `SELECT `+documentColumns+`
FROM documents WHERE tenant_id=? AND candidate_id=? ORDER BY uploaded_at ASC, rowid ASC`, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// UsableDocumentKinds lists kinds with at least one upload that satisfies the mandatory
// document rule. A low-confidence KTP does not count.
func (r Repo) UsableDocumentKinds(ctx context.Context, q Querier, tenantID, candidateID string) (map[domain.DocumentKind]bool, error) {
	rows, err := r.on(q).QueryContext(ctx, `SELECT DISTINCT kind FROM documents WHERE tenant_id=? AND candidate_id=? AND outcome<>?`,
		tenantID, candidateID, domain.OutcomeLowConfidence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.DocumentKind]bool{}
	for rows.Next() {
		var k domain.DocumentKind
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		res[k] = true
	}
	return res, rows.Err()
}
