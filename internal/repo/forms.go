package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hireline/internal/domain"
)

var formColumns = func() string {
	cols := []string{"id", "tenant_id", "candidate_id"}
	for _, f := range domain.FormFields {
		cols = append(cols, string(f))
	}
	cols = append(cols, "checklist_json", "submitted_at", "data_reviewed_at", "submitted_for_hrd_at",
		"hrd_approved_at", "hrd_rejected_at", "locked_at", "COALESCE(hrd_comment,'')", "created_at", "updated_at")
	return strings.Join(cols, ",")
}()

func scanForm(row rowScanner) (domain.OnboardingForm, error) {
	var (
		f         domain.OnboardingForm
		checklist string
		submitted, reviewed, forHRD, approved, rejected, locked sql.NullString
	)
	values := make([]string, len(domain.FormFields))
	dest := []any{&f.ID, &f.TenantID, &f.CandidateID}
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &checklist, &submitted, &reviewed, &forHRD, &approved, &rejected, &locked, &f.HRDComment, &f.CreatedAt, &f.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, ErrNotFound
		}
		return f, err
	}
	for i, field := range domain.FormFields {
		setFormValue(&f, field, values[i])
	}
	if err := json.Unmarshal([]byte(checklist), &f.Checklist); err != nil {
		return f, fmt.Errorf("decode checklist: %w", err)
	}
	f.SubmittedAt = ptr(submitted)
	f.DataReviewedAt = ptr(reviewed)
	f.SubmittedForHRDAt = ptr(forHRD)
	f.HRDApprovedAt = ptr(approved)
	f.HRDRejectedAt = ptr(rejected)
	f.LockedAt = ptr(locked)
	return f, nil
}

func setFormValue(f *domain.OnboardingForm, field domain.FormField, v string) {
	switch field {
	case domain.FieldIDNumber:
		f.IDNumber = v
	case domain.FieldFullName:
		f.FullName = v
	case domain.FieldAddress:
		f.Address = v
	case domain.FieldDomicile:
		f.Domicile = v
	case domain.FieldBirthPlace:
		f.BirthPlace = v
	case domain.FieldBirthDate:
		f.BirthDate = v
	case domain.FieldGender:
		f.Gender = v
	case domain.FieldReligion:
		f.Religion = v
	case domain.FieldMaritalStatus:
		f.MaritalStatus = v
	case domain.FieldBankName:
		f.BankName = v
	case domain.FieldBankAccountNumber:
		f.BankAccountNumber = v
	case domain.FieldBankAccountHolder:
		f.BankAccountHolder = v
	case domain.FieldNPWP:
		f.NPWP = v
	case domain.FieldEmergencyName:
		f.EmergencyName = v
	case domain.FieldEmergencyRelationship:
		f.EmergencyRelationship = v
	case domain.FieldEmergencyPhone:
		f.EmergencyPhone = v
	case domain.FieldEmergencyAddress:
		f.EmergencyAddress = v
	}
}

func (r Repo) InsertForm(ctx context.Context, q Querier, f domain.OnboardingForm) error {
	checklist, err := json.Marshal(f.Checklist)
	if err != nil {
		return err
	}
	_, err = r.on(q).ExecContext(ctx, `INSERT INTO onboarding_forms(id,tenant_id,candidate_id,checklist_json,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.TenantID, f.CandidateID, string(checklist), f.CreatedAt, f.UpdatedAt)
	return wrap("insert form", err)
}

func (r Repo) GetForm(ctx context.Context, q Querier, tenantID, id string) (domain.OnboardingForm, error) {
	return scanForm(r.on(q).QueryRowContext(ctx, `SELECT `+formColumns+` FROM onboarding_forms WHERE tenant_id=? AND id=?`, tenantID, id))
}

func (r Repo) GetFormByCandidate(ctx context.Context, q Querier, tenantID, candidateID string) (domain.OnboardingForm, error) {
	return scanForm(r.on(q).QueryRowContext(ctx, `SELECT `+formColumns+` FROM onboarding_forms WHERE tenant_id=? AND candidate_id=?`, tenantID, candidateID))
}

// PatchForm applies a whitelisted partial update while the form is unlocked.
// It returns the number of rows changed; zero means missing or locked.
func (r Repo) PatchForm(ctx context.Context, q Querier, tenantID, candidateID string, patch domain.FormPatch, now string) (int64, error) {
	var (
		fields []string
		args   []any
	)
	for _, f := range patch.Fields() {
		fields = append(fields, string(f)+"=?")
		args = append(args, strings.TrimSpace(patch[f]))
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, tenantID, candidateID)
	res, err := r.on(q).ExecContext(ctx, fmt.Sprintf(`UPDATE onboarding_forms SET %s WHERE tenant_id=? AND candidate_id=? AND locked_at IS NULL`, strings.Join(fields, ",")), args...)
	if err != nil {
		return 0, wrap("patch form", err)
	}
	return affected(res)
}

// SaveSubmission stores the merged checklist and stamps submitted_at on an unlocked form.
func (r Repo) SaveSubmission(ctx context.Context, q Querier, tenantID, candidateID string, checklist domain.Checklist, now string) (bool, error) {
	data, err := json.Marshal(checklist)
	if err != nil {
		return false, err
	}
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms SET checklist_json=?, submitted_at=?, updated_at=?
WHERE tenant_id=? AND candidate_id=? AND locked_at IS NULL`, string(data), now, now, tenantID, candidateID)
	if err != nil {
		return false, wrap("save submission", err)
	}
	n, err := affected(res)
	return n == 1, err
}

func (r Repo) MarkReviewed(ctx context.Context, q Querier, tenantID, formID, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms SET data_reviewed_at=?, updated_at=?
WHERE tenant_id=? AND id=? AND submitted_at IS NOT NULL AND locked_at IS NULL`, now, now, tenantID, formID)
	if err != nil {
		return false, wrap("mark reviewed", err)
	}
	n, err := affected(res)
	return n == 1, err
}

// MarkSubmittedForHRD requires a submitted, reviewed and undecided form.
func (r Repo) MarkSubmittedForHRD(ctx context.Context, q Querier, tenantID, formID, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms SET submitted_for_hrd_at=?, updated_at=?
WHERE tenant_id=? AND id=? AND submitted_at IS NOT NULL AND data_reviewed_at IS NOT NULL
  AND hrd_approved_at IS NULL AND hrd_rejected_at IS NULL AND locked_at IS NULL`, now, now, tenantID, formID)
	if err != nil {
		return false, wrap("mark submitted for hrd", err)
	}
	n, err := affected(res)
	return n == 1, err
}

// DecideApprove is the compare-and-set for approval: it only succeeds while the form is
// pending, so concurrent deciders see exactly one winner.
func (r Repo) DecideApprove(ctx context.Context, q Querier, tenantID, formID, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms SET hrd_approved_at=?, locked_at=?, updated_at=?
WHERE tenant_id=? AND id=? AND submitted_for_hrd_at IS NOT NULL AND hrd_approved_at IS NULL AND hrd_rejected_at IS NULL`,
		now, now, now, tenantID, formID)
	if err != nil {
		return false, wrap("approve form", err)
	}
	n, err := affected(res)
	return n == 1, err
}

func (r Repo) DecideReject(ctx context.Context, q Querier, tenantID, formID, comment, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms SET hrd_rejected_at=?, locked_at=?, hrd_comment=?, updated_at=?
WHERE tenant_id=? AND id=? AND submitted_for_hrd_at IS NOT NULL AND hrd_approved_at IS NULL AND hrd_rejected_at IS NULL`,
		now, now, comment, now, tenantID, formID)
	if err != nil {
		return false, wrap("reject form", err)
	}
	n, err := affected(res)
	return n == 1, err
}

// Reopen clears an HRD rejection so the recruiter can correct and resubmit.
func (r Repo) Reopen(ctx context.Context, q Querier, tenantID, formID, now string) (bool, error) {
	res, err := r.on(q).ExecContext(ctx, `UPDATE onboarding_forms
SET hrd_rejected_at=NULL, locked_at=NULL, submitted_for_hrd_at=NULL, data_reviewed_at=NULL, hrd_comment=NULL, updated_at=?
WHERE tenant_id=? AND id=? AND hrd_rejected_at IS NOT NULL`, now, tenantID, formID)
	if err != nil {
		return false, wrap("reopen form", err)
	}
	n, err := affected(res)
	return n == 1, err
}

// ListPendingForms is derived from the milestone timestamps. Forms whose candidate was
// rejected outright while waiting are left out.
func (r Repo) ListPendingForms(ctx context.Context, q Querier, tenantID string) ([]domain.OnboardingForm, error) {
	// The status filter keeps the queue to forms Approve and Reject can still act on; both
	// transition out of contract_requested. Excluded forms stay visible through OnboardingStatus.
	rows, err := r.on(q).QueryContext(ctx, `SELECT `+formColumns+` FROM onboarding_forms
WHERE tenant_id=? AND submitted_for_hrd_at IS NOT NULL AND hrd_approved_at IS NULL AND hrd_rejected_at IS NULL
  AND candidate_id IN (SELECT id FROM candidates WHERE tenant_id=? AND status=?)
ORDER BY submitted_for_hrd_at ASC, id ASC`, tenantID, tenantID, domain.StatusContractRequested)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OnboardingForm
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
