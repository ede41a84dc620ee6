package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
)

// UploadInput is one file posted from the onboarding page.
type UploadInput struct {
	Kind     string
	Filename string
	Data     []byte
}

// UploadResult reports what intake did with the file.
type UploadResult struct {
	Document    domain.Document    `json:"document"`
	Outcome     domain.GateOutcome `json:"outcome"`
	Confidence  *float64           `json:"confidence,omitempty"`
	NeedsReview bool               `json:"needs_review"`
	Prefill     domain.FormPatch   `json:"extracted_data,omitempty"`
}

// UploadDocument validates, stores and, for a KTP, extracts one document.
//
// Type and size are checked before anything is stored. The OCR call runs outside any
// transaction. A low-confidence or unavailable extraction still stores the file but
// never prefills; the result is returned together with the matching error.
func (e Engine) UploadDocument(ctx context.Context, token string, in UploadInput) (UploadResult, error) {
	if err := e.ready(); err != nil {
		return UploadResult{}, err
	}
	if e.Storage == nil {
		return UploadResult{}, errors.New("document storage not configured")
	}
	_, c, err := e.resolve(ctx, nil, token)
	if err != nil {
		return UploadResult{}, e.linkFailure(ctx, "upload", err)
	}
	kind, ok := domain.ParseDocumentKind(in.Kind)
	if !ok {
		return UploadResult{}, &domain.ValidationError{Field: "kind", Message: "must be one of ktp, kk, skck"}
	}
	size := int64(len(in.Data))
	if limit := e.Config.Documents.MaxBytes; limit > 0 && size > limit {
		return UploadResult{}, &domain.FileTooLargeError{Size: size, Limit: limit}
	}
	if size == 0 {
		return UploadResult{}, &domain.ValidationError{Field: "file", Message: "is empty"}
	}
	allowed := e.Config.AllowedMIME(kind)
	mtype := mimetype.Detect(in.Data)
	if !mimeAllowed(mtype, allowed) {
		return UploadResult{}, &domain.UnsupportedFileTypeError{Kind: kind, MIME: mtype.String(), Allowed: allowed}
	}

	docID := uuid.New().String()
	ref := path.Join(c.TenantID, c.ID, string(kind), docID+mtype.Extension())
	if err := e.Storage.Put(ctx, ref, bytes.NewReader(in.Data), mtype.String()); err != nil {
		return UploadResult{}, err
	}

	outcome := domain.OutcomeNotGated
	var (
		conf      *float64
		prefill   domain.FormPatch
		policyErr error
	)
	if kind == domain.DocumentKTP {
		start := time.Now()
		res, err := e.OCR.Process(ctx, in.Data, mtype.String())
		e.Metrics.ObserveExtraction(time.Since(start))
		var low *domain.LowConfidenceError
		var unavailable *domain.ExtractionUnavailableError
		switch {
		case err == nil:
		case errors.As(err, &low), errors.As(err, &unavailable):
			policyErr = err
		default:
			e.discard(ctx, ref)
			return UploadResult{}, err
		}
		outcome, conf, prefill = res.Outcome, res.Confidence, res.Prefill
	}

	doc := domain.Document{
		ID:          docID,
		TenantID:    c.TenantID,
		CandidateID: c.ID,
		Kind:        kind,
		FileRef:     ref,
		Filename:    baseName(in.Filename),
		MIME:        mtype.String(),
		Size:        size,
		Outcome:     outcome,
		Confidence:  conf,
		UploadedAt:  e.ts(),
	}
	if len(prefill) > 0 {
		raw, err := json.Marshal(prefill)
		if err != nil {
			e.discard(ctx, ref)
			return UploadResult{}, err
		}
		s := string(raw)
		doc.ExtractedJSON = &s
	}
	if err := e.recordUpload(ctx, token, doc, prefill); err != nil {
		e.discard(ctx, ref)
		return UploadResult{}, err
	}
	e.Metrics.GateOutcome(string(kind), string(outcome))
	e.log().InfoContext(ctx, "document uploaded",
		"tenant_id", c.TenantID, "candidate_id", c.ID, "kind", kind, "outcome", outcome, "size", size)

	return UploadResult{
		Document:    doc,
		Outcome:     outcome,
		Confidence:  conf,
		NeedsReview: outcome == domain.OutcomeNeedsReview,
		Prefill:     prefill,
	}, policyErr
}

// recordUpload re-validates the token since the OCR call may have been slow.
func (e Engine) recordUpload(ctx context.Context, token string, doc domain.Document, prefill domain.FormPatch) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, c, err := e.resolve(ctx, tx, token)
	if err != nil {
		return e.linkFailure(ctx, "upload", err)
	}
	actorID := auth.CandidateActor(c.ID)
	f, err := e.formTx(ctx, tx, c, actorID)
	if err != nil {
		return err
	}
	if f.Locked() {
		return domain.ErrFormLocked
	}
	if err := e.Repo.InsertDocument(ctx, tx, doc); err != nil {
		return err
	}
	if len(prefill) > 0 {
		if _, err := e.Repo.PatchForm(ctx, tx, c.TenantID, c.ID, prefill, doc.UploadedAt); err != nil {
			return err
		}
	}
	if err := e.emit(ctx, tx, events.DocumentUploaded, c.TenantID, "document", doc.ID, actorID, events.EventPayload{
		"kind":       doc.Kind,
		"outcome":    doc.Outcome,
		"confidence": doc.Confidence,
		"prefilled":  prefill.Fields(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) discard(ctx context.Context, ref string) {
	if err := e.Storage.Delete(context.WithoutCancel(ctx), ref); err != nil {
		e.log().WarnContext(ctx, "discard stored document", "ref", ref, "error", err)
	}
}

func baseName(name string) string {
	if name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

func mimeAllowed(m *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if m.Is(a) {
			return true
		}
	}
	return false
}

func (e Engine) ListDocuments(ctx context.Context, actor domain.Actor, candidateID string) ([]domain.Document, error) {
	if err := auth.Require(actor, auth.PermFormRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetCandidate(ctx, nil, actor.TenantID, candidateID); err != nil {
		return nil, err
	}
	return e.Repo.ListDocuments(ctx, nil, actor.TenantID, candidateID)
}

// DocumentContent opens a stored upload. The caller closes the reader.
func (e Engine) DocumentContent(ctx context.Context, actor domain.Actor, candidateID, documentID string) (domain.Document, io.ReadCloser, error) {
	if err := auth.Require(actor, auth.PermFormRead); err != nil {
		return domain.Document{}, nil, err
	}
	if e.Storage == nil {
		return domain.Document{}, nil, errors.New("document storage not configured")
	}
	doc, err := e.Repo.GetDocument(ctx, nil, actor.TenantID, candidateID, documentID)
	if err != nil {
		return domain.Document{}, nil, err
	}
	rc, err := e.Storage.Get(ctx, doc.FileRef)
	if err != nil {
		return domain.Document{}, nil, err
	}
	return doc, rc, nil
}
