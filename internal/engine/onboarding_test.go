package engine_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/declaration"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/ocr"
)

func TestIssueLinkAndUploadKTP(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-42")

	link, err := env.Engine.IssueLink(env.Ctx, env.Recruiter, "cand-42", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, env.Now.Add(7*24*time.Hour).Format(time.RFC3339), link.ExpiresAt)
	assert.Len(t, link.Token, 43)
	assert.Contains(t, link.URL, link.Token)

	c, err := env.Engine.Resolve(env.Ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, "cand-42", c.ID)

	env.Extractor.set(ocr.Result{Confidence: 0.72, Fields: map[string]string{"nik": "3201234567890001", "gender": "LAKI-LAKI"}}, nil)
	res, err := env.Engine.UploadDocument(env.Ctx, link.Token, engine.UploadInput{Kind: "ktp", Filename: "ktp.jpg", Data: jpegBytes})
	require.NoError(t, err)
	assert.False(t, res.NeedsReview)
	assert.Equal(t, domain.OutcomeAccepted, res.Outcome)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.72, *res.Confidence, 1e-9)
	assert.Equal(t, "image/jpeg", res.Document.MIME)

	pub, err := env.Engine.FormByToken(env.Ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, "male", pub.Form.Gender)
	assert.Equal(t, "3201234567890001", pub.Form.IDNumber)
	require.Len(t, pub.Documents, 1)
	require.NotNil(t, pub.Documents[0].ExtractedJSON)
	assert.Contains(t, *pub.Documents[0].ExtractedJSON, "3201234567890001")

	_, rc, err := env.Engine.DocumentContent(env.Ctx, env.Recruiter, "cand-42", res.Document.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.GateOutcomes.WithLabelValues("ktp", "accepted")))
}

func TestIssueLinkRequiresOnboarding(t *testing.T) {
	env := newTestEnv(t)
	env.createCandidate(t, "cand-1")
	_, err := env.Engine.IssueLink(env.Ctx, env.Recruiter, "cand-1", time.Hour)
	assert.ErrorAs(t, err, new(*domain.InvalidTransitionError))
}

func TestLinkExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")
	link, err := env.Engine.IssueLink(env.Ctx, env.Recruiter, "cand-1", time.Hour)
	require.NoError(t, err)

	env.Engine.Now = func() time.Time { return env.Now.Add(time.Hour) }
	_, err = env.Engine.Resolve(env.Ctx, link.Token)
	assert.ErrorIs(t, err, domain.ErrLinkExpired)
	_, err = env.Engine.FormByToken(env.Ctx, link.Token)
	assert.ErrorIs(t, err, domain.ErrLinkExpired)

	_, err = env.Engine.Resolve(env.Ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrLinkNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.LinkFailures.WithLabelValues("link_not_found")))
}

func TestMarkUsedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	require.NoError(t, env.Engine.MarkUsed(env.Ctx, token))
	require.NoError(t, env.Engine.MarkUsed(env.Ctx, token))
	_, err := env.Engine.Resolve(env.Ctx, token)
	assert.ErrorIs(t, err, domain.ErrLinkAlreadyUsed)

	assert.ErrorIs(t, env.Engine.MarkUsed(env.Ctx, "unknown"), domain.ErrLinkNotFound)

	st, err := env.Engine.OnboardingStatus(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkUsed, st.LinkState)
}

func TestUploadRejectsBeforeProcessing(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	big := append([]byte{}, jpegBytes...)
	big = append(big, make([]byte, env.Engine.Config.Documents.MaxBytes)...)
	_, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: big})
	var tooLarge *domain.FileTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, env.Engine.Config.Documents.MaxBytes, tooLarge.Limit)

	_, err = env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: pdfBytes})
	var unsupported *domain.UnsupportedFileTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "application/pdf", unsupported.MIME)
	assert.Equal(t, domain.DocumentKTP, unsupported.Kind)

	_, err = env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "kk", Data: []byte("plain text is not a document")})
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, domain.DocumentKK, unsupported.Kind)

	_, err = env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "passport", Data: jpegBytes})
	assert.ErrorAs(t, err, new(*domain.ValidationError))

	assert.Zero(t, env.Extractor.calls)
	docs, err := env.Engine.ListDocuments(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadLowConfidenceStoresWithoutPrefill(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	env.Extractor.set(ocr.Result{Confidence: 0.42, Fields: map[string]string{"nik": "3201234567890001"}}, nil)
	res, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: jpegBytes})
	var low *domain.LowConfidenceError
	require.ErrorAs(t, err, &low)
	assert.InDelta(t, 0.42, low.Confidence, 1e-9)
	assert.Equal(t, domain.OutcomeLowConfidence, res.Outcome)
	assert.Empty(t, res.Prefill)

	f, err := env.Engine.GetForm(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Empty(t, f.IDNumber)

	docs, err := env.Engine.ListDocuments(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.OutcomeLowConfidence, docs[0].Outcome)
	assert.Nil(t, docs[0].ExtractedJSON)
}

func TestUploadNeedsReviewBand(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	env.Extractor.set(ocr.Result{Confidence: 0.55, Fields: map[string]string{"nama": "BUDI SANTOSO"}}, nil)
	res, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: jpegBytes})
	require.NoError(t, err)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, "BUDI SANTOSO", res.Prefill[domain.FieldFullName])
}

func TestUploadExtractionTimeout(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	env.Extractor.delay = time.Second
	env.Extractor.set(ocr.Result{Confidence: 0.99}, nil)
	res, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: jpegBytes})
	var unavailable *domain.ExtractionUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, domain.OutcomeExtractionUnavailable, res.Outcome)
	assert.Equal(t, "extraction_unavailable", domain.Kind(err))

	docs, err := env.Engine.ListDocuments(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestUploadExtractorFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	env.Extractor.set(ocr.Result{}, errors.New("connection refused"))
	_, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: jpegBytes})
	require.Error(t, err)
	assert.Equal(t, "internal", domain.Kind(err))

	docs, err := env.Engine.ListDocuments(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestKKIsNotGated(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	res, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "kk", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotGated, res.Outcome)
	assert.Nil(t, res.Confidence)
	assert.Zero(t, env.Extractor.calls)
}

func TestProgressiveSave(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")

	f, err := env.Engine.PatchByToken(env.Ctx, token, domain.FormPatch{domain.FieldAddress: "Jl. Merdeka 1"})
	require.NoError(t, err)
	assert.Equal(t, "Jl. Merdeka 1", f.Address)

	f, err = env.Engine.PatchByToken(env.Ctx, token, domain.FormPatch{domain.FieldEmergencyName: "Siti"})
	require.NoError(t, err)
	assert.Equal(t, "Jl. Merdeka 1", f.Address)
	assert.Equal(t, "Siti", f.EmergencyName)

	_, err = env.Engine.PatchByToken(env.Ctx, token, domain.FormPatch{domain.FieldGender: "other"})
	assert.ErrorAs(t, err, new(*domain.ValidationError))
}

func TestSubmitMissingAcknowledgement(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	env.uploadRequired(t, token)

	cl := env.Engine.Config.Checklist()
	require.Len(t, cl.Ketentuan, 12)
	require.Len(t, cl.Sanksi, 6)
	ids := declaration.AllIDs(cl)
	var checked []string
	for _, id := range ids {
		if id != cl.Sanksi[3].ID {
			checked = append(checked, id)
		}
	}
	_, err := env.Engine.Submit(env.Ctx, token, engine.SubmitInput{Checklist: declaration.Checked(cl, checked...)})
	var missing *domain.MissingAcknowledgementsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"s4"}, missing.IDs)

	c, err := env.Engine.GetCandidate(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnboarding, c.Status)
	f, err := env.Engine.GetForm(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Nil(t, f.SubmittedAt)
	_, err = env.Engine.Resolve(env.Ctx, token)
	assert.NoError(t, err)
}

func TestSubmitRequiresDocuments(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	_, err := env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "kk", Data: pdfBytes})
	require.NoError(t, err)

	env.Extractor.set(ocr.Result{Confidence: 0.3}, nil)
	_, err = env.Engine.UploadDocument(env.Ctx, token, engine.UploadInput{Kind: "ktp", Data: jpegBytes})
	require.Error(t, err)

	_, err = env.Engine.Submit(env.Ctx, token, engine.SubmitInput{Checklist: env.allChecked()})
	var missing *domain.MissingDocumentsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []domain.DocumentKind{domain.DocumentKTP}, missing.Kinds)
}

func TestSubmitCompletesOnboarding(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	env.uploadRequired(t, token)

	f, err := env.Engine.Submit(env.Ctx, token, engine.SubmitInput{
		Fields:    domain.FormPatch{domain.FieldNPWP: "12.345.678.9-012.000"},
		Checklist: env.allChecked(),
	})
	require.NoError(t, err)
	require.NotNil(t, f.SubmittedAt)
	assert.Equal(t, "12.345.678.9-012.000", f.NPWP)
	assert.Equal(t, "3201234567890001", f.IDNumber)
	assert.True(t, f.Checklist.FinalDeclaration.Checked)

	c, err := env.Engine.GetCandidate(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnboardingCompleted, c.Status)

	history, err := env.Engine.ListTransitions(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.TriggerSubmission, last.Trigger)
	assert.Equal(t, "candidate:cand-1", last.ActorID)

	_, err = env.Engine.Submit(env.Ctx, token, engine.SubmitInput{Checklist: env.allChecked()})
	assert.ErrorIs(t, err, domain.ErrLinkAlreadyUsed)
}

func TestSubmitTrimsTokenAndConsumesLink(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	env.uploadRequired(t, token)

	f, err := env.Engine.Submit(env.Ctx, "  "+token+"\n", engine.SubmitInput{Checklist: env.allChecked()})
	require.NoError(t, err)
	assert.NotNil(t, f.SubmittedAt)

	_, err = env.Engine.Resolve(env.Ctx, token)
	assert.ErrorIs(t, err, domain.ErrLinkAlreadyUsed)

	used, err := env.Engine.ListEvents(env.Ctx, env.Recruiter, engine.EventListOptions{Type: "link.used"})
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, "candidate:cand-1", used[0].ActorID)

	// Already consumed by the submission, so no second event.
	require.NoError(t, env.Engine.MarkUsed(env.Ctx, token))
	used, err = env.Engine.ListEvents(env.Ctx, env.Recruiter, engine.EventListOptions{Type: "link.used"})
	require.NoError(t, err)
	assert.Len(t, used, 1)
}

func TestConcurrentSubmitSucceedsOnce(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	env.uploadRequired(t, token)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.Engine.Submit(env.Ctx, token, engine.SubmitInput{Checklist: env.allChecked()})
		}()
	}
	wg.Wait()
	var ok, used int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrLinkAlreadyUsed):
			used++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, used)
}

func TestReviewRequiresSubmission(t *testing.T) {
	env := newTestEnv(t)
	env.toOnboarding(t, "cand-1")
	_, err := env.Engine.ReviewForm(env.Ctx, env.Recruiter, "cand-1", nil)
	assert.ErrorAs(t, err, new(*domain.FormNotReadyError))

	_, err = env.Engine.SubmitForHRD(env.Ctx, env.Recruiter, "cand-1")
	assert.ErrorAs(t, err, new(*domain.InvalidTransitionError))
}

func TestReviewAndSubmitForHRD(t *testing.T) {
	env := newTestEnv(t)
	token := env.toOnboarding(t, "cand-1")
	env.uploadRequired(t, token)
	_, err := env.Engine.Submit(env.Ctx, token, engine.SubmitInput{Checklist: env.allChecked()})
	require.NoError(t, err)

	_, err = env.Engine.SubmitForHRD(env.Ctx, env.Recruiter, "cand-1")
	var notReady *domain.FormNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, []string{"data_reviewed_at"}, notReady.Missing)

	f, err := env.Engine.ReviewForm(env.Ctx, env.Recruiter, "cand-1", domain.FormPatch{domain.FieldFullName: "Budi Santoso"})
	require.NoError(t, err)
	require.NotNil(t, f.DataReviewedAt)
	assert.Equal(t, "Budi Santoso", f.FullName)

	c, err := env.Engine.SubmitForHRD(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusContractRequested, c.Status)

	st, err := env.Engine.OnboardingStatus(env.Ctx, env.Recruiter, "cand-1")
	require.NoError(t, err)
	require.NotNil(t, st.Form)
	assert.True(t, st.Form.PendingHRD())
	assert.Len(t, st.Documents, 2)
}
