package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/declaration"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/metrics"
	"hireline/internal/migrate"
	"hireline/internal/ocr"
	"hireline/internal/storage"
)

const testSecret = "test-secret"

var jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)

type testServer struct {
	*httptest.Server
	cfg *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default("tenant-1")
	e := engine.New(conn, cfg)
	e.Storage = store
	e.Metrics = metrics.New()
	e.OCR = ocr.NewProcessor(ocr.ExtractorFunc(func(context.Context, []byte, string) (ocr.Result, error) {
		return ocr.Result{Confidence: 0.72, Fields: map[string]string{"nik": "3201234567890001", "gender": "LAKI-LAKI"}}, nil
	}), ocr.DefaultThresholds, time.Second)

	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: testSecret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, cfg: cfg}
}

func bearer(t *testing.T, sub string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, sub, "tenant-1", roles, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func upload(t *testing.T, client *http.Client, url, kind, filename string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("kind", kind))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	res, err := client.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

// onboard creates a candidate and walks it to onboarding, returning the link token.
func onboard(t *testing.T, srv *testServer, id string) string {
	t.Helper()
	rec := bearer(t, "rec-1", "recruiter")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates", map[string]any{
		"id":              id,
		"full_name":       "Budi Santoso",
		"employment_type": "pkwt",
	}, rec)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	var out engine.TransitionResult
	for _, to := range []string{"screening", "screened_pass", "submitted", "interview_scheduled", "interview_passed", "onboarding"} {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates/"+id+"/transitions", map[string]any{"to": to}, rec)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		require.NoError(t, json.Unmarshal(data, &out))
	}
	require.NotNil(t, out.Link)
	return out.Link.Token
}

func TestHealthAndAuth(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/candidates", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/candidates", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(t, "hrd-1", "hrd"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, "tenant-1", who.TenantID)
	assert.Contains(t, who.Permissions, "hrd.decide")
	assert.NotContains(t, who.Permissions, "candidate.create")

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates", map[string]any{
		"full_name": "X", "employment_type": "pkwt",
	}, bearer(t, "hrd-1", "hrd"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "candidate.create", decodeError(t, data).Details["permission"])
}

func TestInvalidTransitionEnvelope(t *testing.T) {
	srv := newTestServer(t)
	rec := bearer(t, "rec-1", "recruiter")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates", map[string]any{
		"id": "cand-1", "full_name": "Budi", "employment_type": "pkwt",
	}, rec)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates/cand-1/transitions", map[string]any{"to": "hired"}, rec)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "invalid_transition", body.Code)
	assert.Equal(t, "new", body.Details["from"])
	assert.ElementsMatch(t, []any{"screening", "rejected"}, body.Details["allowed_next"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/candidates/cand-1/allowed-transitions", nil, rec)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var allowed AllowedTransitionsResponse
	require.NoError(t, json.Unmarshal(data, &allowed))
	assert.False(t, allowed.Terminal)
}

func TestPublicOnboardingFlow(t *testing.T) {
	srv := newTestServer(t)
	token := onboard(t, srv, "cand-42")
	base := srv.URL + "/public/onboarding/" + token

	res, data := doJSON(t, srv.Client(), http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var resolved ResolveResponse
	require.NoError(t, json.Unmarshal(data, &resolved))
	assert.Equal(t, "Budi Santoso", resolved.CandidateName)

	res, data = upload(t, srv.Client(), base+"/documents", "ktp", "ktp.jpg", jpegBytes)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var up engine.UploadResult
	require.NoError(t, json.Unmarshal(data, &up))
	assert.False(t, up.NeedsReview)
	assert.Equal(t, "male", up.Prefill[domain.FieldGender])

	res, data = upload(t, srv.Client(), base+"/documents", "kk", "kk.txt", []byte("just some text"))
	require.Equal(t, http.StatusUnsupportedMediaType, res.StatusCode, string(data))
	res, data = upload(t, srv.Client(), base+"/documents", "kk", "kk.jpg", jpegBytes)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPatch, base+"/form", map[string]any{
		"fields": map[string]string{"bank_name": "BCA"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPatch, base+"/form", map[string]any{
		"fields": map[string]string{"salary": "lots"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	ids := declaration.AllIDs(srv.cfg.Checklist())
	var withoutS4 []string
	for _, id := range ids {
		if id != "s4" {
			withoutS4 = append(withoutS4, id)
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/submit", map[string]any{"acknowledged": withoutS4}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "missing_acknowledgements", body.Code)
	assert.Equal(t, []any{"s4"}, body.Details["ids"])

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/submit", map[string]any{"acknowledged": ids}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var form domain.OnboardingForm
	require.NoError(t, json.Unmarshal(data, &form))
	assert.NotNil(t, form.SubmittedAt)
	assert.Equal(t, "BCA", form.BankName)

	// A consumed link and an unknown one look the same from outside.
	res, used := doJSON(t, srv.Client(), http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, unknown := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/public/onboarding/unknown-token", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, string(used), string(unknown))
	assert.Equal(t, publicLinkMessage, decodeError(t, used).Message)
}

func TestPathParametersBind(t *testing.T) {
	srv := newTestServer(t)
	rec := bearer(t, "rec-1", "recruiter")
	token := onboard(t, srv, "cand-7")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates/cand-7/links", map[string]any{"ttl": "1d"}, rec)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var link domain.OnboardingLink
	require.NoError(t, json.Unmarshal(data, &link))
	assert.Equal(t, "cand-7", link.CandidateID)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/public/onboarding/"+link.Token+"/form", map[string]any{
		"fields": map[string]string{"bank_name": "Mandiri"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/candidates/cand-7/form", nil, rec)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var form domain.OnboardingForm
	require.NoError(t, json.Unmarshal(data, &form))
	assert.Equal(t, "Mandiri", form.BankName)

	// The older link still belongs to the same candidate.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/public/onboarding/"+token, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var doc struct {
		Paths map[string]map[string]struct {
			Parameters []struct {
				Name string `json:"name"`
				In   string `json:"in"`
			} `json:"parameters"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	for p, method := range map[string]string{
		"/v1/candidates/{candidate_id}/transitions": "post",
		"/v1/candidates/{candidate_id}/links":       "post",
		"/v1/candidates/{candidate_id}/form":        "patch",
		"/v1/candidates/{candidate_id}/form/review": "post",
		"/v1/hrd/forms/{form_id}/reject":            "post",
		"/public/onboarding/{token}/form":           "patch",
		"/public/onboarding/{token}/submit":         "post",
	} {
		op, ok := doc.Paths[p][method]
		require.True(t, ok, p)
		require.Len(t, op.Parameters, 1, p)
		assert.Equal(t, "path", op.Parameters[0].In, p)
	}
}

func TestHRDRejectNeedsComment(t *testing.T) {
	srv := newTestServer(t)
	token := onboard(t, srv, "cand-1")
	base := srv.URL + "/public/onboarding/" + token
	res, data := upload(t, srv.Client(), base+"/documents", "ktp", "ktp.jpg", jpegBytes)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = upload(t, srv.Client(), base+"/documents", "kk", "kk.jpg", jpegBytes)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/submit", map[string]any{
		"acknowledged": declaration.AllIDs(srv.cfg.Checklist()),
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	rec := bearer(t, "rec-1", "recruiter")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates/cand-1/form/review", nil, rec)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var form domain.OnboardingForm
	require.NoError(t, json.Unmarshal(data, &form))
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/candidates/cand-1/submit-for-hrd", nil, rec)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	hrd := bearer(t, "hrd-1", "hrd")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/hrd/forms/"+form.ID+"/reject", map[string]any{"comment": ""}, hrd)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "comment_required", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/hrd/forms/"+form.ID+"/reject", map[string]any{"comment": "missing KK"}, hrd)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/hrd/pending", nil, hrd)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, "[]", string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/hrd/forms/"+form.ID+"/approve", nil, hrd)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "already_decided", decodeError(t, data).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	onboard(t, srv, "cand-1")
	res, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(data), "hireline_candidate_transitions_total"))
	assert.Contains(t, string(data), `route="/v1/candidates/{candidate_id}/transitions"`)
}

func TestParseTTL(t *testing.T) {
	d, err := ParseTTL("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)
	d, err = ParseTTL("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
	d, err = ParseTTL("")
	require.NoError(t, err)
	assert.Zero(t, d)
	for _, bad := range []string{"0d", "-1h", "soon"} {
		_, err := ParseTTL(bad)
		assert.Error(t, err, bad)
	}
}
