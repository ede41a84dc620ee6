package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/notify"
)

func TestWebhooksFilterAndHeaders(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, notify.TypeHRDDecision, r.Header.Get("X-Hireline-Event"))
		assert.Equal(t, "acme", r.Header.Get("X-Hireline-Tenant"))
		assert.Equal(t, "s3cret", r.Header.Get("X-Hireline-Secret"))
		assert.NotEmpty(t, r.Header.Get("X-Hireline-Delivery"))
		var n notify.Notification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		assert.Equal(t, "cand-1", n.CandidateID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	disabled := false
	w := notify.NewWebhooks([]config.NotificationConfig{
		{URL: srv.URL, Events: []string{notify.TypeHRDDecision}, Secret: "s3cret"},
		{URL: srv.URL, Events: []string{notify.TypeStageReached}},
		{URL: srv.URL, Enabled: &disabled},
	})
	err := w.Notify(context.Background(), notify.Notification{Type: notify.TypeHRDDecision, TenantID: "acme", CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebhooksReportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := notify.NewWebhooks([]config.NotificationConfig{{URL: srv.URL}})
	err := w.Notify(context.Background(), notify.Notification{Type: notify.TypeStageReached})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPContracts(t *testing.T) {
	var got domain.ContractDraftRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "form-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := notify.NewHTTPContracts(config.ContractConfig{URL: srv.URL})
	err := c.RequestContract(context.Background(), domain.ContractDraftRequest{
		TenantID: "acme", CandidateID: "cand-1", FormID: "form-1",
		EmploymentTerms: domain.EmploymentTerms{EmploymentType: "pkwt", CandidateName: "Budi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pkwt", got.EmploymentTerms.EmploymentType)
}
