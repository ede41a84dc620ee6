package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hireline/internal/config"
	"hireline/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Webhooks fans a notification out to every enabled hook whose filter matches.
type Webhooks struct {
	hooks  []config.NotificationConfig
	client *http.Client
}

func NewWebhooks(hooks []config.NotificationConfig) *Webhooks {
	return &Webhooks{hooks: hooks, client: &http.Client{Timeout: defaultTimeout}}
}

// Notify attempts every hook and joins their errors.
func (w *Webhooks) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	var errs []error
	for _, hook := range w.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" || !newEventFilter(hook.Events).match(n.Type) {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		req.Header.Set("X-Hireline-Event", n.Type)
		req.Header.Set("X-Hireline-Tenant", n.TenantID)
		if strings.TrimSpace(hook.Secret) != "" {
			req.Header.Set("X-Hireline-Secret", hook.Secret)
		}
		if err := post(w.clientFor(hook.Timeout), req); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", hook.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhooks) clientFor(timeout time.Duration) *http.Client {
	if timeout <= 0 || timeout == w.client.Timeout {
		return w.client
	}
	return &http.Client{Timeout: timeout}
}

// HTTPContracts posts a ContractDraftRequest to the contract service.
type HTTPContracts struct {
	URL    string
	Client *http.Client
}

func NewHTTPContracts(cfg config.ContractConfig) *HTTPContracts {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPContracts{URL: cfg.URL, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPContracts) RequestContract(ctx context.Context, cr domain.ContractDraftRequest) error {
	data, err := json.Marshal(cr)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("X-Hireline-Tenant", cr.TenantID)
	req.Header.Set("Idempotency-Key", cr.FormID)
	return post(h.Client, req)
}

func post(client *http.Client, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hireline-Delivery", uuid.NewString())
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	return eventFilter{all: len(set) == 0, set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
