package hirelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Hireline HTTP API client. BearerToken is needed for the internal API
// only; onboarding calls authenticate with the link token.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	// APIPath and PublicPath default to /v1 and /public/onboarding.
	APIPath    string
	PublicPath string
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Candidate represents the API candidate model (partial).
type Candidate struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Link is an onboarding link. Token is only present right after issue.
type Link struct {
	ID          string  `json:"id"`
	CandidateID string  `json:"candidate_id"`
	Token       string  `json:"token,omitempty"`
	URL         string  `json:"url,omitempty"`
	ExpiresAt   string  `json:"expires_at"`
	UsedAt      *string `json:"used_at,omitempty"`
}

type TransitionResult struct {
	Candidate Candidate `json:"candidate"`
	Link      *Link     `json:"link,omitempty"`
}

type ChecklistItem struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	SubItems []string `json:"sub_items,omitempty"`
	Checked  bool     `json:"checked"`
}

type Checklist struct {
	Ketentuan        []ChecklistItem `json:"ketentuan"`
	Sanksi           []ChecklistItem `json:"sanksi"`
	FinalDeclaration ChecklistItem   `json:"final_declaration"`
}

// IDs lists every item id in display order.
func (c Checklist) IDs() []string {
	var out []string
	for _, it := range c.Ketentuan {
		out = append(out, it.ID)
	}
	for _, it := range c.Sanksi {
		out = append(out, it.ID)
	}
	if c.FinalDeclaration.ID != "" {
		out = append(out, c.FinalDeclaration.ID)
	}
	return out
}

// Form is the onboarding form. Fields carries the canonical data fields keyed by name.
type Form struct {
	ID                string            `json:"id"`
	CandidateID       string            `json:"candidate_id"`
	Checklist         Checklist         `json:"checklist"`
	SubmittedAt       *string           `json:"submitted_at,omitempty"`
	DataReviewedAt    *string           `json:"data_reviewed_at,omitempty"`
	SubmittedForHRDAt *string           `json:"submitted_for_hrd_at,omitempty"`
	HRDApprovedAt     *string           `json:"hrd_approved_at,omitempty"`
	HRDRejectedAt     *string           `json:"hrd_rejected_at,omitempty"`
	LockedAt          *string           `json:"locked_at,omitempty"`
	HRDComment        string            `json:"hrd_comment,omitempty"`
	Fields            map[string]string `json:"-"`
}

func (f *Form) UnmarshalJSON(data []byte) error {
	type plain Form
	if err := json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Fields = map[string]string{}
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) != nil {
			continue
		}
		switch k {
		case "id", "tenant_id", "candidate_id", "hrd_comment", "created_at", "updated_at":
			continue
		}
		if strings.HasSuffix(k, "_at") {
			continue
		}
		f.Fields[k] = s
	}
	return nil
}

type Document struct {
	ID          string   `json:"id"`
	CandidateID string   `json:"candidate_id"`
	Kind        string   `json:"kind"`
	Filename    string   `json:"filename,omitempty"`
	MIME        string   `json:"mime"`
	Size        int64    `json:"size"`
	Outcome     string   `json:"outcome"`
	Confidence  *float64 `json:"confidence,omitempty"`
	UploadedAt  string   `json:"uploaded_at"`
}

type UploadResult struct {
	Document    Document          `json:"document"`
	Outcome     string            `json:"outcome"`
	Confidence  *float64          `json:"confidence,omitempty"`
	NeedsReview bool              `json:"needs_review"`
	Prefill     map[string]string `json:"extracted_data,omitempty"`
}

// PublicForm is what the onboarding page loads.
type PublicForm struct {
	CandidateID    string     `json:"candidate_id"`
	CandidateName  string     `json:"candidate_name"`
	EmploymentType string     `json:"employment_type"`
	Position       string     `json:"position,omitempty"`
	ExpiresAt      string     `json:"expires_at"`
	Form           Form       `json:"form"`
	Documents      []Document `json:"documents"`
}

type Resolved struct {
	CandidateName  string `json:"candidate_name"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
}

type Decision struct {
	ID          string `json:"id"`
	FormID      string `json:"form_id"`
	CandidateID string `json:"candidate_id"`
	Decision    string `json:"decision"`
	Comment     string `json:"comment,omitempty"`
	ActorID     string `json:"actor_id"`
	DecidedAt   string `json:"decided_at"`
}

type ContractDraftRequest struct {
	CandidateID     string `json:"candidate_id"`
	FormID          string `json:"form_id"`
	EmploymentTerms struct {
		EmploymentType string `json:"employment_type"`
		Position       string `json:"position,omitempty"`
		CandidateName  string `json:"candidate_name"`
		IDNumber       string `json:"id_number,omitempty"`
	} `json:"employment_terms"`
	RequestedBy string `json:"requested_by"`
	RequestedAt string `json:"requested_at"`
}

type PendingForm struct {
	Form      Form      `json:"form"`
	Candidate Candidate `json:"candidate"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CandidatesPage wraps list responses with cursors.
type CandidatesPage struct {
	Items      []Candidate `json:"items"`
	NextCursor string      `json:"next_cursor"`
}

type CreateCandidate struct {
	ID             string `json:"id,omitempty"`
	FullName       string `json:"full_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
}

func (c *Client) CreateCandidate(ctx context.Context, in CreateCandidate) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodPost, c.apiPath("candidates"), in, &resp)
	return resp, err
}

func (c *Client) Candidate(ctx context.Context, id string) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodGet, c.apiPath("candidates/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// CandidatesPage returns a paginated candidate listing, optionally filtered by status.
func (c *Client) CandidatesPage(ctx context.Context, status string, limit int, cursor string) (CandidatesPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.apiPath("candidates")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp CandidatesPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition moves a candidate. Entering onboarding returns the issued link.
func (c *Client) Transition(ctx context.Context, id, to, reason string) (TransitionResult, error) {
	body := map[string]any{"to": to}
	if reason != "" {
		body["reason"] = reason
	}
	var resp TransitionResult
	err := c.do(ctx, http.MethodPost, c.apiPath("candidates/"+url.PathEscape(id)+"/transitions"), body, &resp)
	return resp, err
}

// IssueLink issues a fresh onboarding link. ttl may be empty for the tenant default.
func (c *Client) IssueLink(ctx context.Context, id, ttl string) (Link, error) {
	var body any
	if ttl != "" {
		body = map[string]any{"ttl": ttl}
	}
	var resp Link
	err := c.do(ctx, http.MethodPost, c.apiPath("candidates/"+url.PathEscape(id)+"/links"), body, &resp)
	return resp, err
}

func (c *Client) ReviewForm(ctx context.Context, id string, fields map[string]string) (Form, error) {
	var body any
	if len(fields) > 0 {
		body = map[string]any{"fields": fields}
	}
	var resp Form
	err := c.do(ctx, http.MethodPost, c.apiPath("candidates/"+url.PathEscape(id)+"/form/review"), body, &resp)
	return resp, err
}

func (c *Client) SubmitForHRD(ctx context.Context, id string) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodPost, c.apiPath("candidates/"+url.PathEscape(id)+"/submit-for-hrd"), nil, &resp)
	return resp, err
}

func (c *Client) PendingForms(ctx context.Context) ([]PendingForm, error) {
	var resp []PendingForm
	err := c.do(ctx, http.MethodGet, c.apiPath("hrd/pending"), nil, &resp)
	return resp, err
}

func (c *Client) Approve(ctx context.Context, formID string) (ContractDraftRequest, error) {
	var resp ContractDraftRequest
	err := c.do(ctx, http.MethodPost, c.apiPath("hrd/forms/"+url.PathEscape(formID)+"/approve"), nil, &resp)
	return resp, err
}

func (c *Client) Reject(ctx context.Context, formID, comment string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, c.apiPath("hrd/forms/"+url.PathEscape(formID)+"/reject"), map[string]any{"comment": comment}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, entityKind, entityID string, limit int) ([]Event, error) {
	q := url.Values{}
	if entityKind != "" {
		q.Set("entity_kind", entityKind)
	}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.apiPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Resolve checks an onboarding link.
func (c *Client) Resolve(ctx context.Context, token string) (Resolved, error) {
	var resp Resolved
	err := c.do(ctx, http.MethodGet, c.publicPath(token, ""), nil, &resp)
	return resp, err
}

func (c *Client) OnboardingForm(ctx context.Context, token string) (PublicForm, error) {
	var resp PublicForm
	err := c.do(ctx, http.MethodGet, c.publicPath(token, "form"), nil, &resp)
	return resp, err
}

// SaveProgress patches form fields without submitting.
func (c *Client) SaveProgress(ctx context.Context, token string, fields map[string]string) (Form, error) {
	var resp Form
	err := c.do(ctx, http.MethodPatch, c.publicPath(token, "form"), map[string]any{"fields": fields}, &resp)
	return resp, err
}

// Upload sends one document. A low-confidence or unavailable extraction comes back as an
// *APIError with status 422 even though the file was stored.
func (c *Client) Upload(ctx context.Context, token, kind, filename string, data io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		return UploadResult{}, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(fw, data); err != nil {
		return UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}
	var resp UploadResult
	err = c.send(ctx, http.MethodPost, c.publicPath(token, "documents"), &buf, mw.FormDataContentType(), false, &resp)
	return resp, err
}

// Submit sends the final form with the acknowledged declaration item ids.
func (c *Client) Submit(ctx context.Context, token string, fields map[string]string, acknowledged []string) (Form, error) {
	body := map[string]any{"acknowledged": acknowledged}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	var resp Form
	err := c.do(ctx, http.MethodPost, c.publicPath(token, "submit"), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, &buf, "application/json", true, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string, auth bool, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if auth && c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	return pathOr(c.APIPath, "/v1") + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) publicPath(token, p string) string {
	out := pathOr(c.PublicPath, "/public/onboarding") + "/" + url.PathEscape(token)
	if p != "" {
		out += "/" + p
	}
	return out
}

func pathOr(p, def string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
