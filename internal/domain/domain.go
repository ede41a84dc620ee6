package domain

import (
	"slices"
	"time"
)

// Actor is the resolved caller identity. Every internal pipeline call receives one explicitly.
type Actor struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions,omitempty"`
}

func (a Actor) Has(perm string) bool {
	return slices.Contains(a.Permissions, perm)
}

type Candidate struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
	Status         Status `json:"status"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type LinkState string

const (
	LinkActive  LinkState = "active"
	LinkExpired LinkState = "expired"
	LinkUsed    LinkState = "used"
	LinkNone    LinkState = "none"
)

// OnboardingLink is a single-use credential. Token holds the plaintext only right after issue;
// storage keeps the hash.
type OnboardingLink struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	CandidateID string  `json:"candidate_id"`
	Token       string  `json:"token,omitempty"`
	URL         string  `json:"url,omitempty"`
	ExpiresAt   string  `json:"expires_at" format:"date-time"`
	UsedAt      *string `json:"used_at,omitempty" format:"date-time"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// State reports whether the link can still be used at now.
func (l OnboardingLink) State(now time.Time) LinkState {
	if l.UsedAt != nil {
		return LinkUsed
	}
	exp, err := time.Parse(time.RFC3339, l.ExpiresAt)
	if err != nil || !now.Before(exp) {
		return LinkExpired
	}
	return LinkActive
}

type ChecklistItem struct {
	ID       string   `json:"id"`
	Text     string   `json:"text" yaml:"text"`
	SubItems []string `json:"sub_items,omitempty" yaml:"sub_items"`
	Checked  bool     `json:"checked"`
}

type Checklist struct {
	Ketentuan        []ChecklistItem `json:"ketentuan"`
	Sanksi           []ChecklistItem `json:"sanksi"`
	FinalDeclaration ChecklistItem   `json:"final_declaration"`
}

// Items returns every acknowledgement item in display order, final declaration last.
func (c Checklist) Items() []ChecklistItem {
	items := make([]ChecklistItem, 0, len(c.Ketentuan)+len(c.Sanksi)+1)
	items = append(items, c.Ketentuan...)
	items = append(items, c.Sanksi...)
	return append(items, c.FinalDeclaration)
}

// Clone returns a deep copy so templates are never mutated through a form.
func (c Checklist) Clone() Checklist {
	cp := Checklist{FinalDeclaration: cloneItem(c.FinalDeclaration)}
	for _, it := range c.Ketentuan {
		cp.Ketentuan = append(cp.Ketentuan, cloneItem(it))
	}
	for _, it := range c.Sanksi {
		cp.Sanksi = append(cp.Sanksi, cloneItem(it))
	}
	return cp
}

func cloneItem(it ChecklistItem) ChecklistItem {
	it.SubItems = slices.Clone(it.SubItems)
	return it
}

type OnboardingForm struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	CandidateID string `json:"candidate_id"`

	IDNumber      string `json:"id_number,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Address       string `json:"address,omitempty"`
	Domicile      string `json:"domicile,omitempty"`
	BirthPlace    string `json:"birth_place,omitempty"`
	BirthDate     string `json:"birth_date,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Religion      string `json:"religion,omitempty"`
	MaritalStatus string `json:"marital_status,omitempty"`

	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankAccountHolder string `json:"bank_account_holder,omitempty"`
	NPWP              string `json:"npwp,omitempty"`

	EmergencyName         string `json:"emergency_name,omitempty"`
	EmergencyRelationship string `json:"emergency_relationship,omitempty"`
	EmergencyPhone        string `json:"emergency_phone,omitempty"`
	EmergencyAddress      string `json:"emergency_address,omitempty"`

	Checklist Checklist `json:"checklist"`

	SubmittedAt       *string `json:"submitted_at,omitempty" format:"date-time"`
	DataReviewedAt    *string `json:"data_reviewed_at,omitempty" format:"date-time"`
	SubmittedForHRDAt *string `json:"submitted_for_hrd_at,omitempty" format:"date-time"`
	HRDApprovedAt     *string `json:"hrd_approved_at,omitempty" format:"date-time"`
	HRDRejectedAt     *string `json:"hrd_rejected_at,omitempty" format:"date-time"`
	LockedAt          *string `json:"locked_at,omitempty" format:"date-time"`
	HRDComment        string  `json:"hrd_comment,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func (f OnboardingForm) Locked() bool  { return f.LockedAt != nil }
func (f OnboardingForm) Decided() bool { return f.HRDApprovedAt != nil || f.HRDRejectedAt != nil }

// PendingHRD reports whether the form waits for an HRD decision.
func (f OnboardingForm) PendingHRD() bool {
	return f.SubmittedForHRDAt != nil && !f.Decided()
}

type DocumentKind string

const (
	DocumentKTP  DocumentKind = "ktp"
	DocumentKK   DocumentKind = "kk"
	DocumentSKCK DocumentKind = "skck"
)

var DocumentKinds = []DocumentKind{DocumentKTP, DocumentKK, DocumentSKCK}

func ParseDocumentKind(s string) (DocumentKind, bool) {
	k := DocumentKind(s)
	return k, slices.Contains(DocumentKinds, k)
}

// GateOutcome is the document intake result for one upload.
type GateOutcome string

const (
	OutcomeAccepted              GateOutcome = "accepted"
	OutcomeNeedsReview           GateOutcome = "needs_review"
	OutcomeLowConfidence         GateOutcome = "low_confidence"
	OutcomeExtractionUnavailable GateOutcome = "extraction_unavailable"
	OutcomeNotGated              GateOutcome = "not_gated"
)

type Document struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id"`
	CandidateID   string       `json:"candidate_id"`
	Kind          DocumentKind `json:"kind" enum:"ktp,kk,skck"`
	FileRef       string       `json:"file_ref"`
	Filename      string       `json:"filename,omitempty"`
	MIME          string       `json:"mime"`
	Size          int64        `json:"size"`
	Outcome       GateOutcome  `json:"outcome"`
	Confidence    *float64     `json:"confidence,omitempty"`
	ExtractedJSON *string      `json:"extracted_json,omitempty"`
	UploadedAt    string       `json:"uploaded_at" format:"date-time"`
}

type TransitionRecord struct {
	ID          int64   `json:"id"`
	TenantID    string  `json:"tenant_id"`
	CandidateID string  `json:"candidate_id"`
	From        Status  `json:"from"`
	To          Status  `json:"to"`
	Trigger     Trigger `json:"trigger"`
	ActorID     string  `json:"actor_id"`
	Reason      string  `json:"reason,omitempty"`
	TS          string  `json:"ts" format:"date-time"`
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

type HRDDecision struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	FormID      string   `json:"form_id"`
	CandidateID string   `json:"candidate_id"`
	Decision    Decision `json:"decision"`
	Comment     string   `json:"comment,omitempty"`
	ActorID     string   `json:"actor_id"`
	DecidedAt   string   `json:"decided_at" format:"date-time"`
}

type EmploymentTerms struct {
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
	CandidateName  string `json:"candidate_name"`
	IDNumber       string `json:"id_number,omitempty"`
}

// ContractDraftRequest is handed to the contract-creation collaborator on approval.
type ContractDraftRequest struct {
	TenantID        string          `json:"tenant_id"`
	CandidateID     string          `json:"candidate_id"`
	FormID          string          `json:"form_id"`
	EmploymentTerms EmploymentTerms `json:"employment_terms"`
	RequestedBy     string          `json:"requested_by"`
	RequestedAt     string          `json:"requested_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
