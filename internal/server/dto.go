package server

import (
	"hireline/internal/domain"
)

// Request payloads

type CreateCandidateRequest struct {
	ID             string `json:"id,omitempty"`
	FullName       string `json:"full_name" minLength:"1"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
}

type TransitionRequest struct {
	To     string `json:"to" enum:"new,screening,screened_pass,screened_fail,submitted,interview_scheduled,interview_passed,interview_failed,onboarding,onboarding_completed,contract_requested,hired,rejected"`
	Reason string `json:"reason,omitempty"`
}

type IssueLinkRequest struct {
	// TTL accepts Go durations plus a day suffix, e.g. "72h" or "7d".
	TTL string `json:"ttl,omitempty" example:"7d"`
}

type FormPatchRequest struct {
	Fields map[string]string `json:"fields,omitempty"`
}

type RejectRequest struct {
	Comment string `json:"comment"`
}

type SubmitRequest struct {
	Fields map[string]string `json:"fields,omitempty"`
	// Acknowledged lists the checked declaration item ids.
	Acknowledged []string `json:"acknowledged"`
}

// Responses

type AllowedTransitionsResponse struct {
	Status      domain.Status   `json:"status"`
	Terminal    bool            `json:"terminal"`
	AllowedNext []domain.Status `json:"allowed_next"`
}

type ResolveResponse struct {
	CandidateName  string `json:"candidate_name"`
	EmploymentType string `json:"employment_type"`
	Position       string `json:"position,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type ChecklistResponse struct {
	Checklist domain.Checklist `json:"checklist"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
