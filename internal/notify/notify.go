// Package notify delivers pipeline facts to external collaborators.
// Every delivery is best effort; callers log failures and move on.
package notify

import (
	"context"

	"hireline/internal/domain"
)

// Notification is a "candidate reached stage" or "HRD decision made" fact.
type Notification struct {
	Type        string         `json:"type"`
	TenantID    string         `json:"tenant_id"`
	CandidateID string         `json:"candidate_id"`
	Stage       domain.Status  `json:"stage,omitempty"`
	ActorID     string         `json:"actor_id"`
	TS          string         `json:"ts"`
	Data        map[string]any `json:"data,omitempty"`
}

const (
	TypeStageReached = "candidate.stage_reached"
	TypeHRDDecision  = "hrd.decision"
)

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ContractRequester is the contract-creation collaborator.
type ContractRequester interface {
	RequestContract(ctx context.Context, req domain.ContractDraftRequest) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

func (Nop) RequestContract(context.Context, domain.ContractDraftRequest) error { return nil }
