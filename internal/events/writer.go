package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the pipeline.
const (
	CandidateCreated    = "candidate.created"
	CandidateTransition = "candidate.transition"
	LinkIssued          = "link.issued"
	LinkUsed            = "link.used"
	FormCreated         = "form.created"
	FormPatched         = "form.patched"
	FormSubmitted       = "form.submitted"
	FormReviewed        = "form.reviewed"
	FormReopened        = "form.reopened"
	DocumentUploaded    = "document.uploaded"
	HRDApproved         = "hrd.approved"
	HRDRejected         = "hrd.rejected"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx execer, evtType, tenantID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,tenant_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(tenantID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
