package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/engine/auth"
	"hireline/internal/events"
	"hireline/internal/metrics"
	"hireline/internal/notify"
	"hireline/internal/ocr"
	"hireline/internal/repo"
	"hireline/internal/storage"
)

const collaboratorTimeout = 10 * time.Second

// Engine runs every pipeline operation. Internal operations take an explicit Actor;
// public operations take the onboarding token instead.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Storage   storage.Storage
	OCR       ocr.Processor
	Contracts notify.ContractRequester
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Config:    cfg,
		Contracts: notify.Nop{},
		Notifier:  notify.Nop{},
		Now:       time.Now,
	}
	if cfg != nil {
		e.OCR = ocr.NewProcessor(nil, ocr.Thresholds{RejectBelow: cfg.OCR.RejectBelow, ReviewBelow: cfg.OCR.ReviewBelow}, cfg.OCR.Timeout)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, tenantID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	return events.Writer{Now: e.now}.Append(ctx, tx, evtType, tenantID, entityKind, entityID, actorID, payload)
}

func (e Engine) ready() error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	return nil
}

// CandidateCreateOptions are parameters for creating a candidate.
type CandidateCreateOptions struct {
	ID             string
	FullName       string
	Email          string
	Phone          string
	EmploymentType string
	Position       string
}

func (e Engine) CreateCandidate(ctx context.Context, actor domain.Actor, opts CandidateCreateOptions) (domain.Candidate, error) {
	if err := e.ready(); err != nil {
		return domain.Candidate{}, err
	}
	if err := auth.Require(actor, auth.PermCandidateCreate); err != nil {
		return domain.Candidate{}, err
	}
	opts.FullName = strings.TrimSpace(opts.FullName)
	if opts.FullName == "" {
		return domain.Candidate{}, &domain.ValidationError{Field: "full_name", Message: "is required"}
	}
	if !contains(e.Config.EmploymentTypes, opts.EmploymentType) {
		return domain.Candidate{}, &domain.ValidationError{Field: "employment_type", Message: "must be one of " + strings.Join(e.Config.EmploymentTypes, ", ")}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.ts()
	c := domain.Candidate{
		ID:             id,
		TenantID:       actor.TenantID,
		FullName:       opts.FullName,
		Email:          strings.TrimSpace(opts.Email),
		Phone:          strings.TrimSpace(opts.Phone),
		EmploymentType: opts.EmploymentType,
		Position:       strings.TrimSpace(opts.Position),
		Status:         domain.StatusNew,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCandidate(ctx, tx, c); err != nil {
		return domain.Candidate{}, err
	}
	if err := e.emit(ctx, tx, events.CandidateCreated, c.TenantID, "candidate", c.ID, actor.UserID, events.EventPayload{
		"status":          c.Status,
		"employment_type": c.EmploymentType,
	}); err != nil {
		return domain.Candidate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Candidate{}, err
	}
	return c, nil
}

func (e Engine) GetCandidate(ctx context.Context, actor domain.Actor, id string) (domain.Candidate, error) {
	if err := auth.Require(actor, auth.PermCandidateRead); err != nil {
		return domain.Candidate{}, err
	}
	return e.Repo.GetCandidate(ctx, nil, actor.TenantID, id)
}

type CandidateListOptions struct {
	Status domain.Status
	Limit  int
	Cursor string
}

type CandidatePage struct {
	Items      []domain.Candidate `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func (e Engine) ListCandidates(ctx context.Context, actor domain.Actor, opts CandidateListOptions) (CandidatePage, error) {
	if err := auth.Require(actor, auth.PermCandidateRead); err != nil {
		return CandidatePage{}, err
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return CandidatePage{}, &domain.ValidationError{Field: "status", Message: "unknown status " + string(opts.Status)}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	createdAt, id, err := repo.DecodeCursor(opts.Cursor)
	if err != nil {
		return CandidatePage{}, err
	}
	items, err := e.Repo.ListCandidates(ctx, nil, repo.CandidateFilters{
		TenantID:        actor.TenantID,
		Status:          opts.Status,
		Limit:           limit,
		CursorCreatedAt: createdAt,
		CursorID:        id,
	})
	if err != nil {
		return CandidatePage{}, err
	}
	page := CandidatePage{Items: items}
	if len(items) == limit {
		last := items[len(items)-1]
		page.NextCursor = repo.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// EventListOptions filter the audit log.
type EventListOptions struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Before     int64
}

func (e Engine) ListEvents(ctx context.Context, actor domain.Actor, opts EventListOptions) ([]domain.Event, error) {
	if err := auth.Require(actor, auth.PermEventsRead); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, nil, repo.EventFilters{
		TenantID:   actor.TenantID,
		Type:       opts.Type,
		EntityKind: opts.EntityKind,
		EntityID:   opts.EntityID,
		Limit:      opts.Limit,
		Before:     opts.Before,
	})
}

// bestEffort runs a collaborator call detached from the request's cancellation.
// Failures are logged and counted, never returned.
func (e Engine) bestEffort(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collaboratorTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		e.Metrics.CollaboratorError(name)
		e.log().WarnContext(ctx, "collaborator call failed", "collaborator", name, "error", err)
	}
}

func (e Engine) notify(ctx context.Context, n notify.Notification) {
	if e.Notifier == nil {
		return
	}
	e.bestEffort(ctx, "notifier", func(ctx context.Context) error { return e.Notifier.Notify(ctx, n) })
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
