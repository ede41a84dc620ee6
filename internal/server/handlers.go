package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"hireline/internal/domain"
	"hireline/internal/engine"
)

// CandidatePath binds the {candidate_id} segment; huma only sees exported embedded fields.
type CandidatePath struct {
	CandidateID string `path:"candidate_id"`
}

// FormPath binds the {form_id} segment.
type FormPath struct {
	FormID string `path:"form_id"`
}

func registerCandidates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-candidate",
		Method:        http.MethodPost,
		Path:          "/candidates",
		Summary:       "Create candidate",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCandidateRequest `json:"body"`
	}) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCandidate(ctx, actor, engine.CandidateCreateOptions{
			ID:             input.Body.ID,
			FullName:       input.Body.FullName,
			Email:          input.Body.Email,
			Phone:          input.Body.Phone,
			EmploymentType: input.Body.EmploymentType,
			Position:       input.Body.Position,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/candidates",
		Summary:     "List candidates, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body engine.CandidatePage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListCandidates(ctx, actor, engine.CandidateListOptions{
			Status: domain.Status(input.Status),
			Limit:  normalizeLimit(input.Limit),
			Cursor: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page.Items = nonNilSlice(page.Items)
		return &struct {
			Body engine.CandidatePage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-candidate",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Get candidate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetCandidate(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})
}

func registerPipeline(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/transitions",
		Summary:     "Move a candidate to another status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CandidatePath
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body engine.TransitionResult `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Transition(ctx, actor, input.CandidateID, domain.Status(input.Body.To), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TransitionResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/transitions",
		Summary:     "Transition history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body []domain.TransitionRecord `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTransitions(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TransitionRecord `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "allowed-transitions",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/allowed-transitions",
		Summary:     "Statuses reachable from the current one",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body AllowedTransitionsResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetCandidate(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AllowedTransitionsResponse `json:"body"`
		}{Body: AllowedTransitionsResponse{
			Status:      c.Status,
			Terminal:    c.Status.Terminal(),
			AllowedNext: nonNilSlice(domain.AllowedNext(c.Status)),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "issue-link",
		Method:        http.MethodPost,
		Path:          "/candidates/{candidate_id}/links",
		Summary:       "Issue a fresh onboarding link",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CandidatePath
		Body *IssueLinkRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body domain.OnboardingLink `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		var ttl string
		if input.Body != nil {
			ttl = input.Body.TTL
		}
		d, err := ParseTTL(ttl)
		if err != nil {
			return nil, handleError(err)
		}
		link, err := e.IssueLink(ctx, actor, input.CandidateID, d)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingLink `json:"body"`
		}{Body: link}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-for-hrd",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/submit-for-hrd",
		Summary:     "Send a reviewed onboarding to HRD",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SubmitForHRD(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})
}

func registerForms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "onboarding-status",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/onboarding",
		Summary:     "Onboarding progress of a candidate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body engine.OnboardingStatus `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.OnboardingStatus(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OnboardingStatus `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/form",
		Summary:     "Get the onboarding form",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.GetForm(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-form",
		Method:      http.MethodPatch,
		Path:        "/candidates/{candidate_id}/form",
		Summary:     "Edit form fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CandidatePath
		Body FormPatchRequest `json:"body"`
	}) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		patch, err := domain.PatchFromMap(input.Body.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := e.PatchForm(ctx, actor, input.CandidateID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-form",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/form/review",
		Summary:     "Confirm submitted data, optionally correcting fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CandidatePath
		Body *FormPatchRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		var fields map[string]string
		if input.Body != nil {
			fields = input.Body.Fields
		}
		patch, err := domain.PatchFromMap(fields)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := e.ReviewForm(ctx, actor, input.CandidateID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-form",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/form/reopen",
		Summary:     "Unlock a form rejected by HRD",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.ReopenForm(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})
}

func registerDocuments(api huma.API, router chi.Router, basePath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/documents",
		Summary:     "List uploaded documents",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *CandidatePath) (*struct {
		Body []domain.Document `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		docs, err := e.ListDocuments(ctx, actor, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Document `json:"body"`
		}{Body: nonNilSlice(docs)}, nil
	})

	// Raw file download stays on chi; the auth middleware still covers it.
	router.Get(basePath+"/candidates/{candidate_id}/documents/{document_id}/content", func(w http.ResponseWriter, r *http.Request) {
		actor, authErr := actorFromContext(r.Context(), e.Config)
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		doc, rc, err := e.DocumentContent(r.Context(), actor, chi.URLParam(r, "candidate_id"), chi.URLParam(r, "document_id"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", doc.MIME)
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
		io.Copy(w, rc)
	})
}

func registerHRD(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pending",
		Method:      http.MethodGet,
		Path:        "/hrd/pending",
		Summary:     "Forms waiting for an HRD decision",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.PendingForm `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListPending(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.PendingForm `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-form",
		Method:      http.MethodPost,
		Path:        "/hrd/forms/{form_id}/approve",
		Summary:     "Approve and request a contract draft",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *FormPath) (*struct {
		Body domain.ContractDraftRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Approve(ctx, actor, input.FormID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ContractDraftRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-form",
		Method:      http.MethodPost,
		Path:        "/hrd/forms/{form_id}/reject",
		Summary:     "Reject with a mandatory comment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		FormPath
		Body RejectRequest `json:"body"`
	}) (*struct {
		Body domain.HRDDecision `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Reject(ctx, actor, input.FormID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HRDDecision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/hrd/forms/{form_id}/decisions",
		Summary:     "Decision history of a form",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *FormPath) (*struct {
		Body []domain.HRDDecision `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Decisions(ctx, actor, input.FormID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HRDDecision `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"candidate,link,form,document"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Before     int64  `query:"before"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Config)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, actor, engine.EventListOptions{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      normalizeLimit(input.Limit),
			Before:     input.Before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
