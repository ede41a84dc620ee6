package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"hireline/internal/declaration"
	"hireline/internal/domain"
	"hireline/internal/engine"
)

// multipartOverhead is allowed on top of the document size limit for form framing.
const multipartOverhead = 1 << 20

// TokenPath binds the onboarding link token.
type TokenPath struct {
	Token string `path:"token"`
}

// registerPublic wires the unauthenticated onboarding surface. Every route re-validates
// the link token; there is no session.
func registerPublic(api huma.API, router chi.Router, publicPath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "public-resolve",
		Method:      http.MethodGet,
		Path:        "/{token}",
		Summary:     "Check an onboarding link",
		Tags:        []string{"onboarding"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TokenPath) (*struct {
		Body ResolveResponse `json:"body"`
	}, error) {
		c, err := e.Resolve(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolveResponse `json:"body"`
		}{Body: ResolveResponse{CandidateName: c.FullName, EmploymentType: c.EmploymentType, Position: c.Position}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "public-get-form",
		Method:      http.MethodGet,
		Path:        "/{token}/form",
		Summary:     "Load the onboarding form",
		Tags:        []string{"onboarding"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TokenPath) (*struct {
		Body engine.PublicForm `json:"body"`
	}, error) {
		pf, err := e.FormByToken(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		pf.Documents = nonNilSlice(pf.Documents)
		return &struct {
			Body engine.PublicForm `json:"body"`
		}{Body: pf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "public-patch-form",
		Method:      http.MethodPatch,
		Path:        "/{token}/form",
		Summary:     "Save progress",
		Tags:        []string{"onboarding"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TokenPath
		Body FormPatchRequest `json:"body"`
	}) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		patch, err := domain.PatchFromMap(input.Body.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := e.PatchByToken(ctx, input.Token, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "public-submit",
		Method:      http.MethodPost,
		Path:        "/{token}/submit",
		Summary:     "Submit the onboarding form with the signed declaration",
		Tags:        []string{"onboarding"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TokenPath
		Body SubmitRequest `json:"body"`
	}) (*struct {
		Body domain.OnboardingForm `json:"body"`
	}, error) {
		patch, err := domain.PatchFromMap(input.Body.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := e.Submit(ctx, input.Token, engine.SubmitInput{
			Fields:    patch,
			Checklist: declaration.Checked(e.Config.Checklist(), input.Body.Acknowledged...),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingForm `json:"body"`
		}{Body: f}, nil
	})

	router.Post(publicPath+"/{token}/documents", uploadHandler(e))
}

// uploadHandler takes multipart fields "kind" and "file".
func uploadHandler(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := e.Config.Documents.MaxBytes
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondStatusError(w, handleError(&domain.FileTooLargeError{Size: tooBig.Limit, Limit: limit}))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form required", nil))
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, header, err := r.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file is required", nil))
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		size := int64(len(data))
		if header.Size > size {
			size = header.Size
		}
		if size > limit {
			respondStatusError(w, handleError(&domain.FileTooLargeError{Size: size, Limit: limit}))
			return
		}
		res, err := e.UploadDocument(r.Context(), chi.URLParam(r, "token"), engine.UploadInput{
			Kind:     strings.TrimSpace(r.FormValue("kind")),
			Filename: header.Filename,
			Data:     data,
		})
		if err != nil {
			se := handleError(err)
			if ae, ok := se.(*apiError); ok && res.Document.ID != "" {
				// Policy outcomes still stored the file; tell the page which one.
				if ae.Body.Details == nil {
					ae.Body.Details = map[string]any{}
				}
				ae.Body.Details["document_id"] = res.Document.ID
				ae.Body.Details["outcome"] = res.Outcome
			}
			respondStatusError(w, se)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(res)
	}
}
