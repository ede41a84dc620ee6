package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrLinkNotFound    = errors.New("onboarding link not found")
	ErrLinkExpired     = errors.New("onboarding link expired")
	ErrLinkAlreadyUsed = errors.New("onboarding link already used")
	ErrFormLocked      = errors.New("onboarding form is locked")
	ErrCommentRequired = errors.New("comment is required")
)

type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

type UnsupportedFileTypeError struct {
	Kind    DocumentKind
	MIME    string
	Allowed []string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %s for %s (allowed: %s)", e.MIME, e.Kind, strings.Join(e.Allowed, ", "))
}

type FileTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes exceeds %d", e.Size, e.Limit)
}

// LowConfidenceError tells the caller to re-upload a clearer image. No fields were prefilled.
type LowConfidenceError struct {
	Confidence float64
	Threshold  float64
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("extraction confidence %.2f below %.2f; upload a clearer image", e.Confidence, e.Threshold)
}

// ExtractionUnavailableError means the OCR call timed out. The file is stored and fields must be filled manually.
type ExtractionUnavailableError struct {
	Cause error
}

func (e *ExtractionUnavailableError) Error() string {
	return "extraction unavailable; fill fields manually"
}

func (e *ExtractionUnavailableError) Unwrap() error { return e.Cause }

type MissingAcknowledgementsError struct {
	IDs []string
}

func (e *MissingAcknowledgementsError) Error() string {
	return "missing acknowledgements: " + strings.Join(e.IDs, ", ")
}

type MissingDocumentsError struct {
	Kinds []DocumentKind
}

func (e *MissingDocumentsError) Error() string {
	parts := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		parts[i] = string(k)
	}
	return "missing documents: " + strings.Join(parts, ", ")
}

type AlreadyDecidedError struct {
	FormID   string
	Decision Decision
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("form %s already %s", e.FormID, e.Decision)
}

type FormNotReadyError struct {
	Missing []string
}

func (e *FormNotReadyError) Error() string {
	return "form not ready: missing " + strings.Join(e.Missing, ", ")
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Kind codes. Anything unrecognised is KindInternal.
const (
	KindNotFound                = "not_found"
	KindInvalidTransition       = "invalid_transition"
	KindLinkNotFound            = "link_not_found"
	KindLinkExpired             = "link_expired"
	KindLinkAlreadyUsed         = "link_already_used"
	KindUnsupportedFileType     = "unsupported_file_type"
	KindFileTooLarge            = "file_too_large"
	KindLowConfidence           = "low_confidence"
	KindExtractionUnavailable   = "extraction_unavailable"
	KindMissingAcknowledgements = "missing_acknowledgements"
	KindMissingDocuments        = "missing_documents"
	KindFormLocked              = "form_locked"
	KindFormNotReady            = "form_not_ready"
	KindAlreadyDecided          = "already_decided"
	KindCommentRequired         = "comment_required"
	KindValidation              = "validation_failed"
	KindInternal                = "internal"
)

// Kind maps err to a stable code.
func Kind(err error) string {
	var (
		it  *InvalidTransitionError
		uft *UnsupportedFileTypeError
		ftl *FileTooLargeError
		lc  *LowConfidenceError
		eu  *ExtractionUnavailableError
		ma  *MissingAcknowledgementsError
		md  *MissingDocumentsError
		ad  *AlreadyDecidedError
		fnr *FormNotReadyError
		ve  *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLinkNotFound):
		return KindLinkNotFound
	case errors.Is(err, ErrLinkExpired):
		return KindLinkExpired
	case errors.Is(err, ErrLinkAlreadyUsed):
		return KindLinkAlreadyUsed
	case errors.Is(err, ErrFormLocked):
		return KindFormLocked
	case errors.Is(err, ErrCommentRequired):
		return KindCommentRequired
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &it):
		return KindInvalidTransition
	case errors.As(err, &uft):
		return KindUnsupportedFileType
	case errors.As(err, &ftl):
		return KindFileTooLarge
	case errors.As(err, &lc):
		return KindLowConfidence
	case errors.As(err, &eu):
		return KindExtractionUnavailable
	case errors.As(err, &ma):
		return KindMissingAcknowledgements
	case errors.As(err, &md):
		return KindMissingDocuments
	case errors.As(err, &ad):
		return KindAlreadyDecided
	case errors.As(err, &fnr):
		return KindFormNotReady
	case errors.As(err, &ve):
		return KindValidation
	default:
		return KindInternal
	}
}

// IsLinkError reports whether err is one of the three invalid-link kinds.
func IsLinkError(err error) bool {
	return errors.Is(err, ErrLinkNotFound) || errors.Is(err, ErrLinkExpired) || errors.Is(err, ErrLinkAlreadyUsed)
}
