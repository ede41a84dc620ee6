// Package ocr wraps the external identity-document extraction capability
// and the confidence gate that decides whether its output may prefill a form.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"hireline/internal/domain"
)

// Result is the raw output of one extraction.
type Result struct {
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
}

// Extractor is the OCR capability. Implementations must honour ctx cancellation.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mime string) (Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, image []byte, mime string) (Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, image []byte, mime string) (Result, error) {
	return f(ctx, image, mime)
}

// Mapper turns raw extracted fields into canonical form fields.
type Mapper func(raw map[string]string) domain.FormPatch

// Thresholds define the half-open bands [0,RejectBelow), [RejectBelow,ReviewBelow), [ReviewBelow,1].
type Thresholds struct {
	RejectBelow float64
	ReviewBelow float64
}

var DefaultThresholds = Thresholds{RejectBelow: 0.5, ReviewBelow: 0.6}

// Gate classifies a confidence score.
func (t Thresholds) Gate(confidence float64) domain.GateOutcome {
	switch {
	case confidence < t.RejectBelow:
		return domain.OutcomeLowConfidence
	case confidence < t.ReviewBelow:
		return domain.OutcomeNeedsReview
	default:
		return domain.OutcomeAccepted
	}
}

// Outcome is what the intake step needs from one extraction attempt.
type Outcome struct {
	Outcome    domain.GateOutcome
	Confidence *float64
	// Prefill holds only non-empty canonical fields. Nil unless the gate accepted.
	Prefill domain.FormPatch
}

func (o Outcome) NeedsReview() bool { return o.Outcome == domain.OutcomeNeedsReview }

// Processor runs an extraction under a timeout and applies the gate.
type Processor struct {
	Extractor  Extractor
	Mapper     Mapper
	Thresholds Thresholds
	Timeout    time.Duration
}

// NewProcessor returns a Processor using the KTP normalizer.
func NewProcessor(ex Extractor, th Thresholds, timeout time.Duration) Processor {
	return Processor{Extractor: ex, Mapper: NormalizeKTP, Thresholds: th, Timeout: timeout}
}

// Process extracts and gates one image. LowConfidence and ExtractionUnavailable are returned
// together with a populated Outcome so callers can still record what happened. Any other
// extractor failure is returned as a plain error.
func (p Processor) Process(ctx context.Context, image []byte, mime string) (Outcome, error) {
	if p.Extractor == nil {
		return Outcome{Outcome: domain.OutcomeExtractionUnavailable}, &domain.ExtractionUnavailableError{Cause: errors.New("no extractor configured")}
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	res, err := p.Extractor.Extract(ctx, image, mime)
	if err != nil {
		if isTimeout(ctx, err) {
			return Outcome{Outcome: domain.OutcomeExtractionUnavailable}, &domain.ExtractionUnavailableError{Cause: err}
		}
		return Outcome{}, fmt.Errorf("ocr extract: %w", err)
	}
	if math.IsNaN(res.Confidence) || res.Confidence < 0 || res.Confidence > 1 {
		return Outcome{}, fmt.Errorf("ocr extract: confidence %v out of range", res.Confidence)
	}
	conf := res.Confidence
	out := Outcome{Outcome: p.Thresholds.Gate(conf), Confidence: &conf}
	if out.Outcome == domain.OutcomeLowConfidence {
		return out, &domain.LowConfidenceError{Confidence: conf, Threshold: p.Thresholds.RejectBelow}
	}
	mapper := p.Mapper
	if mapper == nil {
		mapper = NormalizeKTP
	}
	out.Prefill = domain.FormPatch{}
	for f, v := range mapper(res.Fields) {
		if v != "" {
			out.Prefill[f] = v
		}
	}
	return out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
