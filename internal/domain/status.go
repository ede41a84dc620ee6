package domain

import "fmt"

// Status is the authoritative pipeline position of a candidate.
type Status string

const (
	StatusNew                 Status = "new"
	StatusScreening           Status = "screening"
	StatusScreenedPass        Status = "screened_pass"
	StatusScreenedFail        Status = "screened_fail"
	StatusSubmitted           Status = "submitted"
	StatusInterviewScheduled  Status = "interview_scheduled"
	StatusInterviewPassed     Status = "interview_passed"
	StatusInterviewFailed     Status = "interview_failed"
	StatusOnboarding          Status = "onboarding"
	StatusOnboardingCompleted Status = "onboarding_completed"
	StatusContractRequested   Status = "contract_requested"
	StatusHired               Status = "hired"
	StatusRejected            Status = "rejected"
)

// Statuses lists the closed set in happy-path order.
var Statuses = []Status{
	StatusNew,
	StatusScreening,
	StatusScreenedPass,
	StatusScreenedFail,
	StatusSubmitted,
	StatusInterviewScheduled,
	StatusInterviewPassed,
	StatusInterviewFailed,
	StatusOnboarding,
	StatusOnboardingCompleted,
	StatusContractRequested,
	StatusHired,
	StatusRejected,
}

// Trigger names who may drive a transition.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerSubmission Trigger = "submission"
	TriggerHRD        Trigger = "hrd"
)

type edge struct {
	from Status
	to   Status
}

var transitions = map[edge]Trigger{
	{StatusNew, StatusScreening}:                         TriggerManual,
	{StatusScreening, StatusScreenedPass}:                TriggerManual,
	{StatusScreening, StatusScreenedFail}:                TriggerManual,
	{StatusScreenedPass, StatusSubmitted}:                TriggerManual,
	{StatusSubmitted, StatusInterviewScheduled}:          TriggerManual,
	{StatusInterviewScheduled, StatusInterviewPassed}:    TriggerManual,
	{StatusInterviewScheduled, StatusInterviewFailed}:    TriggerManual,
	{StatusInterviewPassed, StatusOnboarding}:            TriggerManual,
	{StatusOnboarding, StatusOnboardingCompleted}:        TriggerSubmission,
	{StatusOnboardingCompleted, StatusContractRequested}: TriggerManual,
	{StatusContractRequested, StatusHired}:               TriggerHRD,
	{StatusContractRequested, StatusOnboardingCompleted}: TriggerHRD,

	{StatusNew, StatusRejected}:                 TriggerManual,
	{StatusScreening, StatusRejected}:           TriggerManual,
	{StatusScreenedPass, StatusRejected}:        TriggerManual,
	{StatusSubmitted, StatusRejected}:           TriggerManual,
	{StatusInterviewScheduled, StatusRejected}:  TriggerManual,
	{StatusInterviewPassed, StatusRejected}:     TriggerManual,
	{StatusOnboarding, StatusRejected}:          TriggerManual,
	{StatusOnboardingCompleted, StatusRejected}: TriggerManual,
	{StatusContractRequested, StatusRejected}:   TriggerManual,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(AllowedNext(s)) == 0
}

// TransitionTrigger looks up the (from,to) pair in the static table.
func TransitionTrigger(from, to Status) (Trigger, bool) {
	t, ok := transitions[edge{from, to}]
	return t, ok
}

// AllowedNext returns every target reachable from s, in happy-path order.
func AllowedNext(s Status) []Status {
	var next []Status
	for _, to := range Statuses {
		if _, ok := transitions[edge{s, to}]; ok {
			next = append(next, to)
		}
	}
	return next
}

// CheckTransition validates a transition for the given trigger without side effects.
func CheckTransition(from, to Status, trigger Trigger) error {
	if !to.Valid() {
		return &InvalidTransitionError{From: from, To: to, Reason: "unknown status"}
	}
	want, ok := TransitionTrigger(from, to)
	if !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	if want != trigger {
		return &InvalidTransitionError{From: from, To: to, Reason: fmt.Sprintf("requires %s trigger", want)}
	}
	return nil
}
