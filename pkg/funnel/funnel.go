package funnel

import (
	"errors"
	"fmt"
	"time"

	"onboarding-funnel/pkg/validation"
)

// Storage keys for each step's record
const (
	Step1Key = "onboarding_step1"
	Step2Key = "onboarding_step2"
	Step3Key = "onboarding_step3"
)

var ErrOutOfOrder = errors.New("step submitted before its prerequisites")

// State is the visitor's position in the funnel. The numeric value equals
// the number of steps completed.
type State int

const (
	NotStarted State = iota
	Step1Done
	Step2Done
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Step1Done:
		return "step1_done"
	case Step2Done:
		return "step2_done"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step describes one page of the funnel.
type Step struct {
	Number int
	Name   string
	Key    string
	Path   string

	// NavigateAfter is how long the page waits before leaving so pending
	// analytics calls can flush.
	NavigateAfter time.Duration
	Form          validation.Form
}

// Label is how other steps refer to this one, e.g. "Step 1".
func (s Step) Label() string {
	return fmt.Sprintf("Step %d", s.Number)
}

// BackDelay is the pause before navigating to the previous step.
const BackDelay = 200 * time.Millisecond

var steps = []Step{
	{Number: 1, Name: "Business Information", Key: Step1Key, Path: "/onboarding/steps/1", NavigateAfter: 800 * time.Millisecond, Form: validation.Step1Form},
	{Number: 2, Name: "Contact Details", Key: Step2Key, Path: "/onboarding/steps/2", NavigateAfter: 800 * time.Millisecond, Form: validation.Step2Form},
	{Number: 3, Name: "Verification", Key: Step3Key, Path: "/onboarding/steps/3", NavigateAfter: time.Second, Form: validation.Step3Form},
}

// Steps returns the funnel's steps in order.
func Steps() []Step {
	return append([]Step(nil), steps...)
}

// Lookup returns the step with the given number.
func Lookup(n int) (Step, bool) {
	if n < 1 || n > len(steps) {
		return Step{}, false
	}
	return steps[n-1], true
}

// Previous returns the step before s, if any.
func (s Step) Previous() (Step, bool) {
	return Lookup(s.Number - 1)
}

// Next returns the step after s, if any.
func (s Step) Next() (Step, bool) {
	return Lookup(s.Number + 1)
}

// Final reports whether submitting s completes the funnel.
func (s Step) Final() bool {
	return s.Number == len(steps)
}

// Derive computes the state from which step records are present. Only an
// unbroken prefix counts: a step 2 record without step 1 is NotStarted.
func Derive(hasStep1, hasStep2 bool) State {
	switch {
	case hasStep1 && hasStep2:
		return Step2Done
	case hasStep1:
		return Step1Done
	default:
		return NotStarted
	}
}

// Gate decides whether step s may be shown in state st. When it may not,
// the earliest missing step is returned.
func Gate(s Step, st State) (Step, bool) {
	required := State(s.Number - 1)
	if st >= required {
		return Step{}, true
	}
	missing, _ := Lookup(int(st) + 1)
	return missing, false
}

// Transition applies a valid submission of step s in state st. Resubmitting
// an earlier step keeps the later progress; the final step completes.
func Transition(st State, s Step) (State, error) {
	if _, ok := Gate(s, st); !ok {
		return st, fmt.Errorf("%w: %s in state %s", ErrOutOfOrder, s.Label(), st)
	}
	if s.Final() {
		return Completed, nil
	}
	if next := State(s.Number); next > st {
		return next, nil
	}
	return st, nil
}
