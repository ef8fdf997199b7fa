package wizard

import "time"

// Transition describes a completed step change. Every change resets the
// page scroll position to the top.
type Transition struct {
	From        Step
	To          Step
	ResetScroll bool
}

// Next validates the current step and advances exactly one step. On a failed
// gate the step is unchanged and the FieldErrors are returned as the error.
// Leaving the contact step goes through submission, not Next.
func (f *FormState) Next(now time.Time) (Transition, error) {
	if f.Step == StepSubmitted {
		return Transition{}, ErrSubmitted
	}
	if f.Step == StepContact {
		return Transition{}, ErrSubmitRequired
	}
	if errs := f.Validate(f.Step); errs != nil {
		return Transition{}, errs
	}
	from := f.Step
	f.Step++
	f.UpdatedAt = now
	return Transition{From: from, To: f.Step, ResetScroll: true}, nil
}

// Back moves exactly one step back. It reports false at step one and after submission.
func (f *FormState) Back(now time.Time) (Transition, bool) {
	if f.Step <= StepDetails || f.Step == StepSubmitted {
		return Transition{}, false
	}
	from := f.Step
	f.Step--
	f.UpdatedAt = now
	return Transition{From: from, To: f.Step, ResetScroll: true}, true
}

// GoTo jumps back to an earlier step, for example from an "edit" link on the
// contact step. Forward jumps are rejected since they would skip a gate.
func (f *FormState) GoTo(step Step, now time.Time) (Transition, error) {
	if f.Step == StepSubmitted {
		return Transition{}, ErrSubmitted
	}
	if step < StepDetails || step > f.Step {
		return Transition{}, ErrStepSkip
	}
	if step == f.Step {
		return Transition{From: step, To: step}, nil
	}
	from := f.Step
	f.Step = step
	f.UpdatedAt = now
	return Transition{From: from, To: step, ResetScroll: true}, nil
}

// ReadyToSubmit checks every gate, so a form edited out of order cannot be
// submitted with an earlier step incomplete.
func (f *FormState) ReadyToSubmit() error {
	if f.Step == StepSubmitted {
		return ErrSubmitted
	}
	for step := StepDetails; step <= StepContact; step++ {
		if errs := f.Validate(step); errs != nil {
			return errs
		}
	}
	return nil
}

// MarkSubmitted moves the form to the terminal state.
func (f *FormState) MarkSubmitted(now time.Time) Transition {
	from := f.Step
	f.Step = StepSubmitted
	f.UpdatedAt = now
	return Transition{From: from, To: StepSubmitted, ResetScroll: true}
}
