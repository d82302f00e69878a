package harness

import (
	"context"
	"fmt"
)

// PrincipleError reports a principle a scenario declared but does not hold.
type PrincipleError struct {
	Principle string
	Scenario  string
	Detail    string
}

// Error implements the error interface.
func (e *PrincipleError) Error() string {
	return fmt.Sprintf("principle %q does not hold for scenario %q: %s", e.Principle, e.Scenario, e.Detail)
}

func (h *Harness) checkPrinciples(ctx context.Context) []string {
	var errs []string
	for _, p := range h.scenario.Principles {
		var err error
		switch p {
		case PrincipleIdempotent:
			err = h.checkIdempotent(ctx)
		default:
			err = &PrincipleError{Principle: p, Scenario: h.scenario.Name, Detail: "unknown principle"}
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// checkIdempotent runs the last step again under a fresh run ID. The
// rerun must neither mutate the target nor fail; its records are not part
// of the scenario trace.
func (h *Harness) checkIdempotent(ctx context.Context) error {
	last := &h.scenario.Steps[len(h.scenario.Steps)-1]
	runID := h.scenario.BaseRunID() + "-rerun"

	rec := &recorder{step: last.Name}
	sr, err := h.runStep(ctx, last, runID, rec)
	if err != nil {
		return err
	}

	fail := func(detail string) error {
		return &PrincipleError{Principle: PrincipleIdempotent, Scenario: h.scenario.Name, Detail: detail}
	}
	switch {
	case sr.Err != nil:
		return fail(fmt.Sprintf("rerun of step %s returned %v", last.Name, sr.Err))
	case sr.Summary.Mutations() > 0:
		var changed []string
		for _, e := range rec.events {
			if e.Action.IsMutation() {
				changed = append(changed, e.String())
			}
		}
		return fail(fmt.Sprintf("rerun of step %s made %d mutations: %v", last.Name, sr.Summary.Mutations(), changed))
	case len(sr.Summary.Failures) > 0:
		return fail(fmt.Sprintf("rerun of step %s failed: %v", last.Name, sr.Summary.Failures))
	}
	return nil
}
