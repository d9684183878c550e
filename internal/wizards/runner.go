package wizards

import (
	"context"
)

// Runner drives wizard instances against a draft store. The wizard
// declaration is stateless; all per-user state lives in the draft.
type Runner struct {
	store DraftStore
}

// NewRunner creates a runner over the given store.
func NewRunner(store DraftStore) *Runner {
	return &Runner{store: store}
}

// Resume loads or starts the instance of the wizard anchored at the given
// entity and returns the step to show. A stored step that became
// inapplicable after the anchor changed falls back to the first unsatisfied
// step of the current path.
func (r *Runner) Resume(ctx context.Context, w *Wizard, anchor string, applicantID int64) (*Draft, Step, error) {
	id := w.InstanceKey(anchor)
	draft, err := r.store.Get(ctx, id, applicantID)
	if err == ErrNoDraft {
		first, ferr := w.FirstStep(Values{})
		if ferr != nil {
			return nil, Step{}, ferr
		}
		draft = &Draft{ID: id, ApplicantID: applicantID, Step: first.Key, Values: Values{}}
		if err := r.store.Save(ctx, draft); err != nil {
			return nil, Step{}, err
		}
		return draft, first, nil
	}
	if err != nil {
		return nil, Step{}, err
	}

	if step, ok := w.Step(draft.Step); ok && step.applicable(draft.Values) {
		return draft, step, nil
	}
	step, err := firstUnsatisfied(w, draft.Values)
	if err != nil {
		return nil, Step{}, err
	}
	draft.Step = step.Key
	if err := r.store.Save(ctx, draft); err != nil {
		return nil, Step{}, err
	}
	return draft, step, nil
}

func firstUnsatisfied(w *Wizard, v Values) (Step, error) {
	path := w.ApplicableSteps(v)
	if len(path) == 0 {
		return Step{}, ErrDeadEnd
	}
	for _, s := range path {
		if err := s.clean(v); err != nil {
			return s, nil
		}
	}
	return path[len(path)-1], nil
}

// Submit applies one step submission to the instance and persists the
// outcome. Validation errors leave the draft untouched.
func (r *Runner) Submit(ctx context.Context, w *Wizard, anchor string, applicantID int64,
	stepKey string, submitted Values) (Progress, error) {

	id := w.InstanceKey(anchor)
	draft, err := r.store.Get(ctx, id, applicantID)
	if err == ErrNoDraft {
		draft = &Draft{ID: id, ApplicantID: applicantID, Values: Values{}}
	} else if err != nil {
		return Progress{}, err
	}

	progress, err := w.Submit(draft.Values, stepKey, submitted)
	if err != nil {
		return progress, err
	}

	draft.Values = progress.Values
	if progress.Done {
		draft.Step = ""
	} else {
		draft.Step = progress.Next.Key
	}
	if err := r.store.Save(ctx, draft); err != nil {
		return Progress{}, err
	}
	return progress, nil
}

// Finish discards the instance draft after its outcome was applied.
func (r *Runner) Finish(ctx context.Context, w *Wizard, anchor string, applicantID int64) error {
	return r.store.Delete(ctx, w.InstanceKey(anchor), applicantID)
}
