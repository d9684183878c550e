// Package wizards implements the multi-step form engine. A wizard is a flat
// list of steps; which steps apply is recomputed from the collected values
// after every submission, so changing an early answer prunes or revives the
// later path automatically. Raw values are persisted per instance, letting
// the applicant leave and resume.
package wizards

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrValidation marks user input violating a field or step contract.
var ErrValidation = errors.New("validation failed")

// ErrDeadEnd is returned when the wizard reaches a step with no way forward.
var ErrDeadEnd = errors.New("wizard reached a dead end")

// Values holds raw string answers keyed by field name. Multi-selections are
// comma-joined. Values survive serialization as submitted; typed access goes
// through the getters.
type Values map[string]string

// Bool reads a checkbox value.
func (v Values) Bool(name string) bool { return v[name] == "true" }

// Int reads an integer value; malformed or missing input yields ok=false.
func (v Values) Int(name string) (int, bool) {
	n, err := strconv.Atoi(v[name])
	return n, err == nil
}

// Date reads an ISO date value.
func (v Values) Date(name string) (time.Time, bool) {
	d, err := time.Parse("2006-01-02", v[name])
	return d, err == nil
}

// List reads a comma-joined multi-selection.
func (v Values) List(name string) []string {
	if v[name] == "" {
		return nil
	}
	return strings.Split(v[name], ",")
}

func (v Values) clone() Values {
	c := make(Values, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// StepKind tells how a step is presented.
type StepKind int

const (
	// StepForm collects field values.
	StepForm StepKind = iota + 1
	// StepSection shows static guidance and collects nothing.
	StepSection
	// StepPaper previews the generated document and lets the user amend it.
	StepPaper
	// StepDeadEnd informs the user the wizard cannot help in this situation.
	StepDeadEnd
)

// FieldKind tells how a field value is validated.
type FieldKind int

const (
	FieldText FieldKind = iota + 1
	FieldTextArea
	FieldBool
	FieldInt
	FieldDate
	FieldChoice
	FieldMultiChoice
)

// Choice is one option of a choice field.
type Choice struct {
	Value string
	Label string
}

// Field is one input of a form step.
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Required bool
	Choices  []Choice
	// Validate runs after the kind check; nil means no extra rule.
	Validate func(value string) error
}

func (f Field) clean(value string) error {
	if value == "" {
		if f.Required {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.Name)
		}
		return nil
	}
	switch f.Kind {
	case FieldBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s must be a boolean", ErrValidation, f.Name)
		}
	case FieldInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%w: %s must be a number", ErrValidation, f.Name)
		}
	case FieldDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("%w: %s must be a date", ErrValidation, f.Name)
		}
	case FieldChoice:
		if !f.hasChoice(value) {
			return fmt.Errorf("%w: %s has an unknown value", ErrValidation, f.Name)
		}
	case FieldMultiChoice:
		for _, part := range strings.Split(value, ",") {
			if !f.hasChoice(part) {
				return fmt.Errorf("%w: %s has an unknown value", ErrValidation, f.Name)
			}
		}
	}
	if f.Validate != nil {
		if err := f.Validate(value); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) hasChoice(value string) bool {
	for _, c := range f.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// Step is one node of a wizard. Steps are declared in order; Applicable
// prunes them dynamically based on the values collected so far.
type Step struct {
	Key    string
	Kind   StepKind
	Title  string
	Fields []Field
	// Applicable decides whether the step shows given the answers so far;
	// nil means always.
	Applicable func(Values) bool
	// Clean performs cross-field validation of the whole value set once the
	// step's own fields passed; nil means none.
	Clean func(Values) error
}

func (s Step) applicable(v Values) bool {
	return s.Applicable == nil || s.Applicable(v)
}

// clean validates the step's fields and cross-field rules against the given
// value set.
func (s Step) clean(v Values) error {
	for _, f := range s.Fields {
		if err := f.clean(v[f.Name]); err != nil {
			return err
		}
	}
	if s.Clean != nil {
		return s.Clean(v)
	}
	return nil
}

// Wizard is a declared step sequence bound to one anchor (typically a branch
// id), forming one resumable instance per anchor.
type Wizard struct {
	Name  string
	Steps []Step
}

// InstanceKey identifies the draft of this wizard anchored at the given
// entity.
func (w *Wizard) InstanceKey(anchor string) string {
	return w.Name + "-" + anchor
}

// Step returns the declared step with the given key.
func (w *Wizard) Step(key string) (Step, bool) {
	for _, s := range w.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return Step{}, false
}

// ApplicableSteps returns the path through the wizard under the given
// values, in declaration order.
func (w *Wizard) ApplicableSteps(v Values) []Step {
	var res []Step
	for _, s := range w.Steps {
		if s.applicable(v) {
			res = append(res, s)
		}
	}
	return res
}

// FirstStep returns the first applicable step for a fresh instance.
func (w *Wizard) FirstStep(v Values) (Step, error) {
	steps := w.ApplicableSteps(v)
	if len(steps) == 0 {
		return Step{}, ErrDeadEnd
	}
	return steps[0], nil
}

// Progress is the outcome of a submission.
type Progress struct {
	// Values is the merged value set after the submission.
	Values Values
	// Next is the step to show now; meaningless when Done.
	Next Step
	// Done reports that every applicable step is satisfied and the wizard
	// may be finished.
	Done bool
}

// Submit merges the submitted values of one step and decides where the
// wizard goes next. Changing an answer can make earlier steps applicable or
// invalid again; the wizard always rolls back to the first applicable step
// that no longer validates, so the user re-confirms everything downstream of
// the change.
func (w *Wizard) Submit(stored Values, stepKey string, submitted Values) (Progress, error) {
	step, ok := w.Step(stepKey)
	if !ok {
		return Progress{}, fmt.Errorf("%w: unknown step %q", ErrValidation, stepKey)
	}

	merged := stored.clone()
	if merged == nil {
		merged = Values{}
	}
	for _, f := range step.Fields {
		if val, ok := submitted[f.Name]; ok {
			merged[f.Name] = val
		}
	}

	if !step.applicable(merged) {
		return Progress{}, fmt.Errorf("%w: step %q is not applicable", ErrValidation, stepKey)
	}
	if err := step.clean(merged); err != nil {
		return Progress{}, err
	}

	// Walk the recomputed path. The first earlier applicable step that no
	// longer validates becomes current; otherwise the first step after the
	// submitted one.
	path := w.ApplicableSteps(merged)
	passed := false
	for _, s := range path {
		if !passed {
			if err := s.clean(merged); err != nil {
				return Progress{Values: merged, Next: s}, nil
			}
		}
		if s.Kind == StepDeadEnd {
			return Progress{Values: merged, Next: s}, ErrDeadEnd
		}
		if passed {
			return Progress{Values: merged, Next: s}, nil
		}
		if s.Key == stepKey {
			passed = true
		}
	}
	if !passed {
		// The submitted step fell off its own path; restart from the top.
		first, err := w.FirstStep(merged)
		if err != nil {
			return Progress{}, err
		}
		return Progress{Values: merged, Next: first}, nil
	}
	return Progress{Values: merged, Done: true}, nil
}

// Valid reports whether the whole applicable path validates, meaning the
// wizard can be finished.
func (w *Wizard) Valid(v Values) bool {
	path := w.ApplicableSteps(v)
	if len(path) == 0 {
		return false
	}
	for _, s := range path {
		if s.Kind == StepDeadEnd {
			return false
		}
		if err := s.clean(v); err != nil {
			return false
		}
	}
	return true
}
