package wizards

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWizard models a small branching flow: an intro, a detail step that
// only applies when requested, and a final confirmation.
func testWizard() *Wizard {
	return &Wizard{
		Name: "TestWizard",
		Steps: []Step{
			{
				Key:  "intro",
				Kind: StepForm,
				Fields: []Field{
					{Name: "wants_details", Kind: FieldBool, Required: true},
				},
			},
			{
				Key:  "details",
				Kind: StepForm,
				Fields: []Field{
					{Name: "details", Kind: FieldTextArea, Required: true},
				},
				Applicable: func(v Values) bool { return v.Bool("wants_details") },
			},
			{
				Key:  "confirm",
				Kind: StepForm,
				Fields: []Field{
					{Name: "confirmed", Kind: FieldBool, Required: true},
					{Name: "count", Kind: FieldInt},
				},
				Clean: func(v Values) error {
					if !v.Bool("confirmed") {
						return ErrValidation
					}
					return nil
				},
			},
		},
	}
}

func TestSubmitAdvances(t *testing.T) {
	w := testWizard()

	p, err := w.Submit(Values{}, "intro", Values{"wants_details": "false"})
	require.NoError(t, err)
	assert.False(t, p.Done)
	assert.Equal(t, "confirm", p.Next.Key, "inapplicable step is skipped")

	p, err = w.Submit(p.Values, "confirm", Values{"confirmed": "true"})
	require.NoError(t, err)
	assert.True(t, p.Done)
}

func TestApplicabilityRecomputed(t *testing.T) {
	w := testWizard()

	p, err := w.Submit(Values{}, "intro", Values{"wants_details": "true"})
	require.NoError(t, err)
	assert.Equal(t, "details", p.Next.Key)

	p, err = w.Submit(p.Values, "details", Values{"details": "everything"})
	require.NoError(t, err)
	assert.Equal(t, "confirm", p.Next.Key)

	// Flipping the earlier answer prunes the details step from the path.
	p, err = w.Submit(p.Values, "intro", Values{"wants_details": "false"})
	require.NoError(t, err)
	assert.Equal(t, "confirm", p.Next.Key)
	assert.Equal(t, "everything", p.Values["details"], "raw values survive pruning")
}

func TestRollbackToFailingEarlierStep(t *testing.T) {
	w := testWizard()

	v := Values{"wants_details": "true", "details": "everything"}
	// Wiping the details answer while submitting a later step rolls the
	// wizard back to the now invalid earlier step.
	v["details"] = ""
	p, err := w.Submit(v, "confirm", Values{"confirmed": "true"})
	require.NoError(t, err)
	assert.False(t, p.Done)
	assert.Equal(t, "details", p.Next.Key)
}

func TestSubmitMergesOwnFieldsOnly(t *testing.T) {
	w := testWizard()

	v := Values{"wants_details": "true", "details": "everything", "stray": "kept"}
	p, err := w.Submit(v, "details", Values{"details": "updated", "confirmed": "true"})
	require.NoError(t, err)

	want := Values{"wants_details": "true", "details": "updated", "stray": "kept"}
	if diff := cmp.Diff(want, p.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldValidation(t *testing.T) {
	w := testWizard()

	_, err := w.Submit(Values{}, "intro", Values{"wants_details": "maybe"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = w.Submit(Values{}, "intro", Values{})
	assert.ErrorIs(t, err, ErrValidation, "required field missing")

	v := Values{"wants_details": "false"}
	_, err = w.Submit(v, "confirm", Values{"confirmed": "true", "count": "three"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = w.Submit(v, "nonsense", Values{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChoiceFields(t *testing.T) {
	step := Step{
		Key:  "pick",
		Kind: StepForm,
		Fields: []Field{
			{Name: "one", Kind: FieldChoice, Required: true,
				Choices: []Choice{{Value: "a"}, {Value: "b"}}},
			{Name: "many", Kind: FieldMultiChoice,
				Choices: []Choice{{Value: "x"}, {Value: "y"}, {Value: "z"}}},
		},
	}
	w := &Wizard{Name: "Choices", Steps: []Step{step}}

	p, err := w.Submit(Values{}, "pick", Values{"one": "a", "many": "x,z"})
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.Equal(t, []string{"x", "z"}, p.Values.List("many"))

	_, err = w.Submit(Values{}, "pick", Values{"one": "c"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = w.Submit(Values{}, "pick", Values{"one": "a", "many": "x,q"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeadEnd(t *testing.T) {
	w := &Wizard{
		Name: "DeadEnds",
		Steps: []Step{
			{Key: "ask", Kind: StepForm, Fields: []Field{
				{Name: "hopeless", Kind: FieldBool, Required: true},
			}},
			{Key: "sorry", Kind: StepDeadEnd,
				Applicable: func(v Values) bool { return v.Bool("hopeless") }},
			{Key: "proceed", Kind: StepForm,
				Applicable: func(v Values) bool { return !v.Bool("hopeless") }},
		},
	}

	p, err := w.Submit(Values{}, "ask", Values{"hopeless": "true"})
	assert.ErrorIs(t, err, ErrDeadEnd)
	assert.Equal(t, "sorry", p.Next.Key)
	assert.False(t, w.Valid(p.Values))

	p, err = w.Submit(Values{}, "ask", Values{"hopeless": "false"})
	require.NoError(t, err)
	assert.Equal(t, "proceed", p.Next.Key)
}

func TestRunnerPersistsDrafts(t *testing.T) {
	ctx := context.Background()
	w := testWizard()
	r := NewRunner(NewMemoryDraftStore())

	draft, step, err := r.Resume(ctx, w, "7", 1)
	require.NoError(t, err)
	assert.Equal(t, "TestWizard-7", draft.ID)
	assert.Equal(t, "intro", step.Key)

	_, err = r.Submit(ctx, w, "7", 1, "intro", Values{"wants_details": "true"})
	require.NoError(t, err)

	// Resuming lands on the stored step with the stored values.
	draft, step, err = r.Resume(ctx, w, "7", 1)
	require.NoError(t, err)
	assert.Equal(t, "details", step.Key)
	assert.Equal(t, "true", draft.Values["wants_details"])

	// Another applicant cannot see the draft.
	_, step2, err := r.Resume(ctx, w, "7", 2)
	require.NoError(t, err)
	assert.Equal(t, "intro", step2.Key)

	require.NoError(t, r.Finish(ctx, w, "7", 1))
	_, step, err = r.Resume(ctx, w, "7", 1)
	require.NoError(t, err)
	assert.Equal(t, "intro", step.Key, "finished instances start over")
}

func TestPaperTemplateEscapes(t *testing.T) {
	tpl := MustPaperTemplate("test",
		"Appeal: {{.Subject}}",
		"<p>Dear {{.Name}},</p><p>{{.Reason}}</p>")

	paper, err := tpl.Render(map[string]string{
		"Subject": "contracts",
		"Name":    "Obligee",
		"Reason":  "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Appeal: contracts", paper.Subject)
	assert.Contains(t, paper.Body, "&lt;script&gt;")
	assert.NotContains(t, paper.Body, "<script>")
}
