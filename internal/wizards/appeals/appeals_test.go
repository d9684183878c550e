package appeals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/timewarp"
	"github.com/infodesk/internal/wizards"
	"github.com/infodesk/internal/workdays"
)

func testCase(today time.Time, types ...inforequests.ActionType) (*inforequests.Inforequest, *inforequests.Branch, *inforequests.Deadlines) {
	d := inforequests.NewDeadlines(timewarp.Fixed{At: today}, workdays.NewHolidaySet())
	b := &inforequests.Branch{ID: 1}
	day := workdays.Date(2024, time.January, 1)
	for i, t := range types {
		a := &inforequests.Action{
			ID:            int64(i + 1),
			BranchID:      1,
			Type:          t,
			Subject:       "Zmluvy mesta",
			EffectiveDate: day,
		}
		if dl, ok := inforequests.DefaultDeadline(t, 0); ok {
			a.Deadline = dl
			a.HasDeadline = true
		}
		b.Actions = append(b.Actions, a)
		day = workdays.Advance(day, 1, workdays.NewHolidaySet())
	}
	ir := &inforequests.Inforequest{ID: 1, ApplicantName: "Jana Testerová", Branches: []*inforequests.Branch{b}}
	return ir, b, d
}

func TestWizardSelection(t *testing.T) {
	early := workdays.Date(2024, time.January, 4)
	late := workdays.Date(2024, time.June, 3)

	t.Run("partial disclosure", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeDisclosure)
		b.LastAction().DisclosureLevel = inforequests.DisclosurePartial
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "DisclosureAppeal", appeal.Wizard.Name)
	})

	t.Run("full disclosure is not appealable", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeDisclosure)
		b.LastAction().DisclosureLevel = inforequests.DisclosureFull
		_, err := WizardFor(ir, b, d, "Mesto Testovo")
		assert.ErrorIs(t, err, ErrNotAppealable)
	})

	t.Run("partial disclosure on advanced branch falls back", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeAdvancedRequest, inforequests.TypeDisclosure)
		b.AdvancedByID = 99
		b.LastAction().DisclosureLevel = inforequests.DisclosurePartial
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "FallbackAppeal", appeal.Wizard.Name)
	})

	t.Run("partial disclosure after an earlier appeal falls back", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeRefusal,
			inforequests.TypeAppeal, inforequests.TypeRemandment, inforequests.TypeDisclosure)
		b.LastAction().DisclosureLevel = inforequests.DisclosurePartial
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "FallbackAppeal", appeal.Wizard.Name)
	})

	t.Run("refusal with an unknown reason falls back", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeRefusal)
		b.LastAction().RefusalReasons = []inforequests.RefusalReason{"99"}
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "FallbackAppeal", appeal.Wizard.Name)
	})

	t.Run("refusal with reasons", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeRefusal)
		b.LastAction().RefusalReasons = []inforequests.RefusalReason{inforequests.ReasonPersonal}
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "RefusalAppeal", appeal.Wizard.Name)
	})

	t.Run("refusal without reasons", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeRefusal)
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "RefusalNoReasonAppeal", appeal.Wizard.Name)
	})

	t.Run("advancement", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest, inforequests.TypeAdvancement)
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "AdvancementAppeal", appeal.Wizard.Name)
	})

	t.Run("silence implies expiration", func(t *testing.T) {
		ir, b, d := testCase(late, inforequests.TypeRequest)
		appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
		require.NoError(t, err)
		assert.Equal(t, "ExpirationAppeal", appeal.Wizard.Name)
	})

	t.Run("pending deadline is not appealable", func(t *testing.T) {
		ir, b, d := testCase(early, inforequests.TypeRequest)
		_, err := WizardFor(ir, b, d, "Mesto Testovo")
		assert.ErrorIs(t, err, ErrNotAppealable)
	})
}

func TestSuggestedPaper(t *testing.T) {
	ir, b, d := testCase(workdays.Date(2024, time.January, 4),
		inforequests.TypeRequest, inforequests.TypeRefusal)
	appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
	require.NoError(t, err)

	assert.Equal(t, "Odvolanie: Zmluvy mesta", appeal.Suggested.Subject)
	assert.Contains(t, appeal.Suggested.Body, "Mesto Testovo")
	assert.Contains(t, appeal.Suggested.Body, "Jana Testerová")
}

func refusalWizard(t *testing.T, reasons ...inforequests.RefusalReason) *Appeal {
	t.Helper()
	ir, b, d := testCase(workdays.Date(2024, time.January, 4),
		inforequests.TypeRequest, inforequests.TypeRefusal)
	b.LastAction().RefusalReasons = reasons
	appeal, err := WizardFor(ir, b, d, "Mesto Testovo")
	require.NoError(t, err)
	require.Equal(t, "RefusalAppeal", appeal.Wizard.Name)
	return appeal
}

func TestRefusalReasonPath(t *testing.T) {
	appeal := refusalWizard(t, inforequests.ReasonDoesNotHave, inforequests.ReasonPersonal)
	w := appeal.Wizard

	// The does-not-have ground needs an argument.
	_, err := w.Submit(wizards.Values{}, "does_not_have_reason", wizards.Values{})
	assert.ErrorIs(t, err, wizards.ErrValidation)

	p, err := w.Submit(wizards.Values{}, "does_not_have_reason", wizards.Values{
		"does_not_have_reason": "Informáciu musí mať zo zákona.",
	})
	require.NoError(t, err)
	assert.Equal(t, "personal_officer", p.Next.Key)

	// Taking the public-officer fork skips the fallback step.
	p, err = w.Submit(p.Values, "personal_officer", wizards.Values{"personal_officer": "yes"})
	require.NoError(t, err)
	assert.Equal(t, "personal_officer_reason", p.Next.Key)

	p, err = w.Submit(p.Values, "personal_officer_reason", wizards.Values{
		"personal_officer_reason": "Ide o verejného funkcionára.",
	})
	require.NoError(t, err)
	assert.Equal(t, "sanitization_level", p.Next.Key)

	p, err = w.Submit(p.Values, "sanitization_level", wizards.Values{
		"sanitization_level": "properly-sanitized",
	})
	require.NoError(t, err)
	assert.Equal(t, "paper", p.Next.Key)

	p, err = w.Submit(p.Values, "paper", wizards.Values{
		"paper_subject": appeal.Suggested.Subject,
		"paper_content": appeal.Suggested.Body,
	})
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.True(t, w.Valid(p.Values))
}

func TestRefusalBusinessSecretForks(t *testing.T) {
	appeal := refusalWizard(t, inforequests.ReasonBusinessSecret)
	w := appeal.Wizard

	for _, key := range []string{
		"business_secret_public_funds",
		"business_secret_definition",
		"business_secret_definition_reason",
		"business_secret_fallback_reason",
		"sanitization_level",
	} {
		_, ok := w.Step(key)
		assert.True(t, ok, key)
	}

	p, err := w.Submit(wizards.Values{}, "business_secret_public_funds",
		wizards.Values{"business_secret_public_funds": "no"})
	require.NoError(t, err)
	assert.Equal(t, "business_secret_definition", p.Next.Key)

	// Disputing definition elements opens the statutory path.
	p, err = w.Submit(p.Values, "business_secret_definition",
		wizards.Values{"business_secret_definition": "value,will"})
	require.NoError(t, err)
	assert.Equal(t, "business_secret_definition_reason", p.Next.Key)

	// Every disputed element needs its own argument.
	_, err = w.Submit(p.Values, "business_secret_definition_reason", wizards.Values{
		"business_secret_definition_reason_value": "Informácia nemá trhovú hodnotu.",
	})
	assert.ErrorIs(t, err, wizards.ErrValidation)

	p, err = w.Submit(p.Values, "business_secret_definition_reason", wizards.Values{
		"business_secret_definition_reason_value": "Informácia nemá trhovú hodnotu.",
		"business_secret_definition_reason_will":  "Vlastník ju neoznačil za tajomstvo.",
	})
	require.NoError(t, err)
	assert.Equal(t, "sanitization_level", p.Next.Key)

	p, err = w.Submit(p.Values, "sanitization_level",
		wizards.Values{"sanitization_level": "overly-sanitized"})
	require.NoError(t, err)
	assert.Equal(t, "sanitization_overly_sanitized", p.Next.Key)

	p, err = w.Submit(p.Values, "sanitization_overly_sanitized", wizards.Values{
		"sanitization_overly_sanitized": "Zmluvné sumy boli začiernené bez dôvodu.",
	})
	require.NoError(t, err)
	assert.Equal(t, "paper", p.Next.Key)

	p, err = w.Submit(p.Values, "paper", wizards.Values{
		"paper_subject": appeal.Suggested.Subject,
		"paper_content": appeal.Suggested.Body,
	})
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.True(t, w.Valid(p.Values))
}

func TestRefusalOtherReasonForks(t *testing.T) {
	appeal := refusalWizard(t, inforequests.ReasonOtherReason)
	w := appeal.Wizard

	p, err := w.Submit(wizards.Values{}, "other_reason_valid",
		wizards.Values{"other_reason_valid": "no"})
	require.NoError(t, err)
	assert.Equal(t, "other_reason_invalid_reason", p.Next.Key)

	p, err = w.Submit(p.Values, "other_reason_invalid_reason", wizards.Values{
		"other_reason_invalid_reason": "Uvedený dôvod zákon nepozná.",
	})
	require.NoError(t, err)
	assert.Equal(t, "paper", p.Next.Key)
}

func TestRefusalAllConcededDeadEnds(t *testing.T) {
	appeal := refusalWizard(t, inforequests.ReasonPersonal)
	w := appeal.Wizard

	p, err := w.Submit(wizards.Values{}, "personal_officer",
		wizards.Values{"personal_officer": "no"})
	require.NoError(t, err)
	assert.Equal(t, "personal_fallback_reason", p.Next.Key)

	// Contesting the ground without an argument is rejected.
	_, err = w.Submit(p.Values, "personal_fallback_reason",
		wizards.Values{"personal_fallback": "true"})
	assert.ErrorIs(t, err, wizards.ErrValidation)

	// Leaving the ground uncontested concedes the whole appeal.
	p, err = w.Submit(p.Values, "personal_fallback_reason",
		wizards.Values{"personal_fallback": "false"})
	assert.ErrorIs(t, err, wizards.ErrDeadEnd)
	assert.Equal(t, "conceded", p.Next.Key)
	assert.False(t, w.Valid(p.Values))
}
