package obligeeaction

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

func testInforequest(types ...inforequests.ActionType) (*inforequests.Inforequest, *inforequests.Deadlines) {
	d := inforequests.NewDeadlines(
		timewarp.Fixed{At: workdays.Date(2024, time.March, 6)}, workdays.NewHolidaySet())
	b := &inforequests.Branch{ID: 5}
	day := workdays.Date(2024, time.March, 4)
	for i, t := range types {
		a := &inforequests.Action{
			ID:            int64(i + 1),
			BranchID:      5,
			Type:          t,
			EffectiveDate: day,
		}
		if dl, ok := inforequests.DefaultDeadline(t, 0); ok {
			a.Deadline = dl
			a.HasDeadline = true
		}
		b.Actions = append(b.Actions, a)
		day = workdays.Advance(day, 1, workdays.NewHolidaySet())
	}
	ir := &inforequests.Inforequest{ID: 9, Branches: []*inforequests.Branch{b}}
	return ir, d
}

// walk submits each step in order, failing the test on any error.
func walk(t *testing.T, w *Interview, v wizards.Values, steps []struct {
	step   string
	values wizards.Values
}) wizards.Values {
	t.Helper()
	for _, s := range steps {
		p, err := w.Submit(v, s.step, s.values)
		require.NoError(t, err, s.step)
		v = p.Values
	}
	return v
}

func TestQuestionShortCircuits(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	p, err := w.Submit(wizards.Values{}, "basics", wizards.Values{
		"branch": "5", "effective_date": "2024-03-05",
	})
	require.NoError(t, err)
	require.Equal(t, "question", p.Next.Key)

	// A clarification request resolves the tree; the interview jumps
	// straight to the confirmation summary.
	p, err = w.Submit(p.Values, "question", wizards.Values{"is_question": "true"})
	require.NoError(t, err)
	require.Equal(t, "confirm", p.Next.Key)

	p, err = w.Submit(p.Values, "confirm", wizards.Values{"confirmed": "true"})
	require.NoError(t, err)
	assert.True(t, p.Done)

	params, err := w.Params(p.Values, ir.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, inforequests.TypeClarificationRequest, params.Type)
	assert.Equal(t, int64(5), params.BranchID)
	assert.True(t, params.EffectiveDate.Equal(workdays.Date(2024, time.March, 5)))
}

func TestFullDisclosurePath(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05", "file_number": "ABC/123"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "true"}},
		{"contains_info", wizards.Values{"contains_info": "full"}},
	})

	p, err := w.Submit(v, "confirm", wizards.Values{"confirmed": "true"})
	require.NoError(t, err)
	assert.True(t, p.Done)

	params, err := w.Params(p.Values, ir.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, inforequests.TypeDisclosure, params.Type)
	assert.Equal(t, inforequests.DisclosureFull, params.DisclosureLevel)
	assert.Equal(t, "ABC/123", params.FileNumber)
}

func TestRefusalPath(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 31)
	require.NoError(t, err)
	assert.Equal(t, "ObligeeEmailActionWizard", w.Name)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "true"}},
		{"contains_info", wizards.Values{"contains_info": "none"}},
		{"decision", wizards.Values{"is_decision": "true"}},
	})

	// "No reason" excludes the concrete grounds.
	_, err = w.Submit(v, "refusal_reasons", wizards.Values{"refusal_reasons": "none,8"})
	assert.ErrorIs(t, err, wizards.ErrValidation)

	p, err := w.Submit(v, "refusal_reasons", wizards.Values{"refusal_reasons": "8,-2"})
	require.NoError(t, err)
	p, err = w.Submit(p.Values, "confirm", wizards.Values{"confirmed": "true"})
	require.NoError(t, err)
	assert.True(t, p.Done)

	params, err := w.Params(p.Values, ir.ID, 31)
	require.NoError(t, err)
	assert.Equal(t, inforequests.TypeRefusal, params.Type)
	assert.Equal(t, int64(31), params.MessageID)
	assert.Equal(t, []inforequests.RefusalReason{
		inforequests.ReasonPersonal, inforequests.ReasonOtherReason,
	}, params.RefusalReasons)
}

func TestRefusalWithoutReason(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "true"}},
		{"contains_info", wizards.Values{"contains_info": "none"}},
		{"decision", wizards.Values{"is_decision": "true"}},
		{"refusal_reasons", wizards.Values{"refusal_reasons": "none"}},
		{"confirm", wizards.Values{"confirmed": "true"}},
	})

	params, err := w.Params(v, ir.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, inforequests.TypeRefusal, params.Type)
	assert.Empty(t, params.RefusalReasons)
}

func TestAdvancementPath(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "true"}},
		{"contains_info", wizards.Values{"contains_info": "partial"}},
		{"decision", wizards.Values{"is_decision": "false"}},
		{"advancement", wizards.Values{"is_advancement": "true"}},
		{"advancement_targets", wizards.Values{"advanced_to": "12, 13"}},
		{"confirm", wizards.Values{"confirmed": "true"}},
	})

	params, err := w.Params(v, ir.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, inforequests.TypeAdvancement, params.Type)
	assert.Equal(t, []int64{12, 13}, params.AdvancedTo)

	// A request can be advanced to at most three obligees.
	_, err = w.Submit(v, "advancement_targets", wizards.Values{"advanced_to": "12, 13, 14, 15"})
	assert.ErrorIs(t, err, wizards.ErrValidation)
}

func TestOffTopicEmailRouting(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 31)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "false"}},
	})

	p, err := w.Submit(v, "off_topic", wizards.Values{"off_topic_route": RouteUnrelated})
	require.NoError(t, err)
	assert.True(t, p.Done)

	actionType, route := w.Resolution(p.Values)
	assert.Equal(t, inforequests.ActionType(0), actionType)
	assert.Equal(t, RouteUnrelated, route)

	_, err = w.Params(p.Values, ir.ID, 31)
	assert.ErrorIs(t, err, wizards.ErrValidation, "routing produces no action")
}

func TestOffTopicPaperDeadEnds(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
	})

	p, err := w.Submit(v, "on_topic", wizards.Values{"on_topic": "false"})
	assert.ErrorIs(t, err, wizards.ErrDeadEnd)
	assert.Equal(t, "off_topic", p.Next.Key)
}

func TestUncategorizedEmailRouting(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest)
	w, err := New(ir, d, 31)
	require.NoError(t, err)

	v := walk(t, w, wizards.Values{}, []struct {
		step   string
		values wizards.Values
	}{
		{"basics", wizards.Values{"branch": "5", "effective_date": "2024-03-05"}},
		{"question", wizards.Values{"is_question": "false"}},
		{"confirmation", wizards.Values{"is_confirmation": "false"}},
		{"on_topic", wizards.Values{"on_topic": "true"}},
		{"contains_info", wizards.Values{"contains_info": "partial"}},
		{"decision", wizards.Values{"is_decision": "false"}},
		{"advancement", wizards.Values{"is_advancement": "false"}},
	})

	p, err := w.Submit(v, "uncategorized", wizards.Values{"uncategorized_route": RouteHelp})
	require.NoError(t, err)
	assert.True(t, p.Done)

	_, route := w.Resolution(p.Values)
	assert.Equal(t, RouteHelp, route)
}

func TestNodesSkippedWhenProtocolForbids(t *testing.T) {
	// After a confirmation the obligee cannot confirm again, so the
	// confirmation question never appears.
	ir, d := testInforequest(inforequests.TypeRequest, inforequests.TypeConfirmation)
	w, err := New(ir, d, 0)
	require.NoError(t, err)

	p, err := w.Submit(wizards.Values{}, "basics", wizards.Values{
		"branch": "5", "effective_date": "2024-03-05",
	})
	require.NoError(t, err)
	require.Equal(t, "question", p.Next.Key)

	p, err = w.Submit(p.Values, "question", wizards.Values{"is_question": "false"})
	require.NoError(t, err)
	assert.Equal(t, "on_topic", p.Next.Key)
}

func TestEmailModeNeedsAnAcceptingBranch(t *testing.T) {
	ir, d := testInforequest(inforequests.TypeRequest, inforequests.TypeRefusal,
		inforequests.TypeAppeal)
	// After an appeal only court-style decisions remain, none of which
	// arrive by email, so classification offers no branch at all.
	_, err := New(ir, d, 77)
	assert.ErrorIs(t, err, wizards.ErrValidation)

	w, err := New(ir, d, 0)
	require.NoError(t, err)
	assert.Equal(t, "ObligeeActionWizard", w.Name)
}

func TestAnchorSeparatesInstances(t *testing.T) {
	assert.Equal(t, "9", Anchor(9, 0))
	assert.Equal(t, "9-msg-31", Anchor(9, 31))
	assert.NotEqual(t, Anchor(9, 31), Anchor(9, 32))
}
