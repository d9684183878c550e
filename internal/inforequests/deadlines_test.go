package inforequests

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infodesk/internal/timewarp"
	"github.com/infodesk/internal/workdays"
)

func TestDefaultDeadlines(t *testing.T) {
	cases := []struct {
		typ  ActionType
		days int
	}{
		{TypeRequest, 8},
		{TypeClarificationResponse, 8},
		{TypeAppeal, 30},
		{TypeConfirmation, 8},
		{TypeExtension, 10},
		{TypeAdvancement, 60},
		{TypeClarificationRequest, 7},
		{TypeRefusal, 15},
		{TypeRemandment, 13},
		{TypeAdvancedRequest, 13},
		{TypeExpiration, 60},
	}
	for _, c := range cases {
		d, ok := DefaultDeadline(c.typ, 0)
		require.True(t, ok, c.typ.String())
		assert.Equal(t, c.days, d, c.typ.String())
	}

	for _, typ := range []ActionType{TypeAffirmation, TypeReversion, TypeAppealExpiration} {
		_, ok := DefaultDeadline(typ, 0)
		assert.False(t, ok, typ.String())
	}
}

func TestDisclosureDeadlineDependsOnLevel(t *testing.T) {
	d, ok := DefaultDeadline(TypeDisclosure, DisclosureNone)
	require.True(t, ok)
	assert.Equal(t, 15, d)

	d, ok = DefaultDeadline(TypeDisclosure, DisclosurePartial)
	require.True(t, ok)
	assert.Equal(t, 15, d)

	_, ok = DefaultDeadline(TypeDisclosure, DisclosureFull)
	assert.False(t, ok, "a full disclosure leaves nothing to wait for")
}

func TestDeadlineDateSkipsHolidays(t *testing.T) {
	d := NewDeadlines(timewarp.Fixed{At: workdays.Date(2024, time.January, 2)}, workdays.Slovakia())
	a := &Action{
		Type:          TypeRequest,
		EffectiveDate: workdays.Date(2023, time.December, 20),
		Deadline:      8,
		HasDeadline:   true,
	}

	// Christmas Eve through Boxing Day and New Year are holidays, so eight
	// working days from Wed 2023-12-20 reach Thu 2024-01-04.
	date, ok := d.Date(a)
	require.True(t, ok)
	assert.Equal(t, workdays.Date(2024, time.January, 4), date)

	remaining, ok := d.Remaining(a)
	require.True(t, ok)
	assert.Equal(t, 2, remaining)
	assert.False(t, d.Missed(a))
}

func TestRemainingAndMissed(t *testing.T) {
	a := &Action{
		Type:          TypeRequest,
		EffectiveDate: workdays.Date(2024, time.January, 1),
		Deadline:      8,
		HasDeadline:   true,
	}

	lastDay := fixedDeadlines(workdays.Date(2024, time.January, 11))
	remaining, ok := lastDay.Remaining(a)
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
	assert.False(t, lastDay.Missed(a), "the deadline holds through its last day")

	dayAfter := fixedDeadlines(workdays.Date(2024, time.January, 12))
	remaining, _ = dayAfter.Remaining(a)
	assert.Equal(t, -1, remaining)
	assert.True(t, dayAfter.Missed(a))

	weekend := fixedDeadlines(workdays.Date(2024, time.January, 13))
	remaining, _ = weekend.Remaining(a)
	assert.Equal(t, -1, remaining, "weekends do not consume working days")
}

func TestExtensionMovesDeadline(t *testing.T) {
	d := fixedDeadlines(workdays.Date(2024, time.January, 17))
	a := &Action{
		Type:          TypeRequest,
		EffectiveDate: workdays.Date(2024, time.January, 1),
		Deadline:      8,
		HasDeadline:   true,
	}
	require.True(t, d.Missed(a))

	// Granting 5 working days from today: 12 passed, so the stored
	// extension is 12 - 8 + 5 = 9.
	ext, err := d.ExtensionFor(a, 5)
	require.NoError(t, err)
	assert.Equal(t, 9, ext)

	a.Extension = ext
	remaining, ok := d.Remaining(a)
	require.True(t, ok)
	assert.Equal(t, 5, remaining)
	assert.False(t, d.Missed(a))

	// A second grant replaces the first relative to the base deadline.
	ext2, err := d.ExtensionFor(a, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, ext2)
}

func TestExtensionValidation(t *testing.T) {
	d := fixedDeadlines(workdays.Date(2024, time.January, 17))
	a := &Action{
		Type:          TypeRequest,
		EffectiveDate: workdays.Date(2024, time.January, 1),
		Deadline:      8,
		HasDeadline:   true,
	}

	_, err := d.ExtensionFor(a, 1)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.ExtensionFor(a, MaxExtension+1)
	assert.ErrorIs(t, err, ErrValidation)

	refusal := &Action{
		Type:          TypeRefusal,
		EffectiveDate: workdays.Date(2024, time.January, 1),
		Deadline:      15,
		HasDeadline:   true,
	}
	_, err = d.ExtensionFor(refusal, 5)
	assert.ErrorIs(t, err, ErrNotExtendable, "applicant deadlines are not extendable")

	affirmation := &Action{Type: TypeAffirmation, EffectiveDate: workdays.Date(2024, time.January, 1)}
	_, err = d.ExtensionFor(affirmation, 5)
	assert.ErrorIs(t, err, ErrNotExtendable)
}

func TestRandomReadableToken(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for length := MinTokenLength; length <= MaxTokenLength; length++ {
		token := RandomReadableToken(rnd, length)
		require.Len(t, token, length)
		for i, ch := range token {
			if i%2 == 0 {
				assert.Contains(t, consonants, string(ch))
			} else {
				assert.Contains(t, vowels, string(ch))
			}
		}
	}
}

func TestRandomReadableTokenDeterministic(t *testing.T) {
	a := RandomReadableToken(rand.New(rand.NewSource(42)), 6)
	b := RandomReadableToken(rand.New(rand.NewSource(42)), 6)
	assert.Equal(t, a, b)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "kavo@mail.example.com",
		FormatAddress("{token}@mail.example.com", "kavo"))
	assert.Equal(t, "req-kavo@example.com",
		FormatAddress("req-{token}@example.com", "kavo"))
}
