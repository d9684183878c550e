package inforequests

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infodesk/internal/mail"
	"github.com/infodesk/internal/obligees"
	"github.com/infodesk/internal/timewarp"
	"github.com/infodesk/internal/workdays"
)

// recordingTransport captures outbound messages instead of delivering them.
type recordingTransport struct {
	sent []*mail.Message
}

func (t *recordingTransport) Send(ctx context.Context, msg *mail.Message, _ []mail.Attachment) error {
	t.sent = append(t.sent, msg)
	return nil
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("INFODESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INFODESK_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/0001_schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func testService(t *testing.T, db *sql.DB, today time.Time, transport *recordingTransport) *Service {
	t.Helper()
	deadlines := NewDeadlines(timewarp.Fixed{At: today}, workdays.Slovakia())
	return NewService(db, obligees.NewStorage(db), mail.NewStorage(db),
		transport, deadlines,
		"{token}@mail.example.com", "info@example.com", nil)
}

func testObligee(t *testing.T, db *sql.DB) *obligees.Obligee {
	t.Helper()
	o := &obligees.Obligee{
		Name:   "Mestský úrad Testovo " + time.Now().Format("150405.000000000"),
		Street: "Hlavná 1",
		City:   "Testovo",
		Zip:    "010 01",
		Emails: "podatelna@testovo.example.sk",
	}
	require.NoError(t, obligees.NewStorage(db).Create(context.Background(), o, "test"))
	return o
}

func TestCreateInforequestLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	transport := &recordingTransport{}
	today := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, today, transport)
	obligee := testObligee(t, db)

	applicant := Applicant{
		ID: 42, FullName: "Jana Testerová", Street: "Dlhá 5",
		City: "Bratislava", Zip: "811 01", Email: "jana@example.com",
	}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID,
		"Žiadosť o informácie", "Prosím o zverejnenie zmlúv.")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(ir.UniqueEmail, "@mail.example.com"))
	assert.Equal(t, "Jana Testerová", ir.ApplicantName)
	assert.False(t, ir.Closed)

	main := ir.MainBranch()
	require.NotNil(t, main)
	require.Len(t, main.Actions, 1)
	request := main.Actions[0]
	assert.Equal(t, TypeRequest, request.Type)
	assert.Equal(t, 8, request.Deadline)
	assert.True(t, request.EffectiveDate.Equal(today))
	assert.NotZero(t, request.EmailID)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, ir.UniqueEmail, transport.sent[0].FromMail)
	require.Len(t, transport.sent[0].Recipients, 1)
	assert.Equal(t, "podatelna@testovo.example.sk", transport.sent[0].Recipients[0].Mail)

	// The protocol forbids a second request and an immediate appeal.
	_, err = svc.AddAppeal(ctx, applicant.ID, ir.ID, main.ID, "x", "y")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDispatchAndClassify(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	transport := &recordingTransport{}
	today := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, today, transport)
	obligee := testObligee(t, db)

	applicant := Applicant{ID: 43, FullName: "Peter Tester", Email: "peter@example.com"}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID, "Subject", "Content")
	require.NoError(t, err)

	dispatcher := NewDispatcher(svc, mail.NewDedup(nil))

	first, err := dispatcher.Dispatch(ctx, &InboundEmail{
		FromName: "Podateľňa", FromMail: "podatelna@testovo.example.sk",
		Subject: "Potvrdenie", Text: "Potvrdzujeme prijatie.",
		Recipients: []mail.Recipient{{Mail: ir.UniqueEmail, Kind: mail.KindTo}},
	})
	require.NoError(t, err)
	require.NotZero(t, first)

	second, err := dispatcher.Dispatch(ctx, &InboundEmail{
		FromMail: "podatelna@testovo.example.sk",
		Subject:  "Rozhodnutie", Text: "Žiadosť sa zamieta.",
		Recipients: []mail.Recipient{{Mail: ir.UniqueEmail, Kind: mail.KindTo}},
	})
	require.NoError(t, err)

	queue, err := svc.Store().ListUndecided(ctx, ir.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first, queue[0].MessageID)

	// Only the oldest undecided message may be classified.
	err = svc.ClassifyUnrelated(ctx, applicant.ID, ir.ID, second)
	assert.ErrorIs(t, err, ErrNotOldest)

	main := ir.MainBranch()
	action, err := svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID: ir.ID,
		BranchID:      main.ID,
		Type:          TypeConfirmation,
		Subject:       "Potvrdenie",
		EffectiveDate: today,
		MessageID:     first,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeConfirmation, action.Type)
	assert.Equal(t, 8, action.Deadline)

	action, err = svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID:  ir.ID,
		BranchID:       main.ID,
		Type:           TypeRefusal,
		Subject:        "Rozhodnutie",
		EffectiveDate:  today,
		RefusalReasons: []RefusalReason{ReasonPersonal, ReasonOtherReason},
		MessageID:      second,
	})
	require.NoError(t, err)
	assert.Equal(t, []RefusalReason{ReasonPersonal, ReasonOtherReason}, action.RefusalReasons)

	queue, err = svc.Store().ListUndecided(ctx, ir.ID)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestDispatchUnmatchedMail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	svc := testService(t, db, workdays.Date(2024, time.March, 4), &recordingTransport{})
	dispatcher := NewDispatcher(svc, mail.NewDedup(nil))

	id, err := dispatcher.Dispatch(ctx, &InboundEmail{
		FromMail:   "somebody@example.org",
		Subject:    "spam",
		Recipients: []mail.Recipient{{Mail: "nobody@mail.example.com", Kind: mail.KindTo}},
	})
	require.NoError(t, err)
	assert.NotZero(t, id, "unmatched mail is stored for triage")
}

func TestAdvancementCreatesSubBranches(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	today := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, today, &recordingTransport{})
	obligee := testObligee(t, db)
	other := testObligee(t, db)

	applicant := Applicant{ID: 44, FullName: "Eva Testová", Email: "eva@example.com"}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID, "Subject", "Content")
	require.NoError(t, err)
	main := ir.MainBranch()

	// Advancing to the branch's own obligee is rejected.
	_, err = svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID: ir.ID, BranchID: main.ID, Type: TypeAdvancement,
		EffectiveDate: today, AdvancedTo: []int64{obligee.ID},
	})
	assert.ErrorIs(t, err, ErrValidation)

	// So is advancing to more than three obligees.
	_, err = svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID: ir.ID, BranchID: main.ID, Type: TypeAdvancement,
		EffectiveDate: today, AdvancedTo: []int64{9001, 9002, 9003, 9004},
	})
	assert.ErrorIs(t, err, ErrValidation)

	action, err := svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID: ir.ID, BranchID: main.ID, Type: TypeAdvancement,
		EffectiveDate: today, AdvancedTo: []int64{other.ID},
	})
	require.NoError(t, err)

	ir, err = svc.Store().GetInforequest(ctx, ir.ID)
	require.NoError(t, err)
	subs := ir.BranchesAdvancedBy(action.ID)
	require.Len(t, subs, 1)
	assert.Equal(t, other.ID, subs[0].ObligeeID)
	require.Len(t, subs[0].Actions, 1)
	seed := subs[0].Actions[0]
	assert.Equal(t, TypeAdvancedRequest, seed.Type)
	assert.Equal(t, 13, seed.Deadline)
	assert.True(t, seed.EffectiveDate.Equal(action.EffectiveDate))
}

func TestGrantExtensionAndAppeal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	submitted := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, submitted, &recordingTransport{})
	obligee := testObligee(t, db)

	applicant := Applicant{ID: 45, FullName: "Igor Tester", Email: "igor@example.com"}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID, "Subject", "Content")
	require.NoError(t, err)
	main := ir.MainBranch()

	// Before the deadline runs out nothing is extendable.
	_, err = svc.GrantExtension(ctx, applicant.ID, ir.ID, main.ID, 5)
	assert.ErrorIs(t, err, ErrValidation)

	// Twelve working days later the request deadline (8) is missed.
	later := testService(t, db, workdays.Advance(submitted, 12, workdays.Slovakia()), &recordingTransport{})
	extended, err := later.GrantExtension(ctx, applicant.ID, ir.ID, main.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 9, extended.Extension)

	// The grant un-misses the deadline, taking the appeal off the table.
	ir, err = later.Store().GetInforequest(ctx, ir.ID)
	require.NoError(t, err)
	assert.False(t, ir.MainBranch().CanAddAppeal(later.Deadlines()))

	// Far past the extended deadline the appeal implies an expiration.
	final := testService(t, db, workdays.Advance(submitted, 40, workdays.Slovakia()), &recordingTransport{})
	appeal, err := final.AddAppeal(ctx, applicant.ID, ir.ID, main.ID, "Odvolanie", "<p>Odvolávam sa.</p>")
	require.NoError(t, err)
	assert.Equal(t, TypeAppeal, appeal.Type)

	ir, err = final.Store().GetInforequest(ctx, ir.ID)
	require.NoError(t, err)
	actions := ir.MainBranch().Actions
	require.Len(t, actions, 3)
	assert.Equal(t, TypeRequest, actions[0].Type)
	assert.Equal(t, TypeExpiration, actions[1].Type)
	assert.Equal(t, TypeAppeal, actions[2].Type)
}

func TestObligeeDateValidation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	today := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, today, &recordingTransport{})
	obligee := testObligee(t, db)

	applicant := Applicant{ID: 46, FullName: "Olga Testová", Email: "olga@example.com"}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID, "Subject", "Content")
	require.NoError(t, err)
	main := ir.MainBranch()

	base := ObligeeActionParams{
		InforequestID: ir.ID, BranchID: main.ID, Type: TypeConfirmation,
	}

	future := base
	future.EffectiveDate = today.AddDate(0, 0, 1)
	_, err = svc.AddObligeeAction(ctx, applicant.ID, future)
	assert.ErrorIs(t, err, ErrValidation)

	tooOld := base
	tooOld.EffectiveDate = today.AddDate(0, -2, 0)
	_, err = svc.AddObligeeAction(ctx, applicant.ID, tooOld)
	assert.ErrorIs(t, err, ErrValidation)

	beforeRequest := base
	beforeRequest.EffectiveDate = today.AddDate(0, 0, -7)
	_, err = svc.AddObligeeAction(ctx, applicant.ID, beforeRequest)
	assert.ErrorIs(t, err, ErrValidation, "date precedes the request")
}

func TestActionDraftLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	today := workdays.Date(2024, time.March, 4)
	svc := testService(t, db, today, &recordingTransport{})
	obligee := testObligee(t, db)

	applicant := Applicant{ID: 47, FullName: "Petra Testová", Email: "petra@example.com"}
	ir, err := svc.CreateInforequest(ctx, applicant, obligee.ID, "Subject", "Content")
	require.NoError(t, err)
	main := ir.MainBranch()

	_, err = svc.Draft(ctx, applicant.ID, ir.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	draft := &ActionDraft{
		InforequestID: ir.ID,
		BranchID:      main.ID,
		Type:          TypeRefusal,
		Subject:       "Rozhodnutie",
		FileNumber:    "ABC/123",
		RefusalReasons: []RefusalReason{ReasonPersonal},
	}
	require.NoError(t, svc.SaveDraft(ctx, applicant.ID, draft))
	require.NotZero(t, draft.ID)

	// Saving again updates in place, it does not grow a second draft.
	draft.Subject = "Rozhodnutie o odmietnutí"
	draft.EffectiveDate = today
	require.NoError(t, svc.SaveDraft(ctx, applicant.ID, draft))

	loaded, err := svc.Draft(ctx, applicant.ID, ir.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, loaded.ID)
	assert.Equal(t, "Rozhodnutie o odmietnutí", loaded.Subject)
	assert.Equal(t, TypeRefusal, loaded.Type)
	assert.Equal(t, []RefusalReason{ReasonPersonal}, loaded.RefusalReasons)
	assert.True(t, loaded.EffectiveDate.Equal(today))

	// Another applicant sees nothing and cannot discard it.
	_, err = svc.Draft(ctx, 999, ir.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DiscardDraft(ctx, 999, ir.ID), ErrNotFound)

	// Committing the drafted action consumes the draft.
	_, err = svc.AddObligeeAction(ctx, applicant.ID, ObligeeActionParams{
		InforequestID:  ir.ID,
		BranchID:       main.ID,
		Type:           TypeRefusal,
		Subject:        loaded.Subject,
		EffectiveDate:  today,
		FileNumber:     loaded.FileNumber,
		RefusalReasons: loaded.RefusalReasons,
	})
	require.NoError(t, err)
	_, err = svc.Draft(ctx, applicant.ID, ir.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
