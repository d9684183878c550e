// Package inforequests implements the inforequest lifecycle engine: the
// aggregate of correspondence branches, the closed action taxonomy, the
// branch state machine deciding which legal action may come next, deadline
// arithmetic over working days, and the inbound mail queue.
package inforequests

import (
	"time"
)

// MaxAdvancedTo caps how many obligees one advancement may forward the
// request to.
const MaxAdvancedTo = 3

// ActionType is the closed enumeration of legal events. The numeric codes
// are wire-visible and must not change.
type ActionType int16

const (
	// Applicant actions
	TypeRequest               ActionType = 1
	TypeClarificationResponse ActionType = 12
	TypeAppeal                ActionType = 13
	// Obligee actions
	TypeConfirmation         ActionType = 2
	TypeExtension            ActionType = 3
	TypeAdvancement          ActionType = 4
	TypeClarificationRequest ActionType = 5
	TypeDisclosure           ActionType = 6
	TypeRefusal              ActionType = 7
	TypeAffirmation          ActionType = 8
	TypeReversion            ActionType = 9
	TypeRemandment           ActionType = 10
	// Implicit actions
	TypeAdvancedRequest   ActionType = 11
	TypeExpiration        ActionType = 14
	TypeAppealExpiration  ActionType = 15
)

var typeNames = map[ActionType]string{
	TypeRequest:               "REQUEST",
	TypeClarificationResponse: "CLARIFICATION_RESPONSE",
	TypeAppeal:                "APPEAL",
	TypeConfirmation:          "CONFIRMATION",
	TypeExtension:             "EXTENSION",
	TypeAdvancement:           "ADVANCEMENT",
	TypeClarificationRequest:  "CLARIFICATION_REQUEST",
	TypeDisclosure:            "DISCLOSURE",
	TypeRefusal:               "REFUSAL",
	TypeAffirmation:           "AFFIRMATION",
	TypeReversion:             "REVERSION",
	TypeRemandment:            "REMANDMENT",
	TypeAdvancedRequest:       "ADVANCED_REQUEST",
	TypeExpiration:            "EXPIRATION",
	TypeAppealExpiration:      "APPEAL_EXPIRATION",
}

func (t ActionType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// ApplicantActionTypes are actions performed by the applicant.
var ApplicantActionTypes = []ActionType{
	TypeRequest,
	TypeClarificationResponse,
	TypeAppeal,
}

// ApplicantEmailActionTypes are applicant actions that may be sent by email.
var ApplicantEmailActionTypes = []ActionType{
	TypeRequest,
	TypeClarificationResponse,
}

// ObligeeActionTypes are actions performed by the obligee.
var ObligeeActionTypes = []ActionType{
	TypeConfirmation,
	TypeExtension,
	TypeAdvancement,
	TypeClarificationRequest,
	TypeDisclosure,
	TypeRefusal,
	TypeAffirmation,
	TypeReversion,
	TypeRemandment,
}

// ObligeeEmailActionTypes are obligee actions that may arrive by email.
var ObligeeEmailActionTypes = []ActionType{
	TypeConfirmation,
	TypeExtension,
	TypeAdvancement,
	TypeClarificationRequest,
	TypeDisclosure,
	TypeRefusal,
}

// ImplicitActionTypes are generated by the engine, never entered directly.
var ImplicitActionTypes = []ActionType{
	TypeAdvancedRequest,
	TypeExpiration,
	TypeAppealExpiration,
}

// IsApplicantAction reports whether the type belongs to the applicant group.
func (t ActionType) IsApplicantAction() bool { return contains(ApplicantActionTypes, t) }

// IsObligeeAction reports whether the type belongs to the obligee group.
func (t ActionType) IsObligeeAction() bool { return contains(ObligeeActionTypes, t) }

// IsImplicitAction reports whether the type is system-generated.
func (t ActionType) IsImplicitAction() bool { return contains(ImplicitActionTypes, t) }

func contains(ts []ActionType, t ActionType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// ContentType of an action body.
type ContentType int16

const (
	ContentPlainText ContentType = 1
	ContentHTML      ContentType = 2
)

// DisclosureLevel tells how much of the requested information an obligee
// action disclosed.
type DisclosureLevel int16

const (
	DisclosureNone    DisclosureLevel = 1
	DisclosurePartial DisclosureLevel = 2
	DisclosureFull    DisclosureLevel = 3
)

// RefusalReason is the closed multi-selection of statutory refusal grounds.
// The wire codes are string-valued for historical reasons.
type RefusalReason string

const (
	ReasonDoesNotHave    RefusalReason = "3"
	ReasonDoesNotProvide RefusalReason = "4"
	ReasonDoesNotCreate  RefusalReason = "5"
	ReasonCopyright      RefusalReason = "6"
	ReasonBusinessSecret RefusalReason = "7"
	ReasonPersonal       RefusalReason = "8"
	ReasonConfidential   RefusalReason = "9"
	ReasonOtherReason    RefusalReason = "-2"
)

// AllRefusalReasons lists every refusal reason in presentation order.
var AllRefusalReasons = []RefusalReason{
	ReasonDoesNotHave,
	ReasonDoesNotProvide,
	ReasonDoesNotCreate,
	ReasonCopyright,
	ReasonBusinessSecret,
	ReasonPersonal,
	ReasonConfidential,
	ReasonOtherReason,
}

// settingObligeeDeadline marks types whose deadline expects an obligee
// response; settingApplicantDeadline marks those expecting the applicant to
// act. All other types set no deadline.
var settingObligeeDeadline = map[ActionType]bool{
	TypeRequest:               true,
	TypeClarificationResponse: true,
	TypeAppeal:                true,
	TypeConfirmation:          true,
	TypeExtension:             true,
	TypeRemandment:            true,
	TypeAdvancedRequest:       true,
}

var settingApplicantDeadline = map[ActionType]bool{
	TypeAdvancement:          true,
	TypeClarificationRequest: true,
	TypeDisclosure:           true,
	TypeRefusal:              true,
	TypeExpiration:           true,
}

// defaultDeadlines gives the statutory default in working days. Types
// missing here set no deadline. DISCLOSURE is special-cased in
// DefaultDeadline: a full disclosure sets none.
var defaultDeadlines = map[ActionType]int{
	TypeRequest:               8,
	TypeClarificationResponse: 8,
	TypeAppeal:                30,
	TypeConfirmation:          8,
	TypeExtension:             10,
	TypeAdvancement:           60,
	TypeClarificationRequest:  7,
	TypeDisclosure:            15,
	TypeRefusal:               15,
	TypeRemandment:            13,
	TypeAdvancedRequest:       13,
	TypeExpiration:            60,
}

// DefaultDeadline returns the default deadline in working days for an
// action of the given type and disclosure level, or ok=false when the type
// sets no deadline.
func DefaultDeadline(t ActionType, level DisclosureLevel) (int, bool) {
	if t == TypeDisclosure && level == DisclosureFull {
		return 0, false
	}
	d, ok := defaultDeadlines[t]
	return d, ok
}

// Action is one legal event on a branch.
type Action struct {
	ID       int64
	BranchID int64
	// EmailID links the message the action was sent or received by; zero
	// for paper correspondence and implicit actions.
	EmailID       int64
	Type          ActionType
	Subject       string
	Content       string
	ContentType   ContentType
	EffectiveDate time.Time
	FileNumber    string
	// Deadline is the working-day count set by this action, 0 when the
	// type sets none (HasDeadline distinguishes).
	Deadline    int
	HasDeadline bool
	// Extension is the applicant-granted working-day extension of an
	// obligee deadline.
	Extension            int
	DisclosureLevel      DisclosureLevel
	RefusalReasons       []RefusalReason
	LastDeadlineReminder time.Time
}

// HasObligeeDeadline reports whether the action's deadline expects the
// obligee to respond.
func (a *Action) HasObligeeDeadline() bool {
	return a.HasDeadline && settingObligeeDeadline[a.Type]
}

// HasApplicantDeadline reports whether the action's deadline expects the
// applicant to act.
func (a *Action) HasApplicantDeadline() bool {
	return a.HasDeadline && settingApplicantDeadline[a.Type]
}

// HasReason reports whether the refusal reason is among the action's.
func (a *Action) HasReason(r RefusalReason) bool {
	for _, x := range a.RefusalReasons {
		if x == r {
			return true
		}
	}
	return false
}
