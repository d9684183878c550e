package inforequests

import (
	"time"
)

// Applicant is the principal supplied by the external identity provider.
type Applicant struct {
	ID       int64
	FullName string
	Street   string
	City     string
	Zip      string
	Email    string
}

// Inforequest is the aggregate root: one freedom-of-information case. The
// applicant contact fields are frozen at submission so later profile edits
// never rewrite the legal record.
type Inforequest struct {
	ID          int64
	ApplicantID int64

	ApplicantName   string
	ApplicantStreet string
	ApplicantCity   string
	ApplicantZip    string
	ApplicantEmail  string

	// UniqueEmail is the globally unique reply address; all obligees of
	// the case write to it, advanced ones included.
	UniqueEmail string

	SubmissionDate time.Time
	Closed         bool

	LastUndecidedEmailReminder time.Time

	// Branches are loaded ordered by id; exactly one of them is main.
	Branches []*Branch
}

// MainBranch returns the branch with no advancement parent. A persisted
// inforequest has exactly one.
func (ir *Inforequest) MainBranch() *Branch {
	for _, b := range ir.Branches {
		if b.IsMain() {
			return b
		}
	}
	return nil
}

// BranchByID returns the branch with the given id, or nil.
func (ir *Inforequest) BranchByID(id int64) *Branch {
	for _, b := range ir.Branches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BranchesAdvancedBy returns the sub-branches created by the given
// advancement action.
func (ir *Inforequest) BranchesAdvancedBy(actionID int64) []*Branch {
	var res []*Branch
	for _, b := range ir.Branches {
		if b.AdvancedByID == actionID {
			res = append(res, b)
		}
	}
	return res
}

// CanAddAny reports whether any branch accepts any of the given types.
func (ir *Inforequest) CanAddAny(d *Deadlines, types ...ActionType) bool {
	for _, b := range ir.Branches {
		if b.CanAddAny(d, types...) {
			return true
		}
	}
	return false
}

// EmailDisposition classifies the relation of a message to an inforequest.
type EmailDisposition int16

const (
	// DispositionApplicantAction marks outbound messages carrying an
	// applicant action.
	DispositionApplicantAction EmailDisposition = 1
	// DispositionObligeeAction marks inbound messages classified as an
	// obligee action.
	DispositionObligeeAction EmailDisposition = 2
	// DispositionUndecided marks inbound messages awaiting classification.
	DispositionUndecided EmailDisposition = 3
	// DispositionUnrelated marks inbound messages the user declared off
	// topic.
	DispositionUnrelated EmailDisposition = 4
	// DispositionUnknown marks inbound messages the user could not place.
	DispositionUnknown EmailDisposition = 5
)

// InforequestEmail joins a message to an inforequest with its disposition.
type InforequestEmail struct {
	ID            int64
	InforequestID int64
	MessageID     int64
	Disposition   EmailDisposition
}

// UndecidedEmail is one entry of the pending classification queue.
type UndecidedEmail struct {
	MessageID int64
	Processed time.Time
	FromName  string
	FromMail  string
	Subject   string
}
