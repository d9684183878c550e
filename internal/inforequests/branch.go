package inforequests

import (
	"sort"
)

// Branch is one thread of correspondence with a single obligee. The main
// branch has no AdvancedByID; advanced branches point at the ADVANCEMENT
// action that created them.
type Branch struct {
	ID                  int64
	InforequestID       int64
	ObligeeID           int64
	HistoricalObligeeID int64
	// AdvancedByID is the id of the advancement action in the parent
	// branch; zero for the main branch.
	AdvancedByID int64
	// Actions is the branch's action list ordered by (effective_date, id).
	// Never empty for a persisted branch.
	Actions []*Action
}

// IsMain reports whether this is the inforequest's main branch.
func (b *Branch) IsMain() bool { return b.AdvancedByID == 0 }

// SortActions restores the (effective_date, id) order after loading or
// appending.
func (b *Branch) SortActions() {
	sort.SliceStable(b.Actions, func(i, j int) bool {
		ai, aj := b.Actions[i], b.Actions[j]
		if !ai.EffectiveDate.Equal(aj.EffectiveDate) {
			return ai.EffectiveDate.Before(aj.EffectiveDate)
		}
		return ai.ID < aj.ID
	})
}

// LastAction returns the maximum action under the (effective_date, id)
// order, or nil for an empty (invalid) branch.
func (b *Branch) LastAction() *Action {
	if len(b.Actions) == 0 {
		return nil
	}
	return b.Actions[len(b.Actions)-1]
}

// CanAddRequest is always false: a REQUEST exists exactly once, seeded when
// the main branch is created.
func (b *Branch) CanAddRequest(*Deadlines) bool { return false }

// CanAddClarificationResponse reports whether a clarification response is a
// legal next action.
func (b *Branch) CanAddClarificationResponse(*Deadlines) bool {
	return b.LastAction().Type == TypeClarificationRequest
}

// CanAddAppeal reports whether an appeal is a legal next action. After a
// non-terminal obligee deadline the appeal is only allowed once that
// deadline was missed.
func (b *Branch) CanAddAppeal(d *Deadlines) bool {
	last := b.LastAction()
	if last.Type == TypeDisclosure {
		return last.DisclosureLevel != DisclosureFull
	}
	switch last.Type {
	case TypeRequest, TypeClarificationResponse, TypeConfirmation,
		TypeExtension, TypeRemandment, TypeAdvancedRequest:
		return d.Missed(last)
	}
	switch last.Type {
	case TypeRefusal, TypeAdvancement, TypeExpiration:
		return true
	}
	return false
}

// CanAddConfirmation reports whether a confirmation is a legal next action.
func (b *Branch) CanAddConfirmation(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddExtension reports whether an extension is a legal next action.
func (b *Branch) CanAddExtension(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeConfirmation, TypeClarificationResponse,
		TypeRemandment, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddAdvancement reports whether an advancement is a legal next action.
func (b *Branch) CanAddAdvancement(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeClarificationResponse, TypeConfirmation, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddClarificationRequest reports whether a clarification request is a
// legal next action.
func (b *Branch) CanAddClarificationRequest(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeClarificationResponse, TypeConfirmation,
		TypeClarificationRequest, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddDisclosure reports whether a disclosure is a legal next action.
func (b *Branch) CanAddDisclosure(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeClarificationResponse, TypeConfirmation,
		TypeExtension, TypeRemandment, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddRefusal reports whether a refusal is a legal next action.
func (b *Branch) CanAddRefusal(*Deadlines) bool {
	switch b.LastAction().Type {
	case TypeRequest, TypeClarificationResponse, TypeConfirmation,
		TypeExtension, TypeRemandment, TypeAdvancedRequest:
		return true
	}
	return false
}

// CanAddAffirmation reports whether an affirmation is a legal next action.
func (b *Branch) CanAddAffirmation(*Deadlines) bool {
	return b.LastAction().Type == TypeAppeal
}

// CanAddReversion reports whether a reversion is a legal next action.
func (b *Branch) CanAddReversion(*Deadlines) bool {
	return b.LastAction().Type == TypeAppeal
}

// CanAddRemandment reports whether a remandment is a legal next action.
func (b *Branch) CanAddRemandment(*Deadlines) bool {
	return b.LastAction().Type == TypeAppeal
}

// CanAdd reports whether the given action type is a legal next action.
func (b *Branch) CanAdd(d *Deadlines, t ActionType) bool {
	switch t {
	case TypeRequest:
		return b.CanAddRequest(d)
	case TypeClarificationResponse:
		return b.CanAddClarificationResponse(d)
	case TypeAppeal:
		return b.CanAddAppeal(d)
	case TypeConfirmation:
		return b.CanAddConfirmation(d)
	case TypeExtension:
		return b.CanAddExtension(d)
	case TypeAdvancement:
		return b.CanAddAdvancement(d)
	case TypeClarificationRequest:
		return b.CanAddClarificationRequest(d)
	case TypeDisclosure:
		return b.CanAddDisclosure(d)
	case TypeRefusal:
		return b.CanAddRefusal(d)
	case TypeAffirmation:
		return b.CanAddAffirmation(d)
	case TypeReversion:
		return b.CanAddReversion(d)
	case TypeRemandment:
		return b.CanAddRemandment(d)
	}
	// Implicit actions are inserted by the engine, never offered.
	return false
}

// CanAddAny reports whether any of the given types is a legal next action.
func (b *Branch) CanAddAny(d *Deadlines, types ...ActionType) bool {
	for _, t := range types {
		if b.CanAdd(d, t) {
			return true
		}
	}
	return false
}

// CanAddObligeeAction reports whether the branch accepts any obligee action.
func (b *Branch) CanAddObligeeAction(d *Deadlines) bool {
	return b.CanAddAny(d, ObligeeActionTypes...)
}

// CanAddObligeeEmailAction reports whether the branch accepts any obligee
// action deliverable by email.
func (b *Branch) CanAddObligeeEmailAction(d *Deadlines) bool {
	return b.CanAddAny(d, ObligeeEmailActionTypes...)
}

// CanAddApplicantAction reports whether the branch accepts any applicant
// action.
func (b *Branch) CanAddApplicantAction(d *Deadlines) bool {
	return b.CanAddAny(d, ApplicantActionTypes...)
}

// ExpirationIfExpired returns the implicit expiration action to insert when
// the branch's last action carries a missed obligee deadline, or nil. After
// an APPEAL the second instance expires instead.
func (b *Branch) ExpirationIfExpired(d *Deadlines) *Action {
	last := b.LastAction()
	if !last.HasObligeeDeadline() || !d.Missed(last) {
		return nil
	}
	t := TypeExpiration
	if last.Type == TypeAppeal {
		t = TypeAppealExpiration
	}
	date, _ := d.Date(last)
	a := &Action{
		BranchID:      b.ID,
		Type:          t,
		ContentType:   ContentPlainText,
		EffectiveDate: date,
	}
	if dl, ok := DefaultDeadline(t, 0); ok {
		a.Deadline = dl
		a.HasDeadline = true
	}
	return a
}
