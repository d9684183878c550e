// Package obligeeaction declares the interview recording what an obligee
// did. Instead of asking for an action type directly it walks a short
// decision tree: is it a question, a confirmation, is it on topic, how
// much was disclosed, is it a decision, an advancement. The first branch
// hit wins. The same interview serves paper correspondence and the
// classification of the oldest undecided email.
package obligeeaction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/wizards"
)

// Routing targets for mail that does not produce an action.
const (
	RouteUnrelated = "unrelated"
	RouteHelp      = "help"
)

const (
	infoFull    = "full"
	infoPartial = "partial"
	infoNone    = "none"

	// Exclusive choice standing in for an empty refusal reason set.
	reasonNone = "none"
)

// Outcome is what finishing the interview produced: either an appended
// action or a routing decision for the classified email.
type Outcome struct {
	Action *inforequests.Action
	Routed string
}

// Interview pairs the generic wizard with the tree resolution the steps
// were built around.
type Interview struct {
	*wizards.Wizard
	resolved func(wizards.Values) (inforequests.ActionType, bool)
}

func routeChoices() []wizards.Choice {
	return []wizards.Choice{
		{Value: RouteUnrelated, Label: "Mark it unrelated"},
		{Value: RouteHelp, Label: "Ask for help"},
	}
}

func infoChoices() []wizards.Choice {
	return []wizards.Choice{
		{Value: infoFull, Label: "Everything I asked for"},
		{Value: infoPartial, Label: "Only part of it"},
		{Value: infoNone, Label: "Nothing"},
	}
}

func reasonChoices() []wizards.Choice {
	res := make([]wizards.Choice, 0, len(inforequests.AllRefusalReasons)+1)
	for _, r := range inforequests.AllRefusalReasons {
		res = append(res, wizards.Choice{Value: string(r)})
	}
	res = append(res, wizards.Choice{Value: reasonNone, Label: "No reason was given"})
	return res
}

// New builds the interview for the given inforequest. When a message id is
// set the interview classifies that email: only branches accepting an
// obligee email action are offered and finishing ties the action to the
// message. Paper entry offers no routing, an off topic paper is a dead end.
func New(ir *inforequests.Inforequest, d *inforequests.Deadlines, messageID int64) (*Interview, error) {
	email := messageID != 0
	var branchChoices []wizards.Choice
	accepts := map[int64]*inforequests.Branch{}
	for _, b := range ir.Branches {
		ok := b.CanAddObligeeAction(d)
		if email {
			ok = b.CanAddObligeeEmailAction(d)
		}
		if !ok {
			continue
		}
		branchChoices = append(branchChoices, wizards.Choice{
			Value: strconv.FormatInt(b.ID, 10),
		})
		accepts[b.ID] = b
	}
	if len(branchChoices) == 0 {
		return nil, fmt.Errorf("%w: no branch accepts an obligee action", wizards.ErrValidation)
	}

	name := "ObligeeActionWizard"
	if email {
		name = "ObligeeEmailActionWizard"
	}

	canAdd := func(v wizards.Values, t inforequests.ActionType) bool {
		id, err := strconv.ParseInt(v["branch"], 10, 64)
		if err != nil {
			return false
		}
		b := accepts[id]
		return b != nil && b.CanAdd(d, t)
	}

	// Tree predicates. Each node applies only while no earlier node hit,
	// and only when the protocol accepts the action it would produce.
	isQuestion := func(v wizards.Values) bool {
		return canAdd(v, inforequests.TypeClarificationRequest) && v.Bool("is_question")
	}
	isConfirmation := func(v wizards.Values) bool {
		return !isQuestion(v) && canAdd(v, inforequests.TypeConfirmation) && v.Bool("is_confirmation")
	}
	asksOnTopic := func(v wizards.Values) bool {
		return !isQuestion(v) && !isConfirmation(v)
	}
	offTopic := func(v wizards.Values) bool {
		_, answered := v["on_topic"]
		return asksOnTopic(v) && answered && !v.Bool("on_topic")
	}
	onTopic := func(v wizards.Values) bool {
		return asksOnTopic(v) && v.Bool("on_topic")
	}
	fullDisclosure := func(v wizards.Values) bool {
		return onTopic(v) && v["contains_info"] == infoFull &&
			canAdd(v, inforequests.TypeDisclosure)
	}
	asksDecision := func(v wizards.Values) bool {
		if !onTopic(v) || fullDisclosure(v) {
			return false
		}
		info := v["contains_info"]
		return (info == infoPartial || info == infoNone) &&
			canAdd(v, inforequests.TypeRefusal)
	}
	isDecision := func(v wizards.Values) bool {
		return asksDecision(v) && v.Bool("is_decision")
	}
	asksAdvancement := func(v wizards.Values) bool {
		return onTopic(v) && !fullDisclosure(v) && !isDecision(v) &&
			v["contains_info"] != "" &&
			canAdd(v, inforequests.TypeAdvancement)
	}
	isAdvancement := func(v wizards.Values) bool {
		return asksAdvancement(v) && v.Bool("is_advancement")
	}
	uncategorized := func(v wizards.Values) bool {
		return onTopic(v) && v["contains_info"] != "" &&
			!fullDisclosure(v) && !isDecision(v) && !isAdvancement(v)
	}
	resolved := func(v wizards.Values) (inforequests.ActionType, bool) {
		switch {
		case isQuestion(v):
			return inforequests.TypeClarificationRequest, true
		case isConfirmation(v):
			return inforequests.TypeConfirmation, true
		case fullDisclosure(v):
			return inforequests.TypeDisclosure, true
		case isDecision(v):
			return inforequests.TypeRefusal, true
		case isAdvancement(v):
			return inforequests.TypeAdvancement, true
		}
		return 0, false
	}

	offTopicStep := wizards.Step{
		Key:   "off_topic",
		Kind:  wizards.StepDeadEnd,
		Title: "An off topic paper has nothing to record here",
		Applicable: offTopic,
	}
	uncategorizedStep := wizards.Step{
		Key:   "uncategorized",
		Kind:  wizards.StepDeadEnd,
		Title: "The paper does not fit any recordable action",
		Applicable: uncategorized,
	}
	if email {
		offTopicStep = wizards.Step{
			Key:   "off_topic",
			Kind:  wizards.StepForm,
			Title: "The message is off topic",
			Fields: []wizards.Field{
				{Name: "off_topic_route", Kind: wizards.FieldChoice, Required: true, Choices: routeChoices()},
			},
			Applicable: offTopic,
		}
		uncategorizedStep = wizards.Step{
			Key:   "uncategorized",
			Kind:  wizards.StepForm,
			Title: "The message fits no category",
			Fields: []wizards.Field{
				{Name: "uncategorized_route", Kind: wizards.FieldChoice, Required: true, Choices: routeChoices()},
			},
			Applicable: uncategorized,
		}
	}

	steps := []wizards.Step{
		{
			Key:   "basics",
			Kind:  wizards.StepForm,
			Title: "Which obligee acted and when",
			Fields: []wizards.Field{
				{Name: "branch", Kind: wizards.FieldChoice, Required: true, Choices: branchChoices},
				{Name: "effective_date", Kind: wizards.FieldDate, Required: true},
				{Name: "file_number", Kind: wizards.FieldText},
				{Name: "subject", Kind: wizards.FieldText},
				{Name: "content", Kind: wizards.FieldTextArea},
			},
			Clean: func(v wizards.Values) error {
				id, _ := strconv.ParseInt(v["branch"], 10, 64)
				b := accepts[id]
				date, ok := v.Date("effective_date")
				if b == nil || !ok {
					return nil
				}
				today := d.Clock.Today()
				if last := b.LastAction(); last != nil && date.Before(last.EffectiveDate) {
					return fmt.Errorf("%w: the date precedes the last recorded action", wizards.ErrValidation)
				}
				if date.After(today) {
					return fmt.Errorf("%w: the date is in the future", wizards.ErrValidation)
				}
				if date.Before(today.AddDate(0, -1, 0)) {
					return fmt.Errorf("%w: the date is more than a month old", wizards.ErrValidation)
				}
				return nil
			},
		},
		{
			Key:   "question",
			Kind:  wizards.StepForm,
			Title: "Does the obligee ask you to clarify the request",
			Fields: []wizards.Field{
				{Name: "is_question", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: func(v wizards.Values) bool {
				return canAdd(v, inforequests.TypeClarificationRequest)
			},
		},
		{
			Key:   "confirmation",
			Kind:  wizards.StepForm,
			Title: "Does the obligee only confirm receiving the request",
			Fields: []wizards.Field{
				{Name: "is_confirmation", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: func(v wizards.Values) bool {
				return !isQuestion(v) && canAdd(v, inforequests.TypeConfirmation)
			},
		},
		{
			Key:   "on_topic",
			Kind:  wizards.StepForm,
			Title: "Is it about your request at all",
			Fields: []wizards.Field{
				{Name: "on_topic", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: asksOnTopic,
		},
		offTopicStep,
		{
			Key:   "contains_info",
			Kind:  wizards.StepForm,
			Title: "How much of the requested information does it contain",
			Fields: []wizards.Field{
				{Name: "contains_info", Kind: wizards.FieldChoice, Required: true, Choices: infoChoices()},
			},
			Applicable: onTopic,
		},
		{
			Key:   "decision",
			Kind:  wizards.StepForm,
			Title: "Is it a formal decision",
			Fields: []wizards.Field{
				{Name: "is_decision", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: asksDecision,
		},
		{
			Key:   "refusal_reasons",
			Kind:  wizards.StepForm,
			Title: "Why the obligee refused",
			Fields: []wizards.Field{
				{Name: "refusal_reasons", Kind: wizards.FieldMultiChoice, Required: true, Choices: reasonChoices()},
			},
			Applicable: isDecision,
			Clean: func(v wizards.Values) error {
				chosen := v.List("refusal_reasons")
				for _, r := range chosen {
					if r == reasonNone && len(chosen) > 1 {
						return fmt.Errorf("%w: no reason excludes the other choices", wizards.ErrValidation)
					}
				}
				return nil
			},
		},
		{
			Key:   "advancement",
			Kind:  wizards.StepForm,
			Title: "Was the request advanced to another obligee",
			Fields: []wizards.Field{
				{Name: "is_advancement", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: asksAdvancement,
		},
		{
			Key:   "advancement_targets",
			Kind:  wizards.StepForm,
			Title: "Which obligees received it",
			Fields: []wizards.Field{
				{Name: "advanced_to", Kind: wizards.FieldText, Required: true, Validate: validateIDList},
			},
			Applicable: isAdvancement,
		},
		uncategorizedStep,
		{
			Key:   "confirm",
			Kind:  wizards.StepForm,
			Title: "Record the action",
			Fields: []wizards.Field{
				{Name: "confirmed", Kind: wizards.FieldBool, Required: true},
			},
			Applicable: func(v wizards.Values) bool {
				_, ok := resolved(v)
				return ok
			},
			Clean: func(v wizards.Values) error {
				if !v.Bool("confirmed") {
					return fmt.Errorf("%w: not confirmed", wizards.ErrValidation)
				}
				t, ok := resolved(v)
				if !ok || !canAdd(v, t) {
					return fmt.Errorf("%w: the branch no longer accepts the action", wizards.ErrValidation)
				}
				return nil
			},
		},
	}

	w := &wizards.Wizard{Name: name, Steps: steps}
	return &Interview{Wizard: w, resolved: resolved}, nil
}

func validateIDList(value string) error {
	parts := strings.Split(value, ",")
	if len(parts) > inforequests.MaxAdvancedTo {
		return fmt.Errorf("%w: a request can be advanced to at most %d obligees",
			wizards.ErrValidation, inforequests.MaxAdvancedTo)
	}
	for _, part := range parts {
		if _, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err != nil {
			return fmt.Errorf("%w: advanced obligees must be a list of ids", wizards.ErrValidation)
		}
	}
	return nil
}

// Resolution reports the action type the answers lead to, or the routing
// target when the interview ends without one.
func (iw *Interview) Resolution(v wizards.Values) (inforequests.ActionType, string) {
	if t, ok := iw.resolved(v); ok {
		return t, ""
	}
	if route := v["off_topic_route"]; route != "" {
		return 0, route
	}
	return 0, v["uncategorized_route"]
}

// Params converts the collected values into the engine call.
func (iw *Interview) Params(v wizards.Values, inforequestID, messageID int64) (inforequests.ObligeeActionParams, error) {
	branchID, err := strconv.ParseInt(v["branch"], 10, 64)
	if err != nil {
		return inforequests.ObligeeActionParams{}, fmt.Errorf("%w: missing branch", wizards.ErrValidation)
	}
	t, route := iw.Resolution(v)
	if route != "" || t == 0 {
		return inforequests.ObligeeActionParams{}, fmt.Errorf("%w: the answers produce no action", wizards.ErrValidation)
	}
	date, ok := v.Date("effective_date")
	if !ok {
		return inforequests.ObligeeActionParams{}, fmt.Errorf("%w: missing effective date", wizards.ErrValidation)
	}

	p := inforequests.ObligeeActionParams{
		InforequestID: inforequestID,
		BranchID:      branchID,
		Type:          t,
		Subject:       v["subject"],
		Content:       v["content"],
		EffectiveDate: date,
		FileNumber:    v["file_number"],
		MessageID:     messageID,
	}
	if t == inforequests.TypeDisclosure {
		p.DisclosureLevel = inforequests.DisclosureFull
	}
	if t == inforequests.TypeRefusal {
		for _, r := range v.List("refusal_reasons") {
			if r == reasonNone {
				continue
			}
			p.RefusalReasons = append(p.RefusalReasons, inforequests.RefusalReason(r))
		}
	}
	if t == inforequests.TypeAdvancement {
		for _, part := range strings.Split(v["advanced_to"], ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err == nil {
				p.AdvancedTo = append(p.AdvancedTo, id)
			}
		}
	}
	return p, nil
}

// Finish applies a completed interview and discards its draft. A routed
// email is classified instead of producing an action.
func Finish(ctx context.Context, svc *inforequests.Service, runner *wizards.Runner,
	iw *Interview, applicantID, inforequestID, messageID int64) (*Outcome, error) {

	anchor := Anchor(inforequestID, messageID)
	draft, _, err := runner.Resume(ctx, iw.Wizard, anchor, applicantID)
	if err != nil {
		return nil, err
	}
	if !iw.Valid(draft.Values) {
		return nil, fmt.Errorf("%w: interview is not finished", wizards.ErrValidation)
	}

	if _, route := iw.Resolution(draft.Values); route != "" {
		switch route {
		case RouteUnrelated:
			err = svc.ClassifyUnrelated(ctx, applicantID, inforequestID, messageID)
		case RouteHelp:
			err = svc.ClassifyUnknown(ctx, applicantID, inforequestID, messageID)
		default:
			err = fmt.Errorf("%w: unknown routing %q", wizards.ErrValidation, route)
		}
		if err != nil {
			return nil, err
		}
		if err := runner.Finish(ctx, iw.Wizard, anchor, applicantID); err != nil {
			return &Outcome{Routed: route}, err
		}
		return &Outcome{Routed: route}, nil
	}

	params, err := iw.Params(draft.Values, inforequestID, messageID)
	if err != nil {
		return nil, err
	}
	action, err := svc.AddObligeeAction(ctx, applicantID, params)
	if err != nil {
		return nil, err
	}
	if err := runner.Finish(ctx, iw.Wizard, anchor, applicantID); err != nil {
		return &Outcome{Action: action}, err
	}
	return &Outcome{Action: action}, nil
}

// Anchor identifies the interview instance: one per inforequest for paper
// actions, one per message when classifying.
func Anchor(inforequestID, messageID int64) string {
	if messageID != 0 {
		return fmt.Sprintf("%d-msg-%d", inforequestID, messageID)
	}
	return strconv.FormatInt(inforequestID, 10)
}
