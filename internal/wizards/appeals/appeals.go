// Package appeals declares the appeal wizard family. Every branch that
// accepts an appeal gets the one wizard matching its situation: what the
// obligee decided (or failed to decide) determines which questions the
// applicant has to answer before the appeal document is generated.
package appeals

import (
	"errors"
	"fmt"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/wizards"
)

// ErrNotAppealable is returned when the branch accepts no appeal.
var ErrNotAppealable = errors.New("branch is not appealable")

// Appeal couples the selected wizard with the document suggested from the
// case data, used to prefill the paper step.
type Appeal struct {
	Wizard    *wizards.Wizard
	Suggested wizards.Paper
}

// caseData feeds the paper templates.
type caseData struct {
	ApplicantName  string
	ObligeeName    string
	RequestSubject string
	FileNumber     string
}

// WizardFor selects the appeal wizard for the branch. The selection looks
// at the prospective last action: a missed obligee deadline counts as the
// expiration it implies even before the implicit action is materialized.
//
// Selection order: disclosure, refusal with reasons, refusal without
// reasons, advancement, expiration, fallback.
func WizardFor(ir *inforequests.Inforequest, b *inforequests.Branch,
	d *inforequests.Deadlines, obligeeName string) (*Appeal, error) {

	last := b.LastAction()
	if last == nil {
		return nil, ErrNotAppealable
	}
	prospective := last
	if exp := b.ExpirationIfExpired(d); exp != nil {
		prospective = exp
	}
	if !appealable(b, prospective, d) {
		return nil, ErrNotAppealable
	}

	data := caseData{
		ApplicantName:  ir.ApplicantName,
		ObligeeName:    obligeeName,
		RequestSubject: requestSubject(b),
		FileNumber:     prospective.FileNumber,
	}

	switch {
	case prospective.Type == inforequests.TypeDisclosure:
		if !disclosureAppealable(b) {
			return fallbackAppeal(data)
		}
		return disclosureAppeal(data)
	case prospective.Type == inforequests.TypeRefusal && len(prospective.RefusalReasons) > 0:
		if !refusalSupported(prospective.RefusalReasons) {
			return fallbackAppeal(data)
		}
		return refusalAppeal(data, prospective.RefusalReasons)
	case prospective.Type == inforequests.TypeRefusal:
		return refusalNoReasonAppeal(data)
	case prospective.Type == inforequests.TypeAdvancement:
		return advancementAppeal(data)
	case prospective.Type == inforequests.TypeExpiration:
		return expirationAppeal(data)
	default:
		return fallbackAppeal(data)
	}
}

func appealable(b *inforequests.Branch, prospective *inforequests.Action,
	d *inforequests.Deadlines) bool {
	if prospective != b.LastAction() {
		// The prospective expiration always opens the appeal.
		return true
	}
	return b.CanAddAppeal(d)
}

// disclosureAppealable restricts the disclosure wizard to main branches
// that were never appealed before. A partial disclosure on an advanced
// sub-branch, or after an earlier appeal, takes the fallback wizard.
func disclosureAppealable(b *inforequests.Branch) bool {
	if !b.IsMain() {
		return false
	}
	for _, a := range b.Actions {
		if a.Type == inforequests.TypeAppeal {
			return false
		}
	}
	return true
}

func requestSubject(b *inforequests.Branch) string {
	for _, a := range b.Actions {
		if a.Type == inforequests.TypeRequest || a.Type == inforequests.TypeAdvancedRequest {
			if a.Subject != "" {
				return a.Subject
			}
		}
	}
	return ""
}

// paperStep is the shared final step: the generated document with the
// subject and body open for amendment.
func paperStep() wizards.Step {
	return wizards.Step{
		Key:   "paper",
		Kind:  wizards.StepPaper,
		Title: "Appeal document",
		Fields: []wizards.Field{
			{Name: "paper_subject", Kind: wizards.FieldText, Required: true},
			{Name: "paper_content", Kind: wizards.FieldTextArea, Required: true},
		},
	}
}

func build(name string, data caseData, tpl *wizards.PaperTemplate, steps ...wizards.Step) (*Appeal, error) {
	suggested, err := tpl.Render(data)
	if err != nil {
		return nil, fmt.Errorf("render %s paper: %w", name, err)
	}
	return &Appeal{
		Wizard:    &wizards.Wizard{Name: name, Steps: append(steps, paperStep())},
		Suggested: suggested,
	}, nil
}

func disclosureAppeal(data caseData) (*Appeal, error) {
	scope := wizards.Step{
		Key:   "scope",
		Kind:  wizards.StepForm,
		Title: "What is missing",
		Fields: []wizards.Field{
			{Name: "missing_information", Kind: wizards.FieldTextArea, Required: true},
		},
	}
	return build("DisclosureAppeal", data, disclosureTemplate, scope)
}

func refusalNoReasonAppeal(data caseData) (*Appeal, error) {
	guidance := wizards.Step{
		Key:   "guidance",
		Kind:  wizards.StepSection,
		Title: "Decision without reasons",
	}
	return build("RefusalNoReasonAppeal", data, refusalNoReasonTemplate, guidance)
}

func advancementAppeal(data caseData) (*Appeal, error) {
	grounds := wizards.Step{
		Key:   "grounds",
		Kind:  wizards.StepForm,
		Title: "Why the advancement is wrong",
		Fields: []wizards.Field{
			{Name: "advancement_objection", Kind: wizards.FieldTextArea, Required: true},
		},
	}
	return build("AdvancementAppeal", data, advancementTemplate, grounds)
}

func expirationAppeal(data caseData) (*Appeal, error) {
	guidance := wizards.Step{
		Key:   "guidance",
		Kind:  wizards.StepSection,
		Title: "The obligee stayed silent",
	}
	return build("ExpirationAppeal", data, expirationTemplate, guidance)
}

func fallbackAppeal(data caseData) (*Appeal, error) {
	grounds := wizards.Step{
		Key:   "grounds",
		Kind:  wizards.StepForm,
		Title: "Your objection",
		Fields: []wizards.Field{
			{Name: "objection", Kind: wizards.FieldTextArea, Required: true},
		},
	}
	return build("FallbackAppeal", data, fallbackTemplate, grounds)
}
