package appeals

import (
	"fmt"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/wizards"
)

// The refusal wizard builds one question path per refusal ground. Simple
// grounds take a single argument; grounds with a statutory escape hatch
// (public funding, the business-secret definition, the public-officer rule)
// fork first and only fall back to a free-text argument when the statutory
// route does not apply. Grounds about protected information close with a
// sanitization step, because the obligee should have disclosed a redacted
// document instead of refusing.

// sanitizableReasons are the grounds where partial disclosure of a redacted
// document would have been the lawful answer.
var sanitizableReasons = map[inforequests.RefusalReason]bool{
	inforequests.ReasonBusinessSecret: true,
	inforequests.ReasonPersonal:       true,
	inforequests.ReasonConfidential:   true,
}

// businessSecretDefinition lists the statutory elements of a business
// secret the applicant can dispute one by one.
var businessSecretDefinition = []wizards.Choice{
	{Value: "commercial", Label: "The information is not of a commercial nature"},
	{Value: "value", Label: "The information has no market value"},
	{Value: "common", Label: "The information is commonly available"},
	{Value: "will", Label: "The owner never declared it secret"},
	{Value: "ensured", Label: "The owner does not guard it as secret"},
}

// refusalSupported reports whether every ground is one the wizard covers.
// Unknown grounds send the branch to the fallback wizard.
func refusalSupported(reasons []inforequests.RefusalReason) bool {
	known := map[inforequests.RefusalReason]bool{}
	for _, r := range inforequests.AllRefusalReasons {
		known[r] = true
	}
	for _, r := range reasons {
		if !known[r] {
			return false
		}
	}
	return true
}

func yesNoField(name string) wizards.Field {
	return wizards.Field{
		Name:     name,
		Kind:     wizards.FieldChoice,
		Required: true,
		Choices: []wizards.Choice{
			{Value: "yes", Label: "Yes"},
			{Value: "no", Label: "No"},
		},
	}
}

func whenIs(name, value string) func(wizards.Values) bool {
	return func(v wizards.Values) bool { return v[name] == value }
}

// argumentStep is a single free-text argument for one ground.
func argumentStep(key, title, field string, required bool, applicable func(wizards.Values) bool) wizards.Step {
	return wizards.Step{
		Key:        key,
		Kind:       wizards.StepForm,
		Title:      title,
		Fields:     []wizards.Field{{Name: field, Kind: wizards.FieldTextArea, Required: required}},
		Applicable: applicable,
	}
}

// forkStep asks a yes/no question deciding which argument path follows.
func forkStep(key, title string) wizards.Step {
	return wizards.Step{
		Key:    key,
		Kind:   wizards.StepForm,
		Title:  title,
		Fields: []wizards.Field{yesNoField(key)},
	}
}

// fallbackStep lets the applicant optionally contest a ground with their own
// argument when no statutory route applies. Leaving the box unchecked
// concedes the ground.
func fallbackStep(key, title, check, reason string, applicable func(wizards.Values) bool) wizards.Step {
	return wizards.Step{
		Key:   key,
		Kind:  wizards.StepForm,
		Title: title,
		Fields: []wizards.Field{
			{Name: check, Kind: wizards.FieldBool, Required: true},
			{Name: reason, Kind: wizards.FieldTextArea},
		},
		Applicable: applicable,
		Clean: func(v wizards.Values) error {
			if v.Bool(check) && v[reason] == "" {
				return fmt.Errorf("%w: an argument is required to contest this ground",
					wizards.ErrValidation)
			}
			return nil
		},
	}
}

func doesNotHaveSteps() []wizards.Step {
	return []wizards.Step{
		argumentStep("does_not_have_reason",
			"The obligee claims it does not have the information",
			"does_not_have_reason", true, nil),
	}
}

func doesNotProvideSteps() []wizards.Step {
	return []wizards.Step{
		forkStep("does_not_provide_public_funds",
			"Does the information concern the use of public funds?"),
		argumentStep("does_not_provide_public_funds_reason",
			"Why the information concerns public funds",
			"does_not_provide_public_funds_reason", true,
			whenIs("does_not_provide_public_funds", "yes")),
		fallbackStep("does_not_provide_fallback_reason",
			"Your own argument against this ground",
			"does_not_provide_fallback", "does_not_provide_fallback_reason",
			whenIs("does_not_provide_public_funds", "no")),
	}
}

func doesNotCreateSteps() []wizards.Step {
	return []wizards.Step{
		argumentStep("does_not_create_reason",
			"The obligee claims it would have to create new information",
			"does_not_create_reason", true, nil),
	}
}

func copyrightSteps() []wizards.Step {
	return []wizards.Step{
		argumentStep("copyright_reason",
			"The obligee claims the information is protected by copyright",
			"copyright_reason", true, nil),
	}
}

func businessSecretSteps() []wizards.Step {
	definitionReason := func(c wizards.Choice) string {
		return "business_secret_definition_reason_" + c.Value
	}
	var reasonFields []wizards.Field
	for _, c := range businessSecretDefinition {
		reasonFields = append(reasonFields, wizards.Field{
			Name: definitionReason(c), Kind: wizards.FieldTextArea,
		})
	}
	statutory := func(v wizards.Values) bool {
		return v["business_secret_public_funds"] == "yes" ||
			len(v.List("business_secret_definition")) > 0
	}
	return []wizards.Step{
		forkStep("business_secret_public_funds",
			"Does the information concern the use of public funds?"),
		{
			Key:   "business_secret_definition",
			Kind:  wizards.StepForm,
			Title: "Which elements of a business secret are missing?",
			Fields: []wizards.Field{{
				Name:    "business_secret_definition",
				Kind:    wizards.FieldMultiChoice,
				Choices: businessSecretDefinition,
			}},
		},
		{
			Key:        "business_secret_definition_reason",
			Kind:       wizards.StepForm,
			Title:      "Why the claimed secret does not hold",
			Fields:     reasonFields,
			Applicable: statutory,
			Clean: func(v wizards.Values) error {
				selected := v.List("business_secret_definition")
				for _, c := range businessSecretDefinition {
					for _, s := range selected {
						if s == c.Value && v[definitionReason(c)] == "" {
							return fmt.Errorf("%w: an argument for %q is required",
								wizards.ErrValidation, c.Value)
						}
					}
				}
				return nil
			},
		},
		fallbackStep("business_secret_fallback_reason",
			"Your own argument against this ground",
			"business_secret_fallback", "business_secret_fallback_reason",
			func(v wizards.Values) bool {
				return v["business_secret_public_funds"] == "no" && !statutory(v)
			}),
	}
}

func personalSteps() []wizards.Step {
	return []wizards.Step{
		forkStep("personal_officer",
			"Does the information concern a public officer's duties?"),
		argumentStep("personal_officer_reason",
			"Details about the officer's public role",
			"personal_officer_reason", false,
			whenIs("personal_officer", "yes")),
		fallbackStep("personal_fallback_reason",
			"Your own argument against this ground",
			"personal_fallback", "personal_fallback_reason",
			whenIs("personal_officer", "no")),
	}
}

func confidentialSteps() []wizards.Step {
	return []wizards.Step{
		forkStep("confidential_not_confidential",
			"Was the information wrongly classified as confidential?"),
		argumentStep("confidential_not_confidential_reason",
			"Why the classification is wrong",
			"confidential_not_confidential_reason", false,
			whenIs("confidential_not_confidential", "yes")),
		fallbackStep("confidential_fallback_reason",
			"Your own argument against this ground",
			"confidential_fallback", "confidential_fallback_reason",
			whenIs("confidential_not_confidential", "no")),
	}
}

func otherReasonSteps() []wizards.Step {
	return []wizards.Step{
		forkStep("other_reason_valid",
			"Is the stated reason a lawful ground for refusal at all?"),
		argumentStep("other_reason_valid_reason",
			"Why the ground does not apply here",
			"other_reason_valid_reason", true,
			whenIs("other_reason_valid", "yes")),
		argumentStep("other_reason_invalid_reason",
			"Why the stated reason is not a lawful ground",
			"other_reason_invalid_reason", true,
			whenIs("other_reason_valid", "no")),
	}
}

func sanitizationSteps() []wizards.Step {
	return []wizards.Step{
		{
			Key:   "sanitization_level",
			Kind:  wizards.StepForm,
			Title: "Did the obligee disclose redacted documents?",
			Fields: []wizards.Field{{
				Name:     "sanitization_level",
				Kind:     wizards.FieldChoice,
				Required: true,
				Choices: []wizards.Choice{
					{Value: "overly-sanitized", Label: "Documents were redacted too heavily"},
					{Value: "missing-document", Label: "Some documents were withheld entirely"},
					{Value: "properly-sanitized", Label: "Redacted documents were disclosed properly"},
					{Value: "not-sanitized", Label: "Nothing was disclosed at all"},
				},
			}},
		},
		argumentStep("sanitization_overly_sanitized",
			"Which parts were redacted without a legal basis",
			"sanitization_overly_sanitized", true,
			whenIs("sanitization_level", "overly-sanitized")),
		argumentStep("sanitization_missing_document",
			"Which documents were withheld",
			"sanitization_missing_document", true,
			whenIs("sanitization_level", "missing-document")),
	}
}

// sectionEmpty reports whether a ground's part of the appeal ended up with
// no objection: the statutory fork was answered no and the fallback box was
// explicitly left unchecked. Grounds with a mandatory argument never yield
// an empty section.
func sectionEmpty(v wizards.Values, r inforequests.RefusalReason) bool {
	switch r {
	case inforequests.ReasonDoesNotProvide:
		return v["does_not_provide_public_funds"] == "no" &&
			v["does_not_provide_fallback"] == "false"
	case inforequests.ReasonBusinessSecret:
		return v["business_secret_public_funds"] == "no" &&
			len(v.List("business_secret_definition")) == 0 &&
			v["business_secret_fallback"] == "false"
	case inforequests.ReasonPersonal:
		return v["personal_officer"] == "no" &&
			v["personal_fallback"] == "false"
	case inforequests.ReasonConfidential:
		return v["confidential_not_confidential"] == "no" &&
			v["confidential_fallback"] == "false"
	}
	return false
}

// refusalAppeal assembles the ground sub-paths in statutory order. Conceding
// every ground dead-ends the wizard, because an appeal needs at least one
// objection.
func refusalAppeal(data caseData, reasons []inforequests.RefusalReason) (*Appeal, error) {
	has := map[inforequests.RefusalReason]bool{}
	for _, r := range reasons {
		has[r] = true
	}

	var steps []wizards.Step
	if has[inforequests.ReasonDoesNotHave] {
		steps = append(steps, doesNotHaveSteps()...)
	}
	if has[inforequests.ReasonDoesNotProvide] {
		steps = append(steps, doesNotProvideSteps()...)
	}
	if has[inforequests.ReasonDoesNotCreate] {
		steps = append(steps, doesNotCreateSteps()...)
	}
	if has[inforequests.ReasonCopyright] {
		steps = append(steps, copyrightSteps()...)
	}
	if has[inforequests.ReasonBusinessSecret] {
		steps = append(steps, businessSecretSteps()...)
	}
	if has[inforequests.ReasonPersonal] {
		steps = append(steps, personalSteps()...)
	}
	if has[inforequests.ReasonConfidential] {
		steps = append(steps, confidentialSteps()...)
	}
	if has[inforequests.ReasonOtherReason] {
		steps = append(steps, otherReasonSteps()...)
	}

	allReasons := reasons
	steps = append(steps, wizards.Step{
		Key:   "conceded",
		Kind:  wizards.StepDeadEnd,
		Title: "Nothing to appeal",
		Applicable: func(v wizards.Values) bool {
			for _, r := range allReasons {
				if !sectionEmpty(v, r) {
					return false
				}
			}
			return true
		},
	})

	sanitizable := false
	for _, r := range reasons {
		if sanitizableReasons[r] {
			sanitizable = true
		}
	}
	if sanitizable {
		steps = append(steps, sanitizationSteps()...)
	}

	return build("RefusalAppeal", data, refusalTemplate, steps...)
}
