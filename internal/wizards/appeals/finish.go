package appeals

import (
	"context"
	"fmt"
	"strconv"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/wizards"
)

// Anchor returns the wizard anchor for a branch. Appeal wizards are
// instantiated once per branch.
func Anchor(branchID int64) string {
	return strconv.FormatInt(branchID, 10)
}

// Finish applies a completed appeal wizard: it validates the whole path,
// appends the appeal action with the amended document and discards the
// draft. The draft survives when appending fails, so the user can retry.
func Finish(ctx context.Context, svc *inforequests.Service, runner *wizards.Runner,
	appeal *Appeal, applicantID, inforequestID, branchID int64) (*inforequests.Action, error) {

	anchor := Anchor(branchID)
	draft, _, err := runner.Resume(ctx, appeal.Wizard, anchor, applicantID)
	if err != nil {
		return nil, err
	}
	if !appeal.Wizard.Valid(draft.Values) {
		return nil, fmt.Errorf("%w: wizard is not finished", wizards.ErrValidation)
	}

	action, err := svc.AddAppeal(ctx, applicantID, inforequestID, branchID,
		draft.Values["paper_subject"], draft.Values["paper_content"])
	if err != nil {
		return nil, err
	}
	if err := runner.Finish(ctx, appeal.Wizard, anchor, applicantID); err != nil {
		return action, err
	}
	return action, nil
}
