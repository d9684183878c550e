package inforequests

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Datacheck audits stored inforequests against the structural invariants
// the engine relies on. Violations are logged, never repaired; the point is
// to surface drift caused by manual database surgery or old bugs. Returns
// the number of problems found.
func (s *Service) Datacheck(ctx context.Context) (int, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	problems := 0
	for _, id := range ids {
		ir, err := s.store.GetInforequest(ctx, id)
		if err != nil {
			return problems, err
		}
		problems += checkInforequest(ir)
	}
	log.Info().Int("inforequests", len(ids)).Int("problems", problems).Msg("Datacheck finished")
	return problems, nil
}

func checkInforequest(ir *Inforequest) int {
	problems := 0
	flag := func(msg string, fields map[string]int64) {
		ev := log.Warn().Int64("inforequest_id", ir.ID)
		for k, v := range fields {
			ev = ev.Int64(k, v)
		}
		ev.Msg(msg)
		problems++
	}

	mains := 0
	actionIDs := map[int64]*Action{}
	for _, b := range ir.Branches {
		if b.IsMain() {
			mains++
		}
		for _, a := range b.Actions {
			actionIDs[a.ID] = a
		}
	}
	if mains != 1 {
		flag("Inforequest does not have exactly one main branch", nil)
	}

	for _, b := range ir.Branches {
		if len(b.Actions) == 0 {
			flag("Branch has no actions", map[string]int64{"branch_id": b.ID})
			continue
		}

		first := b.Actions[0]
		if b.IsMain() && first.Type != TypeRequest {
			flag("Main branch does not start with a request", map[string]int64{"branch_id": b.ID})
		}
		if !b.IsMain() {
			if first.Type != TypeAdvancedRequest {
				flag("Advanced branch does not start with an advanced request",
					map[string]int64{"branch_id": b.ID})
			}
			parent, ok := actionIDs[b.AdvancedByID]
			if !ok {
				flag("Branch advanced by an action outside the inforequest",
					map[string]int64{"branch_id": b.ID, "advanced_by": b.AdvancedByID})
			} else if parent.Type != TypeAdvancement {
				flag("Branch advanced by a non-advancement action",
					map[string]int64{"branch_id": b.ID, "advanced_by": b.AdvancedByID})
			} else if parent.BranchID == b.ID {
				flag("Branch advanced by its own action",
					map[string]int64{"branch_id": b.ID})
			}
		}

		for i := 1; i < len(b.Actions); i++ {
			prev, cur := b.Actions[i-1], b.Actions[i]
			if cur.EffectiveDate.Before(prev.EffectiveDate) {
				flag("Actions out of chronological order",
					map[string]int64{"branch_id": b.ID, "action_id": cur.ID})
			}
			if cur.Type == TypeRequest {
				flag("Request action appears after the branch start",
					map[string]int64{"branch_id": b.ID, "action_id": cur.ID})
			}
		}

		for _, a := range b.Actions {
			if _, ok := DefaultDeadline(a.Type, a.DisclosureLevel); !ok && a.HasDeadline &&
				a.Type != TypeDisclosure {
				flag("Action carries a deadline its type never sets",
					map[string]int64{"branch_id": b.ID, "action_id": a.ID})
			}
			if a.Extension != 0 && !settingObligeeDeadline[a.Type] {
				flag("Extension on an action without an obligee deadline",
					map[string]int64{"branch_id": b.ID, "action_id": a.ID})
			}
		}
	}

	if ir.UniqueEmail == "" {
		flag("Inforequest without a unique address", nil)
	}
	return problems
}
