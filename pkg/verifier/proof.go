package verifier

import (
	"context"
	"crypto/ed25519"

	"github.com/rynxs/operator-core/pkg/checkpoint"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// TriggerInfo is the {seq, hash, type, spec_hash} tuple a decision proof
// cites (spec §4.8).
type TriggerInfo struct {
	Seq      int64
	Hash     string
	Type     string
	SpecHash string
}

// ActionsDecidedInfo is the {actions_hash, action_ids, actions} tuple.
type ActionsDecidedInfo struct {
	ActionsHash string
	ActionIDs   []string
	Actions     map[string]any
}

// ActionResult is the per-action-id outcome pulled from a subsequent
// ActionApplied or ActionFailed event.
type ActionResult struct {
	ActionID   string
	Found      bool
	ResultCode string
	FromEvent  string // "ActionApplied" or "ActionFailed"
}

// CheckpointInfo is the nearest-at-or-before checkpoint, if any, plus
// whether its signature verifies.
type CheckpointInfo struct {
	Found           bool
	EventIndex      int64
	SignatureValid  bool
}

// DecisionProof is the full provenance bundle for one ActionsDecided event
// (spec §4.8).
type DecisionProof struct {
	Trigger        TriggerInfo
	ActionsDecided ActionsDecidedInfo
	ActionResults  []ActionResult
	Checkpoint     CheckpointInfo
	Valid          bool
}

// BuildDecisionProof assembles and validates the proof for the
// ActionsDecided record at decidedSeq. The proof is valid iff chain
// verification passes, pointers match, every action_id has a feedback
// event, and (if pub is non-nil) the nearest checkpoint's signature
// verifies (spec §4.8).
func BuildDecisionProof(ctx context.Context, store eventstore.Store, cpStore *checkpoint.Store, pub ed25519.PublicKey, decidedSeq int64) (DecisionProof, error) {
	if err := VerifyChain(ctx, store); err != nil {
		return DecisionProof{}, err
	}
	if err := VerifyPointers(ctx, store); err != nil {
		return DecisionProof{}, err
	}

	decided, ok, err := eventAt(ctx, store, decidedSeq)
	if err != nil {
		return DecisionProof{}, err
	}
	if !ok || decided.Type != "ActionsDecided" {
		return DecisionProof{}, errs.Integrity("verifier: no ActionsDecided at seq %d", decidedSeq)
	}

	triggerSeq := i64(decided.Payload, "trigger_event_seq")
	triggerHash, _ := decided.Payload["trigger_event_hash"].(string)
	triggerType, _ := decided.Payload["trigger_event_type"].(string)
	triggerSpecHash, _ := decided.Payload["trigger_spec_hash"].(string)

	actionsRaw, _ := decided.Payload["actions"].(map[string]any)
	actionIDs := make([]string, 0, len(actionsRaw))
	for id := range actionsRaw {
		actionIDs = append(actionIDs, id)
	}
	actionsHash, _ := decided.Payload["actions_hash"].(string)

	results, err := collectActionResults(ctx, store, actionIDs)
	if err != nil {
		return DecisionProof{}, err
	}

	allCovered := true
	for _, r := range results {
		if !r.Found {
			allCovered = false
		}
	}

	cpInfo := CheckpointInfo{}
	if cpStore != nil {
		cp, found, err := cpStore.FindAtOrBefore(triggerSeq)
		if err != nil {
			return DecisionProof{}, err
		}
		if found {
			cpInfo.Found = true
			cpInfo.EventIndex = cp.EventIndex
			if pub != nil {
				valid, err := checkpoint.VerifySignature(cp, pub)
				if err != nil {
					return DecisionProof{}, err
				}
				cpInfo.SignatureValid = valid
			}
		}
	}

	valid := allCovered && (pub == nil || !cpInfo.Found || cpInfo.SignatureValid)

	return DecisionProof{
		Trigger: TriggerInfo{
			Seq:      triggerSeq,
			Hash:     triggerHash,
			Type:     triggerType,
			SpecHash: triggerSpecHash,
		},
		ActionsDecided: ActionsDecidedInfo{
			ActionsHash: actionsHash,
			ActionIDs:   actionIDs,
			Actions:     actionsRaw,
		},
		ActionResults: results,
		Checkpoint:    cpInfo,
		Valid:         valid,
	}, nil
}

func collectActionResults(ctx context.Context, store eventstore.Store, actionIDs []string) ([]ActionResult, error) {
	events, err := store.Read(ctx, eventstore.ReadOptions{})
	if err != nil {
		return nil, err
	}
	byID := map[string]ActionResult{}
	for _, e := range events {
		if e.Type != "ActionApplied" && e.Type != "ActionFailed" {
			continue
		}
		id, _ := e.Payload["action_id"].(string)
		resultCode, _ := e.Payload["result_code"].(string)
		byID[id] = ActionResult{ActionID: id, Found: true, ResultCode: resultCode, FromEvent: e.Type}
	}

	results := make([]ActionResult, 0, len(actionIDs))
	for _, id := range actionIDs {
		if r, ok := byID[id]; ok {
			results = append(results, r)
		} else {
			results = append(results, ActionResult{ActionID: id, Found: false})
		}
	}
	return results, nil
}
