//go:build property
// +build property

package chain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/rynxs/operator-core/pkg/event"
)

// TestHashChainLinking checks P2: for any valid log, rec[i].prev_hash ==
// rec[i-1].event_hash, rec[i].event_hash reproduces from (prev_hash,
// canonical fields), and rec[i].event.seq == i (1-indexed).
func TestHashChainLinking(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hash chain links and reproduces", prop.ForAll(
		func(payloads []string) bool {
			if len(payloads) == 0 {
				return true
			}
			var records []Record
			prev := ZeroHash
			for i, p := range payloads {
				seq := int64(i + 1)
				e := event.New("AgentObserved", "ns/a", seq, map[string]any{"v": p}, nil)
				e = e.WithSeq(seq)
				e.HashVersion = event.HashV1

				rec, err := Build(prev, e)
				if err != nil {
					return false
				}
				if rec.PrevHash != prev {
					return false
				}
				if *rec.Event.Seq != seq {
					return false
				}
				records = append(records, rec)
				prev = rec.EventHash
			}

			for i, rec := range records {
				wantPrev := ZeroHash
				if i > 0 {
					wantPrev = records[i-1].EventHash
				}
				if rec.PrevHash != wantPrev {
					return false
				}
				recomputed, err := EventHash(wantPrev, rec.Event)
				if err != nil || recomputed != rec.EventHash {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
