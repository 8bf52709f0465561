//go:build property
// +build property

package replay

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/rynxs/operator-core/pkg/reducer"
)

// TestReplayDeterminism checks P4: replaying the same log N times yields
// byte-equal state_hash.
func TestReplayDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("replay(L) is deterministic across repeated runs", prop.ForAll(
		func(names []string) bool {
			if len(names) == 0 {
				return true
			}
			store := openTestStore(t)
			for i, name := range names {
				if name == "" {
					name = "a"
				}
				appendAgentObserved(t, store, int64(i+1), "ns/"+name, name)
			}

			rdcr := reducer.NewUniverseReducer(true)
			engine := NewEngine(store, rdcr)

			var hashes []string
			for i := 0; i < 5; i++ {
				result, err := engine.Run(context.Background(), Options{})
				if err != nil {
					return false
				}
				hashes = append(hashes, result.LastHash)
			}
			for i := 1; i < len(hashes); i++ {
				if hashes[i] != hashes[0] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
