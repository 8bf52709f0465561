package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/event"
)

func newEvent(seq int64, hv event.HashVersion, meta map[string]any) event.Event {
	e := event.New("AgentObserved", "ns/a", seq, map[string]any{"k": "v"}, meta)
	e = e.WithSeq(seq)
	e.HashVersion = hv
	return e
}

func TestFieldsForHash_V1AlwaysIncludesMeta(t *testing.T) {
	e := newEvent(1, event.HashV1, nil)
	fields, err := FieldsForHash(e)
	require.NoError(t, err)
	_, ok := fields["meta"]
	assert.True(t, ok, "v1 must include meta even when empty")
}

func TestFieldsForHash_V2OmitsEmptyMeta(t *testing.T) {
	e := newEvent(1, event.HashV2, nil)
	fields, err := FieldsForHash(e)
	require.NoError(t, err)
	_, ok := fields["meta"]
	assert.False(t, ok, "v2 must omit meta when empty")
	assert.Equal(t, string(event.HashV2), fields["hash_version"])
}

func TestFieldsForHash_V2IncludesNonEmptyMeta(t *testing.T) {
	e := newEvent(1, event.HashV2, map[string]any{"writer_id": "w1"})
	fields, err := FieldsForHash(e)
	require.NoError(t, err)
	meta, ok := fields["meta"]
	require.True(t, ok)
	assert.Equal(t, map[string]any{"writer_id": "w1"}, meta)
}

func TestFieldsForHash_RequiresSeq(t *testing.T) {
	e := event.New("AgentObserved", "ns/a", 1, nil, nil)
	_, err := FieldsForHash(e)
	require.Error(t, err)
}

func TestEventHash_DeterministicGivenSameInputs(t *testing.T) {
	e := newEvent(1, event.HashV1, nil)
	h1, err := EventHash(ZeroHash, e)
	require.NoError(t, err)
	h2, err := EventHash(ZeroHash, e)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestEventHash_ChangesWithPrevHash(t *testing.T) {
	e := newEvent(1, event.HashV1, nil)
	h1, err := EventHash(ZeroHash, e)
	require.NoError(t, err)
	h2, err := EventHash("someotherprevhash", e)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestEventHash_V2HashUnaffectedByNilVsEmptyMeta(t *testing.T) {
	base := newEvent(1, event.HashV2, nil)
	withEmptyMeta := base
	withEmptyMeta.Meta = map[string]any{}

	h1, err := EventHash(ZeroHash, base)
	require.NoError(t, err)
	h2, err := EventHash(ZeroHash, withEmptyMeta)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestEventHash_V2ChangesWhenMetaAdded(t *testing.T) {
	base := newEvent(1, event.HashV2, nil)
	withMeta := base
	withMeta.Meta = map[string]any{"writer_id": "w1"}

	h1, err := EventHash(ZeroHash, base)
	require.NoError(t, err)
	h2, err := EventHash(ZeroHash, withMeta)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "v2 hash must change once meta becomes non-empty")
}

func TestBuild_AssemblesRecord(t *testing.T) {
	e := newEvent(1, event.HashV1, nil)
	rec, err := Build(ZeroHash, e)
	require.NoError(t, err)
	assert.Equal(t, ZeroHash, rec.PrevHash)
	assert.NotEmpty(t, rec.EventHash)
	require.NotNil(t, rec.Event.Seq)
	assert.Equal(t, int64(1), *rec.Event.Seq)
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(ZeroHash))
	assert.False(t, IsZero("deadbeef"))
}
