package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes_SortsMapKeys(t *testing.T) {
	b, err := Bytes(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(b))
}

func TestBytes_RejectsFloat(t *testing.T) {
	_, err := Bytes(map[string]any{"x": 1.5})
	require.Error(t, err)
}

func TestBytes_NoHTMLEscaping(t *testing.T) {
	b, err := Bytes(map[string]any{"expr": "a<b && c>d"})
	require.NoError(t, err)
	assert.Contains(t, string(b), "a<b && c>d")
}

func TestBytes_NFCNormalizesUnicode(t *testing.T) {
	// "é" as a combining sequence (e + combining acute accent, NFD) versus
	// the single precomposed codepoint (NFC) must canonicalize identically.
	nfd := "é"
	nfc := "é"

	bNFD, err := Bytes(map[string]any{"v": nfd})
	require.NoError(t, err)
	bNFC, err := Bytes(map[string]any{"v": nfc})
	require.NoError(t, err)
	assert.Equal(t, string(bNFC), string(bNFD))
}

func TestBytes_DeterministicAcrossCalls(t *testing.T) {
	v := map[string]any{"z": []any{"1", "2", "3"}, "a": map[string]any{"nested": true}}
	b1, err := Bytes(v)
	require.NoError(t, err)
	b2, err := Bytes(v)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestHash_MatchesHashBytes(t *testing.T) {
	v := map[string]any{"a": 1}
	h1, err := Hash(v)
	require.NoError(t, err)
	b, err := Bytes(v)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(b), h1)
}

func TestCanonicalize_RejectsFloat(t *testing.T) {
	_, err := Canonicalize(map[string]any{"x": 2.5})
	require.Error(t, err)
}

func TestCanonicalize_NormalizesNestedStrings(t *testing.T) {
	out, err := Canonicalize(map[string]any{"v": "é"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "é", m["v"])
}
