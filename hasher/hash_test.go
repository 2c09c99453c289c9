package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumIsDeterministic(t *testing.T) {
	b, err := MarshalCanonical(Object{"balance": Int(42)})
	require.NoError(t, err)

	assert.Equal(t, Sum(b), Sum(b), "same bytes must produce same hash")
}

func TestSumDiffersOnContent(t *testing.T) {
	a, err := MarshalCanonical(Object{"balance": Int(42)})
	require.NoError(t, err)
	b, err := MarshalCanonical(Object{"balance": Int(43)})
	require.NoError(t, err)

	assert.NotEqual(t, Sum(a), Sum(b))
}

func TestStateHashHexRoundTrip(t *testing.T) {
	h := Sum([]byte("payload"))

	s := h.String()
	assert.Len(t, s, 64)

	parsed, err := ParseStateHash(s)
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestParseStateHashRejectsBadInput(t *testing.T) {
	_, err := ParseStateHash("zz")
	assert.Error(t, err)

	_, err = ParseStateHash("abcd")
	assert.Error(t, err, "short hex must be rejected")
}

func TestIsZero(t *testing.T) {
	var zero StateHash
	assert.True(t, zero.IsZero())
	assert.False(t, Sum(nil).IsZero())
}

func TestChainEmptyIsValid(t *testing.T) {
	h := Chain(nil)
	assert.Len(t, h, Size)
	assert.False(t, h.IsZero())
}

func TestChainOrderMatters(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))

	forward := Chain([]StateHash{a, b})
	backward := Chain([]StateHash{b, a})
	assert.NotEqual(t, forward, backward)
}

func TestChainSingleDiffersFromInput(t *testing.T) {
	a := Sum([]byte("a"))
	assert.NotEqual(t, a, Chain([]StateHash{a}))
}

func TestChainIsDeterministic(t *testing.T) {
	hashes := []StateHash{Sum([]byte("1")), Sum([]byte("2")), Sum([]byte("3"))}
	assert.Equal(t, Chain(hashes), Chain(hashes))
}

func TestExtendIsDeterministic(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))

	assert.Equal(t, Extend(a, b), Extend(a, b))
	assert.NotEqual(t, Extend(a, b), Extend(b, a))
}

func TestDomainSeparationPreventsCollisions(t *testing.T) {
	payload := []byte(`{"v":1}`)

	state := SumDomain(DomainState, payload)
	chain := SumDomain(DomainChain, payload)
	rules := SumDomain(DomainRules, payload)

	assert.NotEqual(t, state, chain)
	assert.NotEqual(t, state, rules)
	assert.NotEqual(t, chain, rules)
}

func TestNullSeparatorPreventsBoundaryConfusion(t *testing.T) {
	// "foo" + 0x00 + "bar" must not collide with "foob" + 0x00 + "ar".
	a := SumDomain("foo", []byte("bar"))
	b := SumDomain("foob", []byte("ar"))
	assert.NotEqual(t, a, b)
}

func TestEqualBytes(t *testing.T) {
	assert.True(t, EqualBytes([]byte("x"), []byte("x")))
	assert.False(t, EqualBytes([]byte("x"), []byte("y")))
}
