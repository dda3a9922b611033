package stringstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	st := New()
	a := st.Register("ship")
	b := st.Register("planet")
	assert.Equal(t, ID(0), a)
	assert.Equal(t, ID(1), b)

	again := st.Register("ship")
	assert.Equal(t, a, again)
	assert.Equal(t, 2, st.Len())

	s, err := st.Lookup(b)
	require.NoError(t, err)
	assert.Equal(t, "planet", s)

	_, err = st.Lookup(2)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestBuildPacket(t *testing.T) {
	st := New()
	for _, s := range []string{"a", "b", "c"} {
		st.Register(s)
	}
	p := st.BuildPacket(1)
	assert.Equal(t, uint32(1), p.StartID)
	assert.Equal(t, []string{"b", "c"}, p.Strings)

	assert.Empty(t, st.BuildPacket(3).Strings)
	assert.Empty(t, st.BuildPacket(10).Strings)
}

func TestFillStore_ThenBuildPacketRoundTrips(t *testing.T) {
	st := New()
	st.Register("a")
	st.Register("stale1")
	st.Register("stale2")

	in := []string{"x", "y", "z"}
	require.NoError(t, st.FillStore(1, in))

	assert.Equal(t, in, st.BuildPacket(1).Strings)
	assert.Equal(t, 4, st.Len())

	_, ok := st.Find("stale1")
	assert.False(t, ok, "evicted strings leave the reverse table too")
	id, ok := st.Find("y")
	require.True(t, ok)
	assert.Equal(t, ID(2), id)
	id, ok = st.Find("a")
	require.True(t, ok)
	assert.Equal(t, ID(0), id)
}

func TestFillStore_ReapplyIsHarmless(t *testing.T) {
	server := New()
	client := New()
	server.Register("ship")
	server.Register("planet")

	p := server.BuildPacket(0)
	require.NoError(t, client.Apply(p))
	require.NoError(t, client.Apply(p))
	assert.Equal(t, 2, client.Len())

	server.Register("station")
	require.NoError(t, client.Apply(server.BuildPacket(2)))
	s, err := client.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, "station", s)
}

func TestFillStore_RejectsGapAndDuplicates(t *testing.T) {
	st := New()
	st.Register("a")
	assert.ErrorIs(t, st.FillStore(2, []string{"c"}), ErrGap)
	assert.ErrorIs(t, st.FillStore(1, []string{"a"}), ErrDuplicate)
}

func TestFillStore_RejectedDeltaLeavesStoreIntact(t *testing.T) {
	st := New()
	st.Register("a")
	st.Register("b")

	assert.ErrorIs(t, st.FillStore(1, []string{"b", "a", "c"}), ErrDuplicate)
	assert.ErrorIs(t, st.FillStore(1, []string{"c", "c"}), ErrDuplicate)
	assert.Equal(t, []string{"a", "b"}, st.BuildPacket(0).Strings)
	id, ok := st.Find("b")
	require.True(t, ok)
	assert.EqualValues(t, 1, id)

	// Replacing the tail with a string it already held is fine.
	require.NoError(t, st.FillStore(1, []string{"c", "b"}))
	assert.Equal(t, []string{"a", "c", "b"}, st.BuildPacket(0).Strings)
}
