package trap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/sampler"
)

func TestRegistryInsertConflicts(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.InsertStart(&StartTrap{Address: StartAddr(0x1000)}))
	err := r.InsertStart(&StartTrap{Address: StartAddr(0x1000)})
	assert.Error(t, err)

	require.NoError(t, r.InsertEnd(&EndTrap{Address: EndAddr(0x2000), StartAddr: StartAddr(0x1000)}))
	err = r.InsertEnd(&EndTrap{Address: EndAddr(0x2000), StartAddr: StartAddr(0x1000)})
	assert.Error(t, err)
}

func TestRegistryLookupPairing(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertStart(&StartTrap{Address: StartAddr(0x1000)}))
	require.NoError(t, r.InsertEnd(&EndTrap{Address: EndAddr(0x2000), StartAddr: StartAddr(0x1000)}))

	got, err := r.LookupEnd(EndAddr(0x2000), StartAddr(0x1000))
	require.NoError(t, err)
	assert.Equal(t, EndAddr(0x2000), got.Address)

	_, err = r.LookupEnd(EndAddr(0x2000), StartAddr(0x9999))
	assert.Error(t, err, "a stored pairing that disagrees with the expected start must fail")

	_, err = r.LookupEnd(EndAddr(0x3000), StartAddr(0x1000))
	assert.Error(t, err, "an unregistered end address must fail")

	start, ok := r.LookupStart(StartAddr(0x1000))
	require.True(t, ok)
	assert.Equal(t, StartAddr(0x1000), start.Address)

	_, ok = r.LookupStart(StartAddr(0x4000))
	assert.False(t, ok)
}

func TestRegistryAddrEnumeration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertStart(&StartTrap{Address: StartAddr(0x10)}))
	require.NoError(t, r.InsertStart(&StartTrap{Address: StartAddr(0x20)}))
	require.NoError(t, r.InsertEnd(&EndTrap{Address: EndAddr(0x30), StartAddr: StartAddr(0x10)}))

	assert.ElementsMatch(t, []StartAddr{0x10, 0x20}, r.StartAddrs())
	assert.ElementsMatch(t, []EndAddr{0x30}, r.EndAddrs())
}

func TestStartTrapClaimRelease(t *testing.T) {
	tr := &StartTrap{Address: StartAddr(0x1000)}
	assert.Nil(t, tr.Sampler())

	s := sampler.NewShort(nil)
	assert.True(t, tr.Claim(s))
	assert.False(t, tr.Claim(s), "a second claim before Release must fail")
	assert.Equal(t, s, tr.Sampler())

	tr.Release()
	assert.Nil(t, tr.Sampler())
	assert.True(t, tr.Claim(s), "a claim after Release must succeed again")
}
