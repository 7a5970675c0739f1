package key

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wallets = []string{
	"0x1d5B82C42E4aAa3B3E6d2dA8e3a8cB1f0D6Af021",
	"0x2a6C93D53F5bBb4C4F7e3eB9f4b9dC2a1E7Ba132",
	"0x3b7DA4E6406cCc5D5A8f4fCaA5cAeD3b2F8Cb243",
	"0x4c8EB5F7517dDd6E6B9a5aDbB6dBfE4c3A9Dc354",
	"0x5d9FC6A8628eEe7F7CAb6bEcC7eCaF5d4BAEd465",
}

func newParty(t *testing.T, threshold int) *party.Party {
	t.Helper()
	infos := make([]party.PartnerInfo, len(wallets))
	for i, w := range wallets {
		infos[i] = party.PartnerInfo{Wallet: w}
	}
	p, err := party.New("group-1", threshold, len(wallets), infos)
	require.NoError(t, err)
	return p
}

func newKeys(t *testing.T, p *party.Party, id string, timeout time.Duration) map[string]*DistributedKey {
	t.Helper()
	keys := make(map[string]*DistributedKey, len(wallets))
	for i, w := range wallets {
		k, err := New(p, w, id, timeout)
		require.NoError(t, err)
		require.NoError(t, k.SetPartners(wallets, i == 0))
		keys[w] = k
	}
	return keys
}

func setSelf(t *testing.T, k *DistributedKey) {
	t.Helper()
	c, err := k.Contribution()
	require.NoError(t, err)
	f, h, err := k.EvaluateFor(k.SelfWallet())
	require.NoError(t, err)
	require.NoError(t, k.SetSelfShare(f, h, c))
}

func shareFor(t *testing.T, from *DistributedKey, to string) *PartnerShare {
	t.Helper()
	c, err := from.Contribution()
	require.NoError(t, err)
	f, h, err := from.EvaluateFor(to)
	require.NoError(t, err)
	return &PartnerShare{F: *f, H: *h, Commitments: c.Commitments, CoefPubKeys: c.CoefPubKeys}
}

func exchangeAll(t *testing.T, keys map[string]*DistributedKey) {
	t.Helper()
	for _, w := range wallets {
		setSelf(t, keys[w])
	}
	for _, from := range wallets {
		for _, to := range wallets {
			if from == to {
				continue
			}
			require.NoError(t, keys[to].SetPartnerShare(from, wallets, shareFor(t, keys[from], to)))
		}
	}
}

func TestKeyGenerationAllPartnersAgree(t *testing.T) {
	p := newParty(t, 3)
	keys := newKeys(t, p, "key-1", time.Minute)
	exchangeAll(t, keys)

	ctx := context.Background()
	results := make(map[string]*Result)
	for _, w := range wallets {
		assert.Equal(t, StateFulfilled, keys[w].State())
		res, err := keys[w].WaitToFulfill(ctx)
		require.NoError(t, err)
		results[w] = res
	}

	first := results[wallets[0]]
	for _, w := range wallets[1:] {
		assert.True(t, tss.PointsEqual(&first.PublicKey, &results[w].PublicKey))
		assert.Equal(t, first.Address, results[w].Address)
	}

	// any 3 of the 5 final shares reconstruct the group secret
	subsets := [][]int{{0, 1, 2}, {1, 3, 4}, {0, 2, 4}}
	for _, subset := range subsets {
		var shares []tss.Share
		for _, i := range subset {
			idx, err := tss.IndexFromWallet(wallets[i])
			require.NoError(t, err)
			shares = append(shares, tss.Share{Index: *idx, Value: results[wallets[i]].Share})
		}
		secret, err := tss.ReconstructAt(shares, 3, new(tss.Scalar))
		require.NoError(t, err)
		assert.True(t, tss.PointsEqual(tss.BaseMul(secret), &first.PublicKey), "subset %v", subset)
	}
}

func TestWaitToFulfillIsIdempotent(t *testing.T) {
	p := newParty(t, 2)
	keys := newKeys(t, p, "key-idem", time.Minute)
	k := keys[wallets[0]]

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := k.WaitToFulfill(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	exchangeAll(t, keys)
	wg.Wait()

	again, err := k.WaitToFulfill(context.Background())
	require.NoError(t, err)
	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Share.Equals(&again.Share))
		assert.True(t, tss.PointsEqual(&res.PublicKey, &again.PublicKey))
	}
}

func TestTamperedShareIsRejected(t *testing.T) {
	p := newParty(t, 3)
	keys := newKeys(t, p, "key-tamper", time.Minute)
	for _, w := range wallets {
		setSelf(t, keys[w])
	}

	receiver := keys[wallets[0]]
	bad := shareFor(t, keys[wallets[1]], wallets[0])
	bad.F = *tss.AddScalars(&bad.F, new(tss.Scalar).SetInt(7))

	err := receiver.SetPartnerShare(wallets[1], wallets, bad)
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeMalicious))
	assert.Equal(t, []string{wallets[1]}, receiver.Excluded())

	// the original valid share is refused once the sender is excluded
	err = receiver.SetPartnerShare(wallets[1], wallets, shareFor(t, keys[wallets[1]], wallets[0]))
	assert.True(t, protocol.IsType(err, protocol.ErrTypeMalicious))

	// remaining 4 contributors still reach the threshold
	for _, from := range wallets[2:] {
		require.NoError(t, receiver.SetPartnerShare(from, wallets, shareFor(t, keys[from], wallets[0])))
	}
	res, err := receiver.WaitToFulfill(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, res.Partners, wallets[1])
	assert.Len(t, res.Partners, 4)
}

func TestExclusionBelowThresholdFails(t *testing.T) {
	p := newParty(t, 3)
	keys := make(map[string]*DistributedKey)
	members := wallets[:3]
	for _, w := range members {
		k, err := New(p, w, "key-fail", time.Minute)
		require.NoError(t, err)
		require.NoError(t, k.SetPartners(members, true))
		keys[w] = k
		setSelf(t, k)
	}

	receiver := keys[members[0]]
	bad := shareFor(t, keys[members[2]], members[0])
	bad.H = *tss.AddScalars(&bad.H, new(tss.Scalar).SetInt(1))
	require.Error(t, receiver.SetPartnerShare(members[2], members, bad))

	assert.Equal(t, StateFailed, receiver.State())
	_, err := receiver.WaitToFulfill(context.Background())
	assert.True(t, protocol.IsType(err, protocol.ErrTypeMalicious))
}

func TestTimeout(t *testing.T) {
	p := newParty(t, 2)
	k, err := New(p, wallets[0], "", 30*time.Millisecond)
	require.NoError(t, err)
	assert.NotEmpty(t, k.ID())
	require.NoError(t, k.SetPartners(wallets[:2], true))
	setSelf(t, k)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := k.WaitToFulfill(context.Background())
			assert.True(t, protocol.IsType(err, protocol.ErrTypeTimeout))
		}()
	}
	wg.Wait()

	assert.Equal(t, StateTimedOut, k.State())
	_, err = k.WaitToFulfill(context.Background())
	assert.True(t, protocol.IsType(err, protocol.ErrTypeTimeout))
	assert.False(t, k.TryStartDistribution())
}

func TestWaitRespectsContext(t *testing.T) {
	p := newParty(t, 2)
	k, err := New(p, wallets[0], "key-ctx", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.WaitToFulfill(ctx)
	assert.Error(t, err)
	assert.Equal(t, StateCreated, k.State())
}

func TestSingleTransitionGuards(t *testing.T) {
	p := newParty(t, 2)
	k, err := New(p, wallets[0], "key-guard", time.Minute)
	require.NoError(t, err)
	require.NoError(t, k.SetPartners(wallets[:2], true))

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k.TryStartDistribution() {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)

	setSelf(t, k)
	assert.Equal(t, StateDistributing, k.State())
	c, _ := k.Contribution()
	f, h, _ := k.EvaluateFor(wallets[0])
	assert.Error(t, k.SetSelfShare(f, h, c))
}

func TestDeclaredPartnersAdoption(t *testing.T) {
	p := newParty(t, 2)
	initiator, err := New(p, wallets[0], "key-adopt", time.Minute)
	require.NoError(t, err)
	require.NoError(t, initiator.SetPartners(wallets[:3], true))
	setSelf(t, initiator)

	// stub created from a tentative list of all five
	stub, err := New(p, wallets[1], "key-adopt", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stub.SetPartners(wallets, false))

	require.NoError(t, stub.SetPartnerShare(wallets[0], wallets[:3], shareFor(t, initiator, wallets[1])))
	assert.ElementsMatch(t, wallets[:3], stub.Partners())

	other, err := New(p, wallets[2], "key-adopt", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.SetPartners(wallets[:3], false))
	setSelf(t, other)

	err = stub.SetPartnerShare(wallets[2], wallets[:4], shareFor(t, other, wallets[1]))
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation))

	require.NoError(t, stub.SetPartnerShare(wallets[2], wallets[:3], shareFor(t, other, wallets[1])))
	err = stub.SetPartnerShare(wallets[2], wallets[:3], shareFor(t, other, wallets[1]))
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation), "duplicate share")

	err = stub.SetPartnerShare(wallets[4], wallets[:3], shareFor(t, other, wallets[1]))
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation), "sender outside key partners")
}

func TestPartnerListValidation(t *testing.T) {
	p := newParty(t, 3)
	k, err := New(p, wallets[0], "key-v", time.Minute)
	require.NoError(t, err)

	assert.Error(t, k.SetPartners(wallets[1:], true), "self missing")
	assert.Error(t, k.SetPartners(wallets[:2], true), "below threshold")
	assert.Error(t, k.SetPartners([]string{wallets[0], wallets[1], "0x9999999999999999999999999999999999999999"}, true))

	_, err = New(p, "0x9999999999999999999999999999999999999999", "", time.Minute)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	p := newParty(t, 3)
	secret, err := tss.RandomScalar()
	require.NoError(t, err)
	pub := tss.BaseMul(secret)

	k, err := Load(p, wallets[0], Loaded{ID: "prod", Share: *secret, PublicKey: *pub})
	require.NoError(t, err)
	assert.Equal(t, StateFulfilled, k.State())

	res, err := k.WaitToFulfill(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Share.Equals(secret))
	addr, _ := tss.PubToAddress(pub)
	assert.Equal(t, addr, res.Address)

	_, err = Load(p, wallets[0], Loaded{})
	assert.Error(t, err)
}
