package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/leader"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const partyID = "party-1"

var wallets = []string{
	"0x1d5B82C42E4aAa3B3E6d2dA8e3a8cB1f0D6Af021",
	"0x2a6C93D53F5bBb4C4F7e3eB9f4b9dC2a1E7Ba132",
	"0x3b7DA4E6406cCc5D5A8f4fCaA5cAeD3b2F8Cb243",
	"0x4c8EB5F7517dDd6E6B9a5aDbB6dBfE4c3A9Dc354",
	"0x5d9FC6A8628eEe7F7CAb6bEcC7eCaF5d4BAEd465",
}

type memStore struct {
	mu    sync.Mutex
	cfg   *storage.KeyConfig
	saves int
}

func (s *memStore) Load(ctx context.Context) (*storage.KeyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.cfg
	return &cp, nil
}

func (s *memStore) Save(ctx context.Context, cfg *storage.KeyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.cfg = &cp
	s.saves++
	return nil
}

func (s *memStore) saved() *storage.KeyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

type failingElector struct{}

func (failingElector) WaitToLeaderSelect(ctx context.Context) (string, error) {
	return "", errors.New("no leader")
}

func (failingElector) IsLeader(string) bool { return false }

type testNode struct {
	wallet string
	peerID string
	svc    *Service
	tr     *transport.MemoryTransport
	cache  *key.Cache
	store  *memStore
}

func peerIDOf(i int) string {
	return fmt.Sprintf("peer-%d", i)
}

func newNode(t *testing.T, net *transport.MemoryNetwork, i, threshold int, elector leader.Elector) *testNode {
	t.Helper()
	infos := make([]party.PartnerInfo, len(wallets))
	for j, w := range wallets {
		infos[j] = party.PartnerInfo{Wallet: w, PeerID: peerIDOf(j)}
	}
	p, err := party.New(partyID, threshold, len(wallets), infos)
	require.NoError(t, err)

	router := transport.NewRouter()
	tr := net.Join(wallets[i], peerIDOf(i), router)
	cache := key.NewCache(0, 0)
	store := &memStore{}
	svc, err := NewService(Config{
		SelfWallet:         wallets[i],
		KeyTimeout:         5 * time.Second,
		CallTimeout:        2 * time.Second,
		StatusPollInterval: 50 * time.Millisecond,
		FindOthersInterval: 10 * time.Millisecond,
	}, p, cache, tr, store, elector, nil)
	require.NoError(t, err)
	svc.Register(router)
	tr.SetListener(svc)
	svc.Start(context.Background())

	return &testNode{wallet: wallets[i], peerID: peerIDOf(i), svc: svc, tr: tr, cache: cache, store: store}
}

func newCluster(t *testing.T, threshold int, elector leader.Elector) (*transport.MemoryNetwork, []*testNode) {
	t.Helper()
	net := transport.NewMemoryNetwork()
	nodes := make([]*testNode, len(wallets))
	for i := range wallets {
		nodes[i] = newNode(t, net, i, threshold, elector)
	}
	net.ConnectAll()
	return net, nodes
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func indexOf(t *testing.T, wallet string) tss.Scalar {
	t.Helper()
	idx, err := tss.IndexFromWallet(wallet)
	require.NoError(t, err)
	return *idx
}

func TestKeyGenAllNodesAgree(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	k, err := nodes[0].svc.KeyGen(ctx, CreateKeyOptions{})
	require.NoError(t, err)
	res0, ok := k.Result()
	require.True(t, ok)
	assert.Len(t, res0.Partners, len(wallets))

	results := make([]*key.Result, len(nodes))
	for i, n := range nodes {
		nk, ok := n.cache.Get(k.ID())
		require.True(t, ok, "node %d has the key", i)
		res, err := nk.WaitToFulfill(ctx)
		require.NoError(t, err)
		assert.Equal(t, res0.Address, res.Address)
		assert.True(t, tss.PointsEqual(&res0.PublicKey, &res.PublicKey))
		results[i] = res
	}

	// any t shares reconstruct the group secret
	for _, subset := range [][]int{{0, 1, 2}, {1, 3, 4}, {0, 2, 4}} {
		shares := make([]tss.Share, 0, len(subset))
		for _, i := range subset {
			shares = append(shares, tss.Share{Index: indexOf(t, wallets[i]), Value: results[i].Share})
		}
		secret, err := tss.ReconstructAt(shares, 3, new(tss.Scalar))
		require.NoError(t, err)
		assert.True(t, tss.PointsEqual(tss.BaseMul(secret), &res0.PublicKey), "subset %v", subset)
	}
}

func TestKeyGenInsufficientOnlineNodes(t *testing.T) {
	ctx := testContext(t)
	net := transport.NewMemoryNetwork()
	elector := leader.NewStaticElector(wallets[0])
	nodes := make([]*testNode, len(wallets))
	for i := range wallets {
		nodes[i] = newNode(t, net, i, 3, elector)
	}

	_, err := nodes[0].svc.KeyGen(ctx, CreateKeyOptions{})
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeQuorum))
	assert.Contains(t, err.Error(), "insufficient online nodes")
	for _, n := range nodes {
		assert.Equal(t, 0, n.cache.Len(), "no key was created on %s", n.wallet)
	}
}

func TestKeyGenSkipsOfflinePartner(t *testing.T) {
	ctx := testContext(t)
	net, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))
	net.SetOffline(peerIDOf(4), true)

	k, err := nodes[0].svc.KeyGen(ctx, CreateKeyOptions{})
	require.NoError(t, err)
	res, _ := k.Result()
	assert.Len(t, res.Partners, 4)
	assert.NotContains(t, res.Partners, wallets[4])
}

func TestKeyGenMaxPartners(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	k, err := nodes[2].svc.KeyGen(ctx, CreateKeyOptions{MaxPartners: 3})
	require.NoError(t, err)
	res, _ := k.Result()
	assert.Len(t, res.Partners, 3)
	assert.Contains(t, res.Partners, wallets[2])

	involved := 0
	for _, n := range nodes {
		if _, ok := n.cache.Get(k.ID()); ok {
			involved++
		}
	}
	assert.Equal(t, 3, involved)
}

func TestTamperedShareExcludesSender(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	// node1 only reserves the key so that it does not broadcast before the tampered share lands
	req := protocol.CreateKeyRequest{PartyID: partyID, KeyID: "tampered", Partners: wallets}
	var ok bool
	require.NoError(t, nodes[2].tr.Call(ctx, nodes[1].tr.Self(), protocol.MethodCreateKey, req, &ok))
	require.True(t, ok)

	attacker, err := key.New(nodes[2].svc.Party(), wallets[2], "tampered", time.Minute)
	require.NoError(t, err)
	require.NoError(t, attacker.SetPartners(wallets, true))
	c, err := attacker.Contribution()
	require.NoError(t, err)
	f, h, err := attacker.EvaluateFor(wallets[1])
	require.NoError(t, err)
	f = tss.AddScalars(f, new(tss.Scalar).SetInt(1))

	commitment, err := tss.PointsToHex(c.Commitments)
	require.NoError(t, err)
	pubKeys, err := tss.PointsToHex(c.CoefPubKeys)
	require.NoError(t, err)
	dist := protocol.DistributeKeyRequest{
		PartyID:    partyID,
		KeyID:      "tampered",
		Partners:   wallets,
		Commitment: commitment,
		PubKeys:    pubKeys,
		F:          tss.ScalarToHex(f),
		H:          tss.ScalarToHex(h),
	}
	err = nodes[2].tr.Call(ctx, nodes[1].tr.Self(), protocol.MethodDistributeKey, dist, &ok)
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeMalicious))

	k, found := nodes[1].cache.Get("tampered")
	require.True(t, found)
	assert.Equal(t, []string{wallets[2]}, k.Excluded())
}

func TestHandlerRejections(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))
	from, to := nodes[1].tr, nodes[2].tr.Self()
	var ok bool

	err := from.Call(ctx, to, protocol.MethodCreateKey, protocol.CreateKeyRequest{PartyID: "other", KeyID: "k1", Partners: wallets}, &ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "party not found")

	require.NoError(t, from.Call(ctx, to, protocol.MethodCreateKey, protocol.CreateKeyRequest{PartyID: partyID, KeyID: "k1", Partners: wallets}, &ok))
	err = from.Call(ctx, to, protocol.MethodCreateKey, protocol.CreateKeyRequest{PartyID: partyID, KeyID: "k1", Partners: wallets}, &ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key already exist")

	err = from.Call(ctx, to, protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: partyID, KeyID: "missing"}, &ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key not found")

	err = from.Call(ctx, to, protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: partyID, KeyID: "k1"}, &ok)
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation))
	assert.Contains(t, err.Error(), "Not permitted to create tss key")

	var status protocol.StatusResponse
	require.NoError(t, from.Call(ctx, to, protocol.MethodCheckStatus, nil, &status))
	assert.False(t, status.IsReady)
}

func TestCreateProductionKeyStoresOnAllPartners(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	k, err := nodes[0].svc.CreateProductionKey(ctx)
	require.NoError(t, err)
	res, _ := k.Result()
	assert.True(t, tss.IsCanonical(&res.PublicKey))

	for _, n := range nodes {
		require.True(t, n.svc.IsReady(), "%s is ready", n.wallet)
		prod, ok := n.svc.ProductionKey()
		require.True(t, ok)
		assert.Equal(t, res.Address, prod.Address)

		cfg := n.store.saved()
		require.NotNil(t, cfg)
		assert.True(t, cfg.Matches(partyID, 3))
		assert.Equal(t, k.ID(), cfg.Key.ID)
		assert.Equal(t, tss.ScalarToHex(&prod.Share), cfg.Key.Share)
	}

	// a second store from the leader is refused once ready
	var ok bool
	err = nodes[0].tr.Call(ctx, nodes[1].tr.Self(), protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: partyID, KeyID: k.ID()}, &ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not permitted to create tss key")
}

func TestStoreKeyRejectsDifferentLeaderKey(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	k, err := nodes[0].svc.KeyGen(ctx, CreateKeyOptions{})
	require.NoError(t, err)
	res, _ := k.Result()
	pubHex, err := tss.PointToHex(&res.PublicKey)
	require.NoError(t, err)

	secret, err := tss.RandomScalar()
	require.NoError(t, err)
	otherHex, err := tss.PointToHex(tss.BaseMul(secret))
	require.NoError(t, err)

	var ok bool
	err = nodes[0].tr.Call(ctx, nodes[1].tr.Self(), protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: partyID, KeyID: k.ID(), PublicKey: otherHex}, &ok)
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation))
	assert.Contains(t, err.Error(), "does not match the leader's public key")
	assert.False(t, nodes[1].svc.IsReady())
	assert.Nil(t, nodes[1].store.saved())

	require.NoError(t, nodes[0].tr.Call(ctx, nodes[1].tr.Self(), protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: partyID, KeyID: k.ID(), PublicKey: pubHex}, &ok))
	assert.True(t, ok)
	assert.True(t, nodes[1].svc.IsReady())
}

func TestRecoverKeyRestoresLostShare(t *testing.T) {
	ctx := testContext(t)
	elector := leader.NewStaticElector(wallets[0])
	net, nodes := newCluster(t, 3, elector)
	_, err := nodes[0].svc.CreateProductionKey(ctx)
	require.NoError(t, err)
	lost, ok := nodes[4].svc.ProductionKey()
	require.True(t, ok)

	fresh := newNode(t, net, 4, 3, elector)
	net.ConnectAll()
	require.False(t, fresh.svc.IsReady())

	_, err = fresh.svc.RecoverKey(ctx, wallets[:2])
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeQuorum))
	assert.Equal(t, 0, fresh.cache.Len(), "no nonce is generated below threshold")

	res, err := fresh.svc.RecoverKey(ctx, wallets[1:4])
	require.NoError(t, err)
	assert.Equal(t, lost.ID, res.ID)
	assert.Equal(t, lost.Address, res.Address)
	assert.Equal(t, tss.ScalarToHex(&lost.Share), tss.ScalarToHex(&res.Share))
	assert.True(t, fresh.svc.IsReady())

	cfg := fresh.store.saved()
	require.NotNil(t, cfg)
	assert.Equal(t, tss.ScalarToHex(&lost.Share), cfg.Key.Share)

	// recovered share combines with two others into the group key
	var shares []tss.Share
	for _, n := range []*testNode{fresh, nodes[0], nodes[2]} {
		prod, _ := n.svc.ProductionKey()
		shares = append(shares, tss.Share{Index: indexOf(t, n.wallet), Value: prod.Share})
	}
	secret, err := tss.ReconstructAt(shares, 3, new(tss.Scalar))
	require.NoError(t, err)
	assert.True(t, tss.PointsEqual(tss.BaseMul(secret), &lost.PublicKey))
}

func TestRecoverKeyFailsWhenHelpersAnswerBelowThreshold(t *testing.T) {
	ctx := testContext(t)
	elector := leader.NewStaticElector(wallets[0])
	net, nodes := newCluster(t, 3, elector)
	_, err := nodes[0].svc.CreateProductionKey(ctx)
	require.NoError(t, err)

	// node 3 lost its key as well, it joins the nonce but answers null
	newNode(t, net, 3, 3, elector)
	fresh := newNode(t, net, 4, 3, elector)
	net.ConnectAll()

	_, err = fresh.svc.RecoverKey(ctx, wallets[1:4])
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeQuorum))
	assert.Contains(t, err.Error(), "not enough results to recover the key")
	assert.False(t, fresh.svc.IsReady())
	assert.Nil(t, fresh.store.saved())
	assert.Equal(t, 0, fresh.cache.Len(), "nonce is dropped after a failed recovery")
}

func TestRecoverMyKeyRefusals(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))
	helper := nodes[1].tr.Self()

	var resp *protocol.RecoverMyKeyResponse
	require.NoError(t, nodes[4].tr.Call(ctx, helper, protocol.MethodRecoverMyKey, protocol.RecoverMyKeyRequest{NonceID: "nonce"}, &resp))
	assert.Nil(t, resp, "helper without a production key")

	prodKey, err := nodes[0].svc.CreateProductionKey(ctx)
	require.NoError(t, err)

	resp = nil
	require.NoError(t, nodes[4].tr.Call(ctx, helper, protocol.MethodRecoverMyKey, protocol.RecoverMyKeyRequest{NonceID: prodKey.ID()}, &resp))
	assert.Nil(t, resp, "production key cannot be used as nonce")

	resp = nil
	require.NoError(t, nodes[4].tr.Call(ctx, helper, protocol.MethodRecoverMyKey, protocol.RecoverMyKeyRequest{NonceID: "unknown"}, &resp))
	assert.Nil(t, resp, "unknown nonce")

	// nonce generated without the requester
	other, err := nodes[0].svc.KeyGen(ctx, CreateKeyOptions{Partners: wallets[1:3]})
	require.NoError(t, err)
	resp = nil
	require.NoError(t, nodes[4].tr.Call(ctx, helper, protocol.MethodRecoverMyKey, protocol.RecoverMyKeyRequest{NonceID: other.ID()}, &resp))
	assert.Nil(t, resp, "requester is not a nonce partner")

	// a proper nonce returns a blinded share
	nonce, err := nodes[4].svc.KeyGen(ctx, CreateKeyOptions{Partners: wallets[1:4]})
	require.NoError(t, err)
	resp = nil
	require.NoError(t, nodes[4].tr.Call(ctx, helper, protocol.MethodRecoverMyKey, protocol.RecoverMyKeyRequest{NonceID: nonce.ID()}, &resp))
	require.NotNil(t, resp)
	helperProd, _ := nodes[1].svc.ProductionKey()
	assert.Equal(t, helperProd.ID, resp.ID)
	assert.NotEqual(t, tss.ScalarToHex(&helperProd.Share), resp.RecoveryShare)
}

func TestTryToFindOthers(t *testing.T) {
	ctx := testContext(t)
	net := transport.NewMemoryNetwork()
	elector := leader.NewStaticElector(wallets[0])
	nodes := make([]*testNode, len(wallets))
	for i := range wallets {
		nodes[i] = newNode(t, net, i, 3, elector)
	}
	require.Len(t, nodes[0].svc.Party().OnlinePartners(), 1)

	require.NoError(t, nodes[0].svc.TryToFindOthers(ctx, 1))
	require.Eventually(t, func() bool {
		return len(nodes[0].svc.Party().OnlinePartners()) == len(wallets)
	}, 5*time.Second, 10*time.Millisecond)
	for _, n := range nodes[1:] {
		p, ok := n.svc.Party().Partner(wallets[0])
		require.True(t, ok)
		assert.True(t, p.Online(), "%s sees the broadcaster", n.wallet)
	}

	net.SetOffline(peerIDOf(3), true)
	p, _ := nodes[0].svc.Party().Partner(wallets[3])
	assert.False(t, p.Online())
}

func TestBootstrapLeaderCreatesAndOthersStore(t *testing.T) {
	ctx := testContext(t)
	_, nodes := newCluster(t, 3, leader.NewStaticElector(wallets[0]))

	errs := make(chan error, len(nodes))
	for _, n := range nodes {
		go func(n *testNode) {
			errs <- n.svc.Bootstrap(ctx)
		}(n)
	}
	for range nodes {
		require.NoError(t, <-errs)
	}

	leaderKey, ok := nodes[0].svc.ProductionKey()
	require.True(t, ok)
	for _, n := range nodes {
		prod, ok := n.svc.ProductionKey()
		require.True(t, ok, "%s is ready", n.wallet)
		assert.Equal(t, leaderKey.ID, prod.ID)
		assert.Equal(t, leaderKey.Address, prod.Address)
		assert.NotNil(t, n.store.saved())
	}
}

func TestBootstrapLeaderRetriesUntilPartnersOnline(t *testing.T) {
	ctx := testContext(t)
	net := transport.NewMemoryNetwork()
	elector := leader.NewStaticElector(wallets[0])
	nodes := make([]*testNode, len(wallets))
	for i := range wallets {
		nodes[i] = newNode(t, net, i, 3, elector)
	}

	errs := make(chan error, len(nodes))
	for _, n := range nodes {
		go func(n *testNode) {
			errs <- n.svc.Bootstrap(ctx)
		}(n)
	}

	// the leader sees no quorum on its first attempts
	time.Sleep(100 * time.Millisecond)
	require.False(t, nodes[0].svc.IsReady())
	net.ConnectAll()

	for range nodes {
		require.NoError(t, <-errs)
	}
	leaderKey, ok := nodes[0].svc.ProductionKey()
	require.True(t, ok)
	for _, n := range nodes {
		prod, ok := n.svc.ProductionKey()
		require.True(t, ok, "%s is ready", n.wallet)
		assert.Equal(t, leaderKey.ID, prod.ID)
	}
}

func TestBootstrapLeaderRecoversWhenPartnersHoldKey(t *testing.T) {
	ctx := testContext(t)
	elector := leader.NewStaticElector(wallets[0])
	net, nodes := newCluster(t, 3, elector)
	_, err := nodes[0].svc.CreateProductionKey(ctx)
	require.NoError(t, err)
	prod, _ := nodes[0].svc.ProductionKey()

	restarted := newNode(t, net, 0, 3, elector)
	net.ConnectAll()
	require.NoError(t, restarted.svc.Bootstrap(ctx))

	res, ok := restarted.svc.ProductionKey()
	require.True(t, ok)
	assert.Equal(t, prod.ID, res.ID, "leader keeps the existing key")
	assert.Equal(t, tss.ScalarToHex(&prod.Share), tss.ScalarToHex(&res.Share))
}

func TestBootstrapLoadsSavedConfig(t *testing.T) {
	ctx := testContext(t)
	net := transport.NewMemoryNetwork()
	n := newNode(t, net, 0, 3, failingElector{})

	share, err := tss.RandomScalar()
	require.NoError(t, err)
	pub, err := tss.PointToHex(tss.BaseMul(share))
	require.NoError(t, err)
	n.store.cfg = &storage.KeyConfig{
		Party: storage.PartyConfig{ID: partyID, T: 3, Max: len(wallets)},
		Key:   storage.KeyEntry{ID: "prod", Share: tss.ScalarToHex(share), PublicKey: pub},
	}

	require.NoError(t, n.svc.Bootstrap(ctx))
	require.True(t, n.svc.IsReady())
	prod, _ := n.svc.ProductionKey()
	assert.Equal(t, "prod", prod.ID)
	assert.NotEmpty(t, prod.Address)
	assert.Equal(t, prod.Address, n.svc.Status().Address)
	assert.Equal(t, 0, n.store.saves, "loading does not rewrite the config")
}

func TestBootstrapIgnoresConfigOfOtherThreshold(t *testing.T) {
	net := transport.NewMemoryNetwork()
	n := newNode(t, net, 0, 3, failingElector{})
	n.store.cfg = &storage.KeyConfig{
		Party: storage.PartyConfig{ID: partyID, T: 2, Max: len(wallets)},
		Key:   storage.KeyEntry{ID: "old", Share: "0x01"},
	}

	err := n.svc.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no leader")
	assert.False(t, n.svc.IsReady())
}

func TestAgreedResponsePrefersMajority(t *testing.T) {
	honest := func(share string) *protocol.RecoverMyKeyResponse {
		return &protocol.RecoverMyKeyResponse{ID: "prod", PublicKey: "02AB", RecoveryShare: share}
	}
	forged := &protocol.RecoverMyKeyResponse{ID: "forged", PublicKey: "03cd", RecoveryShare: "0x01"}

	got := agreedResponse([]*protocol.RecoverMyKeyResponse{forged, nil, honest("0x02"), honest("0x03")})
	require.NotNil(t, got)
	assert.Equal(t, "prod", got.ID)
	assert.True(t, sameKey(got, &protocol.RecoverMyKeyResponse{ID: "prod", PublicKey: "0x02ab"}))
	assert.False(t, sameKey(got, forged))

	got = agreedResponse([]*protocol.RecoverMyKeyResponse{forged, honest("0x02")})
	assert.Equal(t, "forged", got.ID, "ties keep the first answer")

	got = agreedResponse([]*protocol.RecoverMyKeyResponse{forged, honest("0x02"), honest("0x03"), forged})
	assert.Equal(t, "forged", got.ID, "ties keep the first answer")

	assert.Nil(t, agreedResponse([]*protocol.RecoverMyKeyResponse{nil, nil}))
}
