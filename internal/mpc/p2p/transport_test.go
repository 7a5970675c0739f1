package p2p

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyA = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	keyB = "0x8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

type recordingListener struct {
	mu        sync.Mutex
	connected map[string]bool
}

func (l *recordingListener) OnPeerConnected(p party.PeerInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected[p.ID] = true
}

func (l *recordingListener) OnPeerDisconnected(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected[id] = false
}

func (l *recordingListener) isConnected(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected[id]
}

func startNode(t *testing.T, key string, router *transport.Router, resolver func(string) (string, bool)) *Transport {
	t.Helper()
	tr := New(Config{
		PrivateKeyHex: key,
		Listen:        []string{"/ip4/127.0.0.1/tcp/0"},
		PartyID:       "test-party",
		CallTimeout:   5 * time.Second,
	}, router, resolver)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr
}

func TestPeerIDFromHex(t *testing.T) {
	id1, err := PeerIDFromHex(keyA)
	require.NoError(t, err)
	id2, err := PeerIDFromHex(keyA[2:])
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other, err := PeerIDFromHex(keyB)
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)

	_, err = PeerIDFromHex("0xzz")
	assert.Error(t, err)
}

func TestStreamCall(t *testing.T) {
	peerA, err := PeerIDFromHex(keyA)
	require.NoError(t, err)

	router := transport.NewRouter()
	router.Handle(protocol.MethodCheckStatus, func(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
		return protocol.StatusResponse{IsReady: true, Address: caller.Wallet}, nil
	})
	router.Handle(protocol.MethodStoreKey, func(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
		return nil, protocol.NewViolationError("", "Not permitted to create tss key")
	})
	resolver := func(id string) (string, bool) {
		if id == peerA {
			return "0xaaaa", true
		}
		return "", false
	}

	a := startNode(t, keyA, transport.NewRouter(), nil)
	b := startNode(t, keyB, router, resolver)

	listener := &recordingListener{connected: make(map[string]bool)}
	b.SetListener(listener)

	var status protocol.StatusResponse
	require.NoError(t, a.Call(context.Background(), b.Self(), protocol.MethodCheckStatus, nil, &status))
	assert.True(t, status.IsReady)
	assert.Equal(t, "0xaaaa", status.Address)

	err = a.Call(context.Background(), b.Self(), protocol.MethodStoreKey, protocol.StoreKeyRequest{PartyID: "p", KeyID: "k"}, nil)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeViolation))

	assert.Eventually(t, func() bool { return listener.isConnected(peerA) }, 5*time.Second, 50*time.Millisecond)

	err = a.Call(context.Background(), party.PeerInfo{ID: "not-a-peer-id"}, protocol.MethodCheckStatus, nil, nil)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeNetwork))
}

func TestGossipBroadcast(t *testing.T) {
	received := make(chan string, 16)
	routerB := transport.NewRouter()
	routerB.HandleBroadcast(protocol.BroadcastWhoIsThere, func(ctx context.Context, from party.PeerInfo, msg protocol.Broadcast) {
		received <- msg.(protocol.WhoIsThere).PeerID
	})

	a := startNode(t, keyA, transport.NewRouter(), nil)
	b := startNode(t, keyB, routerB, nil)
	require.NoError(t, a.Connect(context.Background(), b.Self().Addrs[0]))

	// 网格建立需要时间，反复发布直到收到
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case got := <-received:
			assert.Equal(t, a.Self().ID, got)
			return
		case <-ticker.C:
			require.NoError(t, a.Broadcast(context.Background(), protocol.WhoIsThere{PeerID: a.Self().ID}))
		case <-deadline:
			t.Fatal("broadcast not delivered")
		}
	}
}
