package transport

import (
	"context"
	"sync"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/pkg/errors"
)

// MemoryNetwork 进程内的节点网络，用于本地模拟和测试
type MemoryNetwork struct {
	mu      sync.RWMutex
	nodes   map[string]*MemoryTransport // key: peer id
	offline map[string]bool
}

// NewMemoryNetwork 创建进程内网络
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		nodes:   make(map[string]*MemoryTransport),
		offline: make(map[string]bool),
	}
}

// Join 加入一个节点
func (n *MemoryNetwork) Join(wallet, peerID string, router *Router) *MemoryTransport {
	t := &MemoryTransport{
		net:     n,
		wallet:  wallet,
		self:    party.PeerInfo{ID: peerID, Addrs: []string{"mem://" + peerID}},
		router:  router,
		timeout: DefaultCallTimeout,
	}
	n.mu.Lock()
	n.nodes[peerID] = t
	n.mu.Unlock()
	return t
}

// SetOffline 模拟节点不可达
func (n *MemoryNetwork) SetOffline(peerID string, offline bool) {
	n.mu.Lock()
	n.offline[peerID] = offline
	listeners := n.listenersExcept(peerID)
	n.mu.Unlock()

	for _, l := range listeners {
		if offline {
			l.OnPeerDisconnected(peerID)
		}
	}
}

// ConnectAll 向所有监听者通知所有在线节点
func (n *MemoryNetwork) ConnectAll() {
	n.mu.RLock()
	type pair struct {
		l    PeerListener
		peer party.PeerInfo
	}
	var events []pair
	for id, a := range n.nodes {
		if a.listener == nil || n.offline[id] {
			continue
		}
		for otherID, b := range n.nodes {
			if n.offline[otherID] {
				continue
			}
			events = append(events, pair{l: a.listener, peer: b.self})
		}
	}
	n.mu.RUnlock()

	for _, e := range events {
		e.l.OnPeerConnected(e.peer)
	}
}

func (n *MemoryNetwork) listenersExcept(peerID string) []PeerListener {
	var out []PeerListener
	for id, t := range n.nodes {
		if id != peerID && t.listener != nil {
			out = append(out, t.listener)
		}
	}
	return out
}

func (n *MemoryNetwork) target(peerID string) (*MemoryTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.offline[peerID] {
		return nil, false
	}
	t, ok := n.nodes[peerID]
	return t, ok
}

// MemoryTransport 进程内网络上的一个节点
type MemoryTransport struct {
	net      *MemoryNetwork
	wallet   string
	self     party.PeerInfo
	router   *Router
	listener PeerListener
	timeout  time.Duration
}

// SetListener 设置连接事件监听者
func (t *MemoryTransport) SetListener(l PeerListener) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.listener = l
}

func (t *MemoryTransport) Start(context.Context) error { return nil }
func (t *MemoryTransport) Stop(context.Context) error  { return nil }
func (t *MemoryTransport) Self() party.PeerInfo        { return t.self }

// Call 通过 JSON 编解码调用目标节点的处理函数
func (t *MemoryTransport) Call(ctx context.Context, peer party.PeerInfo, method string, params interface{}, result interface{}, opts ...CallOption) error {
	o := ApplyCallOptions(t.timeout, opts...)
	if _, ok := t.net.target(t.self.ID); !ok {
		return protocol.NewNetworkError("", errors.New("local node is offline"))
	}
	target, ok := t.net.target(peer.ID)
	if !ok {
		return protocol.NewNetworkError("", errors.Errorf("peer %s unreachable", peer.ID))
	}

	raw, err := EncodeParams(params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	caller := CallerInfo{Wallet: t.wallet, PeerID: t.self.ID, Addrs: t.self.Addrs}
	respCh := make(chan *CallResponse, 1)
	go func() {
		data, err := target.router.Dispatch(ctx, caller, method, raw)
		respCh <- &CallResponse{Result: data, Error: NewRemoteError(err)}
	}()

	select {
	case resp := <-respCh:
		return DecodeResponse(resp, result)
	case <-ctx.Done():
		return protocol.NewTimeoutError("", "remote call "+method+" to "+peer.ID+" timed out")
	}
}

// Broadcast 投递给所有其他在线节点
func (t *MemoryTransport) Broadcast(ctx context.Context, msg protocol.Broadcast) error {
	data, err := protocol.EncodeBroadcast(msg)
	if err != nil {
		return err
	}
	t.net.mu.RLock()
	var targets []*MemoryTransport
	for id, n := range t.net.nodes {
		if id != t.self.ID && !t.net.offline[id] {
			targets = append(targets, n)
		}
	}
	t.net.mu.RUnlock()

	for _, target := range targets {
		go target.router.DispatchBroadcast(context.Background(), t.self, data)
	}
	return nil
}
