package p2p

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	p2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RemoteCallProtocol 远程调用流协议
const RemoteCallProtocol = p2pprotocol.ID("/mpc-oracle/remote-call/1.0.0")

// BroadcastTopic Party 广播主题
func BroadcastTopic(partyID string) string {
	return "mpc/party/" + partyID + "/broadcast"
}

// Config libp2p 传输配置
type Config struct {
	PrivateKeyHex string
	Listen        []string
	Bootnodes     []string
	PartyID       string
	CallTimeout   time.Duration
}

// Transport 基于 libp2p 流与 gossipsub 的节点通信
type Transport struct {
	cfg      Config
	router   *transport.Router
	resolver func(peerID string) (string, bool)

	mu       sync.RWMutex
	listener transport.PeerListener

	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	cancel context.CancelFunc
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 libp2p 传输层，Start 之前不会打开任何端口
func New(cfg Config, router *transport.Router, resolver func(peerID string) (string, bool)) *Transport {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = transport.DefaultCallTimeout
	}
	return &Transport{cfg: cfg, router: router, resolver: resolver}
}

// IdentityFromHex 把节点钱包私钥转换为 libp2p 身份
func IdentityFromHex(privateKeyHex string) (p2pcrypto.PrivKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid node private key")
	}
	sk, err := p2pcrypto.UnmarshalSecp256k1PrivateKey(crypto.FromECDSA(key))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build libp2p identity")
	}
	return sk, nil
}

// PeerIDFromHex 计算私钥对应的 peer id
func PeerIDFromHex(privateKeyHex string) (string, error) {
	sk, err := IdentityFromHex(privateKeyHex)
	if err != nil {
		return "", err
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return "", errors.Wrap(err, "failed to derive peer id")
	}
	return id.String(), nil
}

// SetListener 设置连接事件监听者
func (t *Transport) SetListener(l transport.PeerListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

func (t *Transport) peerListener() transport.PeerListener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listener
}

// Start 启动 libp2p 节点、订阅广播主题并连接引导节点
func (t *Transport) Start(ctx context.Context) error {
	sk, err := IdentityFromHex(t.cfg.PrivateKeyHex)
	if err != nil {
		return err
	}
	opts := []libp2p.Option{libp2p.Identity(sk)}
	if len(t.cfg.Listen) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(t.cfg.Listen...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return errors.Wrap(err, "failed to start libp2p host")
	}
	t.host = h

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	h.SetStreamHandler(RemoteCallProtocol, t.handleStream)
	h.Network().Notify(&network.NotifyBundle{
		ConnectedF:    t.onConnected,
		DisconnectedF: t.onDisconnected,
	})

	if t.ps, err = pubsub.NewGossipSub(runCtx, h); err != nil {
		return errors.Wrap(err, "failed to start gossipsub")
	}
	if t.topic, err = t.ps.Join(BroadcastTopic(t.cfg.PartyID)); err != nil {
		return errors.Wrap(err, "failed to join broadcast topic")
	}
	if t.sub, err = t.topic.Subscribe(); err != nil {
		return errors.Wrap(err, "failed to subscribe broadcast topic")
	}
	go t.loopBroadcast(runCtx)

	for _, b := range t.cfg.Bootnodes {
		if strings.TrimSpace(b) == "" {
			continue
		}
		if err := t.connect(ctx, b); err != nil {
			log.Warn().Err(err).Str("bootnode", b).Msg("Failed to connect bootnode")
		}
	}

	for _, a := range t.Self().Addrs {
		log.Info().Str("peer_id", h.ID().String()).Str("addr", a).Msg("libp2p node listening")
	}
	return nil
}

// Stop 关闭订阅与主机
func (t *Transport) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.sub != nil {
		t.sub.Cancel()
	}
	if t.topic != nil {
		_ = t.topic.Close()
	}
	if t.host != nil {
		return t.host.Close()
	}
	return nil
}

// Self 本节点 peer id 与完整 multiaddr
func (t *Transport) Self() party.PeerInfo {
	if t.host == nil {
		return party.PeerInfo{}
	}
	info := party.PeerInfo{ID: t.host.ID().String()}
	for _, a := range t.host.Addrs() {
		info.Addrs = append(info.Addrs, a.String()+"/p2p/"+info.ID)
	}
	return info
}

// Connect 连接一个完整的 /p2p/ 地址
func (t *Transport) Connect(ctx context.Context, addr string) error {
	return t.connect(ctx, addr)
}

func (t *Transport) connect(ctx context.Context, addr string) error {
	maAddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrapf(err, "invalid multiaddr %s", addr)
	}
	info, err := peer.AddrInfoFromP2pAddr(maAddr)
	if err != nil {
		return errors.Wrapf(err, "multiaddr %s has no peer id", addr)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.host.Connect(ctx, *info)
}

func (t *Transport) onConnected(_ network.Network, conn network.Conn) {
	l := t.peerListener()
	if l == nil {
		return
	}
	remote := conn.RemotePeer()
	info := party.PeerInfo{ID: remote.String()}
	for _, a := range t.host.Peerstore().Addrs(remote) {
		info.Addrs = append(info.Addrs, a.String())
	}
	if len(info.Addrs) == 0 {
		info.Addrs = []string{conn.RemoteMultiaddr().String()}
	}
	go l.OnPeerConnected(info)
}

func (t *Transport) onDisconnected(n network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	// 仍有其他连接时不视为离线
	if n.Connectedness(remote) == network.Connected {
		return
	}
	if l := t.peerListener(); l != nil {
		go l.OnPeerDisconnected(remote.String())
	}
}

// Call 打开一条流发送请求帧并等待响应帧
func (t *Transport) Call(ctx context.Context, target party.PeerInfo, method string, params interface{}, result interface{}, opts ...transport.CallOption) error {
	o := transport.ApplyCallOptions(t.cfg.CallTimeout, opts...)
	if t.host == nil {
		return protocol.NewNetworkError("", errors.New("libp2p host not started"))
	}

	id, err := peer.Decode(target.ID)
	if err != nil {
		return protocol.NewNetworkError("", errors.Wrapf(err, "invalid peer id %s", target.ID))
	}
	for _, a := range target.Addrs {
		addr, err := ma.NewMultiaddr(a)
		if err != nil {
			continue
		}
		if tpt, _ := peer.SplitAddr(addr); tpt != nil {
			t.host.Peerstore().AddAddr(id, tpt, peerstore.TempAddrTTL)
		}
	}

	raw, err := transport.EncodeParams(params)
	if err != nil {
		return err
	}
	self := t.Self()
	frame, err := json.Marshal(&transport.CallRequest{Method: method, Params: raw, PeerID: self.ID, Addrs: self.Addrs})
	if err != nil {
		return errors.Wrap(err, "failed to marshal call request")
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	stream, err := t.host.NewStream(ctx, id, RemoteCallProtocol)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.NewTimeoutError("", "remote call "+method+" to "+target.ID+" timed out")
		}
		return protocol.NewNetworkError("", errors.Wrapf(err, "failed to open stream to %s", target.ID))
	}
	defer stream.Close()
	deadline, _ := ctx.Deadline()
	_ = stream.SetDeadline(deadline)

	if err := writeFrame(stream, frame); err != nil {
		_ = stream.Reset()
		return protocol.NewNetworkError("", err)
	}
	_ = stream.CloseWrite()

	data, err := readFrame(stream)
	if err != nil {
		_ = stream.Reset()
		if time.Now().After(deadline) {
			return protocol.NewTimeoutError("", "remote call "+method+" to "+target.ID+" timed out")
		}
		return protocol.NewNetworkError("", err)
	}
	var resp transport.CallResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return protocol.NewNetworkError("", errors.Wrap(err, "malformed call response"))
	}
	return transport.DecodeResponse(&resp, result)
}

func (t *Transport) handleStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(t.cfg.CallTimeout))

	data, err := readFrame(stream)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read remote call")
		_ = stream.Reset()
		return
	}
	var req transport.CallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Debug().Err(err).Msg("Malformed remote call")
		_ = stream.Reset()
		return
	}

	remote := stream.Conn().RemotePeer().String()
	caller := transport.CallerInfo{PeerID: remote, Addrs: req.Addrs}
	if t.resolver != nil {
		if wallet, ok := t.resolver(remote); ok {
			caller.Wallet = wallet
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.CallTimeout)
	defer cancel()
	result, callErr := t.router.Dispatch(ctx, caller, req.Method, req.Params)

	out, err := json.Marshal(&transport.CallResponse{Result: result, Error: transport.NewRemoteError(callErr)})
	if err != nil {
		_ = stream.Reset()
		return
	}
	if err := writeFrame(stream, out); err != nil {
		log.Debug().Err(err).Str("method", req.Method).Msg("Failed to write remote call response")
		_ = stream.Reset()
	}
}

// Broadcast 发布到 Party 广播主题
func (t *Transport) Broadcast(ctx context.Context, msg protocol.Broadcast) error {
	if t.topic == nil {
		return errors.New("libp2p transport not started")
	}
	data, err := protocol.EncodeBroadcast(msg)
	if err != nil {
		return err
	}
	return t.topic.Publish(ctx, data)
}

func (t *Transport) loopBroadcast(ctx context.Context) {
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}
		from := msg.GetFrom()
		info := party.PeerInfo{ID: from.String()}
		for _, a := range t.host.Peerstore().Addrs(from) {
			info.Addrs = append(info.Addrs, a.String())
		}
		t.router.DispatchBroadcast(ctx, info, msg.Data)
	}
}
