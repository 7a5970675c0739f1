package grpc

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/kashguard/go-mpc-oracle/internal/util/cert"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ClientConfig gRPC客户端配置
type ClientConfig struct {
	TLSEnabled    bool
	TLSCertFile   string
	TLSKeyFile    string
	TLSCACertFile string
	Timeout       time.Duration
	KeepAlive     time.Duration
}

// GRPCClient gRPC客户端，用于节点间通信
type GRPCClient struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn // key: endpoint
	cfg    *ClientConfig
	wallet string
	self   party.PeerInfo

	// peers 返回广播目标（通常为 Party 中除自身外的在线成员）
	peers func() []party.PeerInfo
}

// NewGRPCClient 创建gRPC客户端
func NewGRPCClient(cfg *ClientConfig, wallet string, self party.PeerInfo, peers func() []party.PeerInfo) *GRPCClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = transport.DefaultCallTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = time.Minute
	}
	return &GRPCClient{
		conns:  make(map[string]*grpc.ClientConn),
		cfg:    cfg,
		wallet: wallet,
		self:   self,
		peers:  peers,
	}
}

// getOrCreateConnection 获取或创建到指定节点的连接
func (c *GRPCClient) getOrCreateConnection(peer party.PeerInfo) (*grpc.ClientConn, error) {
	if len(peer.Addrs) == 0 {
		return nil, errors.Errorf("peer %s has no known endpoint", peer.ID)
	}
	endpoint := strings.TrimPrefix(peer.Addrs[0], "grpc://")

	c.mu.RLock()
	conn, ok := c.conns[endpoint]
	c.mu.RUnlock()
	if ok {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 双重检查
	if conn, ok := c.conns[endpoint]; ok {
		return conn, nil
	}

	var opts []grpc.DialOption

	// TLS配置
	if c.cfg.TLSEnabled {
		tlsCfg, err := cert.NewMutualTLSConfig(c.cfg.TLSCertFile, c.cfg.TLSKeyFile, c.cfg.TLSCACertFile, false)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load TLS credentials")
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// KeepAlive配置
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                c.cfg.KeepAlive,
		Timeout:             20 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.CallContentSubtype(codecName),
		grpc.MaxCallRecvMsgSize(10*1024*1024),
		grpc.MaxCallSendMsgSize(10*1024*1024),
	))

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to peer %s at %s", peer.ID, endpoint)
	}
	c.conns[endpoint] = conn

	log.Debug().
		Str("peer_id", peer.ID).
		Str("endpoint", endpoint).
		Msg("Created gRPC connection to peer")
	return conn, nil
}

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	kv := []string{metadataWallet, c.wallet, metadataPeer, c.self.ID}
	for _, addr := range c.self.Addrs {
		kv = append(kv, metadataAddr, addr)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// Call 向指定节点发起远程调用
func (c *GRPCClient) Call(ctx context.Context, peer party.PeerInfo, method string, params interface{}, result interface{}, opts ...transport.CallOption) error {
	o := transport.ApplyCallOptions(c.cfg.Timeout, opts...)

	raw, err := transport.EncodeParams(params)
	if err != nil {
		return err
	}
	conn, err := c.getOrCreateConnection(peer)
	if err != nil {
		return protocol.NewNetworkError("", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	req := &transport.CallRequest{
		Method: method,
		Params: raw,
		Wallet: c.wallet,
		PeerID: c.self.ID,
		Addrs:  c.self.Addrs,
	}
	resp := new(transport.CallResponse)
	if err := conn.Invoke(c.outgoing(ctx), callMethod, req, resp); err != nil {
		if status.Code(err) == codes.DeadlineExceeded {
			return protocol.NewTimeoutError("", "remote call "+method+" to "+peer.ID+" timed out")
		}
		return protocol.NewNetworkError("", errors.Wrapf(err, "remote call %s to %s failed", method, peer.ID))
	}
	return transport.DecodeResponse(resp, result)
}

// Broadcast 向所有已知节点逐个投递，单个失败不影响其他节点
func (c *GRPCClient) Broadcast(ctx context.Context, msg protocol.Broadcast) error {
	data, err := protocol.EncodeBroadcast(msg)
	if err != nil {
		return err
	}
	if c.peers == nil {
		return nil
	}
	for _, peer := range c.peers() {
		if peer.ID == c.self.ID {
			continue
		}
		go func(peer party.PeerInfo) {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
			defer cancel()
			if err := c.Call(ctx, peer, broadcastMethod, json.RawMessage(data), nil); err != nil {
				log.Debug().Err(err).Str("peer_id", peer.ID).Msg("Broadcast delivery failed")
			}
		}(peer)
	}
	return nil
}

// Close 关闭所有连接
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for endpoint, conn := range c.conns {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("endpoint", endpoint).Msg("Failed to close connection")
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return nil
}
