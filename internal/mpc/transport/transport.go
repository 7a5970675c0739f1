package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
)

// DefaultCallTimeout 单次远程调用的默认超时
const DefaultCallTimeout = 15 * time.Second

// CallerInfo 入站调用的发起方
type CallerInfo struct {
	Wallet string
	PeerID string
	Addrs  []string
}

// Handler 远程方法处理函数
type Handler func(ctx context.Context, caller CallerInfo, params json.RawMessage) (interface{}, error)

// BroadcastHandler 广播消息处理函数
type BroadcastHandler func(ctx context.Context, from party.PeerInfo, msg protocol.Broadcast)

// Caller 向某个节点发起远程调用，失败即返回错误
type Caller interface {
	Call(ctx context.Context, peer party.PeerInfo, method string, params interface{}, result interface{}, opts ...CallOption) error
}

// Broadcaster 尽力而为地向 Party 广播
type Broadcaster interface {
	Broadcast(ctx context.Context, msg protocol.Broadcast) error
}

// PeerListener 接收连接/断开事件
type PeerListener interface {
	OnPeerConnected(peer party.PeerInfo)
	OnPeerDisconnected(peerID string)
}

// Transport 节点间通信
type Transport interface {
	Caller
	Broadcaster
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Self() party.PeerInfo
}

// CallOptions 调用选项
type CallOptions struct {
	Timeout time.Duration
}

// CallOption 调用选项函数
type CallOption func(*CallOptions)

// WithTimeout 覆盖单次调用超时
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		o.Timeout = d
	}
}

// ApplyCallOptions 合并调用选项
func ApplyCallOptions(defaultTimeout time.Duration, opts ...CallOption) CallOptions {
	o := CallOptions{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultCallTimeout
	}
	return o
}
