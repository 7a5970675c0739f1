package node

import (
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
)

// Network 网络描述文件
type Network struct {
	ID           string   `mapstructure:"id"`
	TSSThreshold int      `mapstructure:"tssThreshold"`
	MaxGroupSize int      `mapstructure:"maxGroupSize"`
	Partners     []Member `mapstructure:"partners"`
}

// Member 网络成员
type Member struct {
	Wallet   string   `mapstructure:"wallet"`
	PeerID   string   `mapstructure:"peerId"`
	Endpoint string   `mapstructure:"endpoint"` // gRPC host:port
	Addrs    []string `mapstructure:"addrs"`    // libp2p multiaddrs
}

// GRPCPeer gRPC 传输下的节点地址
func (m Member) GRPCPeer() party.PeerInfo {
	info := party.PeerInfo{ID: m.PeerID}
	if m.Endpoint != "" {
		info.Addrs = []string{m.Endpoint}
	}
	return info
}

// P2PPeer libp2p 传输下的节点地址
func (m Member) P2PPeer() party.PeerInfo {
	return party.PeerInfo{ID: m.PeerID, Addrs: append([]string(nil), m.Addrs...)}
}

// NodeStatus 节点状态
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

// HealthCheck 健康检查结果
type HealthCheck struct {
	Wallet    string
	Status    string
	Timestamp time.Time
	Checks    map[string]string
	Metrics   map[string]float64
}
