package grpc

import (
	"context"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
)

// Transport 基于 gRPC 的节点通信，组合服务端与客户端
type Transport struct {
	*GRPCClient
	server *GRPCServer
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport 创建 gRPC 传输层
func NewTransport(server *GRPCServer, client *GRPCClient) *Transport {
	return &Transport{GRPCClient: client, server: server}
}

// Start 启动监听
func (t *Transport) Start(ctx context.Context) error {
	return t.server.Listen()
}

// Stop 关闭连接并停止服务端
func (t *Transport) Stop(ctx context.Context) error {
	_ = t.GRPCClient.Close()
	return t.server.Stop()
}

// Self 本节点信息
func (t *Transport) Self() party.PeerInfo {
	return t.self
}
