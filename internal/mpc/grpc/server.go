package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/kashguard/go-mpc-oracle/internal/util/cert"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// ServerConfig gRPC服务端配置
type ServerConfig struct {
	Port          int
	TLSEnabled    bool
	TLSCertFile   string
	TLSKeyFile    string
	TLSCACertFile string
	MaxConnAge    time.Duration
	KeepAlive     time.Duration
}

// GRPCServer gRPC服务端，接收节点间远程调用
type GRPCServer struct {
	router     *transport.Router
	resolver   func(peerID string) (string, bool)
	cfg        *ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewGRPCServer 创建gRPC服务端。resolver 用于把 peer id 映射为成员钱包
func NewGRPCServer(cfg *ServerConfig, router *transport.Router, resolver func(peerID string) (string, bool)) *GRPCServer {
	if cfg.MaxConnAge == 0 {
		cfg.MaxConnAge = 2 * time.Hour
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return &GRPCServer{
		router:   router,
		resolver: resolver,
		cfg:      cfg,
	}
}

// GetServerOptions 获取gRPC服务器选项
func (s *GRPCServer) GetServerOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	// TLS配置
	if s.cfg.TLSEnabled {
		tlsCfg, err := cert.NewMutualTLSConfig(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.cfg.TLSCACertFile, true)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load TLS credentials")
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	// KeepAlive配置
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
		MaxConnectionAge:      s.cfg.MaxConnAge,
		MaxConnectionAgeGrace: 30 * time.Second,
		Time:                  s.cfg.KeepAlive,
		Timeout:               20 * time.Second,
	}))

	// Enforcement Policy (防止 too_many_pings)
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
		MinTime:             10 * time.Second,
		PermitWithoutStream: true,
	}))

	// 最大消息大小
	opts = append(opts, grpc.MaxRecvMsgSize(10*1024*1024)) // 10MB
	opts = append(opts, grpc.MaxSendMsgSize(10*1024*1024)) // 10MB

	return opts, nil
}

// call 分发一次远程调用，处理函数的错误放在响应体中返回
func (s *GRPCServer) call(ctx context.Context, req *transport.CallRequest) (*transport.CallResponse, error) {
	caller := s.callerInfo(ctx, req)

	if req.Method == broadcastMethod {
		s.router.DispatchBroadcast(ctx, party.PeerInfo{ID: caller.PeerID, Addrs: caller.Addrs}, req.Params)
		return &transport.CallResponse{}, nil
	}

	result, err := s.router.Dispatch(ctx, caller, req.Method, req.Params)
	return &transport.CallResponse{Result: result, Error: transport.NewRemoteError(err)}, nil
}

// callerInfo 优先使用注册表中 peer id 对应的钱包，其次使用元数据声明的钱包
func (s *GRPCServer) callerInfo(ctx context.Context, req *transport.CallRequest) transport.CallerInfo {
	caller := transport.CallerInfo{Wallet: req.Wallet, PeerID: req.PeerID, Addrs: req.Addrs}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(metadataPeer); len(v) > 0 {
			caller.PeerID = v[0]
		}
		if v := md.Get(metadataWallet); len(v) > 0 {
			caller.Wallet = v[0]
		}
		if v := md.Get(metadataAddr); len(v) > 0 {
			caller.Addrs = v
		}
	}
	if s.resolver != nil && caller.PeerID != "" {
		if wallet, ok := s.resolver(caller.PeerID); ok {
			caller.Wallet = wallet
		}
	}
	return caller
}

// Start 启动 gRPC 服务器，阻塞到 ctx 取消
func (s *GRPCServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Listen 监听端口并在后台提供服务
func (s *GRPCServer) Listen() error {
	// 如果启用了 TLS，在启动前验证证书
	if s.cfg.TLSEnabled {
		if err := cert.VerifyTLSConfig(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.cfg.TLSCACertFile); err != nil {
			return errors.Wrap(err, "TLS certificate verification failed")
		}
		log.Info().Msg("TLS certificates verified successfully")
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s.listener = listener

	opts, err := s.GetServerOptions()
	if err != nil {
		listener.Close()
		return err
	}
	s.grpcServer = grpc.NewServer(opts...)
	s.grpcServer.RegisterService(&serviceDesc, s)

	log.Info().
		Str("address", listener.Addr().String()).
		Bool("tls", s.cfg.TLSEnabled).
		Msg("Starting MPC gRPC server")

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			log.Error().Err(err).Msg("MPC gRPC server failed")
		}
	}()
	return nil
}

// Addr 实际监听地址
func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 停止 gRPC 服务器
func (s *GRPCServer) Stop() error {
	log.Info().Msg("Stopping MPC gRPC server")

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	return nil
}
