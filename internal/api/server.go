package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-mpc-oracle/internal/config"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/coordinator"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/leader"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/node"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config config.Server
	Clock  time2.Clock
	Redis  *redis.Client // nil 表示未使用 redis

	// MPC services
	NodeRegistry *node.Registry
	NodeManager  *node.Manager
	Party        *party.Party
	KeyCache     *key.Cache
	KeyStore     storage.KeyConfigStore
	Elector      leader.Elector
	Transport    transport.Transport
	Coordinator  *coordinator.Service

	cancel context.CancelFunc
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	redisClient *redis.Client,
	nodeRegistry *node.Registry,
	nodeManager *node.Manager,
	p *party.Party,
	keyCache *key.Cache,
	keyStore storage.KeyConfigStore,
	elector leader.Elector,
	tr transport.Transport,
	coordinatorService *coordinator.Service,
) *Server {
	return &Server{
		Config: cfg,
		Clock:  clock,
		Redis:  redisClient,

		NodeRegistry: nodeRegistry,
		NodeManager:  nodeManager,
		Party:        p,
		KeyCache:     keyCache,
		KeyStore:     keyStore,
		Elector:      elector,
		Transport:    tr,
		Coordinator:  coordinatorService,
	}
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

func (s *Server) Ready() bool {
	if s.Coordinator == nil || s.Transport == nil || s.Echo == nil {
		log.Debug().Msg("Server is not fully initialized")
		return false
	}

	return true
}

// Start 启动传输层、后台引导流程和运维 HTTP 服务，阻塞到 HTTP 服务退出
func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// 1. 启动节点间通信
	if err := s.Transport.Start(ctx); err != nil {
		return err
	}
	s.Coordinator.Start(ctx)

	// 2. 选举租约
	if e, ok := s.Elector.(*leader.RedisElector); ok {
		go e.Run(ctx)
	}

	// 3. 发现其他成员并引导生产密钥
	go func() {
		if err := s.Coordinator.TryToFindOthers(ctx, s.Config.Key.FindOthersTries); err != nil {
			log.Debug().Err(err).Msg("Stopped looking for partners")
		}
	}()
	go func() {
		if err := s.Coordinator.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Failed to bootstrap tss key")
		}
	}()

	// 4. 启动 HTTP 服务器
	log.Info().Str("address", s.Config.Metrics.Addr).Msg("Starting ops HTTP server")
	if err := s.Echo.Start(s.Config.Metrics.Addr); err != nil {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.cancel != nil {
		s.cancel()
	}

	// 1. 停止节点间通信
	if s.Transport != nil {
		log.Debug().Msg("Stopping transport")
		if err := s.Transport.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop transport")
			errs = append(errs, err)
		}
	}

	// 2. 关闭 HTTP 服务器
	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	// 3. 关闭 redis 连接
	if s.Redis != nil {
		log.Debug().Msg("Closing redis connection")
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis connection")
			errs = append(errs, err)
		}
	}

	return errs
}
