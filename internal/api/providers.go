package api

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-mpc-oracle/internal/config"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/coordinator"
	mpcgrpc "github.com/kashguard/go-mpc-oracle/internal/mpc/grpc"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/leader"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/node"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/p2p"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NoTest() []*testing.T {
	return nil
}

func NewNodeRegistry(cfg config.Server) (*node.Registry, error) {
	network, err := node.LoadNetwork(cfg.Node.NetworkConfig)
	if err != nil {
		return nil, err
	}
	return node.NewRegistry(network)
}

func NewParty(registry *node.Registry) (*party.Party, error) {
	return registry.NewParty()
}

func NewNodeManager(registry *node.Registry, clock time2.Clock, cfg config.Server) *node.Manager {
	return node.NewManager(registry, clock, cfg.Node.HeartbeatInterval)
}

func NewKeyCache(cfg config.Server) *key.Cache {
	return key.NewCache(cfg.Key.CacheTTL, cfg.Key.CacheSweep)
}

func usesRedis(cfg config.Server) bool {
	return cfg.Storage.Backend == "redis" || cfg.Leader.Backend == "redis"
}

// NewRedisClient 仅在存储或选举使用 redis 时创建，否则返回 nil
func NewRedisClient(cfg config.Server) (*redis.Client, error) {
	if !usesRedis(cfg) {
		return nil, nil
	}
	if cfg.Redis.Endpoint == "" {
		return nil, fmt.Errorf("MPC RedisEndpoint is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewKeyConfigStore(cfg config.Server, client *redis.Client) (storage.KeyConfigStore, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storage.NewRedisKeyConfigStore(client, cfg.Node.Wallet, cfg.Storage.Passphrase)
	case "file", "":
		path := cfg.Storage.Path
		if path == "" {
			path = storage.DefaultConfigFile
		}
		if cfg.Storage.Passphrase == "" {
			log.Warn().Str("path", path).Msg("Key config passphrase not set, key share is stored in plaintext")
		}
		return storage.NewFileKeyConfigStore(path, cfg.Storage.Passphrase)
	default:
		return nil, fmt.Errorf("unknown key config backend %q", cfg.Storage.Backend)
	}
}

func NewElector(cfg config.Server, client *redis.Client, p *party.Party) (leader.Elector, error) {
	switch cfg.Leader.Backend {
	case "redis":
		return leader.NewRedisElector(client, p.ID(), cfg.Node.Wallet, cfg.Leader.LeaseTTL), nil
	case "static", "":
		wallet := cfg.Leader.Wallet
		if wallet == "" {
			// 未配置时取第一个成员
			wallet = p.Wallets()[0]
		}
		if !p.IsPartner(wallet) {
			return nil, fmt.Errorf("leader %s is not a party partner", wallet)
		}
		return leader.NewStaticElector(wallet), nil
	default:
		return nil, fmt.Errorf("unknown leader backend %q", cfg.Leader.Backend)
	}
}

func NewRouter() *transport.Router {
	return transport.NewRouter()
}

func NewTransport(cfg config.Server, registry *node.Registry, router *transport.Router) (transport.Transport, error) {
	self, ok := registry.Member(cfg.Node.Wallet)
	if !ok {
		return nil, fmt.Errorf("node wallet %s is not in network %s", cfg.Node.Wallet, registry.Network().ID)
	}

	switch cfg.Transport.Type {
	case "grpc":
		if self.PeerID == "" {
			return nil, fmt.Errorf("grpc transport requires a peerId for %s", cfg.Node.Wallet)
		}
		server := mpcgrpc.NewGRPCServer(&mpcgrpc.ServerConfig{
			Port:          cfg.Transport.GRPCPort,
			TLSEnabled:    cfg.Transport.TLSEnabled,
			TLSCertFile:   cfg.Transport.TLSCertFile,
			TLSKeyFile:    cfg.Transport.TLSKeyFile,
			TLSCACertFile: cfg.Transport.TLSCACertFile,
		}, router, registry.WalletOfPeer)
		peers := func() []party.PeerInfo {
			members := registry.Members(cfg.Node.Wallet)
			out := make([]party.PeerInfo, 0, len(members))
			for _, m := range members {
				out = append(out, m.GRPCPeer())
			}
			return out
		}
		client := mpcgrpc.NewGRPCClient(&mpcgrpc.ClientConfig{
			TLSEnabled:    cfg.Transport.TLSEnabled,
			TLSCertFile:   cfg.Transport.TLSCertFile,
			TLSKeyFile:    cfg.Transport.TLSKeyFile,
			TLSCACertFile: cfg.Transport.TLSCACertFile,
			Timeout:       cfg.Transport.CallTimeout,
		}, cfg.Node.Wallet, self.GRPCPeer(), peers)
		return mpcgrpc.NewTransport(server, client), nil

	case "libp2p", "":
		peerID, err := p2p.PeerIDFromHex(cfg.Node.PrivateKey)
		if err != nil {
			return nil, err
		}
		if self.PeerID != "" && self.PeerID != peerID {
			log.Warn().
				Str("configured", self.PeerID).
				Str("derived", peerID).
				Msg("Node private key does not match the peerId in the network config")
		}
		return p2p.New(p2p.Config{
			PrivateKeyHex: cfg.Node.PrivateKey,
			Listen:        cfg.Transport.ListenAddrs,
			Bootnodes:     bootnodes(cfg, registry),
			PartyID:       registry.Network().ID,
			CallTimeout:   cfg.Transport.CallTimeout,
		}, router, registry.WalletOfPeer), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Type)
	}
}

// bootnodes 未显式配置时使用其他成员的地址
func bootnodes(cfg config.Server, registry *node.Registry) []string {
	if len(cfg.Transport.Bootnodes) > 0 {
		return cfg.Transport.Bootnodes
	}
	var out []string
	for _, m := range registry.Members(cfg.Node.Wallet) {
		if m.PeerID == "" {
			continue
		}
		for _, addr := range m.Addrs {
			if !strings.Contains(addr, "/p2p/") {
				addr += "/p2p/" + m.PeerID
			}
			out = append(out, addr)
		}
	}
	return out
}

type peerListenerSetter interface {
	SetListener(l transport.PeerListener)
}

func NewCoordinator(
	cfg config.Server,
	p *party.Party,
	cache *key.Cache,
	tr transport.Transport,
	store storage.KeyConfigStore,
	elector leader.Elector,
	nodes *node.Manager,
	router *transport.Router,
) (*coordinator.Service, error) {
	svc, err := coordinator.NewService(coordinator.Config{
		SelfWallet:           cfg.Node.Wallet,
		KeyTimeout:           cfg.Key.Timeout,
		CallTimeout:          cfg.Transport.CallTimeout,
		StatusPollInterval:   cfg.Key.StatusPollInterval,
		RecoveryInitialDelay: cfg.Key.RecoveryInitialDelay,
		FindOthersInterval:   cfg.Key.FindOthersInterval,
	}, p, cache, tr, store, elector, nodes)
	if err != nil {
		return nil, err
	}
	svc.Register(router)
	if l, ok := tr.(peerListenerSetter); ok {
		l.SetListener(svc)
	}
	return svc, nil
}
