package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/leader"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/node"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config 协调器参数
type Config struct {
	SelfWallet           string
	KeyTimeout           time.Duration
	CallTimeout          time.Duration
	StatusPollInterval   time.Duration
	RecoveryInitialDelay time.Duration
	FindOthersInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.KeyTimeout <= 0 {
		c.KeyTimeout = key.DefaultTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = transport.DefaultCallTimeout
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = 5 * time.Second
	}
	if c.RecoveryInitialDelay < 0 {
		c.RecoveryInitialDelay = 0
	}
	if c.FindOthersInterval <= 0 {
		c.FindOthersInterval = 5 * time.Second
	}
}

// Service 本节点的密钥生成、分发与恢复协调器
type Service struct {
	cfg       Config
	selfIndex tss.Scalar

	party     *party.Party
	cache     *key.Cache
	transport transport.Transport
	store     storage.KeyConfigStore
	elector   leader.Elector
	nodes     *node.Manager

	mu      sync.RWMutex
	prodKey *key.DistributedKey
}

// NewService 创建协调器。nodes 可以为空
func NewService(
	cfg Config,
	p *party.Party,
	cache *key.Cache,
	tr transport.Transport,
	store storage.KeyConfigStore,
	elector leader.Elector,
	nodes *node.Manager,
) (*Service, error) {
	cfg.applyDefaults()
	if !p.IsPartner(cfg.SelfWallet) {
		return nil, protocol.NewConfigError("node wallet " + cfg.SelfWallet + " is not a partner of party " + p.ID())
	}
	idx, err := tss.IndexFromWallet(cfg.SelfWallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive own index")
	}
	ensureMetrics()
	return &Service{
		cfg:       cfg,
		selfIndex: *idx,
		party:     p,
		cache:     cache,
		transport: tr,
		store:     store,
		elector:   elector,
		nodes:     nodes,
	}, nil
}

// Register 把远程方法与广播处理函数注册到分发表
func (s *Service) Register(router *transport.Router) {
	router.Handle(protocol.MethodCreateKey, s.handleCreateKey)
	router.Handle(protocol.MethodDistributeKey, s.handleDistributeKey)
	router.Handle(protocol.MethodRecoverMyKey, s.handleRecoverMyKey)
	router.Handle(protocol.MethodStoreKey, s.handleStoreKey)
	router.Handle(protocol.MethodAnnouncePresence, s.handleAnnouncePresence)
	router.Handle(protocol.MethodCheckStatus, s.handleCheckStatus)
	router.HandleBroadcast(protocol.BroadcastWhoIsThere, s.handleWhoIsThere)
}

// Start 记录本节点的可达句柄，传输层启动之后调用
func (s *Service) Start(ctx context.Context) {
	s.party.SetPartnerPeer(s.cfg.SelfWallet, s.transport.Self())
	s.updateOnlineGauge()
	log.Info().
		Str("party_id", s.party.ID()).
		Str("wallet", s.cfg.SelfWallet).
		Int("threshold", s.party.Threshold()).
		Int("max", s.party.Max()).
		Msg("Party loaded")
}

// Party 当前 Party
func (s *Service) Party() *party.Party {
	return s.party
}

// Cache 进行中的密钥
func (s *Service) Cache() *key.Cache {
	return s.cache
}

// IsReady 是否持有可用的生产密钥
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prodKey != nil
}

// ProductionKey 当前生产密钥
func (s *Service) ProductionKey() (*key.Result, bool) {
	s.mu.RLock()
	k := s.prodKey
	s.mu.RUnlock()
	if k == nil {
		return nil, false
	}
	return k.Result()
}

// Status 本节点状态
func (s *Service) Status() protocol.StatusResponse {
	res, ok := s.ProductionKey()
	if !ok {
		return protocol.StatusResponse{IsReady: false}
	}
	return protocol.StatusResponse{IsReady: true, Address: res.Address}
}

// setProductionKey 固定在缓存中并作为生产密钥
func (s *Service) setProductionKey(k *key.DistributedKey) {
	s.cache.Pin(k)
	s.mu.Lock()
	s.prodKey = k
	s.mu.Unlock()
	log.Info().Str("key_id", k.ID()).Msg("tss ready")
}

// persist 保存生产密钥配置
func (s *Service) persist(ctx context.Context, res *key.Result) error {
	pub, err := tss.PointToHex(&res.PublicKey)
	if err != nil {
		return err
	}
	cfg := &storage.KeyConfig{
		Party: storage.PartyConfig{
			ID:  s.party.ID(),
			T:   s.party.Threshold(),
			Max: s.party.Max(),
		},
		Key: storage.KeyEntry{
			ID:        res.ID,
			Share:     tss.ScalarToHex(&res.Share),
			PublicKey: pub,
			Address:   res.Address,
		},
	}
	if err := s.store.Save(ctx, cfg); err != nil {
		return errors.Wrap(err, "failed to save key config")
	}
	return nil
}

// loadConfig 把持久化配置装载为已完成的生产密钥
func (s *Service) loadConfig(cfg *storage.KeyConfig) error {
	share, err := tss.ScalarFromHex(cfg.Key.Share)
	if err != nil {
		return errors.Wrap(err, "invalid persisted share")
	}
	pub, err := tss.PointFromHex(cfg.Key.PublicKey)
	if err != nil {
		return errors.Wrap(err, "invalid persisted public key")
	}
	k, err := key.Load(s.party, s.cfg.SelfWallet, key.Loaded{
		ID:        cfg.Key.ID,
		Share:     *share,
		PublicKey: *pub,
		Address:   cfg.Key.Address,
	})
	if err != nil {
		return err
	}
	s.setProductionKey(k)
	return nil
}

func (s *Service) isSelf(wallet string) bool {
	return party.NormalizeWallet(wallet) == party.NormalizeWallet(s.cfg.SelfWallet)
}

func (s *Service) updateOnlineGauge() {
	partnersOnline.Set(float64(len(s.party.OnlinePartners())))
}

func (s *Service) call(ctx context.Context, peer party.PeerInfo, method string, params, result interface{}) error {
	return s.transport.Call(ctx, peer, method, params, result, transport.WithTimeout(s.cfg.CallTimeout))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
