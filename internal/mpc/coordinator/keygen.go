package coordinator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CreateKeyOptions 密钥生成选项
type CreateKeyOptions struct {
	// ID 指定实例 id，为空时随机生成
	ID string
	// MaxPartners 大于 0 时只选自身加随机的 MaxPartners-1 个在线成员
	MaxPartners int
	// Partners 显式指定成员集合（自身总会被加入），优先于在线成员与 MaxPartners
	Partners []string
	// Timeout 实例完成超时，默认 Config.KeyTimeout
	Timeout time.Duration
}

// KeyGen createKey → broadcastKey → waitToFulfill。在线成员不足门限时直接失败，不发起任何网络调用
func (s *Service) KeyGen(ctx context.Context, opts CreateKeyOptions) (*key.DistributedKey, error) {
	if online := len(s.party.OnlinePartners()); online < s.party.Threshold() {
		keygenTotal.WithLabelValues("quorum").Inc()
		return nil, protocol.NewQuorumError(opts.ID, s.party.Threshold(), online, "insufficient online nodes")
	}

	start := time.Now()
	k, err := s.CreateKey(ctx, opts)
	keygenPhaseHist.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		keygenTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	phase := time.Now()
	if err := s.BroadcastKey(ctx, k); err != nil {
		keygenTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	keygenPhaseHist.WithLabelValues("broadcast").Observe(time.Since(phase).Seconds())

	phase = time.Now()
	res, err := k.WaitToFulfill(ctx)
	keygenPhaseHist.WithLabelValues("fulfill").Observe(time.Since(phase).Seconds())
	keygenTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("key_id", k.ID()).
		Int("partners", len(res.Partners)).
		Str("address", res.Address).
		Dur("duration", time.Since(start)).
		Msg("Key generated")
	return k, nil
}

// CreateKey 在本地和所选成员上创建密钥实例，只有确认创建的成员才参与本实例
func (s *Service) CreateKey(ctx context.Context, opts CreateKeyOptions) (*key.DistributedKey, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.KeyTimeout
	}
	partners, err := s.selectPartners(opts)
	if err != nil {
		return nil, err
	}

	k, err := key.New(s.party, s.cfg.SelfWallet, opts.ID, timeout)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Add(k); err != nil {
		k.Release()
		return nil, err
	}

	wallets := make([]string, len(partners))
	for i, p := range partners {
		wallets[i] = p.Wallet
	}
	req := protocol.CreateKeyRequest{PartyID: s.party.ID(), KeyID: k.ID(), Partners: wallets}

	acked := make([]bool, len(partners))
	var wg sync.WaitGroup
	for i, p := range partners {
		if s.isSelf(p.Wallet) {
			acked[i] = true
			continue
		}
		if p.Peer == nil {
			log.Debug().Str("key_id", k.ID()).Str("partner", p.Wallet).Msg("Partner has no peer, skipping createKey")
			continue
		}
		wg.Add(1)
		go func(i int, p party.Partner) {
			defer wg.Done()
			var ok bool
			if err := s.call(ctx, *p.Peer, protocol.MethodCreateKey, req, &ok); err != nil {
				log.Debug().Err(err).Str("key_id", k.ID()).Str("partner", p.Wallet).Msg("createKey call failed")
				return
			}
			acked[i] = true
		}(i, p)
	}
	wg.Wait()

	var confirmed []string
	for i, p := range partners {
		if acked[i] {
			confirmed = append(confirmed, p.Wallet)
		}
	}
	if err := k.SetPartners(confirmed, true); err != nil {
		s.cache.Delete(k.ID())
		return nil, err
	}
	return k, nil
}

// selectPartners 自身在前
func (s *Service) selectPartners(opts CreateKeyOptions) ([]party.Partner, error) {
	self, ok := s.party.Partner(s.cfg.SelfWallet)
	if !ok {
		return nil, protocol.NewConfigError("self is not a party partner")
	}

	var others []party.Partner
	if len(opts.Partners) > 0 {
		seen := map[string]struct{}{party.NormalizeWallet(self.Wallet): {}}
		for _, w := range opts.Partners {
			p, ok := s.party.Partner(w)
			if !ok {
				return nil, protocol.NewViolationError(opts.ID, w+" is not a party partner")
			}
			if _, dup := seen[party.NormalizeWallet(w)]; dup {
				continue
			}
			seen[party.NormalizeWallet(w)] = struct{}{}
			others = append(others, p)
		}
		return append([]party.Partner{self}, others...), nil
	}

	for _, p := range s.party.OnlinePartners() {
		if !s.isSelf(p.Wallet) {
			others = append(others, p)
		}
	}
	if opts.MaxPartners > 0 {
		rand.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
		if len(others) > opts.MaxPartners-1 {
			others = others[:opts.MaxPartners-1]
		}
	}
	return append([]party.Partner{self}, others...), nil
}

// BroadcastKey 设置自身分片并向每个成员发送其 f/h。每个实例只执行一次，后续调用直接返回
func (s *Service) BroadcastKey(ctx context.Context, k *key.DistributedKey) error {
	if !k.TryStartDistribution() {
		return nil
	}

	contribution, err := k.Contribution()
	if err != nil {
		return err
	}
	f, h, err := k.EvaluateFor(s.cfg.SelfWallet)
	if err != nil {
		return err
	}
	if err := k.SetSelfShare(f, h, contribution); err != nil {
		return err
	}

	commitment, err := tss.PointsToHex(contribution.Commitments)
	if err != nil {
		return err
	}
	pubKeys, err := tss.PointsToHex(contribution.CoefPubKeys)
	if err != nil {
		return err
	}
	partners := k.Partners()

	var wg sync.WaitGroup
	for _, wallet := range partners {
		if s.isSelf(wallet) {
			continue
		}
		p, ok := s.party.Partner(wallet)
		if !ok || p.Peer == nil {
			// 无可达句柄只影响该成员的贡献
			log.Debug().Str("key_id", k.ID()).Str("partner", wallet).Msg("Partner has no peer, skipping distributeKey")
			continue
		}
		fi, hi, err := k.EvaluateFor(wallet)
		if err != nil {
			return errors.Wrapf(err, "failed to evaluate share for %s", wallet)
		}
		req := protocol.DistributeKeyRequest{
			PartyID:    s.party.ID(),
			KeyID:      k.ID(),
			Partners:   partners,
			Commitment: commitment,
			PubKeys:    pubKeys,
			F:          tss.ScalarToHex(fi),
			H:          tss.ScalarToHex(hi),
		}
		wg.Add(1)
		go func(peer party.PeerInfo, wallet string) {
			defer wg.Done()
			var ok bool
			if err := s.call(ctx, peer, protocol.MethodDistributeKey, req, &ok); err != nil {
				log.Debug().Err(err).Str("key_id", k.ID()).Str("partner", wallet).Msg("distributeKey call failed")
			}
		}(*p.Peer, wallet)
	}
	wg.Wait()
	return nil
}

// CreateProductionKey 反复生成直到公钥 X 坐标不超过 N/2，然后通知各成员保存
func (s *Service) CreateProductionKey(ctx context.Context) (*key.DistributedKey, error) {
	var k *key.DistributedKey
	for {
		var err error
		k, err = s.KeyGen(ctx, CreateKeyOptions{})
		if err != nil {
			return nil, err
		}
		res, _ := k.Result()
		if tss.IsCanonical(&res.PublicKey) {
			break
		}
		log.Debug().Str("key_id", k.ID()).Msg("Group key is not canonical, generating again")
		s.cache.Delete(k.ID())
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	res, _ := k.Result()
	pubHex, err := tss.PointToHex(&res.PublicKey)
	if err != nil {
		return nil, err
	}
	req := protocol.StoreKeyRequest{PartyID: s.party.ID(), KeyID: k.ID(), PublicKey: pubHex}
	var wg sync.WaitGroup
	for _, wallet := range res.Partners {
		if s.isSelf(wallet) {
			continue
		}
		p, ok := s.party.Partner(wallet)
		if !ok || p.Peer == nil {
			log.Warn().Str("key_id", k.ID()).Str("partner", wallet).Msg("Partner unreachable, cannot store key")
			continue
		}
		wg.Add(1)
		go func(peer party.PeerInfo, wallet string) {
			defer wg.Done()
			var ok bool
			if err := s.call(ctx, peer, protocol.MethodStoreKey, req, &ok); err != nil {
				log.Warn().Err(err).Str("key_id", k.ID()).Str("partner", wallet).Msg("storeKey call failed")
			}
		}(*p.Peer, wallet)
	}
	wg.Wait()

	if err := s.persist(ctx, res); err != nil {
		return nil, err
	}
	s.setProductionKey(k)
	log.Info().
		Str("key_id", k.ID()).
		Int("partners", len(res.Partners)).
		Str("address", res.Address).
		Msg("TSS key generated")
	return k, nil
}
