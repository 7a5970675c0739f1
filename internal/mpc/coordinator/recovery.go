package coordinator

import (
	"context"
	"strings"
	"sync"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RecoverKey 由 wallets 中已就绪的成员协助恢复本节点的生产分片。
// 协助者返回 nonce 分片与生产分片之和，本节点在自身索引处插值后减去自己的 nonce 分片
func (s *Service) RecoverKey(ctx context.Context, wallets []string) (*key.Result, error) {
	res, err := s.recoverKey(ctx, wallets)
	recoveryTotal.WithLabelValues(resultLabel(err)).Inc()
	return res, err
}

func (s *Service) recoverKey(ctx context.Context, wallets []string) (*key.Result, error) {
	t := s.party.Threshold()
	helpers := make([]party.Partner, 0, len(wallets))
	for _, w := range wallets {
		if s.isSelf(w) {
			continue
		}
		p, ok := s.party.Partner(w)
		if !ok || p.Peer == nil {
			continue
		}
		helpers = append(helpers, p)
	}
	if len(helpers) < t {
		return nil, protocol.NewQuorumError("", t, len(helpers), "not enough online partners to recover key")
	}

	helperWallets := make([]string, len(helpers))
	for i, p := range helpers {
		helperWallets[i] = p.Wallet
	}
	nonce, err := s.KeyGen(ctx, CreateKeyOptions{Partners: helperWallets})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate recovery nonce")
	}
	defer s.cache.Delete(nonce.ID())
	nonceRes, _ := nonce.Result()

	responses := make([]*protocol.RecoverMyKeyResponse, len(helpers))
	var wg sync.WaitGroup
	for i, p := range helpers {
		if !containsWallet(nonceRes.Partners, p.Wallet) {
			continue
		}
		wg.Add(1)
		go func(i int, p party.Partner) {
			defer wg.Done()
			var resp *protocol.RecoverMyKeyResponse
			req := protocol.RecoverMyKeyRequest{NonceID: nonce.ID()}
			if err := s.call(ctx, *p.Peer, protocol.MethodRecoverMyKey, req, &resp); err != nil {
				log.Debug().Err(err).Str("partner", p.Wallet).Msg("recoverMyKey call failed")
				return
			}
			responses[i] = resp
		}(i, p)
	}
	wg.Wait()

	reference := agreedResponse(responses)
	var shares []tss.Share
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		if !sameKey(resp, reference) {
			log.Warn().
				Str("partner", helpers[i].Wallet).
				Str("key_id", resp.ID).
				Msg("Partner returned a different key, ignoring")
			continue
		}
		value, err := tss.ScalarFromHex(resp.RecoveryShare)
		if err != nil {
			log.Warn().Err(err).Str("partner", helpers[i].Wallet).Msg("Invalid recovery share")
			continue
		}
		idx, err := tss.IndexFromWallet(helpers[i].Wallet)
		if err != nil {
			return nil, err
		}
		shares = append(shares, tss.Share{Index: *idx, Value: *value})
	}
	if len(shares) < t {
		return nil, protocol.NewQuorumError(nonce.ID(), t, len(shares), "not enough results to recover the key")
	}

	reconstructed, err := tss.ReconstructAt(shares, t, &s.selfIndex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reconstruct recovery share")
	}
	share := tss.SubScalars(reconstructed, &nonceRes.Share)

	pub, err := tss.PointFromHex(reference.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid recovered public key")
	}
	k, err := key.Load(s.party, s.cfg.SelfWallet, key.Loaded{
		ID:        reference.ID,
		Share:     *share,
		PublicKey: *pub,
		Address:   reference.Address,
	})
	if err != nil {
		return nil, err
	}
	res, _ := k.Result()
	if err := s.persist(ctx, res); err != nil {
		return nil, err
	}
	s.setProductionKey(k)

	log.Info().
		Str("key_id", res.ID).
		Int("helpers", len(shares)).
		Str("address", res.Address).
		Msg("tss key recovered")
	return res, nil
}

// agreedResponse 返回多数协助者一致的 (id, publicKey) 对应的回答，票数相同时取先出现者
func agreedResponse(responses []*protocol.RecoverMyKeyResponse) *protocol.RecoverMyKeyResponse {
	pairKey := func(resp *protocol.RecoverMyKeyResponse) string {
		return resp.ID + "/" + strings.ToLower(strings.TrimPrefix(resp.PublicKey, "0x"))
	}
	votes := make(map[string]int)
	for _, resp := range responses {
		if resp != nil {
			votes[pairKey(resp)]++
		}
	}
	var (
		best      *protocol.RecoverMyKeyResponse
		bestVotes int
	)
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		if n := votes[pairKey(resp)]; n > bestVotes {
			best, bestVotes = resp, n
		}
	}
	return best
}

func sameKey(a, b *protocol.RecoverMyKeyResponse) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID && strings.EqualFold(strings.TrimPrefix(a.PublicKey, "0x"), strings.TrimPrefix(b.PublicKey, "0x"))
}
