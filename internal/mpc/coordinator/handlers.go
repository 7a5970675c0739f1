package coordinator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/key"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/rs/zerolog/log"
)

func (s *Service) checkParty(partyID, keyID string) error {
	if partyID != s.party.ID() {
		return protocol.NewViolationError(keyID, "party not found")
	}
	return nil
}

func (s *Service) lookupKey(keyID string) (*key.DistributedKey, error) {
	k, ok := s.cache.Get(keyID)
	if !ok {
		return nil, protocol.NewViolationError(keyID, "key not found")
	}
	return k, nil
}

// handleCreateKey 预留实例 id，成员集合在收到第一个分片时确认
func (s *Service) handleCreateKey(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	var req protocol.CreateKeyRequest
	if err := transport.Decode(params, &req); err != nil {
		return nil, err
	}
	if err := s.checkParty(req.PartyID, req.KeyID); err != nil {
		return nil, err
	}

	k, err := key.New(s.party, s.cfg.SelfWallet, req.KeyID, s.cfg.KeyTimeout)
	if err != nil {
		return nil, err
	}
	if err := k.SetPartners(req.Partners, false); err != nil {
		k.Release()
		return nil, err
	}
	if err := s.cache.Add(k); err != nil {
		k.Release()
		return nil, err
	}

	log.Debug().
		Str("key_id", req.KeyID).
		Str("caller", caller.Wallet).
		Int("partners", len(req.Partners)).
		Msg("Key reserved")
	return true, nil
}

// handleDistributeKey 接收分片，必要时触发本节点的分发
func (s *Service) handleDistributeKey(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	var req protocol.DistributeKeyRequest
	if err := transport.Decode(params, &req); err != nil {
		return nil, err
	}
	if err := s.checkParty(req.PartyID, req.KeyID); err != nil {
		return nil, err
	}
	k, err := s.lookupKey(req.KeyID)
	if err != nil {
		return nil, err
	}
	if caller.Wallet == "" {
		return nil, protocol.NewViolationError(req.KeyID, "caller wallet unknown")
	}

	share, err := decodePartnerShare(&req)
	if err != nil {
		return nil, err
	}
	if err := k.SetPartnerShare(caller.Wallet, req.Partners, share); err != nil {
		if protocol.IsType(err, protocol.ErrTypeMalicious) {
			shareRejectedTotal.Inc()
		}
		return nil, err
	}

	// 不能沿用入站调用的 ctx，调用返回后它即被取消
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.KeyTimeout)
		defer cancel()
		if err := s.BroadcastKey(ctx, k); err != nil {
			log.Warn().Err(err).Str("key_id", k.ID()).Msg("Failed to broadcast key")
		}
	}()
	return true, nil
}

func decodePartnerShare(req *protocol.DistributeKeyRequest) (*key.PartnerShare, error) {
	malformed := func(err error) error {
		return &protocol.ProtocolError{
			Type:     protocol.ErrTypeViolation,
			Message:  "malformed share",
			KeyID:    req.KeyID,
			Original: err,
		}
	}
	f, err := tss.ScalarFromHex(req.F)
	if err != nil {
		return nil, malformed(err)
	}
	h, err := tss.ScalarFromHex(req.H)
	if err != nil {
		return nil, malformed(err)
	}
	commitments, err := tss.PointsFromHex(req.Commitment)
	if err != nil {
		return nil, malformed(err)
	}
	pubKeys, err := tss.PointsFromHex(req.PubKeys)
	if err != nil {
		return nil, malformed(err)
	}
	return &key.PartnerShare{F: *f, H: *h, Commitments: commitments, CoefPubKeys: pubKeys}, nil
}

// handleRecoverMyKey 返回 nonce 分片与生产分片之和。不满足条件时返回 null
func (s *Service) handleRecoverMyKey(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	var req protocol.RecoverMyKeyRequest
	if err := transport.Decode(params, &req); err != nil {
		return nil, err
	}
	var none *protocol.RecoverMyKeyResponse

	if caller.Wallet == "" || !s.party.IsPartner(caller.Wallet) || s.isSelf(caller.Wallet) {
		return none, nil
	}
	s.mu.RLock()
	prod := s.prodKey
	s.mu.RUnlock()
	if prod == nil || req.NonceID == prod.ID() {
		return none, nil
	}
	nonce, ok := s.cache.Get(req.NonceID)
	if !ok || !containsWallet(nonce.Partners(), caller.Wallet) {
		return none, nil
	}

	nonceRes, err := nonce.WaitToFulfill(ctx)
	if err != nil {
		return nil, err
	}
	prodRes, ok := prod.Result()
	if !ok {
		return none, nil
	}
	pub, err := tss.PointToHex(&prodRes.PublicKey)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("nonce_id", req.NonceID).
		Str("requester", caller.Wallet).
		Msg("Serving key recovery share")
	return &protocol.RecoverMyKeyResponse{
		ID:            prodRes.ID,
		RecoveryShare: tss.ScalarToHex(tss.AddScalars(&nonceRes.Share, &prodRes.Share)),
		PublicKey:     pub,
		Address:       prodRes.Address,
	}, nil
}

// handleStoreKey 领导者要求保存已完成的实例为生产密钥
func (s *Service) handleStoreKey(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	var req protocol.StoreKeyRequest
	if err := transport.Decode(params, &req); err != nil {
		return nil, err
	}
	if err := s.checkParty(req.PartyID, req.KeyID); err != nil {
		return nil, err
	}
	k, err := s.lookupKey(req.KeyID)
	if err != nil {
		return nil, err
	}
	if s.elector == nil || !s.elector.IsLeader(caller.Wallet) || s.IsReady() {
		return nil, protocol.NewViolationError(req.KeyID, "Not permitted to create tss key")
	}

	res, err := k.WaitToFulfill(ctx)
	if err != nil {
		return nil, err
	}
	if req.PublicKey != "" {
		local, err := tss.PointToHex(&res.PublicKey)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(strings.TrimPrefix(req.PublicKey, "0x"), local) {
			log.Warn().
				Str("key_id", req.KeyID).
				Str("leader_public_key", req.PublicKey).
				Str("public_key", local).
				Msg("Leader key differs from local result, not storing")
			return nil, protocol.NewViolationError(req.KeyID, "key does not match the leader's public key")
		}
	}
	if err := s.persist(ctx, res); err != nil {
		return nil, err
	}
	s.setProductionKey(k)
	return true, nil
}

// handleAnnouncePresence 记录调用方的可达句柄
func (s *Service) handleAnnouncePresence(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	var req protocol.AnnouncePresenceRequest
	if err := transport.Decode(params, &req); err != nil {
		return nil, err
	}
	if caller.Wallet == "" || !s.party.IsPartner(caller.Wallet) {
		return nil, protocol.NewViolationError("", "caller is not a party partner")
	}

	peer := party.PeerInfo{ID: req.PeerID, Addrs: req.Addrs}
	if peer.ID == "" {
		peer.ID = caller.PeerID
	}
	if len(peer.Addrs) == 0 {
		peer.Addrs = caller.Addrs
	}
	s.markOnline(caller.Wallet, peer)
	return true, nil
}

// handleCheckStatus 返回本节点是否就绪
func (s *Service) handleCheckStatus(ctx context.Context, caller transport.CallerInfo, params json.RawMessage) (interface{}, error) {
	return s.Status(), nil
}

// handleWhoIsThere 记录广播方并回复自己的句柄
func (s *Service) handleWhoIsThere(ctx context.Context, from party.PeerInfo, msg protocol.Broadcast) {
	who, ok := msg.(protocol.WhoIsThere)
	if !ok {
		return
	}
	peer := party.PeerInfo{ID: who.PeerID, Addrs: who.Addrs}
	if len(peer.Addrs) == 0 && peer.ID == from.ID {
		peer.Addrs = from.Addrs
	}
	wallet, ok := s.party.WalletOfPeer(peer.ID)
	if !ok || s.isSelf(wallet) {
		return
	}
	s.markOnline(wallet, peer)

	self := s.transport.Self()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()
	req := protocol.AnnouncePresenceRequest{PeerID: self.ID, Addrs: self.Addrs}
	if err := s.call(ctx, peer, protocol.MethodAnnouncePresence, req, nil); err != nil {
		log.Debug().Err(err).Str("partner", wallet).Msg("Failed to announce presence")
	}
}

func containsWallet(wallets []string, wallet string) bool {
	norm := party.NormalizeWallet(wallet)
	for _, w := range wallets {
		if party.NormalizeWallet(w) == norm {
			return true
		}
	}
	return false
}
