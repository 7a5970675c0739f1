package coordinator

import (
	"context"
	"sync"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/rs/zerolog/log"
)

// OnPeerConnected 传输层连接建立时记录成员句柄
func (s *Service) OnPeerConnected(peer party.PeerInfo) {
	wallet, ok := s.party.WalletOfPeer(peer.ID)
	if !ok {
		log.Debug().Str("peer_id", peer.ID).Msg("Connected peer is not a party partner")
		return
	}
	s.markOnline(wallet, peer)
}

// OnPeerDisconnected 传输层连接断开时清除成员句柄
func (s *Service) OnPeerDisconnected(peerID string) {
	wallet, ok := s.party.ClearPeer(peerID)
	if !ok {
		return
	}
	if s.nodes != nil {
		s.nodes.MarkInactive(wallet)
	}
	s.updateOnlineGauge()
	log.Info().Str("partner", wallet).Str("peer_id", peerID).Msg("Partner went offline")
}

func (s *Service) markOnline(wallet string, peer party.PeerInfo) {
	_, wasOnline := s.onlinePeer(wallet)
	if !s.party.SetPartnerPeer(wallet, peer) {
		return
	}
	if s.nodes != nil {
		if err := s.nodes.UpdateHeartbeat(wallet); err != nil {
			log.Debug().Err(err).Str("partner", wallet).Msg("Failed to update heartbeat")
		}
	}
	s.updateOnlineGauge()
	if !wasOnline {
		log.Info().Str("partner", wallet).Str("peer_id", peer.ID).Msg("Partner online")
	}
}

func (s *Service) onlinePeer(wallet string) (party.PeerInfo, bool) {
	p, ok := s.party.Partner(wallet)
	if !ok || p.Peer == nil {
		return party.PeerInfo{}, false
	}
	return *p.Peer, true
}

// TryToFindOthers 广播 WhoIsThere numTry 次，每次间隔 FindOthersInterval
func (s *Service) TryToFindOthers(ctx context.Context, numTry int) error {
	self := s.transport.Self()
	msg := protocol.WhoIsThere{PeerID: self.ID, Addrs: self.Addrs}
	for i := 0; i < numTry; i++ {
		if err := s.transport.Broadcast(ctx, msg); err != nil {
			log.Debug().Err(err).Msg("Failed to broadcast WhoIsThere")
		}
		if err := sleep(ctx, s.cfg.FindOthersInterval); err != nil {
			return err
		}
	}
	return nil
}

// readyPartners 并发查询其他在线成员，返回已持有生产密钥的成员钱包
func (s *Service) readyPartners(ctx context.Context) []string {
	var others []party.Partner
	for _, p := range s.party.OnlinePartners() {
		if !s.isSelf(p.Wallet) {
			others = append(others, p)
		}
	}

	ready := make([]bool, len(others))
	var wg sync.WaitGroup
	for i, p := range others {
		wg.Add(1)
		go func(i int, p party.Partner) {
			defer wg.Done()
			var status protocol.StatusResponse
			if err := s.call(ctx, *p.Peer, protocol.MethodCheckStatus, nil, &status); err != nil {
				log.Debug().Err(err).Str("partner", p.Wallet).Msg("checkStatus call failed")
				return
			}
			ready[i] = status.IsReady
		}(i, p)
	}
	wg.Wait()

	var out []string
	for i, p := range others {
		if ready[i] {
			out = append(out, p.Wallet)
		}
	}
	return out
}

// isNeedToCreateKey 就绪的其他成员不足门限时需要重新生成
func (s *Service) isNeedToCreateKey(ctx context.Context) bool {
	return len(s.readyPartners(ctx)) < s.party.Threshold()
}
