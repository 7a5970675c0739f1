package coordinator

import (
	"context"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Bootstrap 装载已保存的密钥；否则由领导者生成，其他节点等待领导者的 storeKey 或从就绪成员处恢复。
// 节点就绪或 ctx 取消时返回
func (s *Service) Bootstrap(ctx context.Context) error {
	cfg, err := s.store.Load(ctx)
	switch {
	case err == nil && cfg.Matches(s.party.ID(), s.party.Threshold()):
		if err := s.loadConfig(cfg); err != nil {
			return err
		}
		log.Info().Str("key_id", cfg.Key.ID).Str("address", cfg.Key.Address).Msg("tss ready")
		return nil
	case err == nil:
		log.Warn().
			Str("party_id", cfg.Party.ID).
			Int("t", cfg.Party.T).
			Msg("Saved key config belongs to a different party, ignoring")
	case !errors.Is(err, storage.ErrNotFound):
		return errors.Wrap(err, "failed to load key config")
	}

	log.Info().Msg("Waiting for leader to be selected")
	leaderWallet, err := s.elector.WaitToLeaderSelect(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to select leader")
	}

	if s.isSelf(leaderWallet) {
		created, err := s.createAsLeader(ctx)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
	} else if err := sleep(ctx, s.cfg.RecoveryInitialDelay); err != nil {
		return err
	}
	for !s.IsReady() {
		if err := sleep(ctx, s.cfg.StatusPollInterval); err != nil {
			return err
		}
		if s.IsReady() {
			break
		}
		ready := s.readyPartners(ctx)
		if len(ready) < s.party.Threshold() {
			log.Debug().Int("ready", len(ready)).Int("need", s.party.Threshold()).Msg("Waiting for ready partners")
			continue
		}
		if _, err := s.RecoverKey(ctx, ready); err != nil {
			if protocol.IsType(err, protocol.ErrTypeConfig) {
				return err
			}
			log.Warn().Err(err).Msg("Key recovery failed, retrying")
		}
	}
	return nil
}

// createAsLeader 领导者重复生成生产密钥直到成功；已有足够就绪成员时返回 false，转入恢复流程
func (s *Service) createAsLeader(ctx context.Context) (bool, error) {
	for {
		if s.IsReady() {
			return true, nil
		}
		if !s.isNeedToCreateKey(ctx) {
			log.Info().Msg("Enough partners hold the key, recovering instead of creating")
			return false, nil
		}
		_, err := s.CreateProductionKey(ctx)
		if err == nil {
			return true, nil
		}
		if !isRetryable(err) {
			return false, err
		}
		log.Warn().Err(err).Dur("retry_in", s.cfg.StatusPollInterval).Msg("Failed to create tss key, retrying")
		if err := sleep(ctx, s.cfg.StatusPollInterval); err != nil {
			return false, err
		}
	}
}

// isRetryable 法定人数不足、超时、网络故障和被排除的成员都可能在下一轮消失
func isRetryable(err error) bool {
	return protocol.IsType(err, protocol.ErrTypeQuorum) ||
		protocol.IsType(err, protocol.ErrTypeTimeout) ||
		protocol.IsType(err, protocol.ErrTypeNetwork) ||
		protocol.IsType(err, protocol.ErrTypeMalicious)
}
