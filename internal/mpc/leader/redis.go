package leader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLeaseTTL 领导者租约时长
	DefaultLeaseTTL = 30 * time.Second
)

// RedisElector 基于 Redis SetNX 租约的选举，先抢到租约的节点为领导者
type RedisElector struct {
	client   *redis.Client
	key      string
	wallet   string
	ttl      time.Duration
	interval time.Duration

	mu     sync.RWMutex
	leader string
}

// NewRedisElector 创建选举器，partyID 区分不同 Party 的租约
func NewRedisElector(client *redis.Client, partyID, wallet string, ttl time.Duration) *RedisElector {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisElector{
		client:   client,
		key:      "mpc:leader:" + partyID,
		wallet:   wallet,
		ttl:      ttl,
		interval: ttl / 3,
	}
}

// campaign 抢占或续约一次，返回当前领导者
func (e *RedisElector) campaign(ctx context.Context) (string, error) {
	ok, err := e.client.SetNX(ctx, e.key, e.wallet, e.ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, "failed to acquire leader lease")
	}
	if ok {
		log.Info().Str("wallet", e.wallet).Msg("Acquired leader lease")
		return e.wallet, nil
	}

	current, err := e.client.Get(ctx, e.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read leader lease")
	}
	if strings.EqualFold(current, e.wallet) {
		if err := e.client.Expire(ctx, e.key, e.ttl).Err(); err != nil {
			return "", errors.Wrap(err, "failed to renew leader lease")
		}
	}
	return current, nil
}

func (e *RedisElector) setLeader(wallet string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wallet != e.leader {
		log.Info().Str("leader", wallet).Msg("Leader changed")
	}
	e.leader = wallet
}

// WaitToLeaderSelect 阻塞到租约被持有
func (e *RedisElector) WaitToLeaderSelect(ctx context.Context) (string, error) {
	for {
		current, err := e.campaign(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Leader campaign failed")
		} else if current != "" {
			e.setLeader(current)
			return current, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.interval):
		}
	}
}

// Run 周期性续约或接管租约，直到 ctx 取消
func (e *RedisElector) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := e.campaign(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Leader campaign failed")
				continue
			}
			if current != "" {
				e.setLeader(current)
			}
		}
	}
}

// IsLeader 给定钱包是否为最近一次观察到的领导者
func (e *RedisElector) IsLeader(wallet string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader != "" && strings.EqualFold(e.leader, wallet)
}
