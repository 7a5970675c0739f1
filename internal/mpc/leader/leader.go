package leader

import (
	"context"
	"strings"
)

// Elector 领导者选举
type Elector interface {
	// WaitToLeaderSelect 阻塞到选举完成，返回领导者钱包
	WaitToLeaderSelect(ctx context.Context) (string, error)
	// IsLeader 给定钱包是否为当前领导者
	IsLeader(wallet string) bool
}

// StaticElector 配置中固定的领导者
type StaticElector struct {
	wallet string
}

// NewStaticElector 创建固定领导者
func NewStaticElector(wallet string) *StaticElector {
	return &StaticElector{wallet: wallet}
}

func (e *StaticElector) WaitToLeaderSelect(ctx context.Context) (string, error) {
	return e.wallet, nil
}

func (e *StaticElector) IsLeader(wallet string) bool {
	return e.wallet != "" && strings.EqualFold(e.wallet, wallet)
}
