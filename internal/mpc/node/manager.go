package node

import (
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/pkg/errors"
)

type heartbeat struct {
	status NodeStatus
	last   *time.Time
}

// Manager 节点管理器，记录成员在线状态与心跳
type Manager struct {
	registry          *Registry
	clock             time2.Clock
	heartbeatInterval time.Duration

	mu     sync.RWMutex
	states map[string]*heartbeat
}

// NewManager 创建节点管理器
func NewManager(registry *Registry, clock time2.Clock, heartbeatInterval time.Duration) *Manager {
	m := &Manager{
		registry:          registry,
		clock:             clock,
		heartbeatInterval: heartbeatInterval,
		states:            make(map[string]*heartbeat),
	}
	for _, wallet := range registry.Wallets() {
		m.states[party.NormalizeWallet(wallet)] = &heartbeat{status: NodeStatusInactive}
	}
	return m
}

// UpdateHeartbeat 更新节点心跳
func (m *Manager) UpdateHeartbeat(wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[party.NormalizeWallet(wallet)]
	if !ok {
		return errors.Errorf("unknown node %s", wallet)
	}
	now := m.clock.Now()
	state.last = &now
	state.status = NodeStatusActive
	return nil
}

// MarkInactive 连接断开时标记离线
func (m *Manager) MarkInactive(wallet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[party.NormalizeWallet(wallet)]; ok {
		state.status = NodeStatusInactive
	}
}

// HealthCheck 健康检查
func (m *Manager) HealthCheck(wallet string) (*HealthCheck, error) {
	m.mu.RLock()
	state, ok := m.states[party.NormalizeWallet(wallet)]
	var status NodeStatus
	var last *time.Time
	if ok {
		status = state.status
		last = state.last
	}
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown node %s", wallet)
	}

	now := m.clock.Now()
	checks := make(map[string]string)
	metrics := make(map[string]float64)

	// 检查节点状态
	if status == NodeStatusActive {
		checks["status"] = "ok"
	} else {
		checks["status"] = "offline"
	}

	// 检查心跳
	if last != nil {
		age := now.Sub(*last)
		if age < m.heartbeatInterval*2 {
			checks["heartbeat"] = "ok"
		} else {
			checks["heartbeat"] = "stale"
		}
		metrics["heartbeat_age_seconds"] = age.Seconds()
	} else {
		checks["heartbeat"] = "missing"
	}

	// 确定整体状态
	overallStatus := "healthy"
	if checks["status"] != "ok" || checks["heartbeat"] != "ok" {
		overallStatus = "unhealthy"
	}

	return &HealthCheck{
		Wallet:    wallet,
		Status:    overallStatus,
		Timestamp: now,
		Checks:    checks,
		Metrics:   metrics,
	}, nil
}

// HealthReport 所有成员的健康检查
func (m *Manager) HealthReport() []*HealthCheck {
	wallets := m.registry.Wallets()
	out := make([]*HealthCheck, 0, len(wallets))
	for _, wallet := range wallets {
		if hc, err := m.HealthCheck(wallet); err == nil {
			out = append(out, hc)
		}
	}
	return out
}
