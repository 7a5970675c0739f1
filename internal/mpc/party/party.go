package party

import (
	"sort"
	"strings"
	"sync"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
)

// PeerInfo 传输层可达的节点句柄
type PeerInfo struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs,omitempty"`
}

// PartnerInfo 创建 Party 时的成员描述
type PartnerInfo struct {
	Wallet string
	PeerID string
}

// Partner 成员快照
type Partner struct {
	Wallet string
	PeerID string
	Peer   *PeerInfo // nil 表示当前不可达
}

// Online 是否在线
func (p Partner) Online() bool {
	return p.Peer != nil
}

// Party 门限组成员描述，成员固定，仅在线状态可变
type Party struct {
	id        string
	threshold int
	max       int

	mu       sync.RWMutex
	partners map[string]*Partner // key: 小写钱包地址
	order    []string
}

// New 创建 Party
func New(id string, threshold, max int, partners []PartnerInfo) (*Party, error) {
	if id == "" {
		return nil, errors.New("party id is required")
	}
	if threshold < 1 {
		return nil, errors.Errorf("invalid threshold %d", threshold)
	}
	if threshold > max {
		return nil, errors.Errorf("threshold %d exceeds max %d", threshold, max)
	}
	if len(partners) > max {
		return nil, errors.Errorf("party has %d partners, max is %d", len(partners), max)
	}

	p := &Party{
		id:        id,
		threshold: threshold,
		max:       max,
		partners:  make(map[string]*Partner, len(partners)),
	}
	for _, info := range partners {
		if _, err := tss.IndexFromWallet(info.Wallet); err != nil {
			return nil, errors.Wrapf(err, "invalid partner wallet %s", info.Wallet)
		}
		key := NormalizeWallet(info.Wallet)
		if _, ok := p.partners[key]; ok {
			return nil, errors.Errorf("duplicate partner %s", info.Wallet)
		}
		p.partners[key] = &Partner{Wallet: info.Wallet, PeerID: info.PeerID}
		p.order = append(p.order, key)
	}
	sort.Strings(p.order)

	return p, nil
}

// NormalizeWallet 钱包地址比较时统一为小写
func NormalizeWallet(wallet string) string {
	return strings.ToLower(wallet)
}

func (p *Party) ID() string     { return p.id }
func (p *Party) Threshold() int { return p.threshold }
func (p *Party) Max() int       { return p.max }

// IsPartner 是否为成员
func (p *Party) IsPartner(wallet string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.partners[NormalizeWallet(wallet)]
	return ok
}

// Partner 获取成员快照
func (p *Party) Partner(wallet string) (Partner, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	partner, ok := p.partners[NormalizeWallet(wallet)]
	if !ok {
		return Partner{}, false
	}
	return snapshot(partner), true
}

// Partners 全部成员，按钱包地址排序
func (p *Party) Partners() []Partner {
	return p.filter(func(*Partner) bool { return true })
}

// OnlinePartners 当前可达的成员
func (p *Party) OnlinePartners() []Partner {
	return p.filter(func(partner *Partner) bool { return partner.Peer != nil })
}

// Wallets 成员钱包列表
func (p *Party) Wallets() []string {
	partners := p.Partners()
	out := make([]string, len(partners))
	for i, partner := range partners {
		out[i] = partner.Wallet
	}
	return out
}

// WalletOfPeer 根据 peer id 查找成员钱包
func (p *Party) WalletOfPeer(peerID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, key := range p.order {
		if partner := p.partners[key]; partner.PeerID == peerID {
			return partner.Wallet, true
		}
	}
	return "", false
}

// SetPartnerPeer 记录成员的可达句柄
func (p *Party) SetPartnerPeer(wallet string, peer PeerInfo) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	partner, ok := p.partners[NormalizeWallet(wallet)]
	if !ok {
		return false
	}
	if peer.ID == "" {
		peer.ID = partner.PeerID
	}
	if partner.PeerID == "" {
		partner.PeerID = peer.ID
	}
	cp := peer
	cp.Addrs = append([]string(nil), peer.Addrs...)
	partner.Peer = &cp
	return true
}

// ClearPeer 断开连接时清除句柄，返回对应钱包
func (p *Party) ClearPeer(peerID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range p.order {
		partner := p.partners[key]
		if partner.PeerID == peerID && partner.Peer != nil {
			partner.Peer = nil
			return partner.Wallet, true
		}
	}
	return "", false
}

func (p *Party) filter(keep func(*Partner) bool) []Partner {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Partner, 0, len(p.order))
	for _, key := range p.order {
		if partner := p.partners[key]; keep(partner) {
			out = append(out, snapshot(partner))
		}
	}
	return out
}

func snapshot(partner *Partner) Partner {
	cp := *partner
	if partner.Peer != nil {
		peer := *partner.Peer
		peer.Addrs = append([]string(nil), partner.Peer.Addrs...)
		cp.Peer = &peer
	}
	return cp
}
