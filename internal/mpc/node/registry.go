package node

import (
	"strings"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// LoadNetwork 读取网络描述文件（yaml/json/toml）
func LoadNetwork(path string) (*Network, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read network config %s", path)
	}
	var network Network
	if err := v.Unmarshal(&network); err != nil {
		return nil, errors.Wrap(err, "failed to decode network config")
	}
	if network.ID == "" {
		return nil, errors.New("network config has no id")
	}
	if len(network.Partners) == 0 {
		return nil, errors.New("network config has no partners")
	}
	return &network, nil
}

// Registry 成员注册表，钱包与 peer id 双向映射
type Registry struct {
	network  *Network
	byWallet map[string]Member
	byPeer   map[string]string
}

// NewRegistry 创建注册表
func NewRegistry(network *Network) (*Registry, error) {
	r := &Registry{
		network:  network,
		byWallet: make(map[string]Member, len(network.Partners)),
		byPeer:   make(map[string]string, len(network.Partners)),
	}
	for _, m := range network.Partners {
		wallet := party.NormalizeWallet(m.Wallet)
		if _, ok := r.byWallet[wallet]; ok {
			return nil, errors.Errorf("duplicate wallet %s in network config", m.Wallet)
		}
		r.byWallet[wallet] = m
		if m.PeerID != "" {
			if other, ok := r.byPeer[m.PeerID]; ok {
				return nil, errors.Errorf("peer id %s used by %s and %s", m.PeerID, other, m.Wallet)
			}
			r.byPeer[m.PeerID] = m.Wallet
		}
	}
	return r, nil
}

// Network 原始描述
func (r *Registry) Network() *Network {
	return r.network
}

// Wallets 所有成员钱包，保持描述文件顺序
func (r *Registry) Wallets() []string {
	out := make([]string, 0, len(r.network.Partners))
	for _, m := range r.network.Partners {
		out = append(out, m.Wallet)
	}
	return out
}

// Member 按钱包查找成员
func (r *Registry) Member(wallet string) (Member, bool) {
	m, ok := r.byWallet[party.NormalizeWallet(wallet)]
	return m, ok
}

// WalletOfPeer 按 peer id 查找钱包
func (r *Registry) WalletOfPeer(peerID string) (string, bool) {
	w, ok := r.byPeer[peerID]
	return w, ok
}

// Members 除 exclude 外的所有成员
func (r *Registry) Members(exclude string) []Member {
	out := make([]Member, 0, len(r.network.Partners))
	for _, m := range r.network.Partners {
		if strings.EqualFold(m.Wallet, exclude) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// NewParty 按描述文件创建 Party
func (r *Registry) NewParty() (*party.Party, error) {
	partners := make([]party.PartnerInfo, 0, len(r.network.Partners))
	for _, m := range r.network.Partners {
		partners = append(partners, party.PartnerInfo{Wallet: m.Wallet, PeerID: m.PeerID})
	}
	return party.New(r.network.ID, r.network.TSSThreshold, r.network.MaxGroupSize, partners)
}
