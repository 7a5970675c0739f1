package key

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DistributedKey 一次分布式密钥生成的状态机
type DistributedKey struct {
	id         string
	party      *party.Party
	selfWallet string
	selfIndex  tss.Scalar
	createdAt  time.Time

	mu                sync.Mutex
	state             State
	partners          []string
	partnersConfirmed bool
	distributing      bool
	selfShareSet      bool

	f, h         *tss.Polynomial
	contribution *Contribution

	shares    map[string]*PartnerShare // key: 小写钱包地址
	excluded  map[string]struct{}
	share     tss.Scalar
	publicKey tss.Point
	address   string

	done  chan struct{}
	err   error
	timer *time.Timer
}

// New 创建处于 Created 状态的密钥实例，id 为空时随机生成
func New(p *party.Party, selfWallet, id string, timeout time.Duration) (*DistributedKey, error) {
	if p == nil {
		return nil, errors.New("party is required")
	}
	if !p.IsPartner(selfWallet) {
		return nil, errors.Errorf("%s is not a partner of party %s", selfWallet, p.ID())
	}
	idx, err := tss.IndexFromWallet(selfWallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive own index")
	}
	if id == "" {
		id = uuid.New().String()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	k := &DistributedKey{
		id:         id,
		party:      p,
		selfWallet: selfWallet,
		selfIndex:  *idx,
		createdAt:  time.Now(),
		state:      StateCreated,
		shares:     make(map[string]*PartnerShare),
		excluded:   make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	k.timer = time.AfterFunc(timeout, k.expire)
	return k, nil
}

// Load 以 Fulfilled 状态装载已持久化的密钥
func Load(p *party.Party, selfWallet string, loaded Loaded) (*DistributedKey, error) {
	if p == nil {
		return nil, errors.New("party is required")
	}
	if loaded.ID == "" {
		return nil, errors.New("key id is required")
	}
	idx, err := tss.IndexFromWallet(selfWallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive own index")
	}
	address := loaded.Address
	if address == "" {
		if address, err = tss.PubToAddress(&loaded.PublicKey); err != nil {
			return nil, errors.Wrap(err, "failed to derive key address")
		}
	}

	k := &DistributedKey{
		id:                loaded.ID,
		party:             p,
		selfWallet:        selfWallet,
		selfIndex:         *idx,
		createdAt:         time.Now(),
		state:             StateFulfilled,
		partners:          p.Wallets(),
		partnersConfirmed: true,
		distributing:      true,
		selfShareSet:      true,
		shares:            make(map[string]*PartnerShare),
		excluded:          make(map[string]struct{}),
		share:             loaded.Share,
		publicKey:         loaded.PublicKey,
		address:           address,
		done:              make(chan struct{}),
	}
	close(k.done)
	return k, nil
}

func (k *DistributedKey) ID() string           { return k.id }
func (k *DistributedKey) Party() *party.Party  { return k.party }
func (k *DistributedKey) SelfWallet() string   { return k.selfWallet }
func (k *DistributedKey) CreatedAt() time.Time { return k.createdAt }

// State 当前状态
func (k *DistributedKey) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Partners 参与本实例的成员
func (k *DistributedKey) Partners() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.partners...)
}

// Excluded 因分片校验失败被排除的成员
func (k *DistributedKey) Excluded() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.culprits()
}

// SetPartners 确定参与成员。confirmed 为 false 时，首个入站分片声明的成员集合会覆盖它
func (k *DistributedKey) SetPartners(wallets []string, confirmed bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != StateCreated || len(k.shares) > 0 {
		return protocol.NewViolationError(k.id, "partners can only be set before any share is exchanged")
	}
	resolved, err := k.resolvePartners(wallets)
	if err != nil {
		return err
	}
	k.partners = resolved
	k.partnersConfirmed = confirmed
	return nil
}

// TryStartDistribution Created→Distributing 的单次转换守卫，只有第一个调用者返回 true
func (k *DistributedKey) TryStartDistribution() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.distributing || k.state.Terminal() {
		return false
	}
	k.distributing = true
	return true
}

// Contribution 生成（仅一次）本节点的 f、h 多项式并返回承诺
func (k *DistributedKey) Contribution() (*Contribution, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.contribution != nil {
		return k.contribution, nil
	}
	if k.state.Terminal() {
		return nil, protocol.NewViolationError(k.id, "key is already "+string(k.state))
	}

	degree := k.party.Threshold() - 1
	f, err := tss.NewRandomPolynomial(degree)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate secret polynomial")
	}
	h, err := tss.NewRandomPolynomial(degree)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate blinding polynomial")
	}
	commitments, err := tss.PedersenCommit(f, h)
	if err != nil {
		return nil, err
	}

	k.f, k.h = f, h
	k.contribution = &Contribution{Commitments: commitments, CoefPubKeys: f.CoefPubKeys()}
	return k.contribution, nil
}

// EvaluateFor 计算发给某成员的 f(i)、h(i)
func (k *DistributedKey) EvaluateFor(wallet string) (*tss.Scalar, *tss.Scalar, error) {
	idx, err := tss.IndexFromWallet(wallet)
	if err != nil {
		return nil, nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.f == nil || k.h == nil {
		return nil, nil, errors.New("contribution not generated")
	}
	return k.f.Evaluate(idx), k.h.Evaluate(idx), nil
}

// SetSelfShare 记录本节点自己的贡献，每个实例只能调用一次
func (k *DistributedKey) SetSelfShare(f, h *tss.Scalar, contribution *Contribution) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.selfShareSet {
		return protocol.NewViolationError(k.id, "self share already set")
	}
	if k.state.Terminal() {
		return protocol.NewViolationError(k.id, "key is already "+string(k.state))
	}
	if !k.isExpected(k.selfWallet) {
		return protocol.NewViolationError(k.id, "self is not a partner of this key")
	}
	if !tss.VerifyPedersenShare(&k.selfIndex, f, h, contribution.Commitments) {
		return errors.New("self share does not match own commitment")
	}

	k.selfShareSet = true
	k.distributing = true
	k.state = StateDistributing
	k.accept(k.selfWallet, &PartnerShare{
		F:           *f,
		H:           *h,
		Commitments: contribution.Commitments,
		CoefPubKeys: contribution.CoefPubKeys,
	})
	return nil
}

// SetPartnerShare 校验并累加成员发来的分片
func (k *DistributedKey) SetPartnerShare(from string, declaredPartners []string, share *PartnerShare) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state.Terminal() {
		return protocol.NewViolationError(k.id, "key is already "+string(k.state))
	}
	if err := k.adoptDeclaredPartners(declaredPartners); err != nil {
		return err
	}

	norm := party.NormalizeWallet(from)
	if party.NormalizeWallet(k.selfWallet) == norm {
		return protocol.NewViolationError(k.id, "self share must be set locally")
	}
	if !k.isExpected(from) {
		return protocol.NewViolationError(k.id, "sender "+from+" is not a partner of this key")
	}
	if _, ok := k.excluded[norm]; ok {
		return protocol.NewMaliciousNodeError(k.id, []string{from}, "sender was excluded")
	}
	if _, ok := k.shares[norm]; ok {
		return protocol.NewViolationError(k.id, "duplicate share from "+from)
	}

	t := k.party.Threshold()
	valid := len(share.Commitments) == t &&
		len(share.CoefPubKeys) == t &&
		tss.VerifyPedersenShare(&k.selfIndex, &share.F, &share.H, share.Commitments) &&
		tss.VerifyFeldmanShare(&k.selfIndex, &share.F, share.CoefPubKeys)
	if !valid {
		k.exclude(from)
		return protocol.NewMaliciousNodeError(k.id, []string{from}, "share verification failed")
	}

	k.accept(from, share)
	return nil
}

// WaitToFulfill 等待完成，可被多个调用者并发调用，结果一致
func (k *DistributedKey) WaitToFulfill(ctx context.Context) (*Result, error) {
	select {
	case <-k.done:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "stopped waiting for key "+k.id)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	return k.result(), nil
}

// Done 完成或失败时关闭
func (k *DistributedKey) Done() <-chan struct{} {
	return k.done
}

// Result 已完成时返回结果
func (k *DistributedKey) Result() (*Result, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != StateFulfilled {
		return nil, false
	}
	return k.result(), true
}

// Release 清除本地多项式
func (k *DistributedKey) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.f != nil {
		k.f.Zero()
	}
	if k.h != nil {
		k.h.Zero()
	}
	if k.timer != nil {
		k.timer.Stop()
	}
}

func (k *DistributedKey) result() *Result {
	return &Result{
		ID:        k.id,
		Share:     k.share,
		PublicKey: k.publicKey,
		Address:   k.address,
		Partners:  k.activePartners(),
	}
}

func (k *DistributedKey) resolvePartners(wallets []string) ([]string, error) {
	seen := make(map[string]struct{}, len(wallets))
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		partner, ok := k.party.Partner(w)
		if !ok {
			return nil, protocol.NewViolationError(k.id, w+" is not a party partner")
		}
		norm := party.NormalizeWallet(w)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, partner.Wallet)
	}
	if _, ok := seen[party.NormalizeWallet(k.selfWallet)]; !ok {
		return nil, protocol.NewViolationError(k.id, "partner list does not include self")
	}
	if len(out) < k.party.Threshold() {
		return nil, protocol.NewQuorumError(k.id, k.party.Threshold(), len(out), "partner list below threshold")
	}
	return out, nil
}

func (k *DistributedKey) adoptDeclaredPartners(declared []string) error {
	if len(declared) == 0 {
		return protocol.NewViolationError(k.id, "empty partner list")
	}
	resolved, err := k.resolvePartners(declared)
	if err != nil {
		return err
	}
	if !k.partnersConfirmed {
		k.partners = resolved
		k.partnersConfirmed = true
		return nil
	}
	if !samePartners(k.partners, resolved) {
		return protocol.NewViolationError(k.id, "declared partner list differs from key partners")
	}
	return nil
}

func (k *DistributedKey) isExpected(wallet string) bool {
	norm := party.NormalizeWallet(wallet)
	for _, w := range k.partners {
		if party.NormalizeWallet(w) == norm {
			return true
		}
	}
	return false
}

func (k *DistributedKey) activePartners() []string {
	out := make([]string, 0, len(k.partners))
	for _, w := range k.partners {
		if _, ok := k.excluded[party.NormalizeWallet(w)]; !ok {
			out = append(out, w)
		}
	}
	return out
}

// accept 累加分片并检查是否完成，调用方持有锁
func (k *DistributedKey) accept(from string, share *PartnerShare) {
	k.shares[party.NormalizeWallet(from)] = share
	k.share.Add(&share.F)
	k.publicKey = *tss.AddPoints(&k.publicKey, &share.CoefPubKeys[0])
	k.checkFulfilled()
}

// exclude 永久排除某成员，剩余贡献者不足门限时实例失败，调用方持有锁
func (k *DistributedKey) exclude(wallet string) {
	k.excluded[party.NormalizeWallet(wallet)] = struct{}{}
	log.Warn().
		Str("key_id", k.id).
		Str("partner", wallet).
		Msg("Partner share rejected, excluding partner from key")

	if remaining := len(k.activePartners()); remaining < k.party.Threshold() {
		k.finish(StateFailed, protocol.NewMaliciousNodeError(k.id, k.culprits(), "not enough verified contributors"))
		return
	}
	k.checkFulfilled()
}

// culprits 调用方持有锁
func (k *DistributedKey) culprits() []string {
	out := make([]string, 0, len(k.excluded))
	for _, w := range k.partners {
		if _, ok := k.excluded[party.NormalizeWallet(w)]; ok {
			out = append(out, w)
		}
	}
	return out
}

func (k *DistributedKey) checkFulfilled() {
	if k.state.Terminal() || !k.selfShareSet || !k.partnersConfirmed {
		return
	}
	for _, w := range k.activePartners() {
		if _, ok := k.shares[party.NormalizeWallet(w)]; !ok {
			return
		}
	}

	address, err := tss.PubToAddress(&k.publicKey)
	if err != nil {
		k.finish(StateFailed, errors.Wrap(err, "failed to derive key address"))
		return
	}
	k.address = address
	k.finish(StateFulfilled, nil)
	log.Debug().
		Str("key_id", k.id).
		Int("partners", len(k.activePartners())).
		Str("address", address).
		Msg("Distributed key fulfilled")
}

func (k *DistributedKey) expire() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state.Terminal() {
		return
	}
	k.finish(StateTimedOut, protocol.NewTimeoutError(k.id, "distributed key generation timed out"))
}

// finish 进入终态并唤醒所有等待者，调用方持有锁
func (k *DistributedKey) finish(state State, err error) {
	k.state = state
	k.err = err
	if k.timer != nil {
		k.timer.Stop()
	}
	close(k.done)
}

func samePartners(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[party.NormalizeWallet(w)] = struct{}{}
	}
	for _, w := range b {
		if _, ok := set[party.NormalizeWallet(w)]; !ok {
			return false
		}
	}
	return true
}
