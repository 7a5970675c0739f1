package key

import (
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
)

// State 密钥实例状态
type State string

const (
	StateCreated      State = "created"
	StateDistributing State = "distributing"
	StateFulfilled    State = "fulfilled"
	StateTimedOut     State = "timed_out"
	StateFailed       State = "failed" // 剩余有效贡献者不足门限
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateFulfilled || s == StateTimedOut || s == StateFailed
}

// DefaultTimeout 单个实例完成的超时时间
const DefaultTimeout = 15 * time.Second

// Contribution 本节点的多项式承诺
type Contribution struct {
	Commitments []tss.Point // Ck = fk·G + hk·H
	CoefPubKeys []tss.Point // Ak = fk·G
}

// PartnerShare 从成员收到的分片
type PartnerShare struct {
	F           tss.Scalar
	H           tss.Scalar
	Commitments []tss.Point
	CoefPubKeys []tss.Point
}

// Result 完成后的密钥
type Result struct {
	ID        string
	Share     tss.Scalar
	PublicKey tss.Point
	Address   string
	Partners  []string
}

// Loaded 从持久化配置恢复的密钥
type Loaded struct {
	ID        string
	Share     tss.Scalar
	PublicKey tss.Point
	Address   string
}
