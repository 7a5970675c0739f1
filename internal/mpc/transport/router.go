package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Router 方法名到处理函数的分发表
type Router struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	broadcasts map[string]BroadcastHandler
}

// NewRouter 创建分发表
func NewRouter() *Router {
	return &Router{
		handlers:   make(map[string]Handler),
		broadcasts: make(map[string]BroadcastHandler),
	}
}

// Handle 注册远程方法
func (r *Router) Handle(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// HandleBroadcast 注册广播消息类型
func (r *Router) HandleBroadcast(msgType string, h BroadcastHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts[msgType] = h
}

// Dispatch 执行远程方法并编码结果
func (r *Router) Dispatch(ctx context.Context, caller CallerInfo, method string, params json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, protocol.NewViolationError("", "unknown method "+method)
	}

	result, err := h(ctx, caller, params)
	if err != nil {
		log.Debug().
			Err(err).
			Str("method", method).
			Str("caller", caller.Wallet).
			Msg("Remote call handler failed")
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal result")
	}
	return data, nil
}

// DispatchBroadcast 解码并分发广播，未知类型直接丢弃
func (r *Router) DispatchBroadcast(ctx context.Context, from party.PeerInfo, data []byte) {
	msg, err := protocol.DecodeBroadcast(data)
	if err != nil {
		log.Debug().Err(err).Str("from", from.ID).Msg("Dropping undecodable broadcast")
		return
	}
	r.mu.RLock()
	h, ok := r.broadcasts[msg.BroadcastType()]
	r.mu.RUnlock()
	if !ok {
		return
	}
	h(ctx, from, msg)
}

// Decode 解码并校验入站参数
func Decode(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &protocol.ProtocolError{
			Type:     protocol.ErrTypeViolation,
			Message:  "malformed params",
			Original: err,
		}
	}
	return protocol.Validate(v)
}
