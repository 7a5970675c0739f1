package transport

import (
	"encoding/json"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/pkg/errors"
)

// CallRequest 远程调用请求帧
type CallRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Wallet string          `json:"wallet,omitempty"`
	PeerID string          `json:"peerId,omitempty"`
	Addrs  []string        `json:"addrs,omitempty"`
}

// CallResponse 远程调用响应帧
type CallResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError 跨节点传递的错误
type RemoteError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewRemoteError 编码处理函数返回的错误
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	var pe *protocol.ProtocolError
	if errors.As(err, &pe) {
		return &RemoteError{Type: pe.Type.String(), Message: err.Error()}
	}
	return &RemoteError{Type: protocol.ErrTypeUnknown.String(), Message: err.Error()}
}

// Err 还原为 ProtocolError
func (e *RemoteError) Err() error {
	if e == nil {
		return nil
	}
	return &protocol.ProtocolError{
		Type:    protocol.ParseErrorType(e.Type),
		Message: "remote: " + e.Message,
	}
}

// DecodeResponse 解析响应并写入 result
func DecodeResponse(resp *CallResponse, result interface{}) error {
	if resp.Error != nil {
		return resp.Error.Err()
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrap(err, "failed to unmarshal call result")
	}
	return nil
}

// EncodeParams 编码调用参数
func EncodeParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal call params")
	}
	return data, nil
}
