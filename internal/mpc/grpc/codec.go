package grpc

import (
	"context"
	"encoding/json"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	codecName   = "json"
	serviceName = "mpc.oracle.v1.Node"
	callMethod  = "/" + serviceName + "/Call"

	// 广播在 gRPC 下以保留方法名扇出到每个节点
	broadcastMethod = "__broadcast"

	metadataWallet = "x-mpc-wallet"
	metadataPeer   = "x-mpc-peer"
	metadataAddr   = "x-mpc-addr"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec 节点间消息使用 JSON 编码
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

// callServer 由 GRPCServer 实现
type callServer interface {
	call(ctx context.Context, req *transport.CallRequest) (*transport.CallResponse, error)
}

func callHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.CallRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(callServer).call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: callMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(callServer).call(ctx, req.(*transport.CallRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*callServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    callHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mpc/oracle/v1/node.proto",
}
