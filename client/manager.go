package client

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

// Manager issues the v1 RPCs against a broker, it owns the channels and
// enforces the deadline of the passed context, every method is safe for
// concurrent use
type Manager interface {
	ReceiveMessage(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.ReceiveMessageRequest,
	) (*rpc.ReceiveMessageResponse, error)

	PullMessage(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.PullMessageRequest,
	) (*rpc.PullMessageResponse, error)

	AckMessage(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.AckMessageRequest,
	) (*rpc.AckMessageResponse, error)

	NackMessage(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.NackMessageRequest,
	) (*rpc.NackMessageResponse, error)

	ForwardMessageToDeadLetterQueue(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.ForwardMessageToDeadLetterQueueRequest,
	) (*rpc.ForwardMessageToDeadLetterQueueResponse, error)

	QueryOffset(
		ctx context.Context, endpoints route.Endpoints, md metadata.MD, req *rpc.QueryOffsetRequest,
	) (*rpc.QueryOffsetResponse, error)
}
