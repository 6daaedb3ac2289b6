package client

import (
	"context"
	"sync"

	"google.golang.org/grpc/metadata"

	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

// MockManager records every call and answers with OK by default, the
// per-operation funcs override the canned responses, test usage only
type MockManager struct {
	mu sync.Mutex

	ReceiveFunc     func(*rpc.ReceiveMessageRequest) (*rpc.ReceiveMessageResponse, error)
	PullFunc        func(*rpc.PullMessageRequest) (*rpc.PullMessageResponse, error)
	AckFunc         func(*rpc.AckMessageRequest) (*rpc.AckMessageResponse, error)
	NackFunc        func(*rpc.NackMessageRequest) (*rpc.NackMessageResponse, error)
	ForwardFunc     func(*rpc.ForwardMessageToDeadLetterQueueRequest) (*rpc.ForwardMessageToDeadLetterQueueResponse, error)
	QueryOffsetFunc func(*rpc.QueryOffsetRequest) (*rpc.QueryOffsetResponse, error)

	receiveRequests []*rpc.ReceiveMessageRequest
	pullRequests    []*rpc.PullMessageRequest
	ackRequests     []*rpc.AckMessageRequest
	nackRequests    []*rpc.NackMessageRequest
	forwardRequests []*rpc.ForwardMessageToDeadLetterQueueRequest
	queryRequests   []*rpc.QueryOffsetRequest

	ackEndpoints     []route.Endpoints
	nackEndpoints    []route.Endpoints
	forwardEndpoints []route.Endpoints
}

func (m *MockManager) ReceiveMessage(
	_ context.Context, _ route.Endpoints, _ metadata.MD, req *rpc.ReceiveMessageRequest,
) (*rpc.ReceiveMessageResponse, error) {
	m.mu.Lock()
	m.receiveRequests = append(m.receiveRequests, req)
	f := m.ReceiveFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.ReceiveMessageResponse{Common: rpc.OKStatus()}, nil
}

func (m *MockManager) PullMessage(
	_ context.Context, _ route.Endpoints, _ metadata.MD, req *rpc.PullMessageRequest,
) (*rpc.PullMessageResponse, error) {
	m.mu.Lock()
	m.pullRequests = append(m.pullRequests, req)
	f := m.PullFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.PullMessageResponse{Common: rpc.OKStatus(), NextBeginOffset: req.Offset}, nil
}

func (m *MockManager) AckMessage(
	_ context.Context, endpoints route.Endpoints, _ metadata.MD, req *rpc.AckMessageRequest,
) (*rpc.AckMessageResponse, error) {
	m.mu.Lock()
	m.ackRequests = append(m.ackRequests, req)
	m.ackEndpoints = append(m.ackEndpoints, endpoints)
	f := m.AckFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.AckMessageResponse{Common: rpc.OKStatus()}, nil
}

func (m *MockManager) NackMessage(
	_ context.Context, endpoints route.Endpoints, _ metadata.MD, req *rpc.NackMessageRequest,
) (*rpc.NackMessageResponse, error) {
	m.mu.Lock()
	m.nackRequests = append(m.nackRequests, req)
	m.nackEndpoints = append(m.nackEndpoints, endpoints)
	f := m.NackFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.NackMessageResponse{Common: rpc.OKStatus()}, nil
}

func (m *MockManager) ForwardMessageToDeadLetterQueue(
	_ context.Context, endpoints route.Endpoints, _ metadata.MD, req *rpc.ForwardMessageToDeadLetterQueueRequest,
) (*rpc.ForwardMessageToDeadLetterQueueResponse, error) {
	m.mu.Lock()
	m.forwardRequests = append(m.forwardRequests, req)
	m.forwardEndpoints = append(m.forwardEndpoints, endpoints)
	f := m.ForwardFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.ForwardMessageToDeadLetterQueueResponse{Common: rpc.OKStatus()}, nil
}

func (m *MockManager) QueryOffset(
	_ context.Context, _ route.Endpoints, _ metadata.MD, req *rpc.QueryOffsetRequest,
) (*rpc.QueryOffsetResponse, error) {
	m.mu.Lock()
	m.queryRequests = append(m.queryRequests, req)
	f := m.QueryOffsetFunc
	m.mu.Unlock()

	if f != nil {
		return f(req)
	}
	return &rpc.QueryOffsetResponse{Common: rpc.OKStatus()}, nil
}

func (m *MockManager) ReceiveRequests() []*rpc.ReceiveMessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.ReceiveMessageRequest(nil), m.receiveRequests...)
}

func (m *MockManager) PullRequests() []*rpc.PullMessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.PullMessageRequest(nil), m.pullRequests...)
}

func (m *MockManager) AckRequests() []*rpc.AckMessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.AckMessageRequest(nil), m.ackRequests...)
}

func (m *MockManager) AckEndpoints() []route.Endpoints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]route.Endpoints(nil), m.ackEndpoints...)
}

func (m *MockManager) NackRequests() []*rpc.NackMessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.NackMessageRequest(nil), m.nackRequests...)
}

func (m *MockManager) ForwardRequests() []*rpc.ForwardMessageToDeadLetterQueueRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.ForwardMessageToDeadLetterQueueRequest(nil), m.forwardRequests...)
}

func (m *MockManager) QueryOffsetRequests() []*rpc.QueryOffsetRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rpc.QueryOffsetRequest(nil), m.queryRequests...)
}
