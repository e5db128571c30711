package call

import (
	"context"
	"sync"

	"salescrm-platform/internal/provider"
)

// stubProvider records provider interactions and serves canned responses.
type stubProvider struct {
	mu sync.Mutex

	created    []provider.CreateCallRequest
	createInfo provider.CallInfo
	createErr  error

	fetchInfo map[string]provider.CallInfo
	fetchErr  error

	terminated []string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		createInfo: provider.CallInfo{ProviderCallID: "CA-test", Status: "queued"},
		fetchInfo:  make(map[string]provider.CallInfo),
	}
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) CreateCall(ctx context.Context, req provider.CreateCallRequest) (provider.CallInfo, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return provider.CallInfo{}, s.createErr
	}
	s.created = append(s.created, req)
	return s.createInfo, nil
}

func (s *stubProvider) FetchCall(ctx context.Context, providerCallID string) (provider.CallInfo, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return provider.CallInfo{}, s.fetchErr
	}
	return s.fetchInfo[providerCallID], nil
}

func (s *stubProvider) StartRecording(ctx context.Context, providerCallID string) (provider.RecordingInfo, error) {
	_ = ctx
	return provider.RecordingInfo{RecordingID: "RE-" + providerCallID}, nil
}

func (s *stubProvider) DeleteRecording(ctx context.Context, recordingID string) error {
	_ = ctx
	_ = recordingID
	return nil
}

func (s *stubProvider) TerminateCall(ctx context.Context, providerCallID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = append(s.terminated, providerCallID)
	return nil
}

// stubCap counts acquisitions and releases and can deny slots.
type stubCap struct {
	mu       sync.Mutex
	deny     bool
	acquired int
	released int
}

func (c *stubCap) Acquire(ctx context.Context, orgID string) (bool, error) {
	_ = ctx
	_ = orgID
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deny {
		return false, nil
	}
	c.acquired++
	return true, nil
}

func (c *stubCap) Release(ctx context.Context, orgID string) {
	_ = ctx
	_ = orgID
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
}

// stubGovernance counts hook invocations.
type stubGovernance struct {
	mu        sync.Mutex
	armed     []Call
	evaluated []Call
}

func (g *stubGovernance) ArmInProgress(ctx context.Context, c Call) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = append(g.armed, c)
}

func (g *stubGovernance) EvaluateRetention(ctx context.Context, c Call) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evaluated = append(g.evaluated, c)
}
