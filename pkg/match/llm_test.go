package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

type fakeLLMService struct {
	response map[string]any
	err      error
}

func (f *fakeLLMService) Chat(ctx context.Context, req ports.LLMRequest) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestLLMMatcherCanFulfill(t *testing.T) {
	svc := &fakeLLMService{response: map[string]any{"can_fulfill": true, "confidence": 0.7, "rationale": "equipment list matches"}}
	m := NewLLMMatcher(svc)

	result := m.Process(context.Background(), &requirement.Component{Name: "Bracket"}, facility.Facility{Name: "Acme"})
	field := result.Fields["llm_assessment"]
	require.Equal(t, true, field.Value)
	require.Equal(t, 0.7, field.Confidence)
	require.Contains(t, result.Log, "equipment list matches")
}

func TestLLMMatcherCannotFulfillZeroesConfidence(t *testing.T) {
	svc := &fakeLLMService{response: map[string]any{"can_fulfill": false, "confidence": 0.9}}
	m := NewLLMMatcher(svc)

	result := m.Process(context.Background(), &requirement.Component{}, facility.Facility{})
	require.Equal(t, 0.0, result.Fields["llm_assessment"].Confidence)
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) { return f.allowed, f.err }

func TestLLMMatcherRateLimitedSkipsCall(t *testing.T) {
	svc := &fakeLLMService{response: map[string]any{"can_fulfill": true, "confidence": 0.7}}
	m := NewLLMMatcher(svc).WithLimiter(&fakeLimiter{allowed: false})

	result := m.Process(context.Background(), &requirement.Component{}, facility.Facility{})
	require.Equal(t, []string{"rate_limited"}, result.Errors)
}

func TestLLMMatcherLimiterFailsOpen(t *testing.T) {
	svc := &fakeLLMService{response: map[string]any{"can_fulfill": true, "confidence": 0.7}}
	m := NewLLMMatcher(svc).WithLimiter(&fakeLimiter{allowed: true, err: errors.New("redis down")})

	result := m.Process(context.Background(), &requirement.Component{}, facility.Facility{})
	require.Equal(t, 0.7, result.Fields["llm_assessment"].Confidence)
	require.Contains(t, result.Log[0], "rate_limiter_warning")
}

func TestLLMMatcherCancellation(t *testing.T) {
	svc := &fakeLLMService{response: map[string]any{"can_fulfill": true, "confidence": 1.0}}
	m := NewLLMMatcher(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := m.Process(ctx, &requirement.Component{}, facility.Facility{})
	require.Equal(t, []string{"cancelled"}, result.Errors)
}
