package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/resilience"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) Name() string { return "mock" }

const jundeeResponse = `RECORD
deposit: Jundee
category: Indicated
tonnage: 10.5 Mt
grade: 1.2 g/t
END`

func newTestAdapter(t *testing.T, gen Generator) *Adapter {
	t.Helper()
	tmpl, err := NewTemplate(DefaultTemplate)
	require.NoError(t, err)
	return NewAdapter(gen, tmpl, newTestParser(), Options{
		Timeout:     time.Second,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})
}

func TestResolve_Disabled(t *testing.T) {
	a := newTestAdapter(t, nil)
	assert.False(t, a.Enabled())
	assert.False(t, a.Available())

	res := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Equal(t, ReasonDisabled, res.Reason)
	assert.Empty(t, res.Records)
}

func TestResolve_Resolved(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "02812345") && strings.Contains(p, testFragment.Text)
	})).Return(jundeeResponse, nil).Once()

	a := newTestAdapter(t, gen)
	res := a.Resolve(context.Background(), testFragment)

	require.True(t, res.Resolved())
	require.Len(t, res.Records, 1)
	assert.Equal(t, model.SourceLLM, res.Records[0].Source)
	assert.InDelta(t, 405.09, res.Records[0].ContainedMetal, 0.01)
	assert.Equal(t, 1, a.Stats().Calls)
	gen.AssertExpectations(t)
}

func TestResolve_MissingFieldIsUnresolved(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("RECORD\ndeposit: Jundee\ncategory: Indicated\ntonnage: 10.5 Mt\nEND", nil).Once()

	a := newTestAdapter(t, gen)
	res := a.Resolve(context.Background(), testFragment)

	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Equal(t, ReasonMalformed, res.Reason)
	assert.Contains(t, res.Detail, "missing grade")
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, a.Stats().Malformed)
	// Malformed responses are not retried.
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestResolve_TransientRetriedOnce(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return(jundeeResponse, nil).Once()

	a := newTestAdapter(t, gen)
	res := a.Resolve(context.Background(), testFragment)

	assert.True(t, res.Resolved())
	assert.Equal(t, 2, a.Stats().Calls)
	assert.True(t, a.Available())
	gen.AssertExpectations(t)
}

func TestResolve_UnreachableOpensCircuit(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"))

	a := newTestAdapter(t, gen)
	first := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, StatusUnresolved, first.Status)
	assert.Equal(t, ReasonCallFailed, first.Reason)
	assert.False(t, a.Available())

	second := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, StatusUnresolved, second.Status)
	assert.Equal(t, ReasonUnavailable, second.Reason)

	// Two attempts for the first fragment, none for the second.
	gen.AssertNumberOfCalls(t, "Generate", 2)
	stats := a.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Rejected)
}

func TestResolve_AuthFailureNotRetried(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", resilience.ClassifyStatus(errors.New("invalid x-api-key"), 401)).Once()

	a := newTestAdapter(t, gen)
	res := a.Resolve(context.Background(), testFragment)

	assert.Equal(t, ReasonCallFailed, res.Reason)
	assert.False(t, a.Available())
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestResolve_BadRequestKeepsCircuitClosed(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", resilience.ClassifyStatus(errors.New("prompt too long"), 400)).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return("NONE", nil).Once()

	a := newTestAdapter(t, gen)
	res := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, ReasonCallFailed, res.Reason)
	assert.True(t, a.Available())

	res = a.Resolve(context.Background(), testFragment)
	assert.True(t, res.Resolved())
	assert.Empty(t, res.Records)
}

func TestResolve_AttemptTimeout(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	tmpl, err := NewTemplate(DefaultTemplate)
	require.NoError(t, err)
	a := NewAdapter(gen, tmpl, newTestParser(), Options{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 1,
	})

	res := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, ReasonCallFailed, res.Reason)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestResolve_ExhaustedTimeoutAffectsOnlyItsFragment(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", resilience.NewTransientError(context.DeadlineExceeded, 0)).Twice()
	gen.On("Generate", mock.Anything, mock.Anything).Return(jundeeResponse, nil).Once()

	a := newTestAdapter(t, gen)
	first := a.Resolve(context.Background(), testFragment)
	assert.Equal(t, StatusUnresolved, first.Status)
	assert.Equal(t, ReasonCallFailed, first.Reason)
	assert.True(t, a.Available())

	second := a.Resolve(context.Background(), testFragment)
	require.True(t, second.Resolved())
	require.Len(t, second.Records, 1)

	gen.AssertNumberOfCalls(t, "Generate", 3)
	assert.Zero(t, a.Stats().Rejected)
}

func TestResolve_RateLimitedKeepsCircuitClosed(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", resilience.ClassifyStatus(errors.New("rate limited"), 429)).Twice()
	gen.On("Generate", mock.Anything, mock.Anything).Return("NONE", nil).Once()

	a := newTestAdapter(t, gen)
	assert.Equal(t, ReasonCallFailed, a.Resolve(context.Background(), testFragment).Reason)
	assert.True(t, a.Available())
	assert.True(t, a.Resolve(context.Background(), testFragment).Resolved())
	gen.AssertExpectations(t)
}
