package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeadLetters struct {
	pending int
	healthy bool
}

func (f *fakeDeadLetters) PendingDeadLetters() int { return f.pending }

func (f *fakeDeadLetters) Redrive(limit int) int {
	if !f.healthy {
		return 0
	}
	n := f.pending
	if limit > 0 && limit < n {
		n = limit
	}
	f.pending -= n
	return n
}

type gaugeFunc func(int)

func (g gaugeFunc) SetDeadLetters(n int) { g(n) }

func TestRedriveDeadLettersJob(t *testing.T) {
	var reported []int
	source := &fakeDeadLetters{pending: 5}
	job := NewRedriveDeadLettersJob(source, gaugeFunc(func(n int) { reported = append(reported, n) }), 3, nil)
	ctx := context.Background()

	assert.Error(t, job.Run(ctx), "nothing could be handled")

	source.healthy = true
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 2, source.pending)
	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	assert.Equal(t, []int{5, 2, 0, 0}, reported)
}

func TestRedriveDeadLettersJob_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewRedriveDeadLettersJob(&fakeDeadLetters{pending: 1, healthy: true}, nil, 0, nil)
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
