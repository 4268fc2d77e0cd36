package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookup_engine/internal/model"
)

func TestRetryQueue_OrdersByEligibleTime(t *testing.T) {
	q := newRetryQueue()
	q.Push(model.RetryEntry{Identifier: "+8613800000003", NextEligibleMs: 300})
	q.Push(model.RetryEntry{Identifier: "+8613800000001", NextEligibleMs: 100})
	q.Push(model.RetryEntry{Identifier: "+8613800000002", NextEligibleMs: 200})

	e, ok := q.PopEligible(300)
	require.True(t, ok)
	assert.Equal(t, "+8613800000001", e.Identifier)

	e, ok = q.PopEligible(300)
	require.True(t, ok)
	assert.Equal(t, "+8613800000002", e.Identifier)

	e, ok = q.PopEligible(300)
	require.True(t, ok)
	assert.Equal(t, "+8613800000003", e.Identifier)
}

func TestRetryQueue_FIFOWithinSameTime(t *testing.T) {
	q := newRetryQueue()
	for _, id := range []string{"+111111111", "+222222222", "+333333333"} {
		q.Push(model.RetryEntry{Identifier: id, NextEligibleMs: 500})
	}

	var got []string
	for {
		e, ok := q.PopEligible(500)
		if !ok {
			break
		}
		got = append(got, e.Identifier)
	}
	assert.Equal(t, []string{"+111111111", "+222222222", "+333333333"}, got)
}

func TestRetryQueue_PopRespectsEligibility(t *testing.T) {
	q := newRetryQueue()
	q.Push(model.RetryEntry{Identifier: "+111111111", NextEligibleMs: 1000})

	_, ok := q.PopEligible(999)
	assert.False(t, ok, "未到期不出队")
	assert.Equal(t, int64(1000), q.NextEligibleMs())

	e, ok := q.PopEligible(1000)
	require.True(t, ok)
	assert.Equal(t, "+111111111", e.Identifier)
	assert.Equal(t, int64(0), q.NextEligibleMs(), "空队列返回 0")
}

func TestRetryQueue_Drain(t *testing.T) {
	q := newRetryQueue()
	q.Push(model.RetryEntry{Identifier: "+111111111", NextEligibleMs: 2000})
	q.Push(model.RetryEntry{Identifier: "+222222222", NextEligibleMs: 1000})

	out := q.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, "+222222222", out[0].Identifier)
	assert.Equal(t, 0, q.Len())
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	ceil := 500 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, backoffDelay(base, ceil, 1))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(base, ceil, 2))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(base, ceil, 3))
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, ceil, 4), "超过上限后封顶")
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, ceil, 40), "大失败次数不溢出")
}
