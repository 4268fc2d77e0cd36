package logbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SnapshotKeepsRecentMessages(t *testing.T) {
	b := New(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish(TypeLog, i)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 3, "环形缓冲只留最近的")
	assert.Equal(t, 2, snap[0].Data)
	assert.Equal(t, 4, snap[2].Data)
}

func TestBus_SubscribeReceivesPublished(t *testing.T) {
	b := New(10)
	defer b.Close()

	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Log("info", "hello", map[string]any{"k": "v"})

	msg := <-ch
	assert.Equal(t, TypeLog, msg.Type)
	data, ok := msg.Data.(LogData)
	require.True(t, ok)
	assert.Equal(t, "info", data.Level)
	assert.Equal(t, "hello", data.Msg)
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(10)
	defer b.Close()

	_, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(TypeResult, 1)
	b.Publish(TypeResult, 2) // 缓冲已满，应被丢弃而不是阻塞

	assert.Equal(t, uint64(1), b.Dropped())
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := New(10)
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	cancel() // 重复取消无害
}

func TestBus_CloseStopsEverything(t *testing.T) {
	b := New(10)
	ch, _ := b.Subscribe(1)
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	b.Publish(TypeLog, "after close") // 不 panic
	assert.Empty(t, b.Snapshot())

	ch2, cancel := b.Subscribe(1)
	_, open = <-ch2
	assert.False(t, open, "关闭后订阅直接得到已关闭通道")
	cancel()
}
