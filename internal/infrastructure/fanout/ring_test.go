package fanout

import (
	"fmt"
	"testing"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func msg(i int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:   fmt.Sprintf("m%d", i),
		Body: fmt.Sprintf("message %d", i),
	}
}

func TestMessageRing_AppendAndLast(t *testing.T) {
	ring := NewMessageRing(10)

	for i := 0; i < 5; i++ {
		ring.Append(msg(i))
	}

	last := ring.Last(3)
	assert.Len(t, last, 3)
	assert.Equal(t, "m2", last[0].ID)
	assert.Equal(t, "m4", last[2].ID)
}

func TestMessageRing_LastMoreThanStored(t *testing.T) {
	ring := NewMessageRing(10)
	ring.Append(msg(0))
	ring.Append(msg(1))

	last := ring.Last(50)
	assert.Len(t, last, 2)
	assert.Equal(t, "m0", last[0].ID)
	assert.Equal(t, "m1", last[1].ID)
}

func TestMessageRing_EvictsOldestAtCapacity(t *testing.T) {
	ring := NewMessageRing(3)

	for i := 0; i < 5; i++ {
		ring.Append(msg(i))
	}

	assert.Equal(t, 3, ring.Len())
	last := ring.Last(3)
	assert.Equal(t, "m2", last[0].ID)
	assert.Equal(t, "m3", last[1].ID)
	assert.Equal(t, "m4", last[2].ID)
}

func TestMessageRing_HistoryWindowStaysOrdered(t *testing.T) {
	ring := NewMessageRing(domain.ChatRingCapacity)

	// Push well past capacity and check the history slice is the most
	// recent ChatHistorySize messages in send order.
	for i := 0; i < domain.ChatRingCapacity+100; i++ {
		ring.Append(msg(i))
	}

	history := ring.Last(domain.ChatHistorySize)
	assert.Len(t, history, domain.ChatHistorySize)
	for i := 1; i < len(history); i++ {
		assert.Equal(t,
			fmt.Sprintf("m%d", domain.ChatRingCapacity+100-domain.ChatHistorySize+i),
			history[i].ID,
		)
	}
}
