package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskUserBridgeRoundTrip(t *testing.T) {
	b := NewAskUserBridge()
	result := make(chan string, 1)
	go func() {
		answer, err := b.Ask(context.Background(), "tu_1", "continue?", []string{"yes", "no"})
		assert.NoError(t, err)
		result <- answer
	}()

	// Give the goroutine time to register before answering.
	deadline := time.After(time.Second)
	for {
		if b.Answer("tu_1", "yes") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Answer never found a pending question")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	select {
	case got := <-result:
		assert.Equal(t, "yes", got)
	case <-time.After(time.Second):
		t.Fatal("Ask did not return after Answer")
	}
}

func TestAskUserBridgeAnswerWithNoPendingReturnsFalse(t *testing.T) {
	b := NewAskUserBridge()
	assert.False(t, b.Answer("missing", "x"), "expected false for an unknown tool_use_id")
}

func TestAskUserBridgeCancelUnblocksAsk(t *testing.T) {
	b := NewAskUserBridge()
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() {
		_, err := b.Ask(ctx, "tu_2", "continue?", nil)
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.Error(t, err, "expected context cancellation error")
	case <-time.After(time.Second):
		t.Fatal("Ask did not return after cancel")
	}
}
