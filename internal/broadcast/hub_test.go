package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(action Action, postID string) Event {
	return Event{Action: action, Post: models.PostSnapshot{ID: postID}}
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub(4, nil)
	h.Publish(context.Background(), event(ActionCreate, "p1"))

	assert.Equal(t, uint64(1), h.Published())
	assert.Equal(t, 0, h.Len())
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	h := NewHub(4, nil)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(context.Background(), event(ActionCreate, "p1"))

	assert.Equal(t, "p1", receive(t, a).Post.ID)
	assert.Equal(t, "p1", receive(t, b).Post.ID)
}

func TestSubscribersSeePublishOrder(t *testing.T) {
	h := NewHub(8, nil)
	sub := h.Subscribe()

	h.Publish(context.Background(), event(ActionCreate, "p1"))
	h.Publish(context.Background(), event(ActionUpdate, "p1"))
	h.Publish(context.Background(), event(ActionDelete, "p1"))

	assert.Equal(t, ActionCreate, receive(t, sub).Action)
	assert.Equal(t, ActionUpdate, receive(t, sub).Action)
	assert.Equal(t, ActionDelete, receive(t, sub).Action)
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := NewHub(4, nil)
	h.Publish(context.Background(), event(ActionCreate, "p1"))

	sub := h.Subscribe()
	h.Publish(context.Background(), event(ActionCreate, "p2"))

	assert.Equal(t, "p2", receive(t, sub).Post.ID)
}

func TestSlowSubscriberIsDroppedWithoutBlocking(t *testing.T) {
	h := NewHub(2, nil)
	slow := h.Subscribe()
	fast := h.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			h.Publish(context.Background(), event(ActionCreate, fmt.Sprintf("p%d", i)))
			<-fast.Events()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publisher blocked on a stalled subscriber")
	}

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, uint64(1), h.Dropped())

	// Buffered events are still readable, then the channel reports closure.
	assert.Equal(t, "p0", receive(t, slow).Post.ID)
	assert.Equal(t, "p1", receive(t, slow).Post.ID)
	_, ok := <-slow.Events()
	assert.False(t, ok)
}

func TestCloseSubscriptionIsIdempotent(t *testing.T) {
	h := NewHub(4, nil)
	sub := h.Subscribe()

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())

	h.Publish(context.Background(), event(ActionCreate, "p1"))
}

func TestHubCloseEndsAllSubscriptions(t *testing.T) {
	h := NewHub(4, nil)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Close()
	h.Close()

	for _, sub := range []*Subscription{a, b} {
		_, ok := <-sub.Events()
		assert.False(t, ok)
		sub.Close()
	}

	late := h.Subscribe()
	_, ok := <-late.Events()
	assert.False(t, ok)

	h.Publish(context.Background(), event(ActionCreate, "p1"))
	assert.Equal(t, uint64(0), h.Published())
}

func TestConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	h := NewHub(64, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := h.Subscribe()
				sub.Close()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Publish(ctx, event(ActionUpdate, fmt.Sprintf("p%d", i)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, uint64(400), h.Published())
}
