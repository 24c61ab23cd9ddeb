package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name()
	}
	return names
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(16, nil, rec.handle)

	now := time.Now()
	d.Publish(UserRegistered{UserID: "u1", Email: "a@x.com", At: now})
	d.Publish(UserLoggedIn{UserID: "u1", Email: "a@x.com", At: now})
	d.Close()

	require.Equal(t, []string{"user.registered", "user.logged_in"}, rec.names())
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_PublishAfterCloseIsNoop(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(4, nil, rec.handle)
	d.Close()

	assert.NotPanics(t, func() {
		d.Publish(UserLoggedIn{UserID: "u1", At: time.Now()})
	})
	assert.Empty(t, rec.names())
}

func TestDispatcher_NilReceiverIsSafe(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Publish(UserRegistered{UserID: "u1", At: time.Now()})
	})
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	d := NewDispatcher(1, nil, func(Event) {
		once.Do(func() { close(started) })
		<-block
	})

	d.Publish(UserLoggedIn{UserID: "a", At: time.Now()})
	<-started

	// handler is blocked; fill the single buffer slot, then overflow
	d.Publish(UserLoggedIn{UserID: "b", At: time.Now()})
	for i := 0; i < 10; i++ {
		d.Publish(UserLoggedIn{UserID: "c", At: time.Now()})
	}

	assert.NotZero(t, d.Dropped())
	close(block)
	d.Close()
}
