package events

import "time"

type Event interface {
	Name() string
	OccurredAt() time.Time
}

// Publisher is fire-and-forget: the auth flows never wait on subscribers.
type Publisher interface {
	Publish(event Event)
}

type UserRegistered struct {
	UserID string
	Email  string
	At     time.Time
}

func (UserRegistered) Name() string { return "user.registered" }

func (e UserRegistered) OccurredAt() time.Time { return e.At }

type UserLoggedIn struct {
	UserID string
	Email  string
	At     time.Time
}

func (UserLoggedIn) Name() string { return "user.logged_in" }

func (e UserLoggedIn) OccurredAt() time.Time { return e.At }
