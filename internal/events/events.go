package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nvisust/authserver/types"
)

// Event types published on the user-events channel.
const (
	TypeUserRegistered = "user.registered"
	TypeUserCreated    = "user.created"
	TypeUserDeleted    = "user.deleted"
)

// Broker is the publish side of a message broker.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// UserEvent is the JSON payload emitted for user lifecycle changes.
type UserEvent struct {
	Type       string     `json:"type"`
	UserID     int        `json:"user_id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Role       types.Role `json:"role"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Publisher emits user lifecycle events. A nil Publisher is a no-op, so
// callers never guard for a disabled broker. Publish failures are logged
// and never surfaced to the request path.
type Publisher struct {
	broker  Broker
	channel string
}

func NewPublisher(broker Broker, channel string) *Publisher {
	return &Publisher{broker: broker, channel: channel}
}

// UserRegistered emits an event for a self-service registration.
func (p *Publisher) UserRegistered(ctx context.Context, user types.User) {
	p.publish(ctx, TypeUserRegistered, user)
}

// UserCreated emits an event for an admin-created account.
func (p *Publisher) UserCreated(ctx context.Context, user types.User) {
	p.publish(ctx, TypeUserCreated, user)
}

// UserDeleted emits an event after an account is removed.
func (p *Publisher) UserDeleted(ctx context.Context, user types.User) {
	p.publish(ctx, TypeUserDeleted, user)
}

// Close closes the underlying broker.
func (p *Publisher) Close() error {
	if p == nil || p.broker == nil {
		return nil
	}
	return p.broker.Close()
}

func (p *Publisher) publish(ctx context.Context, eventType string, user types.User) {
	if p == nil || p.broker == nil {
		return
	}
	event := UserEvent{
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("events: marshal %s for user %d: %v", eventType, user.ID, err)
		return
	}
	attrs := map[string]string{"event_type": eventType}
	if _, err := p.broker.Publish(ctx, p.channel, data, attrs); err != nil {
		log.Printf("events: publish %s for user %d: %v", eventType, user.ID, err)
	}
}
