package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fleetdispatch/internal/notify"
)

// Message is the JSON envelope published to a user's delivery topic.
type Message struct {
	SentAt   time.Time       `json:"sent_at"`
	UserID   int64           `json:"user_id"`
	Text     string          `json:"text,omitempty"`
	Buttons  []notify.Button `json:"buttons,omitempty"`
	PhotoRef string          `json:"photo_ref,omitempty"`
	Caption  string          `json:"caption,omitempty"`
}

// Sender delivers user-addressed messages over MQTT, one topic per user.
// It returns errors instead of logging them; the fan-out decides how a
// failure is reported.
type Sender struct {
	client  mqtt.Client
	timeout time.Duration
}

func NewSender(client mqtt.Client, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Sender{client: client, timeout: timeout}
}

func (s *Sender) Send(ctx context.Context, userID int64, text string, buttons []notify.Button) error {
	return s.publish(ctx, MessageTopic(userID), Message{
		SentAt:  time.Now().UTC(),
		UserID:  userID,
		Text:    text,
		Buttons: buttons,
	})
}

func (s *Sender) SendPhoto(ctx context.Context, userID int64, photoRef, caption string) error {
	return s.publish(ctx, PhotoTopic(userID), Message{
		SentAt:   time.Now().UTC(),
		UserID:   userID,
		PhotoRef: photoRef,
		Caption:  caption,
	})
}

func (s *Sender) publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.client == nil || !s.client.IsConnected() {
		return errors.New("mqtt not connected")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	tok := s.client.Publish(topic, 1, false, b)
	if !tok.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish timeout topic=%s", topic)
	}
	return tok.Error()
}
