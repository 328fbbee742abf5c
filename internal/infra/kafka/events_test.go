package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/infra/config"
)

func decodeEnvelope(msg *sarama.ProducerMessage) (map[string]any, error) {
	raw, err := msg.Value.Encode()
	if err != nil {
		return nil, err
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

func newTestPublisher(t *testing.T, mock *mocks.AsyncProducer) *EventPublisher {
	t.Helper()
	producer := newProducer(mock, config.KafkaSettings{TopicPrefix: "octopis"}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if err := producer.Close(); err != nil {
			t.Fatalf("close producer: %v", err)
		}
	})
	return NewEventPublisher(producer, config.AppSettings{Name: "octopis", Env: "test"}, zaptest.NewLogger(t))
}

func TestPublishUserLoggedIn(t *testing.T) {
	mock := mocks.NewAsyncProducer(t, nil)
	mock.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "octopis.user.logged_in" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		envelope, err := decodeEnvelope(msg)
		if err != nil {
			return err
		}
		if envelope["event_id"] != "event-1" || envelope["event_type"] != EventUserLoggedIn {
			return fmt.Errorf("unexpected envelope %v", envelope)
		}
		if envelope["version"] != schemaVersion || envelope["user_id"] != "42" {
			return fmt.Errorf("unexpected envelope %v", envelope)
		}
		payload, ok := envelope["payload"].(map[string]any)
		if !ok || payload["client_ip"] != "1.2.3.4" {
			return fmt.Errorf("unexpected payload %v", envelope["payload"])
		}
		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok || metadata["service"] != "octopis" {
			return fmt.Errorf("unexpected metadata %v", envelope["metadata"])
		}
		return nil
	})

	publisher := newTestPublisher(t, mock)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	err := publisher.PublishUserLoggedIn(context.Background(), domain.UserLoggedInEvent{
		EventID:          "event-1",
		UserID:           "42",
		ClientIP:         "1.2.3.4",
		LoggedInAt:       at,
		RefreshExpiresAt: at.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("PublishUserLoggedIn returned error: %v", err)
	}
}

func TestPublishTokenRevokedGeneratesEventID(t *testing.T) {
	mock := mocks.NewAsyncProducer(t, nil)
	mock.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		envelope, err := decodeEnvelope(msg)
		if err != nil {
			return err
		}
		if id, _ := envelope["event_id"].(string); id == "" {
			return fmt.Errorf("expected generated event id")
		}
		if msg.Topic != "octopis.token.revoked" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		return nil
	})

	publisher := newTestPublisher(t, mock)
	if err := publisher.PublishTokenRevoked(context.Background(), domain.TokenRevokedEvent{UserID: "7", Reason: "logout"}); err != nil {
		t.Fatalf("PublishTokenRevoked returned error: %v", err)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	blocked := make(chan *sarama.ProducerMessage)
	producer := &Producer{
		producer: &blockingProducer{AsyncProducer: mocks.NewAsyncProducer(t, nil), input: blocked},
		logger:   zaptest.NewLogger(t),
		cfg:      config.KafkaSettings{TopicPrefix: "octopis"},
		done:     make(chan struct{}),
	}
	publisher := NewEventPublisher(producer, config.AppSettings{Name: "octopis"}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.PublishTokenRefreshed(ctx, domain.TokenRefreshedEvent{UserID: "1"}); err == nil {
		t.Fatalf("expected context error")
	}
}

type blockingProducer struct {
	*mocks.AsyncProducer
	input chan *sarama.ProducerMessage
}

func (b *blockingProducer) Input() chan<- *sarama.ProducerMessage { return b.input }

func TestTopicName(t *testing.T) {
	p := &Producer{cfg: config.KafkaSettings{TopicPrefix: "octopis"}}
	if got := p.TopicName("user.registered"); got != "octopis.user.registered" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := p.TopicName("octopis.user.registered"); got != "octopis.user.registered" {
		t.Fatalf("prefix must not be doubled, got %s", got)
	}
	p.cfg.TopicPrefix = ""
	if got := p.TopicName("token.revoked"); got != "token.revoked" {
		t.Fatalf("unexpected topic %s", got)
	}
}

func TestStubPublisherNeverFails(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.PublishUserRegistered(ctx, domain.UserRegisteredEvent{UserID: "1", Email: "a@b.io"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stub.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{UserID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stub.PublishTokenRefreshed(ctx, domain.TokenRefreshedEvent{UserID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stub.PublishTokenRevoked(ctx, domain.TokenRevokedEvent{UserID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProducerConfig(t *testing.T) {
	sc := producerConfig(config.KafkaSettings{TopicPrefix: "octopis"})

	if sc.ClientID != "octopis-auth" {
		t.Fatalf("unexpected client id %q", sc.ClientID)
	}
	if !sc.Producer.Return.Errors || sc.Producer.Return.Successes {
		t.Fatalf("expected errors only to be returned")
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("expected a valid sarama config, got %v", err)
	}
}
