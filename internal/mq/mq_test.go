package mq

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/domain"
)

func TestParsePayload(t *testing.T) {
	id := uuid.New()
	body, err := json.Marshal(&Message{
		ID:   "m-1",
		Type: MessageTypeDealDecided,
		Payload: DealDecidedPayload{
			DealID:   id,
			Decision: domain.DecisionReject,
			Source:   domain.SourceDeterministicOverride,
			Cycles:   2,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Так сообщение приходит из очереди
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}

	payload, err := ParsePayload[DealDecidedPayload](&msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.DealID != id || payload.Source != domain.SourceDeterministicOverride || payload.Cycles != 2 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := &Message{Payload: map[string]any{"deal_id": "not-a-uuid"}}

	if _, err := ParsePayload[DealNewPayload](msg); err == nil {
		t.Error("expected error for invalid uuid")
	}
}

func TestWakeHandler(t *testing.T) {
	wake := make(chan struct{}, 1)
	h := WakeHandler(wake)

	newMsg := &Delivery{Message: Message{Type: MessageTypeDealNew}}

	// Два сообщения подряд не блокируют обработчик
	for range 2 {
		if err := h(context.Background(), newMsg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(wake) != 1 {
		t.Errorf("expected one pending wake-up, got %d", len(wake))
	}

	<-wake
	if err := h(context.Background(), &Delivery{Message: Message{Type: MessageTypeDealDecided}}); err != nil {
		t.Fatal(err)
	}
	if len(wake) != 0 {
		t.Error("only deal.new must wake workers")
	}
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()

	for _, name := range []string{string(ExchangeDeals), string(QueueDealsNew), string(QueueDealsDecided), string(QueueDLQDeals)} {
		if !strings.Contains(info, name) {
			t.Errorf("topology info must mention %s", name)
		}
	}
}
