package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			loyaltyEvent(t, "event-one", 0),
			loyaltyEvent(t, "event-two", 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, nil)

	claimed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if claimed != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", claimed)
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("unexpected failed rows: %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
}

func TestPublishCarriesEnvelopeAttributes(t *testing.T) {
	event := loyaltyEvent(t, "evt-123", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_id"] != "evt-123" {
		t.Fatalf("unexpected event_id %q", attrs["event_id"])
	}
	if attrs["event_type"] != string(enums.EventQRCodeRedeemed) {
		t.Fatalf("unexpected event_type %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id %q", attrs["aggregate_id"])
	}
}

func TestOrderedDeliveryKeysByAggregateAndResumesOnFailure(t *testing.T) {
	failed := loyaltyEvent(t, "evt-fail", 0)
	ok := loyaltyEvent(t, "evt-ok", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{failed, ok}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	service := newTestServiceWithPubSub(t, repo, pub, nil, config.PubSubConfig{LoyaltyTopic: "loyalty-topic", OrderedDelivery: true})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if pub.messages[0].OrderingKey != failed.AggregateID.String() || pub.messages[1].OrderingKey != ok.AggregateID.String() {
		t.Fatalf("expected aggregate ordering keys, got %q and %q", pub.messages[0].OrderingKey, pub.messages[1].OrderingKey)
	}
	if len(pub.resumed) != 1 || pub.resumed[0] != failed.AggregateID.String() {
		t.Fatalf("expected failed key resumed, got %v", pub.resumed)
	}
}

func TestUnorderedDeliveryLeavesKeyEmpty(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{loyaltyEvent(t, "evt", 0)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("x")}}}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if pub.messages[0].OrderingKey != "" || len(pub.resumed) != 0 {
		t.Fatalf("unordered publish must not set or resume keys")
	}
}

func TestUndecodableEnvelopeIsMarkedFailed(t *testing.T) {
	event := loyaltyEvent(t, "broken", 0)
	event.Payload = json.RawMessage(`not-json`)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("broken payload should not be published")
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected broken row marked failed")
	}
}

func TestProcessBatchSkipsWhenLockHeld(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{loyaltyEvent(t, "held", 0)}}
	lock := &fakeLock{held: true}
	service := newTestService(t, repo, &fakePublisher{}, lock)

	claimed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if claimed != 0 || repo.fetches != 0 {
		t.Fatalf("expected no work while lock is held")
	}
}

func TestProcessBatchReleasesLock(t *testing.T) {
	repo := &fakeRepo{}
	lock := &fakeLock{}
	service := newTestService(t, repo, &fakePublisher{}, lock)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release, got %d", lock.releases)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, lock batchLock) *Service {
	t.Helper()
	return newTestServiceWithPubSub(t, repo, pub, lock, config.PubSubConfig{LoyaltyTopic: "loyalty-topic"})
}

func newTestServiceWithPubSub(t *testing.T, repo outboxRepository, pub publisher, lock batchLock, ps config.PubSubConfig) *Service {
	t.Helper()
	cfg := &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5},
		PubSub: ps,
	}
	params := ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		Publisher:  pub,
	}
	if lock != nil {
		params.Lock = lock
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func loyaltyEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventQRCodeRedeemed,
		AggregateType: enums.AggregateQRCode,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetches   int
}

func (f *fakeRepo) FetchUnpublished(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	f.fetches++
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) LoyaltyPublisher() *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	resumed  []string
}

func (f *fakePublisher) ResumePublish(key string) {
	f.resumed = append(f.resumed, key)
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) { return !f.held, nil }

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	return nil
}
