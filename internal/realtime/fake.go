package realtime

import (
	"context"
	"sync"

	"hr-portal/internal/events"

	"hr-portal/pkg/apperrors"
)

// FakeBus - шина в памяти для тестов. Ведёт себя как настоящая:
// приватные каналы может запрещать, Unsubscribe идемпотентна.
type FakeBus struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]*fakeSubscription

	// Каналы, на которые "шлюз" откажет в подписке.
	Forbidden map[string]bool
	// Credential, который считается невалидным.
	BadCredential string

	SubscribeCalls   []string
	UnsubscribeCalls []string
}

func NewFakeBus() *FakeBus {
	return &FakeBus{
		subs:      make(map[string]*fakeSubscription),
		Forbidden: make(map[string]bool),
	}
}

func (b *FakeBus) Connect(ctx context.Context, credential string) error {
	if b.BadCredential != "" && credential == b.BadCredential {
		return apperrors.NewAuthenticationError("credential отклонён")
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *FakeBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SubscribeCalls = append(b.SubscribeCalls, topic)
	if !b.connected {
		return nil, apperrors.NewTransportError(errNotConnected)
	}
	if b.Forbidden[topic] {
		return nil, apperrors.NewAuthorizationError(topic)
	}
	if existing, ok := b.subs[topic]; ok {
		return existing, nil
	}
	sub := &fakeSubscription{
		bus:      b,
		topic:    topic,
		handlers: make(map[events.Kind][]Handler),
	}
	b.subs[topic] = sub
	return sub, nil
}

func (b *FakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.subs = make(map[string]*fakeSubscription)
	return nil
}

// Emit доставляет событие подписчикам, как это сделал бы шлюз.
func (b *FakeBus) Emit(event events.Event) {
	b.mu.Lock()
	sub := b.subs[event.Topic]
	var handlers []Handler
	if sub != nil {
		handlers = append(handlers, sub.handlers[event.Kind]...)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

// ActiveTopics - снимок живых подписок (для проверок teardown).
func (b *FakeBus) ActiveTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	return topics
}

type fakeSubscription struct {
	bus      *FakeBus
	topic    string
	handlers map[events.Kind][]Handler
	done     bool
}

func (s *fakeSubscription) Topic() string { return s.topic }

func (s *fakeSubscription) On(kind events.Kind, fn Handler) {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.done {
		return
	}
	s.handlers[kind] = append(s.handlers[kind], fn)
}

func (s *fakeSubscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(s.bus.subs, s.topic)
	s.bus.UnsubscribeCalls = append(s.bus.UnsubscribeCalls, s.topic)
}
