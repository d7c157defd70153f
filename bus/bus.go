// Package bus is an external notification collaborator: subscription to
// document-change and index-change notifications, and publication of
// index-change notifications (BatchCompleted, IndexDemotedToIdle,
// IndexDemotedToDisabled, IndexPromotedFromIdle, IndexMarkedAsErrored).
// Subscribe returns a scoped handle; unsubscribe happens on dispose
// before any owned resources are released.
package bus

import "sync"

// IndexChangeKind enumerates the index-change notification types an
// Index façade can publish.
type IndexChangeKind int

const (
	BatchCompleted IndexChangeKind = iota
	IndexDemotedToIdle
	IndexDemotedToDisabled
	IndexPromotedFromIdle
	IndexMarkedAsErrored
)

// IndexChangeNotification is published whenever an index's priority or
// batch state changes in a way other indexes or the host may care
// about.
type IndexChangeNotification struct {
	Name string
	Type IndexChangeKind
}

// DocumentChangeNotification is published whenever a document or
// tombstone is written to a collection, so every index mapping that
// collection can raise its wake-event
type DocumentChangeNotification struct {
	Collection string
}

// Subscription is the scoped handle Subscribe returns. Unsubscribe is
// idempotent.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.indexSubs, s.id)
	delete(s.bus.docSubs, s.id)
}

// Bus fans out notifications to subscribers under a single mutex. One
// Bus is shared by every index in a host process.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	indexSubs map[uint64]func(IndexChangeNotification)
	docSubs   map[uint64]func(DocumentChangeNotification)
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		indexSubs: make(map[uint64]func(IndexChangeNotification)),
		docSubs:   make(map[uint64]func(DocumentChangeNotification)),
	}
}

// SubscribeIndexChanges registers fn to be called synchronously for
// every published IndexChangeNotification until the returned
// Subscription is unsubscribed.
func (b *Bus) SubscribeIndexChanges(fn func(IndexChangeNotification)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.indexSubs[id] = fn
	return &Subscription{bus: b, id: id}
}

// SubscribeDocumentChanges registers fn to be called synchronously for
// every published DocumentChangeNotification until the returned
// Subscription is unsubscribed.
func (b *Bus) SubscribeDocumentChanges(fn func(DocumentChangeNotification)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.docSubs[id] = fn
	return &Subscription{bus: b, id: id}
}

// PublishIndexChange notifies every current index-change subscriber.
// Subscribers run inline on the publisher's goroutine, the same way a
// Cond.Broadcast wakes every waiter inline — callers must not block
// inside their handler.
func (b *Bus) PublishIndexChange(n IndexChangeNotification) {
	b.mu.Lock()
	fns := make([]func(IndexChangeNotification), 0, len(b.indexSubs))
	for _, fn := range b.indexSubs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// PublishDocumentChange notifies every current document-change
// subscriber.
func (b *Bus) PublishDocumentChange(n DocumentChangeNotification) {
	b.mu.Lock()
	fns := make([]func(DocumentChangeNotification), 0, len(b.docSubs))
	for _, fn := range b.docSubs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}
