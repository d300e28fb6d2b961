// Package convo owns the client-side conversation list. The list is mutated
// only by stream events and explicit local actions (open thread, mark read);
// external readers get copies through Snapshot.
package convo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/event"
	"go.uber.org/zap"
)

// refetchTimeout bounds a full-list refetch triggered by an event for an
// unknown conversation.
const refetchTimeout = 15 * time.Second

// Refetcher pulls the full conversation list from the platform. Used only
// when a stream event references a conversation the store does not know:
// the event alone cannot materialize the new conversation's metadata.
type Refetcher interface {
	FetchConversations(ctx context.Context) ([]Conversation, error)
}

// Store is the ordered, keyed conversation collection.
//
// All mutation happens under one mutex and does no blocking work while
// holding it, so applies are atomic with respect to each other. A reconnect
// does not replay missed events; gaps surface as unknown conversations and
// are healed by the refetch path.
type Store struct {
	mu       sync.Mutex
	list     []*Conversation
	openRef  string
	fetching bool

	match   MatchFunc
	refetch Refetcher
	bus     *bus.Bus
	logger  *zap.Logger

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStore creates an empty store using DefaultMatch for the open-thread
// comparison.
func NewStore(refetch Refetcher, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		match:   DefaultMatch,
		refetch: refetch,
		bus:     b,
		logger:  logger,
		subs:    make(map[int]func()),
		ctx:     context.Background(),
	}
}

// SetMatchFunc overrides the open-thread comparison.
func (s *Store) SetMatchFunc(match MatchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = match
}

// Start subscribes the store to parsed stream events on the bus.
func (s *Store) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()
	ch, unsub := s.bus.Subscribe(bus.TopicStreamEvent, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if parsed, ok := evt.Payload.(event.Event); ok {
					s.Apply(parsed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop detaches the store from the bus.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Apply folds one stream event into the list. Safe to call concurrently;
// replaying an already-applied new_message is a no-op.
func (s *Store) Apply(evt event.Event) {
	switch e := evt.(type) {
	case event.NewMessage:
		s.applyNewMessage(e)
	case event.MessagesRead:
		s.applyMessagesRead(e)
	case event.Connected, event.WithdrawalRequested, event.WithdrawalProcessed:
		// Not conversation state; the dispatcher handles these.
	}
}

func (s *Store) applyNewMessage(e event.NewMessage) {
	s.mu.Lock()

	idx := s.indexOf(e.ConversationID)
	if idx < 0 {
		s.mu.Unlock()
		s.triggerRefetch()
		return
	}

	conv := s.list[idx]
	if conv.LastMessage != nil && *conv.LastMessage == e.Message {
		// Duplicate delivery (server echo of an optimistic send, or an
		// at-least-once redelivery): already applied.
		s.mu.Unlock()
		return
	}

	msg := e.Message
	conv.LastMessage = &msg
	conv.LastActivityAt = msg.CreatedAt
	if !s.match(conv.CounterpartRef, s.openRef) {
		conv.UnreadCount++
	}

	// Move to front regardless of previous position.
	s.list = append(s.list[:idx], s.list[idx+1:]...)
	s.list = append([]*Conversation{conv}, s.list...)

	s.mu.Unlock()
	s.changed(conv.ID)
}

func (s *Store) applyMessagesRead(e event.MessagesRead) {
	s.mu.Lock()
	idx := s.indexOf(e.ConversationID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.list[idx].UnreadCount = 0
	s.mu.Unlock()
	s.changed(e.ConversationID)
}

// MarkOpened resets the unread counter for a conversation, as when the user
// opens its thread.
func (s *Store) MarkOpened(conversationID string) {
	s.mu.Lock()
	idx := s.indexOf(conversationID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.list[idx].UnreadCount = 0
	s.mu.Unlock()
	s.changed(conversationID)
}

// SetOpenRef records which thread is currently displayed, identified by the
// counterpart reference from the route, and resets the unread counter of the
// conversation that matches it. Pass "" when no thread is open.
func (s *Store) SetOpenRef(ref string) {
	s.mu.Lock()
	s.openRef = ref
	var opened string
	if ref != "" {
		for _, conv := range s.list {
			if s.match(conv.CounterpartRef, ref) {
				conv.UnreadCount = 0
				opened = conv.ID
				break
			}
		}
	}
	s.mu.Unlock()
	if opened != "" {
		s.changed(opened)
	}
}

// ReplaceAll swaps in a freshly fetched conversation list. The input is
// deep-copied, de-duplicated by id (first occurrence wins), and sorted by
// last activity descending.
func (s *Store) ReplaceAll(convs []Conversation) {
	seen := make(map[string]bool, len(convs))
	next := make([]*Conversation, 0, len(convs))
	for i := range convs {
		if convs[i].ID == "" || seen[convs[i].ID] {
			continue
		}
		seen[convs[i].ID] = true
		copied := convs[i].clone()
		next = append(next, &copied)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].LastActivityAt.After(next[j].LastActivityAt)
	})

	s.mu.Lock()
	s.list = next
	s.mu.Unlock()
	s.changed("")
}

// Snapshot returns a deep copy of the list, sorted by last activity
// descending.
func (s *Store) Snapshot() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.list))
	for i, conv := range s.list {
		out[i] = conv.clone()
	}
	return out
}

// Subscribe registers a change listener invoked after every mutation.
// Returns an unsubscribe func.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(conversationID string) int {
	for i, conv := range s.list {
		if conv.ID == conversationID {
			return i
		}
	}
	return -1
}

// triggerRefetch pulls the full list in the background. Single-flight: a
// burst of events for unknown conversations causes one fetch.
func (s *Store) triggerRefetch() {
	if s.refetch == nil {
		return
	}
	s.mu.Lock()
	if s.fetching {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	base := s.ctx
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.fetching = false
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(base, refetchTimeout)
		defer cancel()

		convs, err := s.refetch.FetchConversations(ctx)
		if err != nil {
			s.logger.Warn("conversation refetch failed", zap.Error(err))
			return
		}
		s.ReplaceAll(convs)
	}()
}

// changed notifies subscribers and the bus after a mutation. Called without
// s.mu held.
func (s *Store) changed(conversationID string) {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Topic:   bus.TopicConversation + "changed",
			At:      time.Now(),
			Payload: conversationID,
		})
	}
}
