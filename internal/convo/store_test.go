package convo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/event"
)

func preview(text, sender string, at time.Time) event.MessagePreview {
	return event.MessagePreview{Text: text, SenderID: sender, Kind: event.KindText, CreatedAt: at}
}

func seeded(t *testing.T, convs ...Conversation) *Store {
	t.Helper()
	s := NewStore(nil, nil, nil)
	s.ReplaceAll(convs)
	return s
}

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestNewMessageUpdatesAndMovesToFront(t *testing.T) {
	s := seeded(t,
		Conversation{ID: "a", CounterpartRef: "acme-plumbing", LastActivityAt: t0},
		Conversation{ID: "b", CounterpartRef: "bella-cafe", LastActivityAt: t0.Add(time.Minute)},
	)

	msg := preview("see you at 5", "u9", t0.Add(2*time.Minute))
	s.Apply(event.NewMessage{ConversationID: "a", Message: msg})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d conversations, want 2", len(snap))
	}
	if snap[0].ID != "a" {
		t.Errorf("front = %q, want a", snap[0].ID)
	}
	if snap[0].LastMessage == nil || snap[0].LastMessage.Text != "see you at 5" {
		t.Errorf("lastMessage = %+v", snap[0].LastMessage)
	}
	if !snap[0].LastActivityAt.Equal(msg.CreatedAt) {
		t.Errorf("lastActivityAt = %v, want %v", snap[0].LastActivityAt, msg.CreatedAt)
	}
	if snap[0].UnreadCount != 1 {
		t.Errorf("unreadCount = %d, want 1", snap[0].UnreadCount)
	}
}

func TestSortedNoDuplicatesInvariant(t *testing.T) {
	s := seeded(t,
		Conversation{ID: "a", LastActivityAt: t0},
		Conversation{ID: "b", LastActivityAt: t0.Add(time.Second)},
		Conversation{ID: "c", LastActivityAt: t0.Add(2 * time.Second)},
	)

	// A pseudo-random burst of events over known conversations.
	ids := []string{"a", "c", "b", "a", "a", "b", "c", "c", "a", "b"}
	for i, id := range ids {
		s.Apply(event.NewMessage{
			ConversationID: id,
			Message:        preview("m", "u", t0.Add(time.Duration(i+10)*time.Second)),
		})
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d conversations, want 3", len(snap))
	}
	seen := map[string]bool{}
	for i, conv := range snap {
		if seen[conv.ID] {
			t.Errorf("duplicate id %q", conv.ID)
		}
		seen[conv.ID] = true
		if i > 0 && snap[i-1].LastActivityAt.Before(conv.LastActivityAt) {
			t.Errorf("list not sorted descending at index %d", i)
		}
	}
}

func TestReorderABAIsLastWriteWins(t *testing.T) {
	s := seeded(t,
		Conversation{ID: "a", LastActivityAt: t0},
		Conversation{ID: "b", LastActivityAt: t0},
	)

	s.Apply(event.NewMessage{ConversationID: "a", Message: preview("1", "u", t0.Add(1*time.Second))})
	s.Apply(event.NewMessage{ConversationID: "b", Message: preview("2", "u", t0.Add(2*time.Second))})
	third := preview("3", "u", t0.Add(3*time.Second))
	s.Apply(event.NewMessage{ConversationID: "a", Message: third})

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("order = %v", []string{snap[0].ID, snap[1].ID})
	}
	if !snap[0].LastActivityAt.Equal(third.CreatedAt) {
		t.Errorf("a.lastActivityAt = %v, want third event's %v", snap[0].LastActivityAt, third.CreatedAt)
	}
}

func TestOpenThreadDoesNotAccumulateUnread(t *testing.T) {
	s := seeded(t,
		Conversation{ID: "a", CounterpartRef: "acme-plumbing", LastActivityAt: t0},
		Conversation{ID: "b", CounterpartRef: "bella-cafe", LastActivityAt: t0},
	)
	s.SetOpenRef("acme-plumbing")

	for i := 0; i < 3; i++ {
		s.Apply(event.NewMessage{ConversationID: "a", Message: preview("x", "u", t0.Add(time.Duration(i+1)*time.Second))})
		s.Apply(event.NewMessage{ConversationID: "b", Message: preview("y", "u", t0.Add(time.Duration(i+1)*time.Second))})
	}

	snap := s.Snapshot()
	for _, conv := range snap {
		switch conv.ID {
		case "a":
			if conv.UnreadCount != 0 {
				t.Errorf("open conversation unread = %d, want 0", conv.UnreadCount)
			}
		case "b":
			if conv.UnreadCount != 3 {
				t.Errorf("background conversation unread = %d, want 3", conv.UnreadCount)
			}
		}
	}
}

func TestOpenThreadMatchesHandleForm(t *testing.T) {
	s := seeded(t, Conversation{ID: "a", CounterpartRef: "maria_s", LastActivityAt: t0})
	s.SetOpenRef("@maria_s")

	s.Apply(event.NewMessage{ConversationID: "a", Message: preview("hi", "u", t0.Add(time.Second))})
	if got := s.Snapshot()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 for at-prefixed open ref", got)
	}
}

func TestMarkOpenedThenReadsStaysZero(t *testing.T) {
	s := seeded(t, Conversation{ID: "a", CounterpartRef: "acme", LastActivityAt: t0, UnreadCount: 4})

	s.MarkOpened("a")
	for i := 0; i < 3; i++ {
		s.Apply(event.MessagesRead{ConversationID: "a"})
	}

	if got := s.Snapshot()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestMessagesReadDoesNotReorder(t *testing.T) {
	s := seeded(t,
		Conversation{ID: "a", LastActivityAt: t0.Add(time.Minute), UnreadCount: 2},
		Conversation{ID: "b", LastActivityAt: t0, UnreadCount: 1},
	)

	s.Apply(event.MessagesRead{ConversationID: "b"})

	snap := s.Snapshot()
	if snap[0].ID != "a" || snap[1].ID != "b" {
		t.Errorf("order changed: %v", []string{snap[0].ID, snap[1].ID})
	}
	if snap[1].UnreadCount != 0 {
		t.Errorf("b unread = %d, want 0", snap[1].UnreadCount)
	}
}

func TestDuplicateEchoIsNoOp(t *testing.T) {
	// A locally sent message comes back 200ms later as a stream echo; the
	// second apply must change nothing.
	s := seeded(t, Conversation{ID: "a", CounterpartRef: "acme", LastActivityAt: t0})
	s.SetOpenRef("acme")

	msg := preview("hello", "me", t0.Add(time.Second))
	s.Apply(event.NewMessage{ConversationID: "a", Message: msg})
	first := s.Snapshot()

	s.Apply(event.NewMessage{ConversationID: "a", Message: msg})
	second := s.Snapshot()

	if len(second) != 1 {
		t.Fatalf("got %d conversations, want 1", len(second))
	}
	if second[0].LastMessage.Text != "hello" {
		t.Errorf("lastMessage = %q", second[0].LastMessage.Text)
	}
	if first[0].UnreadCount != second[0].UnreadCount {
		t.Errorf("unread changed on duplicate: %d → %d", first[0].UnreadCount, second[0].UnreadCount)
	}
	if !first[0].LastActivityAt.Equal(second[0].LastActivityAt) {
		t.Error("lastActivityAt changed on duplicate")
	}
}

type fakeRefetcher struct {
	mu    sync.Mutex
	calls int
	convs []Conversation
	done  chan struct{}
}

func (f *fakeRefetcher) FetchConversations(_ context.Context) ([]Conversation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	defer func() {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}()
	return f.convs, nil
}

func TestUnknownConversationTriggersRefetch(t *testing.T) {
	fetched := Conversation{ID: "new", CounterpartRef: "new-biz", LastActivityAt: t0}
	f := &fakeRefetcher{convs: []Conversation{fetched}, done: make(chan struct{}, 1)}
	s := NewStore(f, nil, nil)

	s.Apply(event.NewMessage{ConversationID: "new", Message: preview("hi", "u", t0)})

	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("refetch never ran")
	}

	// ReplaceAll happens after the fetch returns; wait for it to land.
	deadline := time.Now().Add(time.Second)
	for {
		if snap := s.Snapshot(); len(snap) == 1 && snap[0].ID == "new" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refetched list never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReplaceAllSortsAndDedupes(t *testing.T) {
	s := NewStore(nil, nil, nil)
	s.ReplaceAll([]Conversation{
		{ID: "a", LastActivityAt: t0},
		{ID: "b", LastActivityAt: t0.Add(time.Minute)},
		{ID: "a", LastActivityAt: t0.Add(time.Hour)}, // duplicate id dropped
	})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d, want 2", len(snap))
	}
	if snap[0].ID != "b" || snap[1].ID != "a" {
		t.Errorf("order = %v", []string{snap[0].ID, snap[1].ID})
	}
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	s := seeded(t, Conversation{ID: "a", LastActivityAt: t0})

	var mu sync.Mutex
	notified := 0
	unsub := s.Subscribe(func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	s.Apply(event.NewMessage{ConversationID: "a", Message: preview("x", "u", t0.Add(time.Second))})
	mu.Lock()
	got := notified
	mu.Unlock()
	if got != 1 {
		t.Errorf("notified = %d, want 1", got)
	}

	unsub()
	s.MarkOpened("a")
	mu.Lock()
	got = notified
	mu.Unlock()
	if got != 1 {
		t.Errorf("notified after unsubscribe = %d, want 1", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := seeded(t, Conversation{ID: "a", LastActivityAt: t0, LastMessage: &event.MessagePreview{Text: "orig"}})

	snap := s.Snapshot()
	snap[0].UnreadCount = 99
	snap[0].LastMessage.Text = "mutated"

	again := s.Snapshot()
	if again[0].UnreadCount != 0 || again[0].LastMessage.Text != "orig" {
		t.Error("snapshot mutation leaked into the store")
	}
}

// Events can arrive through Apply while Start is still wiring the store up;
// the refetch path must see a usable context either way.
func TestStartConcurrentWithApply(t *testing.T) {
	fetched := Conversation{ID: "c9", CounterpartRef: "late-biz", LastActivityAt: t0}
	f := &fakeRefetcher{convs: []Conversation{fetched}, done: make(chan struct{}, 1)}
	s := NewStore(f, bus.New(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Apply(event.NewMessage{ConversationID: "c9", Message: preview("hi", "u", t0)})
		}
	}()
	s.Start(context.Background())
	wg.Wait()
	defer s.Stop()

	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("refetch never ran")
	}
}
