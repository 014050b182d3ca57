package hub

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
)

type fakeConn struct {
	mu         sync.Mutex
	frames     []models.ChatFrame
	failWrites bool
	closeCount int
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("write failed")
	}
	frame, ok := v.(models.ChatFrame)
	if !ok {
		return errors.New("unexpected payload type")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return nil
}

func (c *fakeConn) framesOfType(t string) []models.ChatFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ChatFrame
	for _, f := range c.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

type fakeMessageStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{nextID: 1, byID: make(map[int64]*models.Message)}
}

func (s *fakeMessageStore) Create(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.DoubtID = s.nextID
	s.nextID++
	m.CreatedAt = time.Now()
	stored := *m
	s.byID[m.DoubtID] = &stored
	return nil
}

func (s *fakeMessageStore) GetByID(_ context.Context, doubtID int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[doubtID]
	if !ok {
		return nil, errors.New("no rows")
	}
	copied := *m
	return &copied, nil
}

func (s *fakeMessageStore) Delete(_ context.Context, doubtID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, doubtID)
	return nil
}

type allowAllMembers struct{}

func (allowAllMembers) IsMemberOfGroup(context.Context, uuid.UUID, int64) (bool, error) {
	return true, nil
}

func newTestHub() (*Hub, *Registry, *fakeMessageStore) {
	registry := NewRegistry()
	store := newFakeMessageStore()
	h := NewHub(registry, store, middleware.NewJWTAuth("test-secret"), allowAllMembers{})
	return h, registry, store
}

func identity(role string) middleware.Identity {
	return middleware.Identity{UserID: uuid.New(), Name: "Test User", Role: role}
}

func sendAction(t *testing.T, h *Hub, s *Session, payload string) {
	t.Helper()
	h.HandleAction(context.Background(), s, []byte(payload))
}

func TestSendBroadcastsToAllSessionsIncludingSendersOtherTabs(t *testing.T) {
	h, registry, _ := newTestHub()

	user := identity("student")
	tab1 := &fakeConn{}
	tab2 := &fakeConn{}
	other := &fakeConn{}

	s1 := registry.Register(1, user, tab1)
	registry.Register(1, user, tab2)
	registry.Register(1, identity("lecturer"), other)

	sendAction(t, h, s1, `{"action":"send","message":"hello"}`)

	for name, c := range map[string]*fakeConn{"tab1": tab1, "tab2": tab2, "other": other} {
		got := c.framesOfType("message")
		if len(got) != 1 {
			t.Fatalf("%s: expected exactly 1 message frame, got %d", name, len(got))
		}
		if got[0].Message != "hello" {
			t.Errorf("%s: expected body %q, got %q", name, "hello", got[0].Message)
		}
		if got[0].DoubtID == 0 {
			t.Errorf("%s: broadcast frame missing authoritative doubt_id", name)
		}
	}
}

func TestSendWaitsForAuthoritativeIdentifier(t *testing.T) {
	h, registry, store := newTestHub()

	c := &fakeConn{}
	s := registry.Register(1, identity("student"), c)

	sendAction(t, h, s, `{"action":"send","message":"first"}`)
	sendAction(t, h, s, `{"action":"send","message":"second"}`)

	frames := c.framesOfType("message")
	if len(frames) != 2 {
		t.Fatalf("expected 2 message frames, got %d", len(frames))
	}
	if frames[0].DoubtID == frames[1].DoubtID {
		t.Fatalf("two sends must never share a doubt_id, both got %d", frames[0].DoubtID)
	}

	if _, err := store.GetByID(context.Background(), frames[0].DoubtID); err != nil {
		t.Errorf("broadcast identifier %d was never confirmed by the store", frames[0].DoubtID)
	}
}

func TestSendEmptyBodyRejectedWithoutBroadcast(t *testing.T) {
	h, registry, _ := newTestHub()

	sender := &fakeConn{}
	peer := &fakeConn{}
	s := registry.Register(1, identity("student"), sender)
	registry.Register(1, identity("student"), peer)

	sendAction(t, h, s, `{"action":"send","message":"   "}`)

	if got := sender.framesOfType("error"); len(got) != 1 || got[0].Code != "VALIDATION_ERROR" {
		t.Fatalf("expected one VALIDATION_ERROR frame for the sender, got %+v", got)
	}
	if got := peer.framesOfType("message"); len(got) != 0 {
		t.Errorf("peer must not receive a broadcast for a rejected send")
	}
}

func TestDeleteByNonAuthorRejectedWithoutBroadcast(t *testing.T) {
	h, registry, _ := newTestHub()

	author := &fakeConn{}
	intruder := &fakeConn{}
	sAuthor := registry.Register(1, identity("student"), author)
	sIntruder := registry.Register(1, identity("student"), intruder)

	sendAction(t, h, sAuthor, `{"action":"send","message":"mine"}`)
	doubtID := author.framesOfType("message")[0].DoubtID

	before := len(author.framesOfType("delete"))
	sendAction(t, h, sIntruder, `{"action":"delete","doubt_id":`+itoa(doubtID)+`}`)

	if got := intruder.framesOfType("error"); len(got) != 1 || got[0].Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN error frame for the intruder, got %+v", got)
	}
	if got := len(author.framesOfType("delete")); got != before {
		t.Errorf("non-author delete must produce no broadcast, author saw %d delete frames", got)
	}
}

func TestDeleteViaForeignGroupSessionRejected(t *testing.T) {
	h, registry, store := newTestHub()

	// Same user attached to two groups; the message lives in group 1.
	user := identity("student")
	group1Conn := &fakeConn{}
	group2Conn := &fakeConn{}
	peer := &fakeConn{}
	sGroup1 := registry.Register(1, user, group1Conn)
	sGroup2 := registry.Register(2, user, group2Conn)
	registry.Register(1, identity("lecturer"), peer)

	sendAction(t, h, sGroup1, `{"action":"send","message":"belongs to group 1"}`)
	doubtID := group1Conn.framesOfType("message")[0].DoubtID

	sendAction(t, h, sGroup2, `{"action":"delete","doubt_id":`+itoa(doubtID)+`}`)

	if got := group2Conn.framesOfType("error"); len(got) != 1 || got[0].Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN error frame on the foreign-group session, got %+v", got)
	}
	if got := len(peer.framesOfType("delete")); got != 0 {
		t.Errorf("owning group must not receive a tombstone for a rejected delete, saw %d frames", got)
	}
	if got := len(group2Conn.framesOfType("delete")); got != 0 {
		t.Errorf("foreign group must not receive a tombstone for a message it never held, saw %d frames", got)
	}
	if _, err := store.GetByID(context.Background(), doubtID); err != nil {
		t.Errorf("message must survive a delete attempted through the wrong group")
	}
}

func TestDeleteByAuthorBroadcastsToEveryone(t *testing.T) {
	h, registry, _ := newTestHub()

	author := &fakeConn{}
	peer := &fakeConn{}
	sAuthor := registry.Register(1, identity("student"), author)
	registry.Register(1, identity("lecturer"), peer)

	sendAction(t, h, sAuthor, `{"action":"send","message":"to be removed"}`)
	doubtID := author.framesOfType("message")[0].DoubtID

	sendAction(t, h, sAuthor, `{"action":"delete","doubt_id":`+itoa(doubtID)+`}`)

	for name, c := range map[string]*fakeConn{"author": author, "peer": peer} {
		got := c.framesOfType("delete")
		if len(got) != 1 {
			t.Fatalf("%s: expected 1 delete frame, got %d", name, len(got))
		}
		if got[0].DoubtID != doubtID {
			t.Errorf("%s: delete frame targets %d, want %d", name, got[0].DoubtID, doubtID)
		}
	}
}

func TestMalformedPayloadIsolatedToSender(t *testing.T) {
	h, registry, _ := newTestHub()

	bad := &fakeConn{}
	peer := &fakeConn{}
	sBad := registry.Register(1, identity("student"), bad)
	registry.Register(1, identity("student"), peer)

	sendAction(t, h, sBad, `{not json`)

	if got := bad.framesOfType("error"); len(got) != 1 {
		t.Fatalf("expected error frame for malformed payload, got %+v", got)
	}
	if len(peer.frames) != 0 {
		t.Errorf("malformed payload must not affect other sessions")
	}
}

func TestActionFromUnregisteredSessionRejected(t *testing.T) {
	h, registry, store := newTestHub()

	c := &fakeConn{}
	s := registry.Register(1, identity("student"), c)
	registry.Unregister(s)

	sendAction(t, h, s, `{"action":"send","message":"ghost"}`)

	if got := c.framesOfType("error"); len(got) != 1 || got[0].Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED error frame, got %+v", got)
	}
	if len(store.byID) != 0 {
		t.Errorf("unregistered sender must not persist messages")
	}
}

func TestFailedWriteDropsOnlyThatSession(t *testing.T) {
	h, registry, _ := newTestHub()

	healthy := &fakeConn{}
	broken := &fakeConn{failWrites: true}
	sHealthy := registry.Register(1, identity("student"), healthy)
	sBroken := registry.Register(1, identity("student"), broken)

	sendAction(t, h, sHealthy, `{"action":"send","message":"still here"}`)

	if got := healthy.framesOfType("message"); len(got) != 1 {
		t.Fatalf("healthy session must still receive the broadcast, got %d frames", len(got))
	}
	if registry.IsRegistered(sBroken) {
		t.Errorf("broken session should have been unregistered after a failed write")
	}
	if !registry.IsRegistered(sHealthy) {
		t.Errorf("healthy session must remain registered")
	}
}

func TestUnregisterClosesChannelExactlyOnce(t *testing.T) {
	registry := NewRegistry()

	c := &fakeConn{}
	s := registry.Register(1, identity("student"), c)

	registry.Unregister(s)
	registry.Unregister(s)

	if c.closeCount != 1 {
		t.Fatalf("expected underlying channel closed exactly once, got %d", c.closeCount)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
