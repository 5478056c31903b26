package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/danti/wastewatch/internal/api"
	"github.com/danti/wastewatch/internal/live"
	"github.com/danti/wastewatch/internal/localstore"
	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
)

// collaborator fakes both external boundaries at once: the REST API and
// the push endpoint, on one httptest server.
type collaborator struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conns         []*websocket.Conn
	records       []model.FoodWasteRecord
	notifications []model.Notification
	updateCode    int // status code for record-status updates; 0 = 200
	updateCalls   int

	// recordsGate, when set, blocks the records snapshot until closed —
	// used to force the push event to win the race against the snapshot.
	recordsGate chan struct{}
}

func newCollaborator(t *testing.T) (*collaborator, string, string) {
	t.Helper()
	c := &collaborator{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /records", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		gate := c.recordsGate
		c.mu.Unlock()
		if gate != nil {
			<-gate
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"data": c.records})
	})
	mux.HandleFunc("GET /notifications", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"data": c.notifications})
	})
	mux.HandleFunc("PUT /record/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.updateCalls++
		if c.updateCode != 0 {
			w.WriteHeader(c.updateCode)
			json.NewEncoder(w).Encode(map[string]string{"error": "update refused"})
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("PUT /notification/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("PUT /notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := c.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					conn.Close()
					return
				}
			}
		}()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return c, srv.URL, wsURL
}

func (c *collaborator) push(topic string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(map[string]string{"event": topic, "data": string(data)})
	if err != nil {
		c.t.Fatalf("marshal envelope: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.t.Fatalf("push: %v", err)
		}
	}
}

func mintToken(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	claims := session.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("dashboard-test-secret"))
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}
	return signed
}

func newView(t *testing.T, restURL, wsURL string) *View {
	t.Helper()
	sess := session.New(localstore.NewMemory(), nil)
	if err := sess.StoreCredential(mintToken(t, "admin-1", model.RoleAdmin)); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	client := api.New(restURL, sess, nil)
	return New(sess, client, wsURL, nil)
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestView_MountLoadsSnapshotAndMergesPush(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.records = []model.FoodWasteRecord{{ID: "r1", Status: model.StatusPending}}
	collab.notifications = []model.Notification{{ID: 1, Title: "older", IsRead: true}}

	v := newView(t, restURL, wsURL)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	if v.Records.Len() != 1 {
		t.Fatalf("records after snapshot: %d, want 1", v.Records.Len())
	}
	if got := v.Notifications.UnreadCount(); got != 0 {
		t.Fatalf("unread after snapshot: %d, want 0", got)
	}

	collab.push("notification-admin-1", model.Notification{
		ID: 2, Title: "New record", Description: "...", RouteRedirect: "/x",
	})
	waitUntil(t, "pushed notification", func() bool { return len(v.Notifications.All()) == 2 })

	all := v.Notifications.All()
	if all[0].ID != 2 {
		t.Errorf("pushed notification not at front: %+v", all[0])
	}
	if got := v.Notifications.UnreadCount(); got != 1 {
		t.Errorf("unread after push: %d, want 1", got)
	}

	collab.push("update-data", model.FoodWasteRecord{ID: "r2", Status: model.StatusPending})
	waitUntil(t, "pushed record", func() bool { return v.Records.Len() == 2 })
}

func TestView_PushBeforeSnapshotIsSafe(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.records = []model.FoodWasteRecord{{ID: "r1", Status: model.StatusPending}}
	gate := make(chan struct{})
	collab.recordsGate = gate

	v := newView(t, restURL, wsURL)

	mounted := make(chan error, 1)
	go func() { mounted <- v.Mount(context.Background()) }()

	// The channel is open while the snapshot is still blocked: deliver
	// a push event first.
	waitUntil(t, "websocket connection", func() bool {
		collab.mu.Lock()
		defer collab.mu.Unlock()
		return len(collab.conns) > 0
	})
	collab.push("update-data", model.FoodWasteRecord{ID: "r-pushed", Status: model.StatusPending})
	waitUntil(t, "early pushed record", func() bool { return v.Records.Len() == 1 })

	close(gate)
	if err := <-mounted; err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	// The snapshot replaced the collection; the early event is gone.
	// That is the documented no-reconciliation behavior: without
	// sequence numbers the merge cannot tell which side is newer.
	waitUntil(t, "snapshot", func() bool {
		if _, ok := v.Records.Get("r1"); ok {
			return true
		}
		return false
	})
}

func TestView_UnmountClosesChannel(t *testing.T) {
	_, restURL, wsURL := newCollaborator(t)

	for i := 0; i < 5; i++ {
		v := newView(t, restURL, wsURL)
		if err := v.Mount(context.Background()); err != nil {
			t.Fatalf("Mount cycle %d: %v", i, err)
		}
		ch := v.Channel()
		if ch == nil || ch.State() != live.StateOpen {
			t.Fatalf("cycle %d: channel not open after mount", i)
		}
		v.Unmount()
		if ch.State() != live.StateClosed {
			t.Fatalf("cycle %d: channel state %s after unmount, want closed", i, ch.State())
		}
		if v.Channel() != nil {
			t.Fatalf("cycle %d: view still holds a channel after unmount", i)
		}
	}
}

func TestView_UnmountIsIdempotent(t *testing.T) {
	_, restURL, wsURL := newCollaborator(t)
	v := newView(t, restURL, wsURL)
	v.Unmount() // never mounted; must not panic
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	v.Unmount()
	v.Unmount()
}

func TestView_MountRequiresSession(t *testing.T) {
	_, restURL, wsURL := newCollaborator(t)
	sess := session.New(localstore.NewMemory(), nil)
	v := New(sess, api.New(restURL, sess, nil), wsURL, nil)
	if err := v.Mount(context.Background()); err != ErrNotAuthenticated {
		t.Fatalf("Mount without session: got %v, want ErrNotAuthenticated", err)
	}
}

func TestView_ApprovalWorkflow(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.records = []model.FoodWasteRecord{{ID: "r1", Status: model.StatusPending}}

	v := newView(t, restURL, wsURL)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	ctx := context.Background()
	if err := v.Approve(ctx, "r1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	rec, _ := v.Records.Get("r1")
	if rec.Status != model.StatusApproved {
		t.Fatalf("status after approve: %s", rec.Status)
	}

	// Approving again matches the disabled button: refused locally,
	// without a server call.
	collab.mu.Lock()
	callsBefore := collab.updateCalls
	collab.mu.Unlock()
	if err := v.Approve(ctx, "r1"); err == nil || !strings.Contains(err.Error(), "transition not allowed") {
		t.Fatalf("second Approve: got %v, want transition error", err)
	}
	collab.mu.Lock()
	if collab.updateCalls != callsBefore {
		t.Error("refused transition still hit the server")
	}
	collab.mu.Unlock()

	// Reset is now enabled, and brings approve back.
	if err := v.ResetToPending(ctx, "r1"); err != nil {
		t.Fatalf("ResetToPending: %v", err)
	}
	rec, _ = v.Records.Get("r1")
	if rec.Status != model.StatusPending {
		t.Fatalf("status after reset: %s", rec.Status)
	}
	if err := v.Reject(ctx, "r1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if err := v.Approve(ctx, "missing"); err != ErrUnknownRecord {
		t.Errorf("Approve unknown id: got %v, want ErrUnknownRecord", err)
	}
}

func TestView_FailedUpdateLeavesStateUnchanged(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.records = []model.FoodWasteRecord{{ID: "r1", Status: model.StatusPending}}
	collab.updateCode = http.StatusConflict

	v := newView(t, restURL, wsURL)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	err := v.Approve(context.Background(), "r1")
	if err == nil {
		t.Fatal("Approve: expected error from refused update")
	}
	rec, _ := v.Records.Get("r1")
	if rec.Status != model.StatusPending {
		t.Errorf("status after failed approve: %s, want PENDING", rec.Status)
	}
}

func TestView_MarkReadRoundTrips(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.notifications = []model.Notification{
		{ID: 1, IsRead: false},
		{ID: 2, IsRead: false},
	}

	v := newView(t, restURL, wsURL)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	if err := v.MarkRead(context.Background(), 1); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got := v.Notifications.UnreadCount(); got != 1 {
		t.Errorf("unread after MarkRead: %d, want 1", got)
	}
	if err := v.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if got := v.Notifications.UnreadCount(); got != 0 {
		t.Errorf("unread after MarkAllRead: %d, want 0", got)
	}
}

func TestView_ResetClearsEverything(t *testing.T) {
	collab, restURL, wsURL := newCollaborator(t)
	collab.records = []model.FoodWasteRecord{{ID: "r1", Status: model.StatusPending}}
	collab.notifications = []model.Notification{{ID: 1}}

	v := newView(t, restURL, wsURL)
	if err := v.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	ch := v.Channel()

	v.Reset()
	if v.Records.Len() != 0 || len(v.Notifications.All()) != 0 {
		t.Error("Reset left state behind")
	}
	if ch.State() != live.StateClosed {
		t.Errorf("channel state after Reset: %s, want closed", ch.State())
	}
}
