// Package dashboard owns the lifecycle of one dashboard view: mount
// fetches the snapshot and opens the live channel, unmount tears the
// channel down, and the approval actions round-trip to the server
// before touching local state.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/danti/wastewatch/internal/api"
	"github.com/danti/wastewatch/internal/live"
	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
	"github.com/danti/wastewatch/internal/state"
)

var (
	// ErrNotAuthenticated means Mount was attempted without a valid
	// session; the caller should be behind the guard, so hitting this
	// is a programming error, not a user-visible condition.
	ErrNotAuthenticated = errors.New("dashboard: no valid session")
	// ErrNotMounted means an action ran on an unmounted view.
	ErrNotMounted = errors.New("dashboard: view not mounted")
	// ErrUnknownRecord means the record id is not in local state.
	ErrUnknownRecord = errors.New("dashboard: unknown record")
	// ErrInvalidTransition means the requested status change is not
	// allowed from the record's current status — the same condition
	// that disables the corresponding button.
	ErrInvalidTransition = errors.New("dashboard: transition not allowed")
)

// View is one mounted dashboard. Its two state containers are populated
// by the snapshot fetch and kept current by the live channel; both are
// safe to read at any time, including while either is in flight.
type View struct {
	Notifications *state.Notifications
	Records       *state.Records

	// OnNotification and OnRecord, when set before Mount, observe each
	// pushed event after it has been merged into state. They run on the
	// channel's read goroutine.
	OnNotification func(model.Notification)
	OnRecord       func(model.FoodWasteRecord)

	sess    *session.Manager
	client  *api.Client
	pushURL string
	log     *slog.Logger

	mu      sync.Mutex
	channel *live.Channel
	cancel  context.CancelFunc
	mounted bool
}

// New builds an unmounted view. logger may be nil.
func New(sess *session.Manager, client *api.Client, pushURL string, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		Notifications: state.NewNotifications(),
		Records:       state.NewRecords(),
		sess:          sess,
		client:        client,
		pushURL:       pushURL,
		log:           logger,
	}
}

// Mount opens the view: it verifies the session, opens the live channel
// subscribed to this user's topic, and fetches the snapshot. The
// snapshot and the channel's first event are not ordered relative to
// each other; the merge into state is safe either way.
//
// A failed channel dial fails the mount. A failed snapshot fetch does
// not: it is logged and the view stays mounted with whatever the
// channel delivers — no background error terminates the view.
func (v *View) Mount(ctx context.Context) error {
	userID, ok := v.sess.UserID()
	if !ok {
		return ErrNotAuthenticated
	}

	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return fmt.Errorf("dashboard: already mounted")
	}

	// Mount-scoped context: Unmount cancels it, so a REST response
	// arriving after unmount dies with the context instead of mutating
	// a dead view.
	viewCtx, cancel := context.WithCancel(ctx)

	ch, err := live.Dial(viewCtx, v.pushURL, userID, live.Handlers{
		OnNotification: func(n model.Notification) {
			v.Notifications.Prepend(n)
			if v.OnNotification != nil {
				v.OnNotification(n)
			}
		},
		OnRecord: func(rec model.FoodWasteRecord) {
			v.Records.Append(rec)
			if v.OnRecord != nil {
				v.OnRecord(rec)
			}
		},
	}, v.log)
	if err != nil {
		cancel()
		v.mu.Unlock()
		return err
	}
	v.channel = ch
	v.cancel = cancel
	v.mounted = true
	v.mu.Unlock()

	if records, err := v.client.Records(viewCtx); err != nil {
		v.log.Warn("record snapshot failed", "err", err)
	} else {
		v.Records.SetAll(records)
	}
	if notifs, err := v.client.Notifications(viewCtx); err != nil {
		v.log.Warn("notification snapshot failed", "err", err)
	} else {
		v.Notifications.SetAll(notifs)
	}
	return nil
}

// Unmount closes the view. The live channel is closed deterministically
// — not best-effort — and outstanding REST calls are cancelled. Safe to
// call repeatedly and on a never-mounted view.
func (v *View) Unmount() {
	v.mu.Lock()
	ch, cancel := v.channel, v.cancel
	v.channel, v.cancel = nil, nil
	v.mounted = false
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
		<-ch.Done()
	}
}

// Channel exposes the current live connection, or nil when unmounted.
func (v *View) Channel() *live.Channel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channel
}

func (v *View) isMounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

// transition runs one guarded status change: predicate first (the
// disabled-button check), then the server round-trip, and only after a
// successful response the local mutation. A failed call leaves local
// state exactly as it was.
func (v *View) transition(ctx context.Context, id string, to model.RecordStatus,
	allowed func(model.FoodWasteRecord) bool) error {
	if !v.isMounted() {
		return ErrNotMounted
	}
	rec, ok := v.Records.Get(id)
	if !ok {
		return ErrUnknownRecord
	}
	if !allowed(rec) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}
	if err := v.client.UpdateRecordStatus(ctx, id, to); err != nil {
		return err
	}
	v.Records.SetStatus(id, to)
	return nil
}

// Approve moves a PENDING record to APPROVED.
func (v *View) Approve(ctx context.Context, id string) error {
	return v.transition(ctx, id, model.StatusApproved, state.CanApprove)
}

// Reject moves a PENDING record to REJECTED.
func (v *View) Reject(ctx context.Context, id string) error {
	return v.transition(ctx, id, model.StatusRejected, state.CanReject)
}

// ResetToPending moves an APPROVED or REJECTED record back to PENDING.
func (v *View) ResetToPending(ctx context.Context, id string) error {
	return v.transition(ctx, id, model.StatusPending, state.CanReset)
}

// DeleteRecord removes a record. Deletion is contributor-initiated and
// unconditional on status, so there is no transition predicate.
func (v *View) DeleteRecord(ctx context.Context, id string) error {
	if !v.isMounted() {
		return ErrNotMounted
	}
	if _, ok := v.Records.Get(id); !ok {
		return ErrUnknownRecord
	}
	if err := v.client.DeleteRecord(ctx, id); err != nil {
		return err
	}
	v.Records.Remove(id)
	return nil
}

// SubmitRecord creates a new record and appends the server's copy (with
// its assigned id and PENDING status) to local state.
func (v *View) SubmitRecord(ctx context.Context, rec model.FoodWasteRecord) (model.FoodWasteRecord, error) {
	if !v.isMounted() {
		return model.FoodWasteRecord{}, ErrNotMounted
	}
	created, err := v.client.CreateRecord(ctx, rec)
	if err != nil {
		return model.FoodWasteRecord{}, err
	}
	v.Records.Append(created)
	return created, nil
}

// MarkRead flags one notification read, server first.
func (v *View) MarkRead(ctx context.Context, id int64) error {
	if !v.isMounted() {
		return ErrNotMounted
	}
	if err := v.client.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	v.Notifications.MarkRead(id)
	return nil
}

// MarkAllRead flags the whole feed read, server first.
func (v *View) MarkAllRead(ctx context.Context) error {
	if !v.isMounted() {
		return ErrNotMounted
	}
	if err := v.client.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	v.Notifications.MarkAllRead()
	return nil
}

// Reset drops all in-memory view state. Wire it to the session
// manager's reset hook so a logout leaves nothing behind.
func (v *View) Reset() {
	v.Unmount()
	v.Notifications.Clear()
	v.Records.Clear()
}
