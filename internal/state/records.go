package state

import (
	"sync"

	"github.com/danti/wastewatch/internal/model"
)

// Records is the food-waste record collection behind the approval table
// and the statistics views.
type Records struct {
	mu   sync.RWMutex
	list []model.FoodWasteRecord
}

// NewRecords returns an empty collection.
func NewRecords() *Records {
	return &Records{}
}

// SetAll replaces the collection with a snapshot from the server.
func (r *Records) SetAll(list []model.FoodWasteRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append([]model.FoodWasteRecord(nil), list...)
}

// Append adds a broadcast record at the end. No merge-by-id: a record
// delivered over the channel and also present in a refetched snapshot
// appears twice, matching the at-least-once channel semantics.
func (r *Records) Append(rec model.FoodWasteRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rec)
}

// Get returns the record with the given id.
func (r *Records) Get(id string) (model.FoodWasteRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.list {
		if rec.ID == id {
			return rec, true
		}
	}
	return model.FoodWasteRecord{}, false
}

// SetStatus updates the status of the record with the given id. The
// caller is responsible for having confirmed the transition with the
// server first; this only mirrors a confirmed change into local state.
func (r *Records) SetStatus(id string, status model.RecordStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for i := range r.list {
		if r.list[i].ID == id {
			r.list[i].Status = status
			changed = true
		}
	}
	return changed
}

// Remove deletes the record with the given id from local state.
func (r *Records) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.list[:0]
	for _, rec := range r.list {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	r.list = kept
}

// All returns a copy of the collection.
func (r *Records) All() []model.FoodWasteRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.FoodWasteRecord(nil), r.list...)
}

// Len returns the number of records.
func (r *Records) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// Clear empties the collection. Wired to the session reset hook.
func (r *Records) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = nil
}

// Transition predicates. These are the same checks that drive the
// disabled state of the approve/reject/reset buttons, so an action that
// would be disabled in the UI is also refused at the action level.

// CanApprove reports whether rec may move to APPROVED.
func CanApprove(rec model.FoodWasteRecord) bool {
	return rec.Status == model.StatusPending
}

// CanReject reports whether rec may move to REJECTED.
func CanReject(rec model.FoodWasteRecord) bool {
	return rec.Status == model.StatusPending
}

// CanReset reports whether rec may move back to PENDING.
func CanReset(rec model.FoodWasteRecord) bool {
	return rec.Status != model.StatusPending
}
