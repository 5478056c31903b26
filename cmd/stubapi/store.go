package main

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/danti/wastewatch/internal/model"
)

// storedUser pairs the public profile with its password hash.
type storedUser struct {
	model.User
	PasswordHash string
}

// memoryStore holds all stub data behind one mutex. The stub exists so
// the client can run without the real backend; nothing here persists
// across restarts, and that is deliberate.
type memoryStore struct {
	mu            sync.Mutex
	users         map[string]*storedUser          // by id
	records       []*model.FoodWasteRecord        // insertion order
	notifications map[string][]model.Notification // by user id, newest first
	settings      map[string]model.Settings       // by user id
	nextNotifID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[string]*storedUser),
		notifications: make(map[string][]model.Notification),
		settings:      make(map[string]model.Settings),
		nextNotifID:   1,
	}
}

func (s *memoryStore) addUser(u model.User, passwordHash string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = &storedUser{User: u, PasswordHash: passwordHash}
	return u
}

func (s *memoryStore) userByID(id string) (*storedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	copied := *u
	return &copied, true
}

func (s *memoryStore) userByEmail(email string) (*storedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			copied := *u
			return &copied, true
		}
	}
	return nil, false
}

func (s *memoryStore) listUsers() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.User)
	}
	return out
}

func (s *memoryStore) setUserStatus(id string, status model.UserStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false
	}
	u.Status = status
	return true
}

func (s *memoryStore) deleteUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}

// adminIDs returns the ids of every administrator account — the
// recipients of "new submission" notifications.
func (s *memoryStore) adminIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, u := range s.users {
		if u.Role == model.RoleAdmin {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *memoryStore) addRecord(rec model.FoodWasteRecord) model.FoodWasteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = model.StatusPending
	copied := rec
	s.records = append(s.records, &copied)
	return rec
}

func (s *memoryStore) listRecords(ownerID string) []model.FoodWasteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FoodWasteRecord, 0, len(s.records))
	for _, rec := range s.records {
		if ownerID != "" && rec.User.ID != ownerID {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

func (s *memoryStore) getRecord(id string) (model.FoodWasteRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return *rec, true
		}
	}
	return model.FoodWasteRecord{}, false
}

// setRecordStatus applies an approval transition, enforcing the same
// guard the client does: PENDING may move to APPROVED/REJECTED, and
// anything not PENDING may move back to PENDING.
func (s *memoryStore) setRecordStatus(id string, status model.RecordStatus) (model.FoodWasteRecord, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}
		legal := false
		switch status {
		case model.StatusApproved, model.StatusRejected:
			legal = rec.Status == model.StatusPending
		case model.StatusPending:
			legal = rec.Status != model.StatusPending
		}
		if !legal {
			return *rec, true, false
		}
		rec.Status = status
		return *rec, true, true
	}
	return model.FoodWasteRecord{}, false, false
}

func (s *memoryStore) deleteRecord(id, ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID == id && rec.User.ID == ownerID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

func (s *memoryStore) addNotification(userID string, n model.Notification) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.nextNotifID
	s.nextNotifID++
	s.notifications[userID] = append([]model.Notification{n}, s.notifications[userID]...)
	return n
}

func (s *memoryStore) listNotifications(userID string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.notifications[userID]...)
}

func (s *memoryStore) markNotificationRead(userID string, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsRead = true
			return true
		}
	}
	return false
}

func (s *memoryStore) markAllNotificationsRead(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i := range list {
		list[i].IsRead = true
	}
}

func (s *memoryStore) getSettings(userID string) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[userID]; ok {
		return st
	}
	return model.Settings{
		UserID:             userID,
		EmailNotifications: true,
		PushNotifications:  true,
		Language:           "en",
		Currency:           "PHP",
	}
}

func (s *memoryStore) setSettings(userID string, st model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UserID = userID
	s.settings[userID] = st
}

// statistics aggregates records into the prepared arrays the report
// views chart. ownerID scopes the aggregate to one contributor; empty
// means global (and includes the per-contributor breakdown).
func (s *memoryStore) statistics(ownerID string) model.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := model.Statistics{
		ByCategory: make(map[string]float64),
		ByReason:   make(map[string]float64),
		ByMonth:    make(map[string]float64),
		ByDisposal: make(map[string]float64),
	}
	if ownerID == "" {
		stats.ByContributor = make(map[string]float64)
	}
	for _, rec := range s.records {
		if ownerID != "" && rec.User.ID != ownerID {
			continue
		}
		stats.RecordCount++
		stats.TotalQuantity += rec.Quantity
		stats.TotalCost += rec.Cost
		for _, c := range rec.FoodCategory {
			stats.ByCategory[c] += rec.Quantity
		}
		for _, r := range rec.ReasonForWaste {
			stats.ByReason[r] += rec.Quantity
		}
		if len(rec.DateOfWaste) >= 7 {
			stats.ByMonth[rec.DateOfWaste[:7]] += rec.Quantity
		}
		stats.ByDisposal[rec.DisposalMethod] += rec.Quantity
		if strings.EqualFold(rec.Preventable, "yes") {
			stats.PreventableKg += rec.Quantity
		}
		if stats.ByContributor != nil {
			stats.ByContributor[rec.User.Username] += rec.Quantity
		}
	}
	return stats
}
