package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/restwell/sleepagent/pkg/logger"
)

// ShortTermMemory keeps the recent, deduplicated, retention-windowed session
// history per user.
type ShortTermMemory struct {
	store         Store
	retentionDays int
	now           func() time.Time
}

func NewShortTermMemory(store Store, retentionDays int) *ShortTermMemory {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &ShortTermMemory{
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Save merges new sessions into the stored set and rewrites the document.
// One pass handles dedup (new sessions win on identity collision), retention
// eviction, and newest-first ordering. Save with no sessions is the defined
// way to force a retention sweep.
func (m *ShortTermMemory) Save(ctx context.Context, userID string, sessions []Session) error {
	existing, err := m.Sessions(ctx, userID)
	if err != nil {
		return err
	}

	byKey := make(map[string]Session, len(existing)+len(sessions))
	order := make([]string, 0, len(existing)+len(sessions))
	for _, s := range existing {
		key := s.IdentityKey()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = s
	}
	for _, s := range sessions {
		key := s.IdentityKey()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = s
	}

	cutoff := m.now().UTC().AddDate(0, 0, -m.retentionDays)
	kept := make([]Session, 0, len(byKey))
	for _, key := range order {
		s := byKey[key]
		date, ok := s.Date()
		if !ok || date.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		di, _ := kept[i].Date()
		dj, _ := kept[j].Date()
		return di.After(dj)
	})

	record := STMRecord{
		Sessions:    kept,
		LastUpdated: m.now().UTC(),
		Count:       len(kept),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode stm record: %w", err)
	}
	if err := m.store.Upsert(ctx, userID, KindSTM, payload); err != nil {
		return err
	}

	logger.DebugCF("memory", "STM saved", map[string]interface{}{
		"user_id": userID,
		"added":   len(sessions),
		"kept":    len(kept),
	})
	return nil
}

// Sessions returns the stored sessions, newest first. A missing document is
// an empty history, not an error.
func (m *ShortTermMemory) Sessions(ctx context.Context, userID string) ([]Session, error) {
	payload, found, err := m.store.Get(ctx, userID, KindSTM)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var record STMRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode stm record: %w", err)
	}
	return record.Sessions, nil
}

// RecentSessions returns sessions from the last N days.
func (m *ShortTermMemory) RecentSessions(ctx context.Context, userID string, days int) ([]Session, error) {
	sessions, err := m.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	cutoff := m.now().UTC().AddDate(0, 0, -days)
	var recent []Session
	for _, s := range sessions {
		if date, ok := s.Date(); ok && !date.Before(cutoff) {
			recent = append(recent, s)
		}
	}
	return recent, nil
}

// Sweep drops sessions that have aged out of the retention window.
func (m *ShortTermMemory) Sweep(ctx context.Context, userID string) error {
	return m.Save(ctx, userID, nil)
}
