package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// recordStore owns the single AppState. It is the only writer: every
// mutation goes through mutate, which applies the change under the lock and
// then saves the whole state. Readers get deep copies via View.
type recordStore struct {
	mu       sync.Mutex
	state    appState
	revision uint64
	blobs    blobStore
	metrics  *metricsManager
}

// loadRecordStore builds a store from whatever blobs holds under stateKey.
// A missing blob yields the default state. A corrupt blob also yields the
// default state, and the *StorageParseError is returned alongside the usable
// store so the caller can report it.
func loadRecordStore(ctx context.Context, blobs blobStore, metrics *metricsManager) (*recordStore, error) {
	s := &recordStore{blobs: blobs, metrics: metrics}
	st, err := readState(ctx, blobs)
	s.state = st
	return s, err
}

// readState loads and backfills the persisted state. On any error the
// returned state is the default one.
func readState(ctx context.Context, blobs blobStore) (appState, error) {
	raw, found, err := blobs.Get(ctx, stateKey)
	if err != nil {
		return defaultAppState(), fmt.Errorf("load state: %w", err)
	}
	if !found {
		return defaultAppState(), nil
	}
	st, skipped, err := decodeState([]byte(raw))
	if err != nil {
		return defaultAppState(), err
	}
	for _, k := range skipped {
		logrus.Warnf("[store] dropping record under invalid date key %q", k)
	}
	return st, nil
}

// decodeState parses an AppState blob, backfilling anything an older or
// partial blob left out. Records whose key is not a YYYY-MM-DD date are left
// out of the state and their keys returned, sorted, in skipped.
func decodeState(raw []byte) (st appState, skipped []string, err error) {
	var partial struct {
		Settings *appSettings          `json:"settings"`
		Records  map[string]*dayRecord `json:"records"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return appState{}, nil, &StorageParseError{Source: stateKey, Err: err}
	}

	st = defaultAppState()
	if partial.Settings != nil {
		st.Settings = *partial.Settings
		if st.Settings.TargetCalories <= 0 {
			st.Settings.TargetCalories = defaultTargetCalories
		}
	}
	for k, r := range partial.Records {
		if _, err := parseDateKey(k); err != nil {
			skipped = append(skipped, k)
			continue
		}
		if r == nil {
			r = newDayRecord()
		}
		if r.Meals == nil {
			r.Meals = []entry{}
		}
		if r.Exercises == nil {
			r.Exercises = []entry{}
		}
		st.Records[k] = r
	}
	sort.Strings(skipped)
	return st, skipped, nil
}

// View returns a deep copy of the state together with the revision it
// belongs to. The revision changes on every mutation.
func (s *recordStore) View() (appState, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), s.revision
}

// Record returns a copy of the record for date without creating it.
func (s *recordStore) Record(date string) (dayRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.Records[date]
	if !ok {
		return dayRecord{}, false
	}
	return r.clone(), true
}

// GetOrCreateRecord returns the record for date, inserting an empty one when
// absent. The insertion is not saved by itself; the next save includes it.
func (s *recordStore) GetOrCreateRecord(date string) dayRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(date).clone()
}

func (s *recordStore) recordLocked(date string) *dayRecord {
	r, ok := s.state.Records[date]
	if !ok {
		r = newDayRecord()
		s.state.Records[date] = r
		s.revision++
	}
	return r
}

// mutate applies fn to the live state and saves. A validation error from fn
// must leave the state untouched. A save failure keeps the mutation and
// comes back as *PersistError.
func (s *recordStore) mutate(ctx context.Context, op string, fn func(st *appState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(&s.state); err != nil {
		return err
	}
	s.revision++
	s.metrics.countMutation(op)

	if err := s.saveLocked(ctx); err != nil {
		logrus.Errorf("[store] %s applied but save failed: %v", op, err)
		s.metrics.countPersistFailure()
		return &PersistError{Err: err}
	}
	return nil
}

func (s *recordStore) saveLocked(ctx context.Context) error {
	b, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.blobs.Set(ctx, stateKey, string(b))
}

// Reload replaces the in-memory state with what is persisted. On failure
// the current state is kept.
func (s *recordStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *recordStore) reloadLocked(ctx context.Context) error {
	st, err := readState(ctx, s.blobs)
	if err != nil {
		return err
	}
	s.state = st
	s.revision++
	return nil
}

// Import overwrites every key in values and then reloads the state from
// persistence. The lock is held throughout, so no mutation can save the old
// state over the imported one. Every key is attempted even after a failure
// and the state is reloaded either way; failed writes come back as
// *PersistError.
func (s *recordStore) Import(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writeErr error
	for _, k := range sortedKeys(values) {
		writeErr = multierr.Append(writeErr, s.blobs.Set(ctx, k, values[k]))
	}
	if err := s.reloadLocked(ctx); err != nil {
		return multierr.Append(err, writeErr)
	}
	if writeErr != nil {
		return &PersistError{Err: writeErr}
	}
	return nil
}

/* ─── Mutations ──────────────────────────────────────────────────────── */

func (s *recordStore) AddEntry(ctx context.Context, date string, kind entryKind, e entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return validationErrorf("name is required")
	}
	if !kind.valid() {
		return validationErrorf("kind must be one of: meals, exercises")
	}
	return s.mutate(ctx, "add_"+string(kind), func(st *appState) error {
		list := s.recordLocked(date).list(kind)
		*list = append(*list, e)
		return nil
	})
}

// RemoveEntry deletes the entry at index, shifting later entries down.
func (s *recordStore) RemoveEntry(ctx context.Context, date string, kind entryKind, index int) error {
	if !kind.valid() {
		return validationErrorf("kind must be one of: meals, exercises")
	}
	return s.mutate(ctx, "remove_"+string(kind), func(st *appState) error {
		r, ok := st.Records[date]
		if !ok {
			return validationErrorf("index %d out of range: no record for %s", index, date)
		}
		list := r.list(kind)
		if index < 0 || index >= len(*list) {
			return validationErrorf("index %d out of range [0, %d)", index, len(*list))
		}
		*list = append((*list)[:index], (*list)[index+1:]...)
		return nil
	})
}

func (s *recordStore) SetWeight(ctx context.Context, date string, kg float64) error {
	if math.IsNaN(kg) || math.IsInf(kg, 0) || kg <= 0 {
		return validationErrorf("weight must be a positive number")
	}
	return s.mutate(ctx, "set_weight", func(st *appState) error {
		s.recordLocked(date).Weight = &kg
		return nil
	})
}

// AddWater adds a positive amount. Lowering the total is only possible via ResetWater.
func (s *recordStore) AddWater(ctx context.Context, date string, ml int) error {
	if ml <= 0 {
		return validationErrorf("water amount must be greater than 0")
	}
	return s.mutate(ctx, "add_water", func(st *appState) error {
		s.recordLocked(date).Water += ml
		return nil
	})
}

func (s *recordStore) ResetWater(ctx context.Context, date string) error {
	return s.mutate(ctx, "reset_water", func(st *appState) error {
		s.recordLocked(date).Water = 0
		return nil
	})
}

func (s *recordStore) SetTargetCalories(ctx context.Context, target int) error {
	if target <= 0 {
		return validationErrorf("target calories must be greater than 0")
	}
	return s.mutate(ctx, "set_target", func(st *appState) error {
		st.Settings.TargetCalories = target
		return nil
	})
}

// SetAIConfig stores the AI endpoint settings. cfg must already be normalised
// (see normalizeAIConfig).
func (s *recordStore) SetAIConfig(ctx context.Context, cfg aiConfig) error {
	return s.mutate(ctx, "set_ai_config", func(st *appState) error {
		st.Settings.AIConfig = &cfg
		return nil
	})
}
