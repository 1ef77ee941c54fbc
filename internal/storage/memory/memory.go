// Package memory provides an in-memory implementation of the engine's store
// ports. Used by tests and by ephemeral deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bursar/internal/core"
)

// Store holds everything in process memory behind one RWMutex. The ledger
// slice is append-only: entries are never mutated or removed.
type Store struct {
	mu        sync.RWMutex
	settings  map[string]core.FeeSetting
	overrides map[string]core.CustomStudentFee // key: studentID + "\x00" + feeID
	students  map[string]core.Student
	ledger    []core.Transaction
	nextPos   int64
	nextTxID  int64
}

func New() *Store {
	return &Store{
		settings:  make(map[string]core.FeeSetting),
		overrides: make(map[string]core.CustomStudentFee),
		students:  make(map[string]core.Student),
		nextPos:   1,
		nextTxID:  1,
	}
}

func overrideKey(studentID, feeID string) string {
	return studentID + "\x00" + feeID
}

// CreateFeeSetting implements services.FeeScheduleStore.
func (s *Store) CreateFeeSetting(_ context.Context, f core.FeeSetting) (core.FeeSetting, error) {
	if err := f.Validate(); err != nil {
		return core.FeeSetting{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.settings[f.FeeID]; exists {
		return core.FeeSetting{}, fmt.Errorf("%w: fee %s already exists", core.ErrConflict, f.FeeID)
	}
	f.Position = s.nextPos
	s.nextPos++
	s.settings[f.FeeID] = f
	return f, nil
}

func (s *Store) UpdateFeeSetting(_ context.Context, f core.FeeSetting) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.settings[f.FeeID]
	if !ok {
		return fmt.Errorf("%w: fee %s", core.ErrNotFound, f.FeeID)
	}
	f.Position = existing.Position
	s.settings[f.FeeID] = f
	return nil
}

// DeleteFeeSetting removes the definition only; ledger history stays.
func (s *Store) DeleteFeeSetting(_ context.Context, feeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settings[feeID]; !ok {
		return fmt.Errorf("%w: fee %s", core.ErrNotFound, feeID)
	}
	delete(s.settings, feeID)
	return nil
}

func (s *Store) GetFeeSetting(_ context.Context, feeID string) (core.FeeSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.settings[feeID]
	if !ok {
		return core.FeeSetting{}, fmt.Errorf("%w: fee %s", core.ErrNotFound, feeID)
	}
	return f, nil
}

func (s *Store) ListFeeSettings(_ context.Context) ([]core.FeeSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FeeSetting, 0, len(s.settings))
	for _, f := range s.settings {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// PutOverride implements services.OverrideStore. An override is only valid
// against a fee head that permits overrides.
func (s *Store) PutOverride(_ context.Context, o core.CustomStudentFee) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	setting, ok := s.settings[o.FeeID]
	if !ok {
		return fmt.Errorf("%w: fee %s", core.ErrNotFound, o.FeeID)
	}
	if !setting.CanOverride {
		return fmt.Errorf("%w: fee %s does not permit overrides", core.ErrValidation, o.FeeID)
	}
	s.overrides[overrideKey(o.StudentID, o.FeeID)] = o
	return nil
}

func (s *Store) GetOverride(_ context.Context, studentID, feeID string) (core.CustomStudentFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[overrideKey(studentID, feeID)]
	if !ok {
		return core.CustomStudentFee{}, fmt.Errorf("%w: override for student %s fee %s", core.ErrNotFound, studentID, feeID)
	}
	return o, nil
}

func (s *Store) ListOverrides(_ context.Context, studentID string) ([]core.CustomStudentFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CustomStudentFee
	for _, o := range s.overrides {
		if studentID == "" || o.StudentID == studentID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].FeeID < out[j].FeeID
	})
	return out, nil
}

// DeactivateOverride flips Active off, preserving the record for history.
func (s *Store) DeactivateOverride(_ context.Context, studentID, feeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey(studentID, feeID)
	o, ok := s.overrides[key]
	if !ok {
		return fmt.Errorf("%w: override for student %s fee %s", core.ErrNotFound, studentID, feeID)
	}
	o.Active = false
	s.overrides[key] = o
	return nil
}

// PutStudent implements services.StudentStore.
func (s *Store) PutStudent(_ context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.StudentID] = st
	return nil
}

func (s *Store) GetStudent(_ context.Context, studentID string) (core.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[studentID]
	if !ok {
		return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, studentID)
	}
	return st, nil
}

// Insert implements services.LedgerStore.
func (s *Store) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	inserted, err := s.InsertBatch(ctx, []core.Transaction{tx})
	if err != nil {
		return core.Transaction{}, err
	}
	return inserted[0], nil
}

// InsertBatch appends all entries or none. Ids are assigned monotonically.
func (s *Store) InsertBatch(_ context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.ID = s.nextTxID
		s.nextTxID++
		s.ledger = append(s.ledger, tx)
		out = append(out, tx)
	}
	return out, nil
}

// Query returns a student's ledger entries oldest first, optionally
// narrowed to one fee head.
func (s *Store) Query(_ context.Context, studentID, feeID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range s.ledger {
		if tx.StudentID != studentID {
			continue
		}
		if feeID != "" && tx.FeeID != feeID {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.ledger {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
}
