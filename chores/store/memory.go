// Package store provides an in-memory chores.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/chore-engine/chores"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a chores.Store backed by maps. WithTx holds the lock for the
// whole transaction and restores a snapshot if fn fails, so transactions are
// fully serialized.
type Memory struct {
	mu sync.Mutex
	s  state
}

type state struct {
	principals []chores.Principal // insertion order
	tasks      []chores.Task      // insertion order
	entries    []chores.LedgerEntry
}

var (
	_ chores.Store = (*Memory)(nil)
	_ chores.Store = (*txView)(nil)
)

func NewMemory() *Memory {
	return &Memory{}
}

// WithTx executes fn within a transaction, rolling back on error.
func (m *Memory) WithTx(ctx context.Context, fn func(chores.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&txView{s: &m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Memory) ListPrincipals(_ context.Context) ([]chores.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.listPrincipals(), nil
}

func (m *Memory) GetPrincipal(_ context.Context, id chores.PrincipalID) (*chores.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.getPrincipal(id), nil
}

func (m *Memory) InsertPrincipal(_ context.Context, p chores.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.principals = append(m.s.principals, p)
	return nil
}

func (m *Memory) AddToBalance(_ context.Context, id chores.PrincipalID, delta int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.addToBalance(id, delta, at)
}

func (m *Memory) SetSubscription(_ context.Context, id chores.PrincipalID, sub *chores.Subscription, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.setSubscription(id, sub, at)
}

func (m *Memory) ClearSubscription(_ context.Context, id chores.PrincipalID, endpoint string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.clearSubscription(id, endpoint, at), nil
}

func (m *Memory) GetTask(_ context.Context, id chores.TaskID) (*chores.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.getTask(id), nil
}

func (m *Memory) ListTasksByOwner(_ context.Context, owner chores.PrincipalID) ([]chores.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.listTasksByOwner(owner), nil
}

func (m *Memory) ListTasks(_ context.Context) ([]chores.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.listTasks(), nil
}

func (m *Memory) InsertTask(_ context.Context, t chores.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.tasks = append(m.s.tasks, copyTask(t))
	return nil
}

func (m *Memory) MarkTaskCompleted(_ context.Context, id chores.TaskID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.markTaskCompleted(id, at), nil
}

func (m *Memory) DeleteTask(_ context.Context, id chores.TaskID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.deleteTask(id), nil
}

func (m *Memory) AppendEntry(_ context.Context, e chores.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.entries = append(m.s.entries, e)
	return nil
}

func (m *Memory) ListEntries(_ context.Context, principal chores.PrincipalID) ([]chores.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.listEntries(principal), nil
}

func (m *Memory) SumEntries(_ context.Context, principal chores.PrincipalID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.sumEntries(principal), nil
}

func (m *Memory) Reset(_ context.Context) (chores.ResetStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.reset(), nil
}

// =============================================================================
// TRANSACTIONAL VIEW - same operations, lock already held by WithTx
// =============================================================================

type txView struct {
	s *state
}

// WithTx joins the running transaction.
func (tv *txView) WithTx(_ context.Context, fn func(chores.Store) error) error {
	return fn(tv)
}

func (tv *txView) ListPrincipals(_ context.Context) ([]chores.Principal, error) {
	return tv.s.listPrincipals(), nil
}

func (tv *txView) GetPrincipal(_ context.Context, id chores.PrincipalID) (*chores.Principal, error) {
	return tv.s.getPrincipal(id), nil
}

func (tv *txView) InsertPrincipal(_ context.Context, p chores.Principal) error {
	tv.s.principals = append(tv.s.principals, p)
	return nil
}

func (tv *txView) AddToBalance(_ context.Context, id chores.PrincipalID, delta int64, at time.Time) (int64, error) {
	return tv.s.addToBalance(id, delta, at)
}

func (tv *txView) SetSubscription(_ context.Context, id chores.PrincipalID, sub *chores.Subscription, at time.Time) error {
	return tv.s.setSubscription(id, sub, at)
}

func (tv *txView) ClearSubscription(_ context.Context, id chores.PrincipalID, endpoint string, at time.Time) (bool, error) {
	return tv.s.clearSubscription(id, endpoint, at), nil
}

func (tv *txView) GetTask(_ context.Context, id chores.TaskID) (*chores.Task, error) {
	return tv.s.getTask(id), nil
}

func (tv *txView) ListTasksByOwner(_ context.Context, owner chores.PrincipalID) ([]chores.Task, error) {
	return tv.s.listTasksByOwner(owner), nil
}

func (tv *txView) ListTasks(_ context.Context) ([]chores.Task, error) {
	return tv.s.listTasks(), nil
}

func (tv *txView) InsertTask(_ context.Context, t chores.Task) error {
	tv.s.tasks = append(tv.s.tasks, copyTask(t))
	return nil
}

func (tv *txView) MarkTaskCompleted(_ context.Context, id chores.TaskID, at time.Time) (bool, error) {
	return tv.s.markTaskCompleted(id, at), nil
}

func (tv *txView) DeleteTask(_ context.Context, id chores.TaskID) (bool, error) {
	return tv.s.deleteTask(id), nil
}

func (tv *txView) AppendEntry(_ context.Context, e chores.LedgerEntry) error {
	tv.s.entries = append(tv.s.entries, e)
	return nil
}

func (tv *txView) ListEntries(_ context.Context, principal chores.PrincipalID) ([]chores.LedgerEntry, error) {
	return tv.s.listEntries(principal), nil
}

func (tv *txView) SumEntries(_ context.Context, principal chores.PrincipalID) (int64, error) {
	return tv.s.sumEntries(principal), nil
}

func (tv *txView) Reset(_ context.Context) (chores.ResetStats, error) {
	return tv.s.reset(), nil
}

// =============================================================================
// STATE - unlocked operations shared by Memory and txView
// =============================================================================

func (s *state) clone() state {
	c := state{
		principals: make([]chores.Principal, len(s.principals)),
		tasks:      make([]chores.Task, len(s.tasks)),
		entries:    make([]chores.LedgerEntry, len(s.entries)),
	}
	for i, p := range s.principals {
		c.principals[i] = copyPrincipal(p)
	}
	for i, t := range s.tasks {
		c.tasks[i] = copyTask(t)
	}
	for i, e := range s.entries {
		c.entries[i] = copyEntry(e)
	}
	return c
}

func (s *state) listPrincipals() []chores.Principal {
	out := make([]chores.Principal, len(s.principals))
	for i, p := range s.principals {
		out[i] = copyPrincipal(p)
	}
	return out
}

func (s *state) principalIndex(id chores.PrincipalID) int {
	for i := range s.principals {
		if s.principals[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) getPrincipal(id chores.PrincipalID) *chores.Principal {
	i := s.principalIndex(id)
	if i < 0 {
		return nil
	}
	p := copyPrincipal(s.principals[i])
	return &p
}

func (s *state) addToBalance(id chores.PrincipalID, delta int64, at time.Time) (int64, error) {
	i := s.principalIndex(id)
	if i < 0 {
		return 0, chores.ErrNotFound
	}
	s.principals[i].Balance += delta
	s.principals[i].UpdatedAt = at
	return s.principals[i].Balance, nil
}

func (s *state) setSubscription(id chores.PrincipalID, sub *chores.Subscription, at time.Time) error {
	i := s.principalIndex(id)
	if i < 0 {
		return chores.ErrNotFound
	}
	if sub != nil {
		c := *sub
		sub = &c
	}
	s.principals[i].PushSubscription = sub
	s.principals[i].PushUpdatedAt = &at
	s.principals[i].UpdatedAt = at
	return nil
}

func (s *state) clearSubscription(id chores.PrincipalID, endpoint string, at time.Time) bool {
	i := s.principalIndex(id)
	if i < 0 {
		return false
	}
	sub := s.principals[i].PushSubscription
	if sub == nil || sub.Endpoint != endpoint {
		return false
	}
	s.principals[i].PushSubscription = nil
	s.principals[i].PushUpdatedAt = &at
	s.principals[i].UpdatedAt = at
	return true
}

func (s *state) taskIndex(id chores.TaskID) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) getTask(id chores.TaskID) *chores.Task {
	i := s.taskIndex(id)
	if i < 0 {
		return nil
	}
	t := copyTask(s.tasks[i])
	return &t
}

func (s *state) listTasks() []chores.Task {
	out := make([]chores.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, copyTask(t))
	}
	return out
}

func (s *state) listTasksByOwner(owner chores.PrincipalID) []chores.Task {
	var out []chores.Task
	for _, t := range s.tasks {
		if t.OwnerID == owner {
			out = append(out, copyTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out
}

func (s *state) markTaskCompleted(id chores.TaskID, at time.Time) bool {
	i := s.taskIndex(id)
	if i < 0 || s.tasks[i].Status != chores.TaskOpen {
		return false
	}
	s.tasks[i].Status = chores.TaskCompleted
	s.tasks[i].CompletedAt = &at
	s.tasks[i].UpdatedAt = at
	return true
}

func (s *state) deleteTask(id chores.TaskID) bool {
	i := s.taskIndex(id)
	if i < 0 {
		return false
	}
	for j := range s.entries {
		if s.entries[j].TaskID != nil && *s.entries[j].TaskID == id {
			s.entries[j].TaskID = nil
		}
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return true
}

func (s *state) listEntries(principal chores.PrincipalID) []chores.LedgerEntry {
	var out []chores.LedgerEntry
	for _, e := range s.entries {
		if e.PrincipalID == principal {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

func (s *state) sumEntries(principal chores.PrincipalID) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.PrincipalID == principal {
			sum += e.Amount
		}
	}
	return sum
}

func (s *state) reset() chores.ResetStats {
	stats := chores.ResetStats{
		EntriesDeleted:   int64(len(s.entries)),
		TasksDeleted:     int64(len(s.tasks)),
		PrincipalsZeroed: int64(len(s.principals)),
	}
	s.entries = nil
	s.tasks = nil
	for i := range s.principals {
		s.principals[i].Balance = 0
	}
	return stats
}

// Pointer fields are copied so callers never alias stored state.

func copyPrincipal(p chores.Principal) chores.Principal {
	if p.PushSubscription != nil {
		sub := *p.PushSubscription
		p.PushSubscription = &sub
	}
	if p.PushUpdatedAt != nil {
		t := *p.PushUpdatedAt
		p.PushUpdatedAt = &t
	}
	return p
}

func copyTask(t chores.Task) chores.Task {
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

func copyEntry(e chores.LedgerEntry) chores.LedgerEntry {
	if e.TaskID != nil {
		id := *e.TaskID
		e.TaskID = &id
	}
	return e
}
