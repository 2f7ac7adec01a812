package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"quote-engine/order"
)

var (
	ErrNotFound = errors.New("strategy state not found")
	ErrExists   = errors.New("strategy state already exists")
)

// Store 按 (trader, market) 保存 StrategyState。
// 同一个 key 的读-改-写由调用方串行化。
type Store interface {
	Create(ctx context.Context, st order.StrategyState) error
	Load(ctx context.Context, key order.Key) (order.StrategyState, error)
	Save(ctx context.Context, st order.StrategyState) error
	Keys(ctx context.Context) ([]order.Key, error)
	Close() error
}

// EventSink 状态变更回调（key、事件名）。
type EventSink func(string, map[string]interface{})

// MemoryStore 进程内存实现，模拟盘和测试使用。
type MemoryStore struct {
	mu     sync.RWMutex
	states map[order.Key]order.StrategyState
	sink   EventSink
}

func NewMemory(sink EventSink) *MemoryStore {
	return &MemoryStore{
		states: make(map[order.Key]order.StrategyState),
		sink:   sink,
	}
}

func (s *MemoryStore) Create(_ context.Context, st order.StrategyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := st.Key()
	if _, ok := s.states[key]; ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	s.states[key] = st
	s.emit("state_created", key)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key order.Key) (order.StrategyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	if !ok {
		return order.StrategyState{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return st, nil
}

// Save 只更新已存在的状态。
func (s *MemoryStore) Save(_ context.Context, st order.StrategyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := st.Key()
	if _, ok := s.states[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.states[key] = st
	s.emit("state_saved", key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]order.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]order.Key, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) emit(event string, key order.Key) {
	if s.sink != nil {
		s.sink(event, map[string]interface{}{"key": key.String()})
	}
}
