package testutil

import (
	"sync"
)

// SeqAllocator — потокобезопасный IDAllocator для unit тестов репозиториев.
// Выдаёт возрастающие ID и запоминает освобождённые.
type SeqAllocator struct {
	mu       sync.Mutex
	next     int32
	released []int32
	err      error
}

// NewSeqAllocator создаёт аллокатор, начинающий с first.
func NewSeqAllocator(first int32) *SeqAllocator {
	return &SeqAllocator{next: first}
}

// FailWith заставляет Allocate возвращать err.
func (a *SeqAllocator) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Allocate выдаёт следующий ID.
func (a *SeqAllocator) Allocate() (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	id := a.next
	a.next++
	return id, nil
}

// Release запоминает освобождённый ID.
func (a *SeqAllocator) Release(id int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = append(a.released, id)
}

// Released возвращает копию освобождённых ID в порядке освобождения.
func (a *SeqAllocator) Released() []int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int32, len(a.released))
	copy(out, a.released)
	return out
}
