// Package memorykv is an in-process state store. It backs --store=memory and
// the service tests.
package memorykv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

// Operation names accepted by FailOn.
const (
	OpKeys   = "keys"
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpBatch  = "batch"
)

// Adapter implements ports.BatchStateStore on a map.
type Adapter struct {
	mu       sync.RWMutex
	data     map[string][]byte
	failures map[string]error
	writes   int
}

// New creates a store holding a copy of seed.
func New(seed map[string]string) *Adapter {
	data := make(map[string][]byte, len(seed))
	for k, v := range seed {
		data[k] = []byte(v)
	}
	return &Adapter{data: data, failures: make(map[string]error)}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (a *Adapter) FailOn(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failures, op)
		return
	}
	a.failures[op] = err
}

// Snapshot returns a copy of the stored data.
func (a *Adapter) Snapshot() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.data))
	for k, v := range a.data {
		out[k] = string(v)
	}
	return out
}

// Writes returns how many mutating calls have succeeded.
func (a *Adapter) Writes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes
}

func (a *Adapter) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := a.check(ctx, OpKeys); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var keys []string
	for k := range a.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := a.check(ctx, OpGet); err != nil {
		return nil, false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (a *Adapter) Put(ctx context.Context, key string, value []byte) error {
	if err := a.check(ctx, OpPut); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = append([]byte(nil), value...)
	a.writes++
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.check(ctx, OpDelete); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data, key)
	a.writes++
	return nil
}

// ApplyBatch applies all puts and deletes under one lock, or none of them.
func (a *Adapter) ApplyBatch(ctx context.Context, puts []ports.KeyValue, deletes []string) error {
	if err := a.check(ctx, OpBatch); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, kv := range puts {
		a.data[kv.Key] = append([]byte(nil), kv.Value...)
	}
	for _, k := range deletes {
		delete(a.data, k)
	}
	a.writes += len(puts) + len(deletes)
	return nil
}

func (a *Adapter) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failures[op]
}
