package consulkv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

var _ ports.BatchStateStore = (*Adapter)(nil)

// fakeConsul serves the subset of the Consul HTTP API the adapter uses.
type fakeConsul struct {
	mu       sync.Mutex
	data     map[string][]byte
	txnSizes []int
	rollback bool
}

func newFakeConsul(t *testing.T, seed map[string]string) (*fakeConsul, *Adapter) {
	t.Helper()
	f := &fakeConsul{data: make(map[string][]byte)}
	for k, v := range seed {
		f.data[k] = []byte(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/kv/", f.handleKV)
	mux.HandleFunc("/v1/txn", f.handleTxn)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return f, a
}

func (f *fakeConsul) snapshot() (map[string]string, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = string(v)
	}
	return out, append([]int(nil), f.txnSizes...)
}

func setMeta(w http.ResponseWriter) {
	w.Header().Set("X-Consul-Index", "1")
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
	w.Header().Set("Content-Type", "application/json")
}

func (f *fakeConsul) handleKV(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	setMeta(w)

	key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("keys") {
			var keys []string
			for k := range f.data {
				if strings.HasPrefix(k, key) {
					keys = append(keys, k)
				}
			}
			if len(keys) == 0 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sort.Strings(keys)
			_ = json.NewEncoder(w).Encode(keys)
			return
		}
		v, ok := f.data[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"Key": key, "Value": v}})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.data[key] = body
		_, _ = io.WriteString(w, "true")
	case http.MethodDelete:
		delete(f.data, key)
		_, _ = io.WriteString(w, "true")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeConsul) handleTxn(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	setMeta(w)

	var ops []struct {
		KV struct {
			Verb  string
			Key   string
			Value []byte
		}
	}
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.txnSizes = append(f.txnSizes, len(ops))

	if f.rollback {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"Results":null,"Errors":[{"OpIndex":0,"What":"permission denied"}]}`)
		return
	}
	for _, op := range ops {
		switch op.KV.Verb {
		case "set":
			f.data[op.KV.Key] = op.KV.Value
		case "delete":
			delete(f.data, op.KV.Key)
		}
	}
	_, _ = io.WriteString(w, `{"Results":[],"Errors":null}`)
}

func TestKeysAndGet(t *testing.T) {
	ctx := context.Background()
	_, a := newFakeConsul(t, map[string]string{
		"umbrella/auth-2020":     "1.2.3",
		"umbrella/sessions-2020": "1.0.0",
		"umbrella/":              "",
		"other/auth-2020":        "9.9.9",
	})

	keys, err := a.Keys(ctx, "umbrella/")
	require.NoError(t, err)
	assert.Equal(t, []string{"umbrella/auth-2020", "umbrella/sessions-2020"}, keys)

	v, ok, err := a.Get(ctx, "umbrella/auth-2020")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.2.3", string(v))

	_, ok, err = a.Get(ctx, "umbrella/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeys_NoneUnderPrefix(t *testing.T) {
	_, a := newFakeConsul(t, nil)

	keys, err := a.Keys(context.Background(), "umbrella/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPutDelete(t *testing.T) {
	ctx := context.Background()
	f, a := newFakeConsul(t, nil)

	require.NoError(t, a.Put(ctx, "umbrella/auth-2020", []byte("1.2.3")))
	data, _ := f.snapshot()
	assert.Equal(t, "1.2.3", data["umbrella/auth-2020"])

	require.NoError(t, a.Delete(ctx, "umbrella/auth-2020"))
	data, _ = f.snapshot()
	assert.NotContains(t, data, "umbrella/auth-2020")
}

func TestApplyBatch_ChunksTransactions(t *testing.T) {
	f, a := newFakeConsul(t, map[string]string{"umbrella/old": "0.1.0"})

	var puts []ports.KeyValue
	for i := range 100 {
		puts = append(puts, ports.KeyValue{Key: fmt.Sprintf("umbrella/svc-%03d", i), Value: []byte("1.0.0")})
	}

	require.NoError(t, a.ApplyBatch(context.Background(), puts, []string{"umbrella/old"}))
	data, sizes := f.snapshot()
	assert.Equal(t, []int{64, 37}, sizes)
	assert.Len(t, data, 100)
	assert.NotContains(t, data, "umbrella/old")
}

func TestApplyBatch_RolledBack(t *testing.T) {
	f, a := newFakeConsul(t, nil)
	f.mu.Lock()
	f.rollback = true
	f.mu.Unlock()

	err := a.ApplyBatch(context.Background(), []ports.KeyValue{{Key: "umbrella/a", Value: []byte("1")}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	data, _ := f.snapshot()
	assert.Empty(t, data)
}

func TestUnreachableAgent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	a, err := New(addr, time.Second)
	require.NoError(t, err)

	_, err = a.Keys(context.Background(), "umbrella/")
	require.Error(t, err)
}
