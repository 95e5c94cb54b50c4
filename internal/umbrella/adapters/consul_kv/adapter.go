// Package consulkv stores service versions in HashiCorp Consul KV.
package consulkv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

// maxTxnOps is the largest number of operations sent in one Consul
// transaction. Older agents reject anything above 64.
const maxTxnOps = 64

// Adapter implements ports.BatchStateStore on the Consul KV API.
type Adapter struct {
	kv      *api.KV
	txn     *api.Txn
	timeout time.Duration
}

// New creates a Consul adapter. Connection settings come from the standard
// CONSUL_HTTP_* environment variables; a non-empty address overrides
// CONSUL_HTTP_ADDR. Outbound HTTP calls are traced with otelhttp.
func New(address string, timeout time.Duration) (*Adapter, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	httpClient, err := api.NewHttpClient(cfg.Transport, cfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consul http client: %w", err)
	}
	httpClient.Transport = otelhttp.NewTransport(httpClient.Transport)
	cfg.HttpClient = httpClient

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return &Adapter{kv: client.KV(), txn: client.Txn(), timeout: timeout}, nil
}

func (a *Adapter) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys, _, err := a.kv.Keys(prefix, "", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing keys under %s: %w", prefix, err)
	}
	// Folder keys end with a slash and never hold a service entry.
	out := keys[:0]
	for _, k := range keys {
		if !strings.HasSuffix(k, "/") {
			out = append(out, k)
		}
	}
	return out, nil
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	pair, _, err := a.kv.Get(key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("reading key %s: %w", key, err)
	}
	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}

func (a *Adapter) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if _, err := a.kv.Put(&api.KVPair{Key: key, Value: value}, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if _, err := a.kv.Delete(key, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	return nil
}

// ApplyBatch sends the writes as Consul transactions. Each transaction
// holds at most maxTxnOps operations and is atomic on its own.
func (a *Adapter) ApplyBatch(ctx context.Context, puts []ports.KeyValue, deletes []string) error {
	ops := make(api.TxnOps, 0, len(puts)+len(deletes))
	for _, kv := range puts {
		ops = append(ops, &api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVSet, Key: kv.Key, Value: kv.Value}})
	}
	for _, k := range deletes {
		ops = append(ops, &api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVDelete, Key: k}})
	}

	for start := 0; start < len(ops); start += maxTxnOps {
		end := min(start+maxTxnOps, len(ops))
		if err := a.commitTxn(ctx, ops[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) commitTxn(ctx context.Context, ops api.TxnOps) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	ok, resp, _, err := a.txn.Txn(ops, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	if !ok {
		var reasons []string
		if resp != nil {
			for _, e := range resp.Errors {
				reasons = append(reasons, fmt.Sprintf("op %d: %s", e.OpIndex, e.What))
			}
		}
		return fmt.Errorf("transaction rolled back: %s", strings.Join(reasons, "; "))
	}
	return nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
