// Package natskv stores service versions in a NATS JetStream key-value bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Adapter implements ports.StateStorePort on a JetStream KV bucket. The
// bucket keeps one revision per key.
type Adapter struct {
	conn    *nats.Conn
	kv      jetstream.KeyValue
	timeout time.Duration
	logger  *slog.Logger
}

// New connects to url and opens bucket, creating it when missing.
func New(ctx context.Context, url, bucket string, timeout time.Duration, logger *slog.Logger) (*Adapter, error) {
	conn, err := nats.Connect(url, nats.Name("vong"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	a := &Adapter{conn: conn, timeout: timeout, logger: logger}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Umbrella chart service versions",
			History:     1,
		})
		if err == nil {
			logger.Info("created NATS KV bucket", "bucket", bucket)
		}
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening KV bucket %s: %w", bucket, err)
	}
	a.kv = kv

	logger.Debug("connected to NATS", "url", url, "bucket", bucket)
	return a, nil
}

// Close drains the connection.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Drain()
}

func (a *Adapter) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	lister, err := a.kv.ListKeys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	entry, err := a.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (a *Adapter) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if _, err := a.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
