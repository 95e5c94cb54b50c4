package app

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

var errInvalidUTF8 = errors.New("value is not valid UTF-8")

// loadConcurrency bounds the number of in-flight Get calls while loading.
const loadConcurrency = 8

// LoadRegistry reads every service entry stored under prefix. Keys that
// disappear between listing and fetching are treated as absent.
func LoadRegistry(
	ctx context.Context,
	store ports.StateStorePort,
	prefix string,
	logger *slog.Logger,
) (domain.Registry, error) {
	keyPrefix := prefix + "/"
	keys, err := store.Keys(ctx, keyPrefix)
	if err != nil {
		return domain.Registry{}, domain.NewStoreUnavailableError("list", keyPrefix, err)
	}

	var names []string
	for _, key := range keys {
		name := strings.TrimPrefix(key, keyPrefix)
		if name == "" || name == key {
			continue
		}
		if err := domain.ValidateServiceName(name); err != nil {
			logger.Warn("skipping key that is not a service entry", "key", key, "reason", err)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	versions := make([]string, len(names))
	found := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			key := domain.ServiceKey(prefix, name)
			raw, ok, err := store.Get(gctx, key)
			if err != nil {
				return domain.NewStoreUnavailableError("get", key, err)
			}
			if !ok {
				return nil
			}
			v, err := domain.DecodeVersion(raw)
			if err != nil {
				return domain.NewCorruptEntryError(key, err)
			}
			versions[i] = v
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Registry{}, err
	}

	entries := make([]domain.ServiceEntry, 0, len(names))
	for i, name := range names {
		if !found[i] {
			logger.Debug("listed key has no value, treating as absent", "key", domain.ServiceKey(prefix, name))
			continue
		}
		entries = append(entries, domain.ServiceEntry{Name: name, Version: versions[i]})
	}
	return domain.NewRegistry(entries...), nil
}

// LoadOverrides reads the values trees stored under valuesPrefix for the
// given services and the global block. An empty valuesPrefix disables overrides.
func LoadOverrides(
	ctx context.Context,
	store ports.StateStorePort,
	valuesPrefix string,
	names []string,
) (domain.ValuesOverrides, error) {
	var overrides domain.ValuesOverrides
	if valuesPrefix == "" {
		return overrides, nil
	}

	wanted := make(map[string]bool, len(names)+1)
	wanted[domain.GlobalScope] = true
	for _, n := range names {
		wanted[n] = true
	}

	keyPrefix := valuesPrefix + "/"
	keys, err := store.Keys(ctx, keyPrefix)
	if err != nil {
		return overrides, domain.NewStoreUnavailableError("list", keyPrefix, err)
	}

	var selected []string
	for _, key := range keys {
		scope, path := domain.SplitValuesKey(strings.TrimPrefix(key, keyPrefix))
		if wanted[scope] && len(path) > 0 {
			selected = append(selected, key)
		}
	}
	sort.Strings(selected)

	values := make([]string, len(selected))
	found := make([]bool, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, key := range selected {
		g.Go(func() error {
			raw, ok, err := store.Get(gctx, key)
			if err != nil {
				return domain.NewStoreUnavailableError("get", key, err)
			}
			if !ok {
				return nil
			}
			if !utf8.Valid(raw) {
				return domain.NewCorruptEntryError(key, errInvalidUTF8)
			}
			values[i] = string(raw)
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return overrides, err
	}

	for i, key := range selected {
		if !found[i] {
			continue
		}
		scope, path := domain.SplitValuesKey(strings.TrimPrefix(key, keyPrefix))
		overrides.Set(scope, path, values[i])
	}
	return overrides, nil
}

// PersistChanges writes a changeset back under prefix. Stores that support
// batches get a single batch; others are written key by key in name order.
func PersistChanges(
	ctx context.Context,
	store ports.StateStorePort,
	prefix string,
	cs domain.Changeset,
) error {
	if cs.Empty() {
		return nil
	}

	if batch, ok := store.(ports.BatchStateStore); ok {
		puts := make([]ports.KeyValue, len(cs.Puts))
		for i, e := range cs.Puts {
			puts[i] = ports.KeyValue{Key: domain.ServiceKey(prefix, e.Name), Value: []byte(e.Version)}
		}
		deletes := make([]string, len(cs.Deletes))
		for i, name := range cs.Deletes {
			deletes[i] = domain.ServiceKey(prefix, name)
		}
		if err := batch.ApplyBatch(ctx, puts, deletes); err != nil {
			return domain.NewStoreUnavailableError("batch write", prefix+"/", err)
		}
		return nil
	}

	for _, e := range cs.Puts {
		key := domain.ServiceKey(prefix, e.Name)
		if err := store.Put(ctx, key, []byte(e.Version)); err != nil {
			return domain.NewStoreUnavailableError("put", key, err)
		}
	}
	for _, name := range cs.Deletes {
		key := domain.ServiceKey(prefix, name)
		if err := store.Delete(ctx, key); err != nil {
			return domain.NewStoreUnavailableError("delete", key, err)
		}
	}
	return nil
}
