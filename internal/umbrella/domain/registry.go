package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ServiceEntry is one (name, version) pair managed for the umbrella chart.
type ServiceEntry struct {
	Name    string
	Version string
}

// Registry is an immutable snapshot of the service versions for one chart.
// Every key of entries equals the Name of its entry.
type Registry struct {
	entries map[string]ServiceEntry
}

// NewRegistry builds a registry from entries. A later entry with the same
// name replaces an earlier one.
func NewRegistry(entries ...ServiceEntry) Registry {
	m := make(map[string]ServiceEntry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return Registry{entries: m}
}

// Len returns the number of services.
func (r Registry) Len() int {
	return len(r.entries)
}

// Get returns the entry for name.
func (r Registry) Get(name string) (ServiceEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the service names in lexicographic order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the entries sorted by name.
func (r Registry) Entries() []ServiceEntry {
	names := r.Names()
	out := make([]ServiceEntry, len(names))
	for i, name := range names {
		out[i] = r.entries[name]
	}
	return out
}

// Equal reports whether both registries hold the same entries.
func (r Registry) Equal(other Registry) bool {
	if len(r.entries) != len(other.entries) {
		return false
	}
	for name, e := range r.entries {
		o, ok := other.entries[name]
		if !ok || o != e {
			return false
		}
	}
	return true
}

// Apply returns a new registry with m applied, plus a description of what
// changed. The receiver is never modified.
func (r Registry) Apply(m Mutation) (Registry, Change) {
	old, had := r.entries[m.Name]

	switch m.Kind {
	case MutationSet:
		change := Change{Kind: ChangeAdded, Name: m.Name, New: m.Version}
		if had {
			change.Old = old.Version
			change.Kind = ChangeUpdated
			if old.Version == m.Version {
				change.Kind = ChangeUnchanged
				return r, change
			}
		}
		next := r.clone()
		next.entries[m.Name] = ServiceEntry{Name: m.Name, Version: m.Version}
		return next, change

	case MutationRemove:
		if !had {
			return r, Change{Kind: ChangeUnchanged, Name: m.Name}
		}
		next := r.clone()
		delete(next.entries, m.Name)
		return next, Change{Kind: ChangeRemoved, Name: m.Name, Old: old.Version}
	}

	return r, Change{Kind: ChangeUnchanged, Name: m.Name}
}

// ApplyAll applies mutations in order. Later mutations for the same name win.
func (r Registry) ApplyAll(mutations []Mutation) (Registry, []Change) {
	changes := make([]Change, 0, len(mutations))
	for _, m := range mutations {
		var c Change
		r, c = r.Apply(m)
		changes = append(changes, c)
	}
	return r, changes
}

func (r Registry) clone() Registry {
	m := make(map[string]ServiceEntry, len(r.entries)+1)
	for k, v := range r.entries {
		m[k] = v
	}
	return Registry{entries: m}
}

// Changeset is the minimal set of store writes turning one registry into another.
type Changeset struct {
	Puts    []ServiceEntry // sorted by name
	Deletes []string       // sorted
}

// Empty reports whether the changeset has nothing to write.
func (c Changeset) Empty() bool {
	return len(c.Puts) == 0 && len(c.Deletes) == 0
}

// Diff returns the entries of next that are new or changed relative to prev,
// and the names present in prev but not in next.
func Diff(prev, next Registry) Changeset {
	var cs Changeset
	for _, e := range next.Entries() {
		if old, ok := prev.entries[e.Name]; !ok || old.Version != e.Version {
			cs.Puts = append(cs.Puts, e)
		}
	}
	for _, name := range prev.Names() {
		if _, ok := next.entries[name]; !ok {
			cs.Deletes = append(cs.Deletes, name)
		}
	}
	return cs
}

var (
	errEmptyName    = errors.New("service name is empty")
	errEmptyVersion = errors.New("version is empty")
)

// ValidateServiceName checks that name can be used as a key segment.
func ValidateServiceName(name string) error {
	if name == "" {
		return errEmptyName
	}
	if name == GlobalScope {
		return fmt.Errorf("service name %q is reserved for shared values", name)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("service name %q is not valid UTF-8", name)
	}
	if strings.ContainsAny(name, "/=") {
		return fmt.Errorf("service name %q must not contain '/' or '='", name)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("service name %q contains whitespace or control characters", name)
		}
	}
	return nil
}

// ValidateVersion checks that version is non-empty. Its format is free, so
// spaces are allowed; only invalid UTF-8 and control characters, which
// cannot survive a YAML round trip unchanged, are rejected.
func ValidateVersion(version string) error {
	if version == "" {
		return errEmptyVersion
	}
	if !utf8.ValidString(version) {
		return errors.New("version is not valid UTF-8")
	}
	for _, r := range version {
		if unicode.IsControl(r) {
			return fmt.Errorf("version %q contains control characters", version)
		}
	}
	return nil
}

// DecodeVersion turns a raw stored value into a version string. The value is
// taken verbatim so that Load returns exactly what Persist wrote.
func DecodeVersion(raw []byte) (string, error) {
	v := string(raw)
	if err := ValidateVersion(v); err != nil {
		return "", err
	}
	return v, nil
}
