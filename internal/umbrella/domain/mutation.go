package domain

import (
	"errors"
	"strings"
)

// MutationKind is the operation a Mutation performs.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationRemove
)

// Mutation is a single requested change to a Registry.
type Mutation struct {
	Kind    MutationKind
	Name    string
	Version string // empty for MutationRemove
}

// Set returns a mutation that inserts or overwrites name with version.
func Set(name, version string) Mutation {
	return Mutation{Kind: MutationSet, Name: name, Version: version}
}

// Remove returns a mutation that deletes name if present.
func Remove(name string) Mutation {
	return Mutation{Kind: MutationRemove, Name: name}
}

func (m Mutation) String() string {
	if m.Kind == MutationRemove {
		return "rm " + m.Name
	}
	return "set " + m.Name + "=" + m.Version
}

// ParseSet parses a "name=version" argument. Only the first '=' separates
// name from version.
func ParseSet(arg string) (Mutation, error) {
	name, version, found := strings.Cut(arg, "=")
	if !found {
		return Mutation{}, NewInvalidMutationError(arg, errors.New(`expected "<service>=<version>"`))
	}
	if err := ValidateServiceName(name); err != nil {
		return Mutation{}, NewInvalidMutationError(arg, err)
	}
	if err := ValidateVersion(version); err != nil {
		return Mutation{}, NewInvalidMutationError(arg, err)
	}
	return Set(name, version), nil
}

// ParseRemove parses a service name given to --rm.
func ParseRemove(arg string) (Mutation, error) {
	if err := ValidateServiceName(arg); err != nil {
		return Mutation{}, NewInvalidMutationError(arg, err)
	}
	return Remove(arg), nil
}

// ChangeKind describes the effect a mutation had.
type ChangeKind int

const (
	ChangeUnchanged ChangeKind = iota
	ChangeAdded
	ChangeUpdated
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unchanged"
	}
}

// Change describes the outcome of applying one mutation.
type Change struct {
	Kind ChangeKind
	Name string
	Old  string
	New  string
}

// CountChanges returns how many changes actually modified the registry.
func CountChanges(changes []Change) int {
	n := 0
	for _, c := range changes {
		if c.Kind != ChangeUnchanged {
			n++
		}
	}
	return n
}
