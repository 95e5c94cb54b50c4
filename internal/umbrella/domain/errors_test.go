package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindStoreUnavailable, "StoreUnavailable"},
		{KindCorruptEntry, "CorruptEntry"},
		{KindInvalidMutation, "InvalidMutation"},
		{KindWriteFailure, "WriteFailure"},
		{KindDependencyUpdate, "DependencyUpdate"},
		{KindInvalidConfig, "InvalidConfig"},
		{KindUnknown, "Unknown"},
		{Kind(99), "Unknown"},
		{Kind(-1), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("loading registry: %w", NewStoreUnavailableError("get", "umbrella/auth", cause))

	if got := KindOf(err); got != KindStoreUnavailable {
		t.Errorf("KindOf() = %v, want StoreUnavailable", got)
	}
	if !IsKind(err, KindStoreUnavailable) {
		t.Error("IsKind() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the underlying cause")
	}
	if KindOf(cause) != KindUnknown {
		t.Error("plain errors should be Unknown")
	}
	if IsKind(nil, KindUnknown) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestError_MessageCarriesContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "store key",
			err:  NewStoreUnavailableError("get", "umbrella/auth", errors.New("timeout")),
			want: []string{"StoreUnavailable", "get", `"umbrella/auth"`, "timeout"},
		},
		{
			name: "corrupt entry",
			err:  NewCorruptEntryError("umbrella/auth", errors.New("version is empty")),
			want: []string{"CorruptEntry", `"umbrella/auth"`, "version is empty"},
		},
		{
			name: "write path",
			err:  NewWriteFailureError("rename", "/tmp/chart/values.yaml", errors.New("disk full")),
			want: []string{"WriteFailure", "rename", "/tmp/chart/values.yaml", "disk full"},
		},
		{
			name: "mutation argument",
			err:  NewInvalidMutationError("auth", errors.New("missing version")),
			want: []string{"InvalidMutation", `"auth"`, "missing version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("Error() = %q, want it to contain %q", msg, w)
				}
			}
		})
	}
}
