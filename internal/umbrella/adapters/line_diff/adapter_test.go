package linediff

import (
	"strings"
	"testing"
)

func TestAdapter_ComputeDiff(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		head      string
		wantEmpty bool
		contains  []string
	}{
		{
			name:      "identical documents",
			base:      "dependencies: []\n",
			head:      "dependencies: []\n",
			wantEmpty: true,
		},
		{
			name:      "both empty",
			wantEmpty: true,
		},
		{
			name: "version bump",
			base: "dependencies:\n  - name: auth-2020\n    version: 1.2.3\n",
			head: "dependencies:\n  - name: auth-2020\n    version: 1.2.4\n",
			contains: []string{
				"--- requirements.yaml (committed)",
				"+++ requirements.yaml (rendered)",
				"-    version: 1.2.3",
				"+    version: 1.2.4",
			},
		},
		{
			name: "new file",
			base: "",
			head: "dependencies: []\n",
			contains: []string{
				"+dependencies: []",
			},
		},
	}

	adapter := New(DefaultContext)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := adapter.ComputeDiff(
				"requirements.yaml (committed)",
				"requirements.yaml (rendered)",
				[]byte(tt.base),
				[]byte(tt.head),
			)
			if tt.wantEmpty {
				if diff != "" {
					t.Errorf("expected empty diff, got:\n%s", diff)
				}
				return
			}
			for _, want := range tt.contains {
				if !strings.Contains(diff, want) {
					t.Errorf("diff missing %q:\n%s", want, diff)
				}
			}
		})
	}
}

func TestNew_NegativeContextUsesDefault(t *testing.T) {
	a := New(-1)
	if a.context != DefaultContext {
		t.Errorf("context = %d, want %d", a.context, DefaultContext)
	}
}
