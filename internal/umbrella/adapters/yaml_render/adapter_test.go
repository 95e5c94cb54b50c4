package yamlrender

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

type requirementsDoc struct {
	Dependencies []struct {
		Name       string `yaml:"name"`
		Version    string `yaml:"version"`
		Repository string `yaml:"repository"`
	} `yaml:"dependencies"`
}

// topLevelKeys returns mapping keys of a document in the order they appear.
func topLevelKeys(t require.TestingT, b []byte) []string {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(b, &doc))
	require.Len(t, doc.Content, 1)
	root := doc.Content[0]
	var keys []string
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

func TestRender_TwoServicesSortedByName(t *testing.T) {
	reg := domain.NewRegistry(
		domain.ServiceEntry{Name: "sessions-2020", Version: "1.0.0"},
		domain.ServiceEntry{Name: "auth-2020", Version: "1.2.3"},
	)
	repo := domain.RepositoryConfig{URL: "https://charts.example.com"}

	pair, err := New().Render(reg, domain.ValuesOverrides{}, repo)
	require.NoError(t, err)

	var req requirementsDoc
	require.NoError(t, yaml.Unmarshal(pair.Requirements, &req))
	require.Len(t, req.Dependencies, 2)
	assert.Equal(t, "auth-2020", req.Dependencies[0].Name)
	assert.Equal(t, "1.2.3", req.Dependencies[0].Version)
	assert.Equal(t, "https://charts.example.com", req.Dependencies[0].Repository)
	assert.Equal(t, "sessions-2020", req.Dependencies[1].Name)
	assert.Equal(t, "1.0.0", req.Dependencies[1].Version)

	assert.Equal(t, []string{"auth-2020", "sessions-2020"}, topLevelKeys(t, pair.Values))

	var values map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(pair.Values, &values))
	assert.Equal(t, "1.2.3", values["auth-2020"]["version"])
	assert.Equal(t, "1.0.0", values["sessions-2020"]["version"])
}

func TestRender_EmptyRegistry(t *testing.T) {
	pair, err := New().Render(domain.NewRegistry(), domain.ValuesOverrides{}, domain.RepositoryConfig{})
	require.NoError(t, err)

	assert.Contains(t, string(pair.Requirements), "dependencies: []")

	var req requirementsDoc
	require.NoError(t, yaml.Unmarshal(pair.Requirements, &req))
	assert.Empty(t, req.Dependencies)

	var values map[string]any
	require.NoError(t, yaml.Unmarshal(pair.Values, &values))
	assert.Empty(t, values)
}

func TestRender_NoRepositoryOmitsField(t *testing.T) {
	reg := domain.NewRegistry(domain.ServiceEntry{Name: "auth-2020", Version: "1.2.3"})

	pair, err := New().Render(reg, domain.ValuesOverrides{}, domain.RepositoryConfig{})
	require.NoError(t, err)
	assert.NotContains(t, string(pair.Requirements), "repository")
}

func TestRender_AmbiguousVersionsStayStrings(t *testing.T) {
	reg := domain.NewRegistry(
		domain.ServiceEntry{Name: "a", Version: "1.0"},
		domain.ServiceEntry{Name: "b", Version: "true"},
		domain.ServiceEntry{Name: "c", Version: "010"},
	)

	pair, err := New().Render(reg, domain.ValuesOverrides{}, domain.RepositoryConfig{})
	require.NoError(t, err)

	var req map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(pair.Requirements, &req))
	require.Len(t, req["dependencies"], 3)
	for i, want := range []string{"1.0", "true", "010"} {
		assert.Equal(t, want, req["dependencies"][i]["version"], "dependency %d", i)
	}

	var values map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(pair.Values, &values))
	assert.Equal(t, "1.0", values["a"]["version"])
	assert.Equal(t, "true", values["b"]["version"])
}

func TestRender_ValuesOverrides(t *testing.T) {
	reg := domain.NewRegistry(
		domain.ServiceEntry{Name: "auth-2020", Version: "1.2.3"},
		domain.ServiceEntry{Name: "sessions-2020", Version: "1.0.0"},
	)
	var overrides domain.ValuesOverrides
	overrides.Set("auth-2020", []string{"replicas"}, "3")
	overrides.Set("auth-2020", []string{"image", "tag"}, "abc")
	overrides.Set("auth-2020", []string{"version"}, "9.9.9")
	overrides.Set(domain.GlobalScope, []string{"env"}, "prod")

	pair, err := New().Render(reg, overrides, domain.RepositoryConfig{})
	require.NoError(t, err)

	assert.Equal(t, []string{"global", "auth-2020", "sessions-2020"}, topLevelKeys(t, pair.Values))

	var values map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(pair.Values, &values))
	assert.Equal(t, "prod", values["global"]["env"])
	assert.Equal(t, "1.2.3", values["auth-2020"]["version"], "registry version must win over overrides")
	assert.Equal(t, "3", values["auth-2020"]["replicas"])
	assert.Equal(t, map[string]any{"tag": "abc"}, values["auth-2020"]["image"])
	assert.Equal(t, map[string]any{"version": "1.0.0"}, values["sessions-2020"])

	// version first, remaining keys sorted
	authBlock := strings.Split(string(pair.Values), "auth-2020:\n")[1]
	assert.True(t, strings.HasPrefix(authBlock, "  version: 1.2.3\n"), "version should lead the block:\n%s", authBlock)
	assert.Less(t, strings.Index(authBlock, "image:"), strings.Index(authBlock, "replicas:"))
}

func TestRender_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfDistinct(
			rapid.StringMatching(`[a-z][a-z0-9-]{0,12}`),
			func(s string) string { return s },
		).Draw(t, "names")

		entries := make([]domain.ServiceEntry, len(names))
		for i, n := range names {
			entries[i] = domain.ServiceEntry{
				Name:    n,
				Version: rapid.StringMatching(`[0-9]{1,2}\.[0-9]{1,2}\.[0-9]{1,2}`).Draw(t, "version"),
			}
		}
		shuffled := rapid.Permutation(entries).Draw(t, "shuffled")
		repo := domain.RepositoryConfig{URL: "https://charts.example.com"}

		a := New()
		first, err := a.Render(domain.NewRegistry(entries...), domain.ValuesOverrides{}, repo)
		require.NoError(t, err)
		second, err := a.Render(domain.NewRegistry(shuffled...), domain.ValuesOverrides{}, repo)
		require.NoError(t, err)

		require.Equal(t, string(first.Requirements), string(second.Requirements))
		require.Equal(t, string(first.Values), string(second.Values))

		keys := topLevelKeys(t, first.Values)
		if len(names) > 0 {
			require.True(t, sort.StringsAreSorted(keys), "values keys not sorted: %v", keys)
			require.Len(t, keys, len(names))
		}
	})
}

func TestRenderChart(t *testing.T) {
	tests := []struct {
		name        string
		meta        domain.ChartMetadata
		wantName    string
		wantVersion string
	}{
		{name: "defaults", wantName: "chart", wantVersion: "1.0.0"},
		{name: "explicit", meta: domain.ChartMetadata{Name: "platform", Version: "2.1.0"}, wantName: "platform", wantVersion: "2.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New().RenderChart(tt.meta)
			require.NoError(t, err)

			var chart map[string]any
			require.NoError(t, yaml.Unmarshal(out, &chart))
			assert.Equal(t, "v1", chart["apiVersion"])
			assert.Equal(t, tt.wantName, chart["name"])
			assert.Equal(t, tt.wantVersion, chart["version"])
			assert.Equal(t, "1.0", chart["appVersion"])

			again, err := New().RenderChart(tt.meta)
			require.NoError(t, err)
			assert.Equal(t, out, again)
		})
	}
}
