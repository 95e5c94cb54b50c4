package domain

import "bytes"

// File names inside the chart output directory.
const (
	RequirementsFile = "requirements.yaml"
	ValuesFile       = "values.yaml"
	ChartFile        = "Chart.yaml"
)

// RepositoryConfig is the Helm repository URL applied to every dependency.
// An empty URL means dependencies carry no repository field.
type RepositoryConfig struct {
	URL string
}

// ManifestPair is the rendered requirements.yaml and values.yaml.
type ManifestPair struct {
	Requirements []byte
	Values       []byte
}

// Equal reports whether both documents are byte-identical.
func (p ManifestPair) Equal(other ManifestPair) bool {
	return bytes.Equal(p.Requirements, other.Requirements) && bytes.Equal(p.Values, other.Values)
}

// ChartMetadata describes the Chart.yaml scaffold written when none exists.
type ChartMetadata struct {
	Name    string
	Version string
}

// ServiceKey builds the store key for a service under prefix.
func ServiceKey(prefix, name string) string {
	return prefix + "/" + name
}
