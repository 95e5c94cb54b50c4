// Package yamlrender renders the umbrella chart documents with yaml.v3.
//
// Documents are built from explicit yaml.Node trees so that key order never
// depends on Go map iteration: dependencies and top-level values keys follow
// service name order, nested override keys are sorted, and the "version" key
// always comes first inside a service block.
package yamlrender

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

const (
	strTag        = "!!str"
	versionKey    = "version"
	chartDesc     = "Umbrella chart managed by vong"
	chartAPI      = "v1"
	chartAppVer   = "1.0"
	indentSpaces  = 2
	defaultChart  = "chart"
	defaultChartV = "1.0.0"
)

// Adapter implements ports.RendererPort.
type Adapter struct{}

// New creates a YAML renderer.
func New() *Adapter {
	return &Adapter{}
}

// Render produces requirements.yaml and values.yaml for reg. An empty
// registry renders valid documents with no dependencies.
func (a *Adapter) Render(
	reg domain.Registry,
	overrides domain.ValuesOverrides,
	repo domain.RepositoryConfig,
) (domain.ManifestPair, error) {
	requirements, err := encode(requirementsNode(reg, repo))
	if err != nil {
		return domain.ManifestPair{}, fmt.Errorf("encoding %s: %w", domain.RequirementsFile, err)
	}
	values, err := encode(valuesNode(reg, overrides))
	if err != nil {
		return domain.ManifestPair{}, fmt.Errorf("encoding %s: %w", domain.ValuesFile, err)
	}
	return domain.ManifestPair{Requirements: requirements, Values: values}, nil
}

// RenderChart renders the Chart.yaml scaffold. Empty metadata fields fall
// back to name "chart" and version "1.0.0".
func (a *Adapter) RenderChart(meta domain.ChartMetadata) ([]byte, error) {
	name := meta.Name
	if name == "" {
		name = defaultChart
	}
	version := meta.Version
	if version == "" {
		version = defaultChartV
	}
	doc := mapping(
		str("apiVersion"), str(chartAPI),
		str("name"), str(name),
		str("version"), str(version),
		str("appVersion"), str(chartAppVer),
		str("description"), str(chartDesc),
	)
	out, err := encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", domain.ChartFile, err)
	}
	return out, nil
}

func requirementsNode(reg domain.Registry, repo domain.RepositoryConfig) *yaml.Node {
	deps := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, e := range reg.Entries() {
		dep := mapping(
			str("name"), str(e.Name),
			str("version"), str(e.Version),
		)
		if repo.URL != "" {
			dep.Content = append(dep.Content, str("repository"), str(repo.URL))
		}
		deps.Content = append(deps.Content, dep)
	}
	if len(deps.Content) == 0 {
		deps.Style = yaml.FlowStyle
	}
	return mapping(str("dependencies"), deps)
}

func valuesNode(reg domain.Registry, overrides domain.ValuesOverrides) *yaml.Node {
	root := mapping()
	if len(overrides.Global) > 0 {
		root.Content = append(root.Content, str(domain.GlobalScope), treeNode(overrides.Global))
	}
	for _, e := range reg.Entries() {
		block := mapping(str(versionKey), str(e.Version))
		extra := treeNode(overrides.For(e.Name))
		for i := 0; i+1 < len(extra.Content); i += 2 {
			if extra.Content[i].Value == versionKey {
				continue
			}
			block.Content = append(block.Content, extra.Content[i], extra.Content[i+1])
		}
		root.Content = append(root.Content, str(e.Name), block)
	}
	if len(root.Content) == 0 {
		root.Style = yaml.FlowStyle
	}
	return root
}

// treeNode converts an override tree into a mapping with sorted keys.
func treeNode(v domain.Values) *yaml.Node {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := mapping()
	for _, k := range keys {
		switch child := v[k].(type) {
		case domain.Values:
			node.Content = append(node.Content, str(k), treeNode(child))
		case string:
			node.Content = append(node.Content, str(k), str(child))
		default:
			node.Content = append(node.Content, str(k), str(fmt.Sprint(child)))
		}
	}
	return node
}

func mapping(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: content}
}

// str builds a string scalar. The explicit !!str tag makes the encoder quote
// values such as "1.0" or "true" that would otherwise load as other types.
func str(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: value}
}

func encode(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indentSpaces)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
