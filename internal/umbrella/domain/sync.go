package domain

// SyncRequest is one invocation: a batch of mutations plus where to read
// state from and write manifests to.
type SyncRequest struct {
	Mutations    []Mutation // applied in order, last write wins
	Prefix       string     // store key prefix for service versions
	ValuesPrefix string     // store key prefix for values overrides, empty disables
	OutputDir    string
	Repository   RepositoryConfig
	Chart        ChartMetadata
	DryRun       bool // render and diff only
	ShowDiff     bool // log manifest diffs against the committed files
	UpdateDeps   bool // run helm dependency update after commit
}

// SyncResult summarizes what an invocation did.
type SyncResult struct {
	Changes      []Change
	Registry     Registry
	Changeset    Changeset
	Manifests    ManifestPair
	Persisted    bool
	Committed    bool
	ManifestDiff string // unified diff of both files, empty when unchanged or not requested
}
