// Package config parses a curly-brace configuration grammar: one
// "options" block plus one or more "dataset" blocks.
package config

// MergeMode selects who performs the final tree merge for a dataset.
type MergeMode int

const (
	// MergeMaster reads every worker's intermediate output sequentially on
	// the master and merges them into one file.
	MergeMaster MergeMode = iota
	// MergeWorkers pairs workers off and merges on the worker side, so the
	// master only ever has to rename the final survivor's file.
	MergeWorkers
	// MergeNone leaves every worker's intermediate output file in place.
	MergeNone
)

func (m MergeMode) String() string {
	switch m {
	case MergeMaster:
		return "master"
	case MergeWorkers:
		return "workers"
	case MergeNone:
		return "nomerge"
	default:
		return "unknown"
	}
}

// Options holds the core-relevant fields of the "options" block. Any other
// key in the block is rejected; everything else belongs to the external
// analysis layer, which is out of scope here.
type Options struct {
	BlockSize    uint64
	OutputDir    string
	MergeMode    MergeMode
	KeepUnmerged bool
}

// Dataset holds one "dataset" block: its name, tree name, ordered file
// list (used for both event-range bookkeeping and fingerprinting), and an
// opaque tag map consumed entirely by the external analysis layer.
type Dataset struct {
	Name     string
	TreeName string
	Files    []string
	Tags     map[string]string
}

// Config is the parsed result of a full config file.
type Config struct {
	Options  Options
	Datasets []Dataset
}
