package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/offloadhq/offload/pkg/artifact"
)

// StagingStrategy moves input data onto the resource before submission.
type StagingStrategy interface {
	// Stage materializes inputs under the orchestrator's working directory.
	Stage(ctx context.Context, o *Orchestrator, inputs []string) error
}

// RetrievalStrategy brings output data back to the caller's host after the
// job reaches a terminal state.
type RetrievalStrategy interface {
	// Retrieve fetches the named outputs. A missing expected output is a
	// logged, non-fatal condition: the job's own exit status is the source
	// of truth for success or failure.
	Retrieve(ctx context.Context, o *Orchestrator, outputs []string) error
}

// Materializer combines the staging and retrieval halves of one
// result-materialization strategy and pins down the strategy-specific parts
// of the directory layout.
//
// The lifecycle state machine lives in Orchestrator; materializers only vary
// how data moves. This keeps the strategy surface small enough that adding a
// backend is a new table entry, not a new subclass hierarchy.
type Materializer interface {
	// Name is the strategy name used for selection and as the default
	// runscript template stem.
	Name() string

	// RunscriptTemplate is the default runscript template file name.
	RunscriptTemplate() string

	// WorkingDirectory computes the job's execution directory under the
	// resource-wide root.
	WorkingDirectory(root, jobID string) string

	StagingStrategy
	RetrievalStrategy
}

// MaterializerDeps carries the collaborators a strategy may need.
type MaterializerDeps struct {
	// Artifacts is the S3-compatible artifact store the objectstore
	// strategy mirrors data through. Nil unless configured.
	Artifacts *artifact.Store

	// LocalDir is where retrieval places fetched outputs. Defaults to the
	// current directory.
	LocalDir string
}

// materializers is the explicit strategy table. Selection is by name; there
// is no dynamic lookup.
var materializers = map[string]func(deps MaterializerDeps) (Materializer, error){
	"plain": func(deps MaterializerDeps) (Materializer, error) {
		return &plainMaterializer{localDir: deps.LocalDir}, nil
	},
	"bundle": func(deps MaterializerDeps) (Materializer, error) {
		return &bundleMaterializer{localDir: deps.LocalDir}, nil
	},
	"objectstore": func(deps MaterializerDeps) (Materializer, error) {
		if deps.Artifacts == nil {
			return nil, fmt.Errorf("%w: objectstore strategy requires an artifact store", ErrMissingDependency)
		}
		return &objectstoreMaterializer{
			plainMaterializer: plainMaterializer{localDir: deps.LocalDir},
			store:             deps.Artifacts,
		}, nil
	},
}

// NewMaterializer selects a strategy by name. An unknown name is a
// configuration error.
func NewMaterializer(name string, deps MaterializerDeps) (Materializer, error) {
	if name == "" {
		name = "plain"
	}
	f, ok := materializers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown materialization strategy %q (known: %v)",
			ErrConfiguration, name, MaterializerNames())
	}
	return f(deps)
}

// MaterializerNames returns the known strategy names, sorted.
func MaterializerNames() []string {
	names := make([]string, 0, len(materializers))
	for n := range materializers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
