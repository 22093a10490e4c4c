package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/offloadhq/offload/pkg/artifact"
)

// objectstoreMaterializer moves data through the session the same way the
// plain strategy does, and additionally mirrors inputs and retrieved outputs
// into an S3-compatible artifact store under jobs/{jobid}/, keeping a
// durable artifact trail for the run.
type objectstoreMaterializer struct {
	plainMaterializer
	store *artifact.Store
}

var _ Materializer = (*objectstoreMaterializer)(nil)

func (m *objectstoreMaterializer) Name() string { return "objectstore" }

// Stage copies inputs to the resource and mirrors each one into the store.
func (m *objectstoreMaterializer) Stage(ctx context.Context, o *Orchestrator, inputs []string) error {
	if err := m.plainMaterializer.Stage(ctx, o, inputs); err != nil {
		return err
	}
	for _, input := range inputs {
		key := m.store.Key("jobs", o.JobID(), "inputs", remoteRelative(input))
		if err := m.store.Upload(ctx, key, input); err != nil {
			return err
		}
		o.Logger().Debug("input mirrored to artifact store",
			zap.String("input", input), zap.String("key", key))
	}
	return nil
}

// Retrieve fetches outputs through the session, then mirrors whatever
// actually arrived into the store. Outputs the job never produced were
// already logged by the plain retrieval and are simply absent from the
// mirror.
func (m *objectstoreMaterializer) Retrieve(ctx context.Context, o *Orchestrator, outputs []string) error {
	if err := m.plainMaterializer.Retrieve(ctx, o, outputs); err != nil {
		return err
	}

	base := m.localOutputDir()
	for _, out := range outputs {
		matches, err := doublestar.FilepathGlob(filepath.Join(base, out))
		if err != nil || len(matches) == 0 {
			continue
		}
		for _, local := range matches {
			rel, err := filepath.Rel(base, local)
			if err != nil {
				rel = filepath.Base(local)
			}
			key := m.store.Key("jobs", o.JobID(), "outputs", filepath.ToSlash(rel))
			if err := m.store.Upload(ctx, key, local); err != nil {
				return err
			}
			o.Logger().Debug("output mirrored to artifact store",
				zap.String("output", local), zap.String("key", key))
		}
	}
	return nil
}
