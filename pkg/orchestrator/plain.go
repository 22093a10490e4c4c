package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// plainMaterializer copies inputs and outputs file by file through the
// session. The default strategy.
type plainMaterializer struct {
	localDir string
}

var _ Materializer = (*plainMaterializer)(nil)

func (m *plainMaterializer) Name() string { return "plain" }

func (m *plainMaterializer) RunscriptTemplate() string { return "plain.template.sh" }

// WorkingDirectory gives every job its own directory under the root so
// concurrent jobs cannot trample each other's files.
func (m *plainMaterializer) WorkingDirectory(root, jobID string) string {
	return path.Join(root, jobID)
}

// Stage copies each input into the working directory, preserving relative
// paths. Absolute inputs are staged by base name.
func (m *plainMaterializer) Stage(ctx context.Context, o *Orchestrator, inputs []string) error {
	if err := checkInputFiles(inputs); err != nil {
		return err
	}
	wd, err := o.WorkingDirectory(ctx)
	if err != nil {
		return err
	}
	if err := o.Session().MkdirAll(ctx, wd); err != nil {
		return fmt.Errorf("create working directory %s: %w", wd, err)
	}

	for _, input := range inputs {
		remote := path.Join(wd, remoteRelative(input))
		if err := o.Session().Put(ctx, input, remote); err != nil {
			return fmt.Errorf("stage input %s: %w", input, err)
		}
		o.Logger().Debug("input staged", zap.String("input", input), zap.String("remote", remote))
	}
	return nil
}

// Retrieve fetches each output from the working directory into the local
// output directory. Patterns containing glob metacharacters are expanded
// against a remote file listing. Missing outputs are logged and skipped.
func (m *plainMaterializer) Retrieve(ctx context.Context, o *Orchestrator, outputs []string) error {
	if len(outputs) == 0 {
		return nil
	}
	wd, err := o.WorkingDirectory(ctx)
	if err != nil {
		return err
	}

	var listing []string
	for _, out := range outputs {
		matches := []string{out}
		if isGlobPattern(out) {
			if listing == nil {
				listing, err = m.listRemote(ctx, o, wd)
				if err != nil {
					return err
				}
			}
			matches = matchPattern(out, listing)
			if len(matches) == 0 {
				o.Logger().Error("no files match expected output pattern", zap.String("pattern", out))
				continue
			}
		}

		for _, rel := range matches {
			remote := path.Join(wd, rel)
			exists, err := o.Session().Exists(ctx, remote)
			if err != nil {
				return fmt.Errorf("check output %s: %w", remote, err)
			}
			if !exists {
				o.Logger().Error("expected output does not exist", zap.String("output", remote))
				continue
			}
			local := filepath.Join(m.localOutputDir(), filepath.FromSlash(rel))
			if err := o.Session().Get(ctx, remote, local); err != nil {
				return fmt.Errorf("retrieve output %s: %w", remote, err)
			}
			o.Logger().Debug("output retrieved", zap.String("remote", remote), zap.String("local", local))
		}
	}
	return nil
}

// listRemote returns the working directory's files as slash-separated paths
// relative to it.
func (m *plainMaterializer) listRemote(ctx context.Context, o *Orchestrator, wd string) ([]string, error) {
	stdout, _, err := o.Session().Execute(ctx,
		fmt.Sprintf("cd %s && find . -type f", shq(wd)))
	if err != nil {
		return nil, fmt.Errorf("list working directory %s: %w", wd, err)
	}
	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, strings.TrimPrefix(line, "./"))
	}
	return files, nil
}

func (m *plainMaterializer) localOutputDir() string {
	if m.localDir != "" {
		return m.localDir
	}
	return "."
}

// checkInputFiles verifies each input is an existing regular file before any
// transfer starts. Inputs are staged file by file, so directories are
// rejected with an explicit error instead of failing mid-transfer.
func checkInputFiles(inputs []string) error {
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return fmt.Errorf("input %s: %w", input, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: input %s is a directory, list files individually", ErrConfiguration, input)
		}
	}
	return nil
}

// remoteRelative maps a caller path to a path relative to the working
// directory.
func remoteRelative(p string) string {
	p = filepath.ToSlash(p)
	if path.IsAbs(p) {
		return path.Base(p)
	}
	return path.Clean(p)
}

// isGlobPattern reports whether p contains doublestar metacharacters.
func isGlobPattern(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// matchPattern filters files by a doublestar pattern.
func matchPattern(pattern string, files []string) []string {
	var matches []string
	for _, f := range files {
		ok, err := doublestar.Match(pattern, f)
		if err != nil {
			// An invalid pattern matches nothing.
			return nil
		}
		if ok {
			matches = append(matches, f)
		}
	}
	return matches
}
