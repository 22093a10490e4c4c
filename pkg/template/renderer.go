// Package template renders run scripts and submission files for jobs.
//
// Rendering is strict: a template that references a variable absent from the
// variable map fails with ErrUndefinedVariable instead of substituting a
// blank. Silent defaults hide spec/template mismatches until the job is
// already on the resource, so they are deliberately not supported.
//
// Templates are resolved from user-supplied directories first, then from the
// embedded defaults, under a per-kind subdirectory ("runscript" or
// "submission").
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/runscript/*.template.sh templates/submission/*.template
var builtin embed.FS

// Sentinel errors for rendering.
var (
	// ErrTemplateNotFound indicates the named template does not exist in any
	// search location.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUndefinedVariable indicates the template references a variable that
	// is not present in the variable map.
	ErrUndefinedVariable = errors.New("undefined template variable")
)

// Kind selects the template search subdirectory.
type Kind string

const (
	// KindRunscript templates wrap the user command with pre- and
	// post-processing on the resource.
	KindRunscript Kind = "runscript"

	// KindSubmission templates are the artifact handed to a Submitter.
	KindSubmission Kind = "submission"
)

// Renderer resolves and renders templates with strict-undefined semantics.
//
// The zero value uses only the embedded defaults.
type Renderer struct {
	// UserDirs are directories searched before the embedded defaults. Each
	// directory is expected to contain "runscript" and/or "submission"
	// subdirectories mirroring the embedded layout.
	UserDirs []string
}

// Render fills a template source with the given variables.
//
// It is a pure function of its arguments: the same source and variables
// always produce byte-identical output. A reference to a missing variable
// returns ErrUndefinedVariable.
func Render(source string, vars map[string]any) (string, error) {
	tmpl, err := texttemplate.New("inline").
		Funcs(funcMap()).
		Option("missingkey=error").
		Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		if isMissingKey(err) {
			return "", fmt.Errorf("%w: %v", ErrUndefinedVariable, err)
		}
		return "", fmt.Errorf("render template: %w", err)
	}
	return b.String(), nil
}

// RenderNamed resolves name under the given kind and renders it.
func (r *Renderer) RenderNamed(kind Kind, name string, vars map[string]any) (string, error) {
	source, err := r.resolve(kind, name)
	if err != nil {
		return "", err
	}
	out, err := Render(source, vars)
	if err != nil {
		return "", fmt.Errorf("template %s/%s: %w", kind, name, err)
	}
	return out, nil
}

// resolve locates the template source, preferring user directories over the
// embedded defaults.
func (r *Renderer) resolve(kind Kind, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty template name", ErrTemplateNotFound)
	}

	for _, dir := range r.UserDirs {
		p := filepath.Join(dir, string(kind), name)
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template %s: %w", p, err)
		}
	}

	data, err := builtin.ReadFile(path.Join("templates", string(kind), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, kind, name)
		}
		return "", fmt.Errorf("read embedded template %s/%s: %w", kind, name, err)
	}
	return string(data), nil
}

func funcMap() texttemplate.FuncMap {
	return texttemplate.FuncMap{
		"shquote": shellQuote,
	}
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// isMissingKey reports whether err came from a missingkey=error lookup.
func isMissingKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "map has no entry for key")
}
