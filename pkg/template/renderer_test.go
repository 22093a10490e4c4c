package template

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_Substitutes(t *testing.T) {
	out, err := Render("run {{.command}} in {{.remote_directory}}", map[string]any{
		"command":          "echo hi",
		"remote_directory": "/srv/jobs/j1",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	want := "run echo hi in /srv/jobs/j1"
	if out != want {
		t.Fatalf("output mismatch: got=%q want=%q", out, want)
	}
}

func TestRender_UndefinedVariable(t *testing.T) {
	_, err := Render("{{.command}} {{.missing}}", map[string]any{"command": "x"})
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("expected ErrUndefinedVariable, got %v", err)
	}
}

func TestRender_Deterministic(t *testing.T) {
	vars := map[string]any{"command": "echo hi", "jobid": "20260829-120000-ab12"}
	first, err := Render("{{.jobid}}: {{.command}}", vars)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	second, err := Render("{{.jobid}}: {{.command}}", vars)
	if err != nil {
		t.Fatalf("Render() second error: %v", err)
	}
	if first != second {
		t.Fatalf("same source and vars produced different output: %q vs %q", first, second)
	}
}

func TestRender_ShquoteFunc(t *testing.T) {
	out, err := Render("{{shquote .command}}", map[string]any{"command": "echo 'hi'"})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out != `'echo '\''hi'\'''` {
		t.Fatalf("shquote output mismatch: %q", out)
	}
}

func TestRenderNamed_EmbeddedDefaults(t *testing.T) {
	r := &Renderer{}
	vars := map[string]any{
		"command":          "echo hi",
		"jobid":            "20260829-120000-ab12",
		"root_directory":   "/srv/.offload/datasets",
		"remote_directory": "/srv/.offload/datasets/20260829-120000-ab12",
		"meta_directory":   "/srv/meta",
		"inputs":           []string{},
		"outputs":          []string{},
	}

	out, err := r.RenderNamed(KindRunscript, "plain.template.sh", vars)
	if err != nil {
		t.Fatalf("RenderNamed(runscript) error: %v", err)
	}
	if !strings.Contains(out, "echo hi") {
		t.Fatalf("runscript does not embed the command:\n%s", out)
	}

	out, err = r.RenderNamed(KindSubmission, "local.template", vars)
	if err != nil {
		t.Fatalf("RenderNamed(submission) error: %v", err)
	}
	if !strings.Contains(out, "/srv/meta") {
		t.Fatalf("submission does not reference the meta directory:\n%s", out)
	}
}

func TestRenderNamed_NotFound(t *testing.T) {
	r := &Renderer{}
	_, err := r.RenderNamed(KindRunscript, "nope.template.sh", nil)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestRenderNamed_UserDirShadowsEmbedded(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "runscript")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "plain.template.sh"),
		[]byte("custom {{.command}}"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	r := &Renderer{UserDirs: []string{dir}}
	out, err := r.RenderNamed(KindRunscript, "plain.template.sh", map[string]any{"command": "echo hi"})
	if err != nil {
		t.Fatalf("RenderNamed() error: %v", err)
	}
	if out != "custom echo hi" {
		t.Fatalf("user template did not shadow embedded default: %q", out)
	}
}

func TestRenderNamed_AllBuiltinsParse(t *testing.T) {
	vars := map[string]any{
		"command":          "true",
		"jobid":            "20260829-120000-ab12",
		"root_directory":   "/root",
		"remote_directory": "/root/wd",
		"meta_directory":   "/root/wd/meta",
		"inputs":           []string{"a"},
		"outputs":          []string{"b"},
	}
	r := &Renderer{}

	for _, name := range []string{"plain.template.sh", "bundle.template.sh"} {
		if _, err := r.RenderNamed(KindRunscript, name, vars); err != nil {
			t.Fatalf("runscript %s: %v", name, err)
		}
	}
	for _, name := range []string{"local.template", "slurm.template", "condor.template"} {
		if _, err := r.RenderNamed(KindSubmission, name, vars); err != nil {
			t.Fatalf("submission %s: %v", name, err)
		}
	}
}
