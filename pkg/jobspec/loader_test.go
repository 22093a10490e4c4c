package jobspec

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpecFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec file: %v", err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	p := writeSpecFile(t, "job.yaml", `
command: python train.py
inputs:
  - train.py
  - data/input.csv
outputs:
  - model.pkl
options:
  queue: batch
`)

	spec, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if spec.Command != "python train.py" {
		t.Fatalf("command mismatch: %q", spec.Command)
	}
	if len(spec.Inputs) != 2 || spec.Inputs[1] != "data/input.csv" {
		t.Fatalf("inputs mismatch: %v", spec.Inputs)
	}
	if spec.Options["queue"] != "batch" {
		t.Fatalf("options mismatch: %v", spec.Options)
	}
}

func TestLoad_JSON(t *testing.T) {
	p := writeSpecFile(t, "job.json", `{"command":"echo hi","outputs":["out.txt"]}`)

	spec, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if spec.Command != "echo hi" {
		t.Fatalf("command mismatch: %q", spec.Command)
	}
	if len(spec.Outputs) != 1 || spec.Outputs[0] != "out.txt" {
		t.Fatalf("outputs mismatch: %v", spec.Outputs)
	}
}

func TestLoad_UnknownExtensionFallsBack(t *testing.T) {
	p := writeSpecFile(t, "job.spec", `command: echo hi`)

	spec, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if spec.Command != "echo hi" {
		t.Fatalf("command mismatch: %q", spec.Command)
	}
}

func TestLoad_InvalidSpecFails(t *testing.T) {
	p := writeSpecFile(t, "job.yaml", `inputs: [a]`)

	if _, err := Load(p); err == nil {
		t.Fatal("expected validation error for spec without command")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromBytes_Empty(t *testing.T) {
	if _, err := LoadFromBytes(nil, "job.yaml"); err == nil {
		t.Fatal("expected error for empty spec")
	}
}
