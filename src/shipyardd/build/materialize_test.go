package build

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readDockerfile(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		t.Fatalf("failed to read Dockerfile: %v", err)
	}
	return string(data)
}

func TestMaterialize_BuiltInTemplates(t *testing.T) {
	tests := []struct {
		name  string
		stack Stack
		files map[string]string
		want  string
	}{
		{"nodejs default", StackNodeJS, map[string]string{"package.json": `{"name":"x"}`}, "FROM node:20-alpine"},
		{"nodejs engines", StackNodeJS, map[string]string{"package.json": `{"engines":{"node":"^22.1"}}`}, "FROM node:22-alpine"},
		{"python default", StackPython, map[string]string{"requirements.txt": "flask"}, "FROM python:3.12-slim"},
		{"python requires-python", StackPython, map[string]string{
			"requirements.txt": "",
			"pyproject.toml":   "[project]\nname = \"x\"\nrequires-python = \"~=3.11\"\n",
		}, "FROM python:3.11-slim"},
		{"python version file", StackPython, map[string]string{"requirements.txt": "", ".python-version": "3.10.4\n"}, "FROM python:3.10-slim"},
		{"react native", StackReactNative, map[string]string{"package.json": "{}", "app.json": "{}"}, "FROM nginx:alpine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTree(t, dir, tt.files)

			written, err := Materialize(dir, tt.stack, "")
			if err != nil {
				t.Fatalf("failed to materialize: %v", err)
			}
			if !written {
				t.Fatal("expected a Dockerfile to be written")
			}
			if got := readDockerfile(t, dir); !strings.Contains(got, tt.want) {
				t.Errorf("expected %q in:\n%s", tt.want, got)
			}
		})
	}
}

func TestMaterialize_KeepsExistingDockerfile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"package.json": "{}", "Dockerfile": "FROM scratch\n"})

	written, err := Materialize(dir, StackNodeJS, "")
	if err != nil {
		t.Fatalf("failed to materialize: %v", err)
	}
	if written {
		t.Fatal("existing Dockerfile must not be replaced")
	}
	if got := readDockerfile(t, dir); got != "FROM scratch\n" {
		t.Errorf("Dockerfile changed: %q", got)
	}
}

func TestMaterialize_SkipsDescriptorStacks(t *testing.T) {
	for _, stack := range []Stack{StackDockerfile, StackCompose, StackUnknown} {
		dir := t.TempDir()
		written, err := Materialize(dir, stack, "")
		if err != nil {
			t.Fatalf("failed to materialize %s: %v", stack, err)
		}
		if written {
			t.Errorf("stack %s must not get a generated Dockerfile", stack)
		}
	}
}

func TestMaterialize_TemplateDirOverride(t *testing.T) {
	templates := t.TempDir()
	writeTree(t, templates, map[string]string{"web-python/Dockerfile": "FROM custom/python:{{ .PythonVersion }}\n"})

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"requirements.txt": ""})

	if _, err := Materialize(dir, StackPython, templates); err != nil {
		t.Fatalf("failed to materialize: %v", err)
	}
	if got := readDockerfile(t, dir); got != "FROM custom/python:3.12\n" {
		t.Errorf("unexpected Dockerfile %q", got)
	}
}

func TestMaterialize_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	if _, err := Materialize(dir, StackNodeJS, t.TempDir()); err == nil {
		t.Fatal("expected an error for a missing template")
	}
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); !os.IsNotExist(err) {
		t.Error("no Dockerfile should be written when the template is missing")
	}
}

func TestPickVersion(t *testing.T) {
	tests := []struct {
		constraint string
		want       string
	}{
		{">=18", "20"},
		{"^22", "22"},
		{"18.x", "18"},
		{"<19", "18"},
		{">=16 <21", "20"},
		{"not a constraint", "20"},
		{">=30", "20"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			if got := pickVersion(tt.constraint, supportedNodeVersions, DefaultNodeVersion); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
