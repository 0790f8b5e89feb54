package build

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/semver/v3"
	toml "github.com/pelletier/go-toml/v2"
)

//go:embed templates/*/Dockerfile
var embeddedTemplates embed.FS

const (
	DefaultNodeVersion   = "20"
	DefaultPythonVersion = "3.12"
)

// Runtime majors a generated descriptor may pin, newest first
var (
	supportedNodeVersions   = []string{"22", "20", "18"}
	supportedPythonVersions = []string{"3.13", "3.12", "3.11", "3.10"}
)

// TemplateData is passed to the descriptor templates
type TemplateData struct {
	NodeVersion   string
	PythonVersion string
}

// Materialize writes a Dockerfile for stacks that need a generated one. An existing
// Dockerfile is left untouched. It reports whether a file was written.
func Materialize(dir string, stack Stack, templateDir string) (bool, error) {
	if !stack.NeedsTemplate() {
		return false, nil
	}

	dest := filepath.Join(dir, "Dockerfile")
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}

	raw, err := loadTemplate(stack.TemplateName(), templateDir)
	if err != nil {
		return false, err
	}

	tmpl, err := template.New(stack.TemplateName()).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return false, fmt.Errorf("failed to parse template %s: %w", stack.TemplateName(), err)
	}

	data := TemplateData{
		NodeVersion:   ResolveNodeVersion(dir),
		PythonVersion: ResolvePythonVersion(dir),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return false, fmt.Errorf("failed to render template %s: %w", stack.TemplateName(), err)
	}

	if err := os.WriteFile(dest, buf.Bytes(), 0644); err != nil {
		return false, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	log.Debug("Materialized Dockerfile", "template", stack.TemplateName(),
		"node", data.NodeVersion, "python", data.PythonVersion)
	return true, nil
}

func loadTemplate(name, templateDir string) ([]byte, error) {
	if templateDir != "" {
		data, err := os.ReadFile(filepath.Join(templateDir, name, "Dockerfile"))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		return data, nil
	}

	data, err := embeddedTemplates.ReadFile("templates/" + name + "/Dockerfile")
	if err != nil {
		return nil, fmt.Errorf("no built-in template %s: %w", name, err)
	}
	return data, nil
}

// ResolveNodeVersion picks a supported Node major from package.json engines.node
func ResolveNodeVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return DefaultNodeVersion
	}

	var pkg struct {
		Engines struct {
			Node string `json:"node"`
		} `json:"engines"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil || strings.TrimSpace(pkg.Engines.Node) == "" {
		return DefaultNodeVersion
	}

	return pickVersion(pkg.Engines.Node, supportedNodeVersions, DefaultNodeVersion)
}

// ResolvePythonVersion reads pyproject.toml requires-python, then .python-version
func ResolvePythonVersion(dir string) string {
	if data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml")); err == nil {
		var pyproject struct {
			Project struct {
				RequiresPython string `toml:"requires-python"`
			} `toml:"project"`
		}
		if err := toml.Unmarshal(data, &pyproject); err == nil && pyproject.Project.RequiresPython != "" {
			return pickVersion(pep440ToSemver(pyproject.Project.RequiresPython), supportedPythonVersions, DefaultPythonVersion)
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, ".python-version")); err == nil {
		v, err := semver.NewVersion(strings.TrimSpace(string(data)))
		if err == nil {
			mm := fmt.Sprintf("%d.%d", v.Major(), v.Minor())
			for _, s := range supportedPythonVersions {
				if s == mm {
					return mm
				}
			}
		}
	}

	return DefaultPythonVersion
}

// pickVersion returns def when it satisfies the constraint, otherwise the newest
// supported version that does, otherwise def.
func pickVersion(constraint string, supported []string, def string) string {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return def
	}

	// Probe both ends of the series so ranges like "^20.5" and "<20.3" match.
	satisfies := func(series string) bool {
		probes := []string{series + ".0", series + ".999"}
		if !strings.Contains(series, ".") {
			probes = []string{series + ".0.0", series + ".999.0"}
		}
		for _, probe := range probes {
			v, err := semver.NewVersion(probe)
			if err == nil && c.Check(v) {
				return true
			}
		}
		return false
	}

	if satisfies(def) {
		return def
	}
	for _, s := range supported {
		if satisfies(s) {
			return s
		}
	}
	return def
}

var pep440Replacer = strings.NewReplacer("~=", "~", "==", "=", ".*", ".x")

func pep440ToSemver(spec string) string {
	return pep440Replacer.Replace(strings.TrimSpace(spec))
}
