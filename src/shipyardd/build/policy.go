package build

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity classifies a policy finding
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityViolation Severity = "violation"
)

// PrivilegedPolicy decides what a privileged compose service does to the build
type PrivilegedPolicy string

const (
	// PrivilegedBlock aborts the build
	PrivilegedBlock PrivilegedPolicy = "block"
	// PrivilegedWarn records a warning and lets the build continue
	PrivilegedWarn PrivilegedPolicy = "warn"
)

// ParsePrivilegedPolicy maps a config value to a policy, defaulting to block
func ParsePrivilegedPolicy(s string) PrivilegedPolicy {
	if PrivilegedPolicy(strings.ToLower(strings.TrimSpace(s))) == PrivilegedWarn {
		return PrivilegedWarn
	}
	return PrivilegedBlock
}

// Policy rule identifiers
const (
	RulePrivileged   = "privileged"
	RuleUserRoot     = "user-root"
	RuleEngineSocket = "engine-socket"
	RuleHostNetwork  = "host-network"
	RuleHostPID      = "host-pid"
	RuleCapAdd       = "cap-add"
	RuleComposeParse = "compose-parse"
)

// Finding is one result of the security policy check
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Service  string   `json:"service,omitempty"`
	Message  string   `json:"message"`
}

// Blocking reports whether the finding aborts the build
func (f Finding) Blocking() bool {
	return f.Severity == SeverityViolation
}

// String renders the finding as a build log line
func (f Finding) String() string {
	label := "SECURITY WARNING"
	if f.Blocking() {
		label = "SECURITY VIOLATION"
	}
	return fmt.Sprintf("%s [%s]: %s", label, f.Rule, f.Message)
}

// Report collects the findings for one workspace
type Report struct {
	Findings []Finding
}

// Blocked reports whether any finding aborts the build
func (r Report) Blocked() bool {
	for _, f := range r.Findings {
		if f.Blocking() {
			return true
		}
	}
	return false
}

// Lines renders every finding as a log line
func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		lines = append(lines, f.String())
	}
	return lines
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Privileged  flexBool        `yaml:"privileged"`
	User        string          `yaml:"user"`
	Volumes     []composeVolume `yaml:"volumes"`
	NetworkMode string          `yaml:"network_mode"`
	PID         string          `yaml:"pid"`
	CapAdd      []string        `yaml:"cap_add"`
}

// flexBool accepts YAML booleans as well as quoted "true"/"false" strings
type flexBool bool

func (b *flexBool) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(value.Value)))
	if err != nil {
		*b = false
		return nil
	}
	*b = flexBool(v)
	return nil
}

// composeVolume accepts short ("src:dst[:mode]") and long ({source, target}) syntax
type composeVolume struct {
	Source string
	Target string
}

func (v *composeVolume) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parts := strings.SplitN(value.Value, ":", 3)
		v.Source = parts[0]
		if len(parts) > 1 {
			v.Target = parts[1]
		}
		return nil
	case yaml.MappingNode:
		var long struct {
			Source string `yaml:"source"`
			Target string `yaml:"target"`
		}
		if err := value.Decode(&long); err != nil {
			return err
		}
		v.Source, v.Target = long.Source, long.Target
		return nil
	default:
		return fmt.Errorf("unsupported volume entry at line %d", value.Line)
	}
}

var engineSockets = []string{"docker.sock", "podman.sock"}

func referencesEngineSocket(s string) bool {
	for _, sock := range engineSockets {
		if strings.Contains(s, sock) {
			return true
		}
	}
	return false
}

// CheckCompose inspects compose file content. A file that cannot be parsed is a violation.
func CheckCompose(data []byte, policy PrivilegedPolicy) []Finding {
	var compose composeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		return []Finding{{
			Rule:     RuleComposeParse,
			Severity: SeverityViolation,
			Message:  fmt.Sprintf("could not parse compose file: %v", err),
		}}
	}

	var findings []Finding
	for _, name := range slices.Sorted(maps.Keys(compose.Services)) {
		svc := compose.Services[name]

		if svc.Privileged {
			sev := SeverityViolation
			msg := fmt.Sprintf("service '%s' is privileged, build aborted", name)
			if policy == PrivilegedWarn {
				sev = SeverityWarning
				msg = fmt.Sprintf("service '%s' is privileged", name)
			}
			findings = append(findings, Finding{Rule: RulePrivileged, Severity: sev, Service: name, Message: msg})
		}

		if isRootUser(svc.User) {
			findings = append(findings, Finding{
				Rule: RuleUserRoot, Severity: SeverityWarning, Service: name,
				Message: fmt.Sprintf("service '%s' runs as root", name),
			})
		}

		for _, vol := range svc.Volumes {
			if referencesEngineSocket(vol.Source) || referencesEngineSocket(vol.Target) {
				findings = append(findings, Finding{
					Rule: RuleEngineSocket, Severity: SeverityWarning, Service: name,
					Message: fmt.Sprintf("service '%s' mounts the container engine socket (%s)", name, vol.Source),
				})
			}
		}

		if strings.EqualFold(svc.NetworkMode, "host") {
			findings = append(findings, Finding{
				Rule: RuleHostNetwork, Severity: SeverityWarning, Service: name,
				Message: fmt.Sprintf("service '%s' uses the host network", name),
			})
		}

		if strings.EqualFold(svc.PID, "host") {
			findings = append(findings, Finding{
				Rule: RuleHostPID, Severity: SeverityWarning, Service: name,
				Message: fmt.Sprintf("service '%s' shares the host PID namespace", name),
			})
		}

		for _, capability := range svc.CapAdd {
			c := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(capability)), "CAP_")
			if c == "SYS_ADMIN" || c == "ALL" {
				findings = append(findings, Finding{
					Rule: RuleCapAdd, Severity: SeverityWarning, Service: name,
					Message: fmt.Sprintf("service '%s' adds capability %s", name, capability),
				})
			}
		}
	}

	return findings
}

var userRootPattern = regexp.MustCompile(`(?im)^\s*USER\s+(\S+)`)

// CheckDockerfile inspects Dockerfile text. USER root is only ever a warning.
func CheckDockerfile(text string) []Finding {
	var findings []Finding
	for _, m := range userRootPattern.FindAllStringSubmatch(text, -1) {
		if isRootUser(m[1]) {
			findings = append(findings, Finding{
				Rule:     RuleUserRoot,
				Severity: SeverityWarning,
				Message:  "Dockerfile uses USER root",
			})
			break
		}
	}
	return findings
}

func isRootUser(user string) bool {
	name := strings.TrimSpace(user)
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return name == "root" || name == "0"
}

// CheckWorkspace runs every check against the build descriptors found in dir
func CheckWorkspace(dir string, policy PrivilegedPolicy) (Report, error) {
	var report Report

	if data, err := os.ReadFile(filepath.Join(dir, "Dockerfile")); err == nil {
		report.Findings = append(report.Findings, CheckDockerfile(string(data))...)
	} else if !os.IsNotExist(err) {
		return report, fmt.Errorf("failed to read Dockerfile: %w", err)
	}

	if path := FindComposeFile(dir); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return report, fmt.Errorf("failed to read compose file: %w", err)
		}
		report.Findings = append(report.Findings, CheckCompose(data, policy)...)
	}

	return report, nil
}
