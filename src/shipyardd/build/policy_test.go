package build

import (
	"os"
	"path/filepath"
	"testing"
)

func findingRules(findings []Finding) map[string]Severity {
	out := make(map[string]Severity, len(findings))
	for _, f := range findings {
		out[f.Rule] = f.Severity
	}
	return out
}

func TestCheckCompose_PrivilegedBlocksByDefault(t *testing.T) {
	compose := []byte(`
services:
  web:
    image: nginx
    privileged: true
`)

	findings := CheckCompose(compose, PrivilegedBlock)
	report := Report{Findings: findings}
	if !report.Blocked() {
		t.Fatalf("expected privileged service to block, got %+v", findings)
	}
	if findings[0].Service != "web" {
		t.Errorf("expected finding for service web, got %q", findings[0].Service)
	}
}

func TestCheckCompose_PrivilegedWarnPolicy(t *testing.T) {
	compose := []byte("services:\n  web:\n    privileged: \"true\"\n")

	report := Report{Findings: CheckCompose(compose, PrivilegedWarn)}
	if report.Blocked() {
		t.Fatal("warn policy must not block")
	}
	if findingRules(report.Findings)[RulePrivileged] != SeverityWarning {
		t.Fatalf("expected privileged warning, got %+v", report.Findings)
	}
}

func TestCheckCompose_Warnings(t *testing.T) {
	compose := []byte(`
services:
  api:
    user: "root:root"
    network_mode: host
    pid: host
    cap_add: [SYS_ADMIN]
    volumes:
      - /var/run/docker.sock:/var/run/docker.sock
  worker:
    volumes:
      - type: bind
        source: /run/podman/podman.sock
        target: /sock
`)

	findings := CheckCompose(compose, PrivilegedBlock)
	if (Report{Findings: findings}).Blocked() {
		t.Fatalf("warnings must not block: %+v", findings)
	}

	rules := findingRules(findings)
	for _, rule := range []string{RuleUserRoot, RuleHostNetwork, RuleHostPID, RuleCapAdd, RuleEngineSocket} {
		if rules[rule] != SeverityWarning {
			t.Errorf("expected %s warning, got %+v", rule, findings)
		}
	}

	sockets := 0
	for _, f := range findings {
		if f.Rule == RuleEngineSocket {
			sockets++
		}
	}
	if sockets != 2 {
		t.Errorf("expected a socket warning per service, got %d", sockets)
	}
}

func TestCheckCompose_UnparseableBlocks(t *testing.T) {
	findings := CheckCompose([]byte("services: [\n"), PrivilegedWarn)
	if len(findings) != 1 || findings[0].Rule != RuleComposeParse || !findings[0].Blocking() {
		t.Fatalf("expected a blocking parse finding, got %+v", findings)
	}
}

func TestCheckDockerfile(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"user root", "FROM alpine\nUSER root\nRUN id\n", 1},
		{"user zero with group", "FROM alpine\n  user 0:0\n", 1},
		{"unprivileged user", "FROM alpine\nUSER app\n", 0},
		{"no user", "FROM alpine\nRUN echo root\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := CheckDockerfile(tt.text)
			if len(findings) != tt.want {
				t.Fatalf("expected %d findings, got %+v", tt.want, findings)
			}
			for _, f := range findings {
				if f.Blocking() {
					t.Errorf("USER root must only warn")
				}
			}
		})
	}
}

func TestCheckWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine\nUSER root\n"), 0644); err != nil {
		t.Fatalf("failed to write Dockerfile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yaml"), []byte("services:\n  a:\n    privileged: true\n"), 0644); err != nil {
		t.Fatalf("failed to write compose file: %v", err)
	}

	report, err := CheckWorkspace(dir, PrivilegedBlock)
	if err != nil {
		t.Fatalf("failed to check workspace: %v", err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %+v", report.Findings)
	}
	if !report.Blocked() {
		t.Error("expected the report to block")
	}
	if len(report.Lines()) != 2 {
		t.Errorf("expected one line per finding")
	}
}

func TestParsePrivilegedPolicy(t *testing.T) {
	if ParsePrivilegedPolicy(" WARN ") != PrivilegedWarn {
		t.Error("expected warn")
	}
	for _, s := range []string{"", "block", "bogus"} {
		if ParsePrivilegedPolicy(s) != PrivilegedBlock {
			t.Errorf("expected %q to map to block", s)
		}
	}
}
