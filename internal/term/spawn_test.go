package term

import (
	"os"
	"strings"
	"testing"
)

// TestBuildEnvScrubsHostTerminalVars sets a host terminal identity
// variable and a stale mdview session marker, then verifies both are
// absent from the child environment while the fresh marker is present.
func TestBuildEnvScrubsHostTerminalVars(t *testing.T) {
	t.Setenv("TERM_SESSION_ID", "host-terminal-1234")
	t.Setenv("TMUX", "/tmp/tmux-1000/default,42,0")
	t.Setenv("MDVIEW_SESSION_ID", "stale-session")

	env := buildEnv("fresh-session", 80, 24)

	envMap := make(map[string]string, len(env))
	for _, entry := range env {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	if _, ok := envMap["TERM_SESSION_ID"]; ok {
		t.Error("TERM_SESSION_ID leaked into child environment")
	}
	if _, ok := envMap["TMUX"]; ok {
		t.Error("TMUX leaked into child environment")
	}
	if got := envMap["MDVIEW_SESSION_ID"]; got != "fresh-session" {
		t.Errorf("MDVIEW_SESSION_ID = %q, want %q", got, "fresh-session")
	}
	if envMap["MDVIEW_TERMINAL"] != "1" {
		t.Error("MDVIEW_TERMINAL marker missing")
	}
}

func TestBuildEnvTerminalSettings(t *testing.T) {
	env := buildEnv("s1", 132, 43)

	envMap := make(map[string]string, len(env))
	for _, entry := range env {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	want := map[string]string{
		"TERM":                "xterm-256color",
		"COLUMNS":             "132",
		"LINES":               "43",
		"COLORTERM":           "truecolor",
		"COLORFGBG":           "15;0",
		"NCURSES_NO_UTF8_ACS": "1",
		"FORCE_COLOR":         "1",
	}
	for k, v := range want {
		if envMap[k] != v {
			t.Errorf("%s = %q, want %q", k, envMap[k], v)
		}
	}
	if envMap["LANG"] == "" {
		t.Error("LANG not set")
	}
	if envMap["LC_ALL"] == "" {
		t.Error("LC_ALL not set")
	}
}

func TestResolveCwdFallsBackToHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}

	if got := resolveCwd(""); got != home {
		t.Errorf("resolveCwd(\"\") = %q, want %q", got, home)
	}
	if got := resolveCwd("/definitely/not/a/real/path"); got != home {
		t.Errorf("resolveCwd(nonexistent) = %q, want %q", got, home)
	}
	if got := resolveCwd("/tmp"); got != "/tmp" {
		t.Errorf("resolveCwd(/tmp) = %q, want /tmp", got)
	}
}

func TestNormalizeGeometry(t *testing.T) {
	cols, rows := normalizeGeometry(0, 0)
	if cols != 80 || rows != 24 {
		t.Errorf("normalizeGeometry(0, 0) = %dx%d, want 80x24", cols, rows)
	}

	cols, rows = normalizeGeometry(120, 0)
	if cols != 120 || rows != 24 {
		t.Errorf("normalizeGeometry(120, 0) = %dx%d, want 120x24", cols, rows)
	}

	cols, rows = normalizeGeometry(100, 50)
	if cols != 100 || rows != 50 {
		t.Errorf("normalizeGeometry(100, 50) = %dx%d, want 100x50", cols, rows)
	}
}

func TestDefaultShellPrefersEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	if got := defaultShell(); got != "/bin/zsh" {
		t.Errorf("defaultShell() = %q, want /bin/zsh", got)
	}
}
