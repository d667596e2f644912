package term

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	creackpty "github.com/creack/pty"
)

const (
	defaultCols uint16 = 80
	defaultRows uint16 = 24
)

// hostTerminalVars lists environment variables set by terminal emulators
// and multiplexers on the host. They must be removed, not overridden:
// a child that inherits them believes it is attached to the host's
// controlling terminal instead of its own PTY.
var hostTerminalVars = []string{
	"TMUX",
	"TMUX_PANE",
	"TERM_PROGRAM",
	"TERM_PROGRAM_VERSION",
	"TERM_SESSION_ID",
	"STY",                // GNU Screen
	"WT_SESSION",         // Windows Terminal
	"WEZTERM_EXECUTABLE", // WezTerm
	"ALACRITTY_SOCKET",   // Alacritty
	"KITTY_WINDOW_ID",    // Kitty
	"ITERM_SESSION_ID",   // iTerm2
	"MDVIEW_TERMINAL",    // a prior mdview session
	"MDVIEW_SESSION_ID",
}

// defaultShell returns the user's configured interactive shell.
func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

// resolveCwd substitutes the user's home directory for an empty or
// nonexistent working directory.
func resolveCwd(cwd string) string {
	if cwd == "" {
		cwd, _ = os.UserHomeDir()
		return cwd
	}
	if _, err := os.Stat(cwd); err != nil {
		cwd, _ = os.UserHomeDir()
	}
	return cwd
}

// normalizeGeometry substitutes the house defaults for zero dimensions.
func normalizeGeometry(cols, rows uint16) (uint16, uint16) {
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}
	return cols, rows
}

// buildEnv constructs the child environment for a PTY session. It starts
// from the current process environment, strips host terminal identity
// variables, and layers in terminal type, geometry, locale, color
// capability, and mdview session identification.
func buildEnv(sessionID string, cols, rows uint16) []string {
	envMap := make(map[string]string, 64)
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	for _, key := range hostTerminalVars {
		delete(envMap, key)
	}

	envMap["MDVIEW_TERMINAL"] = "1"
	envMap["MDVIEW_SESSION_ID"] = sessionID

	envMap["TERM"] = "xterm-256color"
	envMap["COLUMNS"] = fmt.Sprintf("%d", cols)
	envMap["LINES"] = fmt.Sprintf("%d", rows)

	// UTF-8 locale for curses and charm-style TUI programs.
	if envMap["LANG"] == "" {
		envMap["LANG"] = "en_US.UTF-8"
	}
	if envMap["LC_ALL"] == "" {
		envMap["LC_ALL"] = "en_US.UTF-8"
	}

	envMap["COLORTERM"] = "truecolor"
	// Light foreground on dark background hint for termenv-style detection.
	envMap["COLORFGBG"] = "15;0"
	// UTF-8 box drawing instead of the ACS fallback in ncurses.
	envMap["NCURSES_NO_UTF8_ACS"] = "1"
	// Libraries that auto-detect a non-tty stdout and disable color.
	envMap["FORCE_COLOR"] = "1"

	env := make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	return env
}

// spawnProcess starts the user's shell (or the given command via a login
// shell, so shell init files still run) attached to a new PTY of the
// given size. On failure nothing is left allocated.
func spawnProcess(sessionID, cwd string, cols, rows uint16, command string) (*os.File, *exec.Cmd, error) {
	shell := defaultShell()

	var cmd *exec.Cmd
	if command != "" {
		cmd = exec.Command(shell, "-l", "-c", command)
	} else {
		cmd = exec.Command(shell, "-l")
	}
	cmd.Dir = cwd
	cmd.Env = buildEnv(sessionID, cols, rows)

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start PTY for session %q: %w", sessionID, err)
	}
	return ptmx, cmd, nil
}
