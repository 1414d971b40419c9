package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ShellMode selects how a logical command becomes an executable invocation.
type ShellMode string

const (
	// ShellModeDefault wraps the command in the platform's default shell
	// (PowerShell on Windows, a zsh login shell on macOS). Other platforms
	// run the tokens as given.
	ShellModeDefault ShellMode = "default"

	// ShellModeDirect resolves the first token to an executable file.
	ShellModeDirect ShellMode = "direct"
)

var defaultWindowsPathExt = []string{".COM", ".EXE", ".BAT", ".CMD"}

// ResolveRequest describes a command to resolve.
type ResolveRequest struct {
	Cwd       string
	Command   []string
	ShellMode ShellMode
	Platform  Platform

	// Getenv reads PATH and PATHEXT. Nil = os.Getenv.
	Getenv func(string) string
}

// ResolveCommand turns a logical command into the argv to execute.
// Direct mode fails with ErrCommandNotFound when no executable matches.
func ResolveCommand(req ResolveRequest) ([]string, error) {
	if len(req.Command) == 0 {
		return nil, ErrEmptyCommand
	}
	getenv := req.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if req.ShellMode != ShellModeDirect {
		switch req.Platform {
		case PlatformWindows:
			return []string{"pwsh.exe", "-NoLogo", "-NoProfile", "-Command", powerShellCommandLine(req.Command)}, nil
		case PlatformDarwin:
			return []string{"zsh", "-lc", posixCommandLine(req.Command)}, nil
		default:
			out := make([]string, len(req.Command))
			copy(out, req.Command)
			return out, nil
		}
	}

	resolved, err := resolveExecutable(req.Command[0], req.Cwd, req.Platform, getenv)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(req.Command))
	out = append(out, resolved)
	return append(out, req.Command[1:]...), nil
}

func resolveExecutable(name, cwd string, platform Platform, getenv func(string) string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		candidate := name
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(cwd, candidate)
		}
		if isExecutableFile(candidate, platform) {
			return candidate, nil
		}
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}

	var dirs []string
	for _, dir := range filepath.SplitList(getenv("PATH")) {
		if dir = strings.TrimSpace(dir); dir != "" {
			dirs = append(dirs, dir)
		}
	}

	var candidates []string
	if platform == PlatformWindows {
		exts := windowsPathExt(getenv("PATHEXT"))
		upper := strings.ToUpper(name)
		hasKnownExt := false
		for _, ext := range exts {
			if strings.HasSuffix(upper, ext) {
				hasKnownExt = true
				break
			}
		}
		for _, dir := range dirs {
			if hasKnownExt {
				candidates = append(candidates, filepath.Join(dir, name))
			}
			for _, ext := range exts {
				candidates = append(candidates, filepath.Join(dir, name+ext))
			}
		}
	} else {
		for _, dir := range dirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	for _, c := range candidates {
		if isExecutableFile(c, platform) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
}

func windowsPathExt(raw string) []string {
	if raw == "" {
		return defaultWindowsPathExt
	}
	var exts []string
	for _, ext := range strings.Split(raw, ";") {
		if ext = strings.TrimSpace(ext); ext != "" {
			exts = append(exts, strings.ToUpper(ext))
		}
	}
	return exts
}

// isExecutableFile reports whether path is a regular file the current user may
// execute. On Windows existence is enough.
func isExecutableFile(path string, platform Platform) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if platform == PlatformWindows {
		return true
	}
	return accessExecutable(path)
}

// quotePosix single-quotes a token for sh-compatible shells.
func quotePosix(token string) string {
	if token == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(token, "'", `'"'"'`) + "'"
}

// quotePowerShell single-quotes a token for PowerShell, where '' escapes '.
func quotePowerShell(token string) string {
	return "'" + strings.ReplaceAll(token, "'", "''") + "'"
}

func posixCommandLine(command []string) string {
	quoted := make([]string, len(command))
	for i, tok := range command {
		quoted[i] = quotePosix(tok)
	}
	return strings.Join(quoted, " ")
}

func powerShellCommandLine(command []string) string {
	quoted := make([]string, len(command))
	for i, tok := range command {
		quoted[i] = quotePowerShell(tok)
	}
	return "& " + strings.Join(quoted, " ")
}
