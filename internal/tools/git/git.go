// Package git implements the git-backed tools:
//   - apply_patch: apply a unified diff to one workspace file
//   - git_status_summary: repository root, branch and porcelain status
//
// Both run git through the sandbox process engine. Neither tool reaches a
// remote, and interactive credential prompts are disabled.
package git

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds every git invocation.
const DefaultTimeout = 30 * time.Second

// gitEnv is overlaid on the inherited environment of every git process.
var gitEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"GIT_ASKPASS=",
	"SSH_ASKPASS=",
	"GIT_OPTIONAL_LOCKS=0",
}

var notGitRepository = regexp.MustCompile(`(?i)not a git repository`)

func isNotGitRepository(exitCode int, stderr string) bool {
	return exitCode != 0 && notGitRepository.MatchString(stderr)
}

// failureMessage appends trimmed stderr to prefix when there is any.
func failureMessage(prefix, stderr string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return prefix + ": " + s
	}
	return prefix
}

// fileDigest returns the hex SHA-256 of a file's content.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
