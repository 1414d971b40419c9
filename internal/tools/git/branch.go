package git

import "strings"

const (
	noCommitsYetPrefix   = "No commits yet on "
	initialCommitPrefix  = "Initial commit on "
	porcelainBranchBegin = "##"
)

// ParseBranch extracts the branch name from the "##" header line of
// `git status --porcelain=v1 --branch` output. ok is false for a detached
// HEAD or when the header is missing.
func ParseBranch(raw string) (branch string, ok bool) {
	first, _, _ := strings.Cut(raw, "\n")
	first = strings.TrimSuffix(first, "\r")
	if !strings.HasPrefix(first, porcelainBranchBegin) {
		return "", false
	}
	return branchFromHeader(strings.TrimSpace(first[len(porcelainBranchBegin):]))
}

func branchFromHeader(header string) (string, bool) {
	if header == "" || isDetached(header) {
		return "", false
	}
	for _, prefix := range []string{noCommitsYetPrefix, initialCommitPrefix} {
		if rest, found := strings.CutPrefix(header, prefix); found {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
	}

	name, _, _ := strings.Cut(header, "...")
	name = strings.TrimSpace(name)
	if name == "" || isDetached(name) {
		return "", false
	}
	return name, true
}

func isDetached(s string) bool {
	return s == "HEAD" || strings.HasPrefix(s, "HEAD ")
}
