package git

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseBranchList turns `git branch -r --format=%(refname:short)` output
// into deduplicated, sorted branch names. Symbolic HEAD entries are
// dropped and the leading remote segment (origin/) is stripped.
func parseBranchList(out string) []string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "/HEAD") {
			continue
		}
		name := line
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	branches := make([]string, 0, len(seen))
	for b := range seen {
		branches = append(branches, b)
	}
	sort.Strings(branches)
	return branches
}

// parseAheadBehind parses `rev-list --left-right --count @{u}...HEAD`
// output: left column is commits only on the upstream (behind), right is
// commits only on HEAD (ahead).
func parseAheadBehind(out string) (behind, ahead int, err error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list count output: %q", strings.TrimSpace(out))
	}
	behind, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	ahead, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	return behind, ahead, nil
}

// countPorcelain counts the non-empty lines of `git status --porcelain`
// output, one per modified or untracked path.
func countPorcelain(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// worktreeHasBranch scans `git worktree list --porcelain` output for a
// worktree holding the given branch.
func worktreeHasBranch(out, branch string) bool {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "branch ") {
			continue
		}
		// Format: "branch refs/heads/<name>"
		ref := strings.TrimPrefix(line, "branch ")
		if strings.TrimPrefix(ref, "refs/heads/") == branch {
			return true
		}
	}
	return false
}
