package env

import "sync"

// branchLocks serializes the checked-out-elsewhere test and the worktree
// add for a given (base repository, branch) pair. Two concurrent creates
// targeting the same branch of the same base repository must not both
// pass the conflict check; one wins the worktree, the other observes a
// Conflict.
var branchLocks = struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}{m: make(map[string]*sync.Mutex)}

func lockBranch(baseRepo, branch string) func() {
	key := baseRepo + "\x00" + branch
	branchLocks.mu.Lock()
	l, ok := branchLocks.m[key]
	if !ok {
		l = &sync.Mutex{}
		branchLocks.m[key] = l
	}
	branchLocks.mu.Unlock()
	l.Lock()
	return l.Unlock
}
