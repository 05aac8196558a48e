// Package gitcli builds repository snapshots by querying the git executable.
//
// Branch, tag, commit, and merge listings run concurrently. Branches that were
// merged and deleted are recovered from merge commit messages, with their
// creation time taken from the oldest commit they contributed.
package gitcli
