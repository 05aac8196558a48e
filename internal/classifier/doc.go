// Package classifier infers the branching workflow of a repository from a
// snapshot of its branches, commits, and tags, and detects workflow migrations
// between a recent and a historical time window.
package classifier
