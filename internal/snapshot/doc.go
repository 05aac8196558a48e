// Package snapshot defines the normalized repository history consumed by the
// workflow classifier.
//
// A Snapshot is an immutable collection of branches, commits, and tags. It is
// assembled with a Builder and obtained from a Provider. Fixture files load
// through LoadFixture, while the gitcli and gogit subpackages read live
// repositories.
package snapshot
