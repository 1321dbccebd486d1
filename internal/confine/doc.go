// Package confine opens, creates and stats files beneath a single directory
// handle without ever letting path resolution leave that directory.
//
// Callers are expected to have already validated a path lexically (see the
// filesystem package). confine closes the window between that validation and
// the actual I/O: a symlink swapped into the tree after validation cannot be
// used to reach a file outside of the root.
package confine
