// Package fs provides a minimal file system abstraction so that storage
// code can be exercised against fakes in tests.
package fs
