// Package mmap provides read-only memory mapping of sealed segment files
// for the native query engine's zero-copy local read path.
package mmap
