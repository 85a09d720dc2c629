// Package hash provides checksum helpers used by the segment format.
package hash
