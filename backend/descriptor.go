// Package backend describes storage locations and their engine capability
// envelope.
//
// Capability is a property of the protocol, not a runtime probe: the native
// engine's in-process, synchronous-I/O assumptions are violated by any
// backend requiring asynchronous or authenticated remote calls, regardless
// of current reachability.
package backend

import (
	"fmt"
	"strings"
)

// Engine identifies a query execution strategy.
type Engine uint8

const (
	// EngineNative is the embedded, synchronous engine. It reads sealed
	// segments directly from the local file system (mmap) and is only legal
	// against local backends.
	EngineNative Engine = iota + 1
	// EngineGeneric is the backend-agnostic engine. It streams segments
	// through the blobstore abstraction and runs against any backend.
	EngineGeneric
)

// String returns the stable name of the engine.
func (e Engine) String() string {
	switch e {
	case EngineNative:
		return "native"
	case EngineGeneric:
		return "generic"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// Descriptor describes a storage location's protocol and declares which
// query engine(s) it supports. It is a static capability fact.
type Descriptor struct {
	Protocol        string
	IsLocal         bool
	SupportsNative  bool
	SupportsGeneric bool
}

// CanRun reports whether the backend can legally run the given engine.
// This is a pure table lookup; it never contacts the network.
func (d Descriptor) CanRun(e Engine) bool {
	switch e {
	case EngineNative:
		return d.SupportsNative
	case EngineGeneric:
		return d.SupportsGeneric
	default:
		return false
	}
}

// capabilities is the static protocol capability table.
//
// The memory protocol is in-process but exposes no file paths, so the
// native (mmap) engine cannot run against it.
var capabilities = map[string]Descriptor{
	"file":   {Protocol: "file", IsLocal: true, SupportsNative: true, SupportsGeneric: true},
	"memory": {Protocol: "memory", IsLocal: true, SupportsNative: false, SupportsGeneric: true},
	"s3":     {Protocol: "s3", IsLocal: false, SupportsNative: false, SupportsGeneric: true},
	"minio":  {Protocol: "minio", IsLocal: false, SupportsNative: false, SupportsGeneric: true},
}

// ForProtocol returns the descriptor for a protocol name.
// Unknown protocols are treated as remote, generic-only backends.
func ForProtocol(protocol string) Descriptor {
	if d, ok := capabilities[protocol]; ok {
		return d
	}
	return Descriptor{Protocol: protocol, SupportsGeneric: true}
}

// ParseURI parses a storage URI into a descriptor and a backend-relative
// root (a directory for local backends, "bucket/prefix" for object stores).
//
// Plain paths without a scheme are treated as local file paths.
func ParseURI(uri string) (Descriptor, string, error) {
	if uri == "" {
		return Descriptor{}, "", fmt.Errorf("backend: empty URI")
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return ForProtocol("file"), uri, nil
	}
	switch scheme {
	case "file":
		if rest == "" {
			return Descriptor{}, "", fmt.Errorf("backend: %q has no path", uri)
		}
		return ForProtocol("file"), rest, nil
	case "memory":
		return ForProtocol("memory"), rest, nil
	case "s3", "minio":
		if rest == "" {
			return Descriptor{}, "", fmt.Errorf("backend: %q has no bucket", uri)
		}
		return ForProtocol(scheme), rest, nil
	default:
		return Descriptor{}, "", fmt.Errorf("backend: unsupported protocol %q", scheme)
	}
}
