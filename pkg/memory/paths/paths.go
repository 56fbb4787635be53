// Package paths validates and normalizes virtual memory paths. Every path
// handled by a storage backend is scoped under the reserved /memories root;
// validation runs before any existence check so malformed input never
// touches storage.
package paths

import (
	"fmt"
	"net/url"
	gopath "path"
	"strings"

	"github.com/entrhq/recall/pkg/memory/types"
)

// Normalize returns the canonical form of p: percent-decoding is NOT
// applied here (Validate handles decoding for its checks), but relative
// inputs are implicitly rooted under /memories, redundant separators and
// "." segments are collapsed, and a trailing separator is stripped except
// for the root itself. Normalize is idempotent.
func Normalize(p string) string {
	if p == "" {
		return types.Root
	}
	if !strings.HasPrefix(p, "/") {
		if p == "memories" || strings.HasPrefix(p, "memories/") {
			p = "/" + p
		} else {
			p = types.Root + "/" + p
		}
	}
	return gopath.Clean(p)
}

// Validate checks that p is a safe in-scope path. It fails when the
// percent-decoded (decode failure falls back silently to the raw string),
// normalized form does not start with /memories or still contains a ".."
// segment, or when the raw input contains a control character.
func Validate(p string) error {
	for i := 0; i < len(p); i++ {
		if p[i] < 0x20 {
			return &types.InvalidPathError{
				Path: p,
				Message: fmt.Sprintf(
					"Invalid path: control character 0x%02x at byte %d. Memory paths must be plain text under %s.",
					p[i], i, types.Root),
			}
		}
	}

	decoded, err := url.PathUnescape(p)
	if err != nil {
		decoded = p
	}
	norm := Normalize(decoded)

	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return &types.InvalidPathError{
				Path: p,
				Message: fmt.Sprintf(
					"Invalid path %q: traversal segments are not allowed. Use a path under %s.",
					p, types.Root),
			}
		}
	}
	if norm != types.Root && !strings.HasPrefix(norm, types.Root+"/") {
		return &types.InvalidPathError{
			Path: p,
			Message: fmt.Sprintf(
				"Invalid path %q: all memory paths must live under %s.",
				p, types.Root),
		}
	}
	return nil
}

// RelativeOf strips the /memories prefix, returning "" for the root.
func RelativeOf(p string) string {
	if p == types.Root {
		return ""
	}
	return strings.TrimPrefix(p, types.Root+"/")
}

// IsRoot reports whether the normalized form of p is the root directory.
func IsRoot(p string) bool {
	return Normalize(p) == types.Root
}
