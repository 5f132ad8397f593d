// Package keys builds cache keys and short key digests.
//
// A key names a resource plus its parameters. Parameters are sorted so the same
// parameterization always produces the same key, and distinct ones never collide.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Separator joins a resource and its parameter segments.
const Separator = "::"

// Build returns resource followed by the sorted name=value parameters.
// Empty parameter values are kept so "status=" differs from no status filter.
func Build(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(resource)
	for _, k := range names {
		b.WriteString(Separator)
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

// Join builds a path-shaped key: Join("groups", "g1", "board") == "/groups/g1/board".
// Path keys make substring invalidation behave: every sub-resource of
// /groups/g1/board contains that prefix.
func Join(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}

// Hash returns the first 16 hex chars of sha256(key). Used to redact keys in logs.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

var escaper = strings.NewReplacer("%", "%25", ":", "%3A", "=", "%3D")

func escape(s string) string { return escaper.Replace(s) }
