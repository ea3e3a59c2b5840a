package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/cespare/xxhash/v2"
)

// Fingerprint generates a deterministic cache key for req.
// Format: METHOD|url|bodyhash|k1=v1&k2=v2
//
// Example:
//
//	GET|https://api.example.com/items|0|page=1&sort=name
//
// The body hash is xxhash64 in hex ("0" when there is no body). xxhash has no
// per-process seed, so fingerprints are stable across restarts.
func Fingerprint(req *request.Request) string {
	var b strings.Builder
	b.WriteString(string(req.Method))
	b.WriteByte('|')
	b.WriteString(req.URL)
	b.WriteByte('|')
	if len(req.Body) == 0 {
		b.WriteByte('0')
	} else {
		b.WriteString(strconv.FormatUint(xxhash.Sum64(req.Body), 16))
	}
	b.WriteByte('|')
	b.WriteString(canonicalQuery(req.Query))
	return b.String()
}

// canonicalQuery serializes params sorted by key with escaped values.
func canonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}
