package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Query kinds.
const (
	KindList   = "products:list"
	KindSearch = "products:search"
)

// ProductKey is the key of a single product snapshot.
func ProductKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// QueryKey returns a deterministic key for a page of results. Parameter order
// and empty values do not affect the key.
func QueryKey(kind string, params map[string]string, size int) string {
	return fmt.Sprintf("%s:%016x", kind, xxhash.Sum64String(Canonical(kind, params, size)))
}

// Canonical renders kind|k1=v1&k2=v2|size=N with parameters sorted by name.
func Canonical(kind string, params map[string]string, size int) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	b.WriteString("|size=")
	b.WriteString(strconv.Itoa(size))
	return b.String()
}
