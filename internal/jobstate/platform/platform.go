package platform

import (
	"fmt"
	"sort"
	"strings"
)

// AnyPlatform places no constraint on where a job runs.
const AnyPlatform = "ANY"

// Resolver maps a requested platform onto the concrete platforms able to run it.
type Resolver interface {
	Compatible(requested string) ([]string, error)
}

type UnknownPlatformError struct {
	Platform string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("platform %s is not known", e.Platform)
}

// StaticResolver resolves platforms from a fixed compatibility table.
type StaticResolver struct {
	table map[string][]string
}

// NewStaticResolver builds a resolver from a table of platform to compatible platforms.
// Every platform is compatible with itself.
func NewStaticResolver(table map[string][]string) *StaticResolver {
	normalized := make(map[string][]string, len(table))
	for name, compatible := range table {
		key := strings.ToLower(strings.TrimSpace(name))
		set := map[string]bool{key: true}
		for _, c := range compatible {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				set[c] = true
			}
		}
		list := make([]string, 0, len(set))
		for c := range set {
			list = append(list, c)
		}
		sort.Strings(list)
		normalized[key] = list
	}
	return &StaticResolver{table: normalized}
}

func (r *StaticResolver) Compatible(requested string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(requested))
	if key == "" || strings.EqualFold(key, AnyPlatform) {
		return []string{AnyPlatform}, nil
	}
	compatible, ok := r.table[key]
	if !ok {
		return nil, &UnknownPlatformError{Platform: requested}
	}
	return append([]string(nil), compatible...), nil
}
