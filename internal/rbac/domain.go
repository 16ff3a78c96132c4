package rbac

import "strings"

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Grants is the set of permission names a user effectively holds.
type Grants map[string]struct{}

// NewGrants builds a case-insensitive set from names.
func NewGrants(names []string) Grants {
	g := make(Grants, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			g[n] = struct{}{}
		}
	}
	return g
}

// Has reports whether perm is granted.
func (g Grants) Has(perm string) bool {
	_, ok := g[normalize(perm)]
	return ok
}

// Any reports whether at least one of perms is granted. An empty list passes.
func (g Grants) Any(perms []string) bool {
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if g.Has(p) {
			return true
		}
	}
	return false
}

// All reports whether every one of perms is granted.
func (g Grants) All(perms []string) bool {
	for _, p := range perms {
		if !g.Has(p) {
			return false
		}
	}
	return true
}

func normalize(perm string) string {
	return strings.ToLower(strings.TrimSpace(perm))
}

// requirement drops blanks so RequireAny(" ") behaves like no requirement.
func requirement(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p = normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
