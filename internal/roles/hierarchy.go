package roles

// maxDepth bounds chain walks so corrupted data cannot hang a request.
const maxDepth = 64

// Hierarchy indexes parent links by role id.
type Hierarchy struct {
	parents map[int64]*int64
}

// NewHierarchy builds an index from a role snapshot.
func NewHierarchy(roles []Role) Hierarchy {
	parents := make(map[int64]*int64, len(roles))
	for _, r := range roles {
		parents[r.ID] = r.ParentRoleID
	}
	return Hierarchy{parents: parents}
}

// Contains reports whether id is known.
func (h Hierarchy) Contains(id int64) bool {
	_, ok := h.parents[id]
	return ok
}

// Ancestors lists the parent chain of id, nearest first.
func (h Hierarchy) Ancestors(id int64) []int64 {
	var out []int64
	seen := map[int64]bool{id: true}
	next := h.parents[id]
	for next != nil && len(out) < maxDepth {
		if seen[*next] {
			break
		}
		seen[*next] = true
		out = append(out, *next)
		next = h.parents[*next]
	}
	return out
}

// CheckParent validates giving role id the parent. Use id 0 for a role that
// does not exist yet.
func (h Hierarchy) CheckParent(id int64, parent *int64) error {
	if parent == nil {
		return nil
	}
	if !h.Contains(*parent) {
		return ErrParentNotFound
	}
	seen := make(map[int64]bool)
	for cur := parent; cur != nil; cur = h.parents[*cur] {
		if *cur == id || seen[*cur] || len(seen) >= maxDepth {
			return ErrCycle
		}
		seen[*cur] = true
	}
	return nil
}
