package schema

// Selection is the resolved set of field-selection entries for one type.
// Keys are raw selection entries, so nested and member-attribute paths stay
// distinct from direct fields.
type Selection map[string]struct{}

// Contains reports whether the entry survived selection.
func (s Selection) Contains(entry string) bool {
	_, ok := s[entry]
	return ok
}

// ResolveSelection computes the effective audited entries for a descriptor.
//
// The include list seeds the set; an empty list or a "*" entry expands to
// every direct field. The exclude list is subtracted last, so it wins even
// against an explicit include or a wildcard expansion. The result reflects
// the descriptor's current field list on every call.
func ResolveSelection(d *Descriptor) Selection {
	selected := make(Selection, len(d.Fields)+len(d.Include))

	wildcard := len(d.Include) == 0
	for _, entry := range d.Include {
		if entry == Wildcard {
			wildcard = true
			continue
		}
		selected[entry] = struct{}{}
	}
	if wildcard {
		for _, f := range d.Fields {
			selected[f.Name] = struct{}{}
		}
	}

	for _, entry := range d.Exclude {
		delete(selected, entry)
	}
	return selected
}

// MemberPaths returns the parsed relation+__attr entries of the selection
// for the given relation field, in no particular order. The snapshot flow
// uses these to capture member attributes alongside membership itself.
func (s Selection) MemberPaths(relation string) []Path {
	var paths []Path
	for entry := range s {
		p := ParsePath(entry)
		if p.ToMany && p.Relation == relation {
			paths = append(paths, p)
		}
	}
	return paths
}
