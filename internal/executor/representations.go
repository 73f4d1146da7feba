package executor

// NavigatePath walks data along path, expanding at every "@" segment by
// recursing into each array element, and returns every object reached.
// Grounded on executor_v2.go's navigatePathWithArrays.
func NavigatePath(data map[string]any, path []string) []map[string]any {
	current := []map[string]any{data}
	for _, segment := range path {
		var next []map[string]any
		if segment == "@" {
			for _, obj := range current {
				// "@" itself never appears as a map key; the preceding
				// segment already produced the list this step flattens.
				next = append(next, obj)
			}
			current = next
			continue
		}
		for _, obj := range current {
			v, ok := obj[segment]
			if !ok || v == nil {
				continue
			}
			switch val := v.(type) {
			case map[string]any:
				next = append(next, val)
			case []any:
				for _, item := range val {
					if m, ok := item.(map[string]any); ok {
						next = append(next, m)
					}
				}
			}
		}
		current = next
	}
	return current
}

// BuildRepresentation constructs one `{__typename, ...keyFields}` object
// from a reached entity object, preserving index order so the subgraph's
// _entities[i] lines up with the source path.
func BuildRepresentation(entity map[string]any, typeName string, keyFields []string) map[string]any {
	rep := map[string]any{"__typename": typeName}
	for _, key := range keyFields {
		if v, ok := entity[key]; ok {
			rep[key] = v
		}
	}
	return rep
}

// ExtractRepresentations gathers the representation array for a Fetch with
// Requires set: every object reached by navigating path, each projected
// down to its key fields via BuildRepresentation.
func ExtractRepresentations(data map[string]any, path []string, typeName string, keyFields []string) []map[string]any {
	entities := NavigatePath(data, path)
	reps := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		reps = append(reps, BuildRepresentation(e, typeName, keyFields))
	}
	return reps
}

// MergeEntityResults writes the `_entities` response array back into root
// at path, always merging relative to the root value rather than an
// intermediate parent — entity responses are addressed by the full
// absolute path from the operation root, matching executor_v2.go's
// mergeEntityResults/mergeIntoNestedArrays.
func MergeEntityResults(root map[string]any, path []string, entities []any) error {
	cursor := &entityCursor{entities: entities}
	return mergeAtPath(root, path, cursor)
}

// entityCursor tracks how many _entities results have been consumed as
// MergeEntityResults walks possibly-nested "@" segments; a plain int
// can't thread through recursive calls across sibling array elements, so
// the counter is shared by reference.
type entityCursor struct {
	entities []any
	next     int
}

func (c *entityCursor) take() (map[string]any, bool) {
	if c.next >= len(c.entities) {
		return nil, false
	}
	em, ok := c.entities[c.next].(map[string]any)
	c.next++
	return em, ok
}

func mergeAtPath(node map[string]any, path []string, cursor *entityCursor) error {
	if len(path) == 0 {
		return nil
	}

	segment := path[0]
	rest := path[1:]

	v, ok := node[segment]
	if !ok {
		return nil
	}

	if len(rest) > 0 && rest[0] == "@" {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		afterList := rest[1:]
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if len(afterList) == 0 {
				if em, ok := cursor.take(); ok {
					for k, val := range em {
						m[k] = val
					}
				}
				continue
			}
			if err := mergeAtPath(m, afterList, cursor); err != nil {
				return err
			}
		}
		return nil
	}

	if len(rest) == 0 {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if em, ok := cursor.take(); ok {
			for k, val := range em {
				m[k] = val
			}
		}
		return nil
	}

	if m, ok := v.(map[string]any); ok {
		return mergeAtPath(m, rest, cursor)
	}
	return nil
}
