package executor

import "fmt"

// Merge deep-merges source into target at path: null ⊕ x = x, objects
// merge per-key recursively, and arrays merge element-wise only when both
// sides have the same length (entity responses are aligned by
// representation index).
//
// Adapted with minimal changes from federation/executor/merger.go's
// Merge(target, source, path).
func Merge(target map[string]any, source any, path []string) error {
	if len(path) == 0 {
		sourceMap, ok := source.(map[string]any)
		if !ok {
			return fmt.Errorf("executor: merge source must be an object at root")
		}
		mergeKeys(target, sourceMap)
		return nil
	}

	key := path[0]
	rest := path[1:]

	value, exists := target[key]
	if !exists {
		if len(rest) > 0 {
			target[key] = make(map[string]any)
			value = target[key]
		} else {
			target[key] = source
			return nil
		}
	}

	if list, ok := value.([]any); ok {
		sourceList, ok := source.([]any)
		if !ok {
			return fmt.Errorf("executor: merge source must be a list at path %v, got %T", path, source)
		}
		if len(list) != len(sourceList) {
			return fmt.Errorf("executor: merge list length mismatch at path %v: target=%d source=%d", path, len(list), len(sourceList))
		}
		for i := range list {
			targetElem, ok := list[i].(map[string]any)
			if !ok {
				return fmt.Errorf("executor: merge target element %d at path %v is not an object", i, path)
			}
			if len(rest) == 0 {
				sourceElem, ok := sourceList[i].(map[string]any)
				if !ok {
					return fmt.Errorf("executor: merge source element %d at path %v is not an object", i, path)
				}
				mergeKeys(targetElem, sourceElem)
				continue
			}
			if err := Merge(targetElem, sourceList[i], rest); err != nil {
				return err
			}
		}
		return nil
	}

	if obj, ok := value.(map[string]any); ok {
		if len(rest) == 0 {
			sourceMap, ok := source.(map[string]any)
			if !ok {
				return fmt.Errorf("executor: merge source must be an object at path %v", path)
			}
			mergeKeys(obj, sourceMap)
			return nil
		}
		return Merge(obj, source, rest)
	}

	return fmt.Errorf("executor: merge unsupported target type %T at path %v", value, path)
}

// mergeKeys applies source's keys onto target per the null ⊕ x = x rule:
// a null from source never overwrites an existing non-null value, so a
// later-arriving fetch with nothing new to say about a field can't blank
// out an earlier fetch's answer.
func mergeKeys(target, source map[string]any) {
	for k, v := range source {
		if v == nil {
			if existing, has := target[k]; has && existing != nil {
				continue
			}
		}
		target[k] = v
	}
}
