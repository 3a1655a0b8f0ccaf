package schemaspec

import (
	"fmt"
	"sort"
	"strings"
)

// Order returns classes sorted so every class follows the parents
// declared in the same slice. Declaration order is kept where the
// inheritance allows it. A cycle yields a ValidationError with code
// ErrInheritanceCycle naming its members.
func Order(classes []ClassSpec) ([]ClassSpec, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c.Name] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(classes))
	out := make([]ClassSpec, 0, len(classes))
	var path []string

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return cycleError(path, classes[i].Name)
		}
		state[i] = visiting
		path = append(path, classes[i].Name)
		for _, p := range classes[i].Parents {
			j, ok := index[p]
			if !ok {
				continue // an existing class, or unknown and reported elsewhere
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		out = append(out, classes[i])
		return nil
	}

	for i := range classes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cycleError(path []string, back string) error {
	start := 0
	for i, n := range path {
		if n == back {
			start = i
			break
		}
	}
	members := append(append([]string(nil), path[start:]...), back)
	sorted := append([]string(nil), members[:len(members)-1]...)
	sort.Strings(sorted)
	return ValidationError{
		Field:   "class." + sorted[0] + ".parents",
		Code:    ErrInheritanceCycle,
		Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(members, " -> ")),
	}
}
