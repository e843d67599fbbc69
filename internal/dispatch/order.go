package dispatch

import (
	"fmt"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// SortByParent orders specs so every component appears after its parent.
// Specs form a single-parent forest; duplicate names, dangling parent
// references, and cycles are rejected loudly rather than skipped.
func SortByParent(specs []ComponentSpec) ([]ComponentSpec, error) {
	byName := make(map[string]ComponentSpec, len(specs))
	for _, spec := range specs {
		if _, dup := byName[spec.Name]; dup {
			return nil, errors.New(errors.ErrCodeDispatchDuplicateName,
				fmt.Sprintf("duplicate component name %q", spec.Name))
		}
		byName[spec.Name] = spec
	}

	for _, spec := range specs {
		if spec.Parent != "" {
			if _, ok := byName[spec.Parent]; !ok {
				return nil, errors.New(errors.ErrCodeDispatchDanglingDep,
					fmt.Sprintf("component %q references unknown parent %q", spec.Name, spec.Parent))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(specs))
	ordered := make([]ComponentSpec, 0, len(specs))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.New(errors.ErrCodeDispatchCyclicDep,
				fmt.Sprintf("cyclic parent chain through component %q", name))
		}
		state[name] = visiting

		spec := byName[name]
		if spec.Parent != "" {
			if err := visit(spec.Parent); err != nil {
				return err
			}
		}

		state[name] = done
		ordered = append(ordered, spec)
		return nil
	}

	// Visit in input order so the result is deterministic
	for _, spec := range specs {
		if err := visit(spec.Name); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}

// Levels groups ordered specs by depth in the parent forest. Roots are
// level 0, their direct children level 1, and so on. Every component in a
// level has all its ancestors in earlier levels.
func Levels(ordered []ComponentSpec) [][]ComponentSpec {
	depth := make(map[string]int, len(ordered))
	var levels [][]ComponentSpec

	for _, spec := range ordered {
		d := 0
		if spec.Parent != "" {
			d = depth[spec.Parent] + 1
		}
		depth[spec.Name] = d

		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], spec)
	}

	return levels
}
