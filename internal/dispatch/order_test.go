package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

func names(specs []ComponentSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

func TestSortByParentOrdersChildrenAfterParents(t *testing.T) {
	specs := []ComponentSpec{
		{Name: "CardBody", Parent: "Card"},
		{Name: "Card", Parent: "Page"},
		{Name: "Page"},
		{Name: "Footer"},
	}

	ordered, err := SortByParent(specs)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, s := range ordered {
		pos[s.Name] = i
	}
	assert.Less(t, pos["Page"], pos["Card"])
	assert.Less(t, pos["Card"], pos["CardBody"])
	assert.Len(t, ordered, 4)
}

func TestSortByParentDeterministic(t *testing.T) {
	specs := []ComponentSpec{
		{Name: "B"}, {Name: "A"}, {Name: "C", Parent: "B"},
	}

	first, err := SortByParent(specs)
	require.NoError(t, err)
	second, err := SortByParent(specs)
	require.NoError(t, err)

	assert.Equal(t, names(first), names(second))
}

func TestSortByParentDuplicateName(t *testing.T) {
	_, err := SortByParent([]ComponentSpec{{Name: "Card"}, {Name: "Card"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDispatchDuplicateName))
}

func TestSortByParentDanglingParent(t *testing.T) {
	_, err := SortByParent([]ComponentSpec{{Name: "Card", Parent: "Ghost"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDispatchDanglingDep))
}

func TestSortByParentCycle(t *testing.T) {
	_, err := SortByParent([]ComponentSpec{
		{Name: "A", Parent: "B"},
		{Name: "B", Parent: "A"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDispatchCyclicDep))
}

func TestLevels(t *testing.T) {
	ordered, err := SortByParent([]ComponentSpec{
		{Name: "Page"},
		{Name: "Footer"},
		{Name: "Card", Parent: "Page"},
		{Name: "CardBody", Parent: "Card"},
	})
	require.NoError(t, err)

	levels := Levels(ordered)
	require.Len(t, levels, 3)
	assert.ElementsMatch(t, []string{"Page", "Footer"}, names(levels[0]))
	assert.Equal(t, []string{"Card"}, names(levels[1]))
	assert.Equal(t, []string{"CardBody"}, names(levels[2]))
}
