package views

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegistry(t *testing.T, defs ...Definition) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, d := range defs {
		require.NoError(t, r.Register(d))
	}
	return r
}

func names(defs []Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func TestRegisterDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "a", Body: "SELECT 1"}))

	err := r.Register(Definition{Name: "a", Body: "SELECT 2"})
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterEmptyName(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Definition{Name: "  ", Body: "SELECT 1"}))
}

func TestRegisterValidates(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{
			name: "index on plain view",
			def:  Definition{Name: "a", Body: "SELECT 1", Indexes: []Index{{Name: "a_id", Columns: []string{"id"}}}},
		},
		{
			name: "concurrently without unique index",
			def:  Definition{Name: "a", Body: "SELECT 1", Materialized: true, Concurrently: true},
		},
		{
			name: "unknown field type",
			def:  Definition{Name: "a", Body: "SELECT 1", Fields: Fields{{Name: "id", Type: "int4range"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "view a:")
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestDefinitionsAreCopies(t *testing.T) {
	r := mustRegistry(t, Definition{Name: "a", Dependencies: []Reference{TableRef("t")}})

	defs := r.Definitions()
	defs[0].Dependencies[0].Name = "changed"

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "t", got.Dependencies[0].Name)
}

func TestSort(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
		want []string
	}{
		{
			name: "dependency first",
			defs: []Definition{
				{Name: "A", Body: "SELECT 1 AS id"},
				{Name: "B", Body: "SELECT id FROM A", Dependencies: []Reference{ViewRef("A")}},
			},
			want: []string{"A", "B"},
		},
		{
			name: "registered before dependency",
			defs: []Definition{
				{Name: "B", Dependencies: []Reference{ViewRef("A")}},
				{Name: "A"},
			},
			want: []string{"A", "B"},
		},
		{
			name: "independent views keep registration order",
			defs: []Definition{
				{Name: "z"},
				{Name: "m"},
				{Name: "a"},
			},
			want: []string{"z", "m", "a"},
		},
		{
			name: "external tables do not constrain order",
			defs: []Definition{
				{Name: "x", Dependencies: []Reference{TableRef("auth_user")}},
				{Name: "y", Dependencies: []Reference{TableRef("x")}},
			},
			want: []string{"x", "y"},
		},
		{
			name: "diamond",
			defs: []Definition{
				{Name: "top", Dependencies: []Reference{ViewRef("left"), ViewRef("right")}},
				{Name: "right", Dependencies: []Reference{ViewRef("base")}},
				{Name: "left", Dependencies: []Reference{ViewRef("base")}},
				{Name: "base"},
			},
			want: []string{"base", "right", "left", "top"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRegistry(t, tt.defs...)
			got, err := r.Sort(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestSortCycle(t *testing.T) {
	r := mustRegistry(t,
		Definition{Name: "A", Dependencies: []Reference{ViewRef("B")}},
		Definition{Name: "B", Dependencies: []Reference{ViewRef("A")}},
	)

	_, err := r.Sort(nil)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Cycle)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestSortCycleBehindAcyclicPrefix(t *testing.T) {
	r := mustRegistry(t,
		Definition{Name: "root"},
		Definition{Name: "head", Dependencies: []Reference{ViewRef("root"), ViewRef("c1")}},
		Definition{Name: "c1", Dependencies: []Reference{ViewRef("c2")}},
		Definition{Name: "c2", Dependencies: []Reference{ViewRef("c3")}},
		Definition{Name: "c3", Dependencies: []Reference{ViewRef("c1")}},
	)

	_, err := r.Sort(nil)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"c1", "c2", "c3", "c1"}, cycle.Cycle)
}

func TestSortSelfDependency(t *testing.T) {
	r := mustRegistry(t, Definition{Name: "self", Dependencies: []Reference{ViewRef("self")}})

	_, err := r.Sort(nil)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"self", "self"}, cycle.Cycle)
}

func TestSortUnresolvedReference(t *testing.T) {
	r := mustRegistry(t, Definition{Name: "a", Dependencies: []Reference{ViewRef("missing")}})

	_, err := r.Sort(nil)
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "a", unresolved.View)
	assert.Equal(t, "missing", unresolved.Reference)
}

func TestSortAppFilter(t *testing.T) {
	r := mustRegistry(t,
		Definition{Name: "c", App: "reports", Dependencies: []Reference{ViewRef("b")}},
		Definition{Name: "b", App: "core", Dependencies: []Reference{ViewRef("a")}},
		Definition{Name: "a", App: "reports"},
		Definition{Name: "d", App: "other"},
	)

	got, err := r.Sort([]string{"Reports"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(got))
}

func TestLevels(t *testing.T) {
	r := mustRegistry(t,
		Definition{Name: "top", Dependencies: []Reference{ViewRef("mid"), ViewRef("base2")}},
		Definition{Name: "mid", Dependencies: []Reference{ViewRef("base1")}},
		Definition{Name: "base1"},
		Definition{Name: "base2", Dependencies: []Reference{TableRef("t")}},
	)

	levels, err := r.Levels(nil)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"base1", "base2"}, names(levels[0]))
	assert.Equal(t, []string{"mid"}, names(levels[1]))
	assert.Equal(t, []string{"top"}, names(levels[2]))
}

func TestLevelsCycle(t *testing.T) {
	r := mustRegistry(t,
		Definition{Name: "A", Dependencies: []Reference{ViewRef("B")}},
		Definition{Name: "B", Dependencies: []Reference{ViewRef("A")}},
	)
	_, err := r.Levels(nil)
	var cycle *CycleError
	assert.True(t, errors.As(err, &cycle))
}

// Every edge of a random DAG must point forward in the sorted output
func TestSortRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		n := 2 + rng.Intn(30)
		perm := rng.Perm(n)
		defs := make([]Definition, n)
		for i := range defs {
			defs[i].Name = fmt.Sprintf("v%d", i)
		}
		// Edges only from lower to higher perm rank keep the graph acyclic
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if perm[j] < perm[i] && rng.Intn(4) == 0 {
					defs[i].Dependencies = append(defs[i].Dependencies, ViewRef(defs[j].Name))
				}
			}
		}

		r := mustRegistry(t, defs...)
		got, err := r.Sort(nil)
		require.NoError(t, err)
		require.Len(t, got, n)

		pos := make(map[string]int, n)
		for i, d := range got {
			_, dup := pos[d.Name]
			require.False(t, dup, "view %s sorted twice", d.Name)
			pos[d.Name] = i
		}
		for _, d := range defs {
			for _, ref := range d.Dependencies {
				assert.Less(t, pos[ref.Name], pos[d.Name], "%s must come before %s", ref.Name, d.Name)
			}
		}

		again, err := r.Sort(nil)
		require.NoError(t, err)
		assert.Equal(t, names(got), names(again))
	}
}
