package catalog

import (
	"fmt"
	"testing"

	"github.com/arkilian/tablecat/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func invariantHolds(c *Catalog) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.byID) != len(c.byName) {
		return false
	}
	for name, id := range c.byName {
		info, ok := c.byID[id]
		if !ok || info.Name != name {
			return false
		}
	}
	return true
}

func TestCatalog_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	c := New()
	schema, err := types.NewSchemaFromTypes(types.IntType, types.StringType)
	require.NoError(t, err)

	names := []string{"a", "b", "c", "d"}
	const writers, readers, rounds = 4, 8, 2000

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				file := &fakeFile{id: (w*rounds + i) % 13, schema: schema}
				if err := c.AddTable(file, names[(w+i)%len(names)], ""); err != nil {
					return err
				}
				if i%500 == 499 {
					c.Clear()
				}
			}
			return nil
		})
	}
	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				name := names[(r+i)%len(names)]
				if info, ok := c.TableByName(name); ok && info.Name != name {
					return fmt.Errorf("lookup of %q returned record named %q", name, info.Name)
				}
				seen := make(map[int]bool)
				for id := range c.TableIDs() {
					if seen[id] {
						return fmt.Errorf("id %d yielded twice in one pass", id)
					}
					seen[id] = true
					if info, ok := c.Table(id); ok && info.ID() != id {
						return fmt.Errorf("id %d returned record for id %d", id, info.ID())
					}
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	require.True(t, invariantHolds(c))
}

// TestProperty_IndexesStayConsistent applies random sequences of registrations
// and clears and checks that the name and id indexes always agree.
func TestProperty_IndexesStayConsistent(t *testing.T) {
	schema, err := types.NewSchemaFromTypes(types.IntType)
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("name and id indexes agree after any operation sequence", prop.ForAll(
		func(ops []int) bool {
			c := New()
			for _, op := range ops {
				switch {
				case op%17 == 0:
					c.Clear()
				case op%11 == 0:
					if _, err := c.AddTableUnnamed(&fakeFile{id: op % 6, schema: schema}); err != nil {
						return false
					}
				default:
					name := fmt.Sprintf("t%d", (op/6)%4)
					if err := c.AddTable(&fakeFile{id: op % 6, schema: schema}, name, ""); err != nil {
						return false
					}
				}
				if !invariantHolds(c) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
