package model

import "slices"

// FamilySummary is the identifier bookkeeping of one entity family.
type FamilySummary struct {
	Live       int
	Tombstoned int
	NextID     uint32
}

// NamedFamilySummary pairs an atomic family name with its summary.
type NamedFamilySummary struct {
	Name string
	FamilySummary
}

// ModelSummary is a read-only snapshot of counts and identifier ranges per
// entity family. The validator uses it for cheap upper-bound checks before
// walking full containers.
type ModelSummary struct {
	Name              string
	Version           uint64
	Variables         FamilySummary
	LinearConstraints FamilySummary
	AtomicFamilies    []NamedFamilySummary
}

func registrySummary(r *registry) FamilySummary {
	live := r.count()
	return FamilySummary{
		Live:       live,
		Tombstoned: int(r.bound()) - live,
		NextID:     r.bound(),
	}
}

// Summary derives the model summary. O(families), not O(model).
func (m *Model) Summary() ModelSummary {
	res := ModelSummary{
		Name:              m.name,
		Version:           m.version,
		Variables:         registrySummary(&m.vars.reg),
		LinearConstraints: registrySummary(&m.cons.reg),
	}
	for _, name := range m.FamilyNames() {
		fs := m.families[name]
		live := fs.count()
		res.AtomicFamilies = append(res.AtomicFamilies, NamedFamilySummary{
			Name: name,
			FamilySummary: FamilySummary{
				Live:       live,
				Tombstoned: int(fs.bound()) - live,
				NextID:     fs.bound(),
			},
		})
	}
	return res
}

// FamilyNames returns the registered atomic family names in ascending order.
func (m *Model) FamilyNames() []string {
	names := make([]string, 0, len(m.families))
	for name := range m.families {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
