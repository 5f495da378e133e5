package collection

import (
	"slices"
)

// dependencyIndex maps a child alarm to the alarms that list it as a dependency.
type dependencyIndex struct {
	parents map[string]map[string]struct{}
}

func newDependencyIndex() *dependencyIndex {
	return &dependencyIndex{
		parents: make(map[string]map[string]struct{}),
	}
}

// add records parent as a parent of every child.
func (d *dependencyIndex) add(parent string, children []string) {
	for _, child := range children {
		set, ok := d.parents[child]
		if !ok {
			set = make(map[string]struct{})
			d.parents[child] = set
		}

		set[parent] = struct{}{}
	}
}

// remove drops parent from the parents of every child.
func (d *dependencyIndex) remove(parent string, children []string) {
	for _, child := range children {
		set, ok := d.parents[child]
		if !ok {
			continue
		}

		delete(set, parent)

		if len(set) == 0 {
			delete(d.parents, child)
		}
	}
}

// replace rebuilds the entries of parent after its dependency list changed.
func (d *dependencyIndex) replace(parent string, previous, current []string) {
	d.remove(parent, previous)
	d.add(parent, current)
}

// of returns the parents of child in a stable order.
func (d *dependencyIndex) of(child string) []string {
	set := d.parents[child]
	if len(set) == 0 {
		return nil
	}

	result := make([]string, 0, len(set))
	for parent := range set {
		result = append(result, parent)
	}

	slices.Sort(result)

	return result
}

// snapshot returns a copy of the whole index.
func (d *dependencyIndex) snapshot() map[string][]string {
	result := make(map[string][]string, len(d.parents))
	for child := range d.parents {
		result[child] = d.of(child)
	}

	return result
}
