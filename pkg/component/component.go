// Package component defines the directed-edge component keying scheme used
// throughout the corpus graph (spec §3): every edge belongs to exactly one
// Component, identified by its Type, Layer, and Name.
package component

import "fmt"

// Type enumerates the kinds of edge components a corpus graph can hold.
type Type string

const (
	Coverage         Type = "Coverage"
	InverseCoverage  Type = "InverseCoverage"
	Dominance        Type = "Dominance"
	Pointing         Type = "Pointing"
	Ordering         Type = "Ordering"
	LeftToken        Type = "LeftToken"
	RightToken       Type = "RightToken"
	PartOfSubCorpus  Type = "PartOfSubCorpus"
)

// Component is the triple (Type, Layer, Name) that keys an edge set.
// Two components with distinct keys are disjoint edge sets even when
// semantically related (e.g. two different Dominance layers).
type Component struct {
	Type  Type
	Layer string
	Name  string
}

// New constructs a Component.
func New(t Type, layer, name string) Component {
	return Component{Type: t, Layer: layer, Name: name}
}

// String renders a Component as "<Type>/<Layer>/<Name>", matching the
// on-disk path fragment used under gs/ (spec §6); Name is omitted when
// empty, producing the layer-only path for the default-named storage.
func (c Component) String() string {
	if c.Name == "" {
		return fmt.Sprintf("%s/%s", c.Type, c.Layer)
	}
	return fmt.Sprintf("%s/%s/%s", c.Type, c.Layer, c.Name)
}

// Path returns the on-disk directory fragments (type, layer[, name]) for
// this component, matching the layout described in spec.md §6:
//
//	<corpus>/current/gs/<Type>/<Layer>/component.bin                 (Name == "")
//	<corpus>/current/gs/<Type>/<Layer>/<Name>/component.bin          (Name != "")
func (c Component) Path() []string {
	if c.Name == "" {
		return []string{string(c.Type), c.Layer}
	}
	return []string{string(c.Type), c.Layer, c.Name}
}
