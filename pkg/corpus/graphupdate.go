package corpus

// EventKind enumerates the eight typed graph-update events (spec §3).
type EventKind string

const (
	EventAddNode         EventKind = "AddNode"
	EventDeleteNode      EventKind = "DeleteNode"
	EventAddNodeLabel    EventKind = "AddNodeLabel"
	EventDeleteNodeLabel EventKind = "DeleteNodeLabel"
	EventAddEdge         EventKind = "AddEdge"
	EventDeleteEdge      EventKind = "DeleteEdge"
	EventAddEdgeLabel    EventKind = "AddEdgeLabel"
	EventDeleteEdgeLabel EventKind = "DeleteEdgeLabel"
)

// ComponentRef identifies an edge component by its plain string triple, the
// form a GraphUpdate event carries (string pool IDs are only assigned once
// the event is applied to a specific corpus).
type ComponentRef struct {
	Type  string
	Layer string
	Name  string
}

// EdgeRef is an edge named by node path rather than by assigned NodeID,
// since a GraphUpdate must be constructible before its target corpus has
// interned anything.
type EdgeRef struct {
	SourcePath string
	TargetPath string
	Component  ComponentRef
}

// Event is a single tagged update event (spec §9 "tagged variant over the
// eight event kinds" design note, replacing the source's virtual-dispatch
// registry). Only the fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind
	ChangeID uint64

	// AddNode / DeleteNode / AddNodeLabel / DeleteNodeLabel
	NodePath string

	// AddNodeLabel / DeleteNodeLabel
	Ns, Name string
	// AddNodeLabel
	Value string

	// AddEdge / DeleteEdge / AddEdgeLabel / DeleteEdgeLabel
	Edge EdgeRef
	// AddEdgeLabel
	EdgeValue string
}

// GraphUpdate is an ordered batch of events plus the watermark up to which
// they are considered durable (spec §3): events with ChangeID > Watermark
// are skipped on apply, matching "last consistent change id" semantics.
type GraphUpdate struct {
	Events    []Event
	Watermark uint64

	nextChangeID uint64
}

// AddNode appends an AddNode event.
func (g *GraphUpdate) AddNode(path string) *GraphUpdate {
	g.append(Event{Kind: EventAddNode, NodePath: path})
	return g
}

// DeleteNode appends a DeleteNode event.
func (g *GraphUpdate) DeleteNode(path string) *GraphUpdate {
	g.append(Event{Kind: EventDeleteNode, NodePath: path})
	return g
}

// AddNodeLabel appends an AddNodeLabel event.
func (g *GraphUpdate) AddNodeLabel(path, ns, name, value string) *GraphUpdate {
	g.append(Event{Kind: EventAddNodeLabel, NodePath: path, Ns: ns, Name: name, Value: value})
	return g
}

// DeleteNodeLabel appends a DeleteNodeLabel event.
func (g *GraphUpdate) DeleteNodeLabel(path, ns, name string) *GraphUpdate {
	g.append(Event{Kind: EventDeleteNodeLabel, NodePath: path, Ns: ns, Name: name})
	return g
}

// AddEdge appends an AddEdge event.
func (g *GraphUpdate) AddEdge(sourcePath, targetPath string, c ComponentRef) *GraphUpdate {
	g.append(Event{Kind: EventAddEdge, Edge: EdgeRef{SourcePath: sourcePath, TargetPath: targetPath, Component: c}})
	return g
}

// DeleteEdge appends a DeleteEdge event.
func (g *GraphUpdate) DeleteEdge(sourcePath, targetPath string, c ComponentRef) *GraphUpdate {
	g.append(Event{Kind: EventDeleteEdge, Edge: EdgeRef{SourcePath: sourcePath, TargetPath: targetPath, Component: c}})
	return g
}

// AddEdgeLabel appends an AddEdgeLabel event.
func (g *GraphUpdate) AddEdgeLabel(sourcePath, targetPath string, c ComponentRef, ns, name, value string) *GraphUpdate {
	g.append(Event{Kind: EventAddEdgeLabel, Edge: EdgeRef{SourcePath: sourcePath, TargetPath: targetPath, Component: c}, Ns: ns, Name: name, EdgeValue: value})
	return g
}

// DeleteEdgeLabel appends a DeleteEdgeLabel event.
func (g *GraphUpdate) DeleteEdgeLabel(sourcePath, targetPath string, c ComponentRef, ns, name string) *GraphUpdate {
	g.append(Event{Kind: EventDeleteEdgeLabel, Edge: EdgeRef{SourcePath: sourcePath, TargetPath: targetPath, Component: c}, Ns: ns, Name: name})
	return g
}

func (g *GraphUpdate) append(e Event) {
	g.nextChangeID++
	e.ChangeID = g.nextChangeID
	g.Events = append(g.Events, e)
	if g.Watermark < e.ChangeID {
		g.Watermark = e.ChangeID
	}
}
