package corpus

import (
	"log"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
)

// Update applies every event of gu in order, skipping (a) events whose
// ChangeID exceeds gu.Watermark ("not durable yet", spec §3) and (b) any
// event whose precondition fails ("inconsistency in a single event is a
// no-op for that event", spec §4.4/§7). It returns nothing: a skipped
// event never stops processing of the events after it.
func (c *Corpus) Update(gu GraphUpdate) {
	for _, e := range gu.Events {
		if e.ChangeID > gu.Watermark {
			continue
		}
		c.applyEvent(e)
	}
}

func (c *Corpus) applyEvent(e Event) {
	switch e.Kind {
	case EventAddNode:
		c.applyAddNode(e)
	case EventDeleteNode:
		c.applyDeleteNode(e)
	case EventAddNodeLabel:
		c.applyAddNodeLabel(e)
	case EventDeleteNodeLabel:
		c.applyDeleteNodeLabel(e)
	case EventAddEdge:
		c.applyAddEdge(e)
	case EventDeleteEdge:
		c.applyDeleteEdge(e)
	case EventAddEdgeLabel:
		c.applyAddEdgeLabel(e)
	case EventDeleteEdgeLabel:
		c.applyDeleteEdgeLabel(e)
	default:
		log.Printf("corpus: unknown event kind %q, skipping", e.Kind)
	}
}

func (c *Corpus) applyAddNode(e Event) {
	c.mu.Lock()
	if _, exists := c.pathToNode[e.NodePath]; exists {
		c.mu.Unlock()
		return
	}
	id := c.nextNodeID
	c.nextNodeID++
	c.pathToNode[e.NodePath] = id
	c.nodeToPath[id] = e.NodePath
	nameKey := c.nodeNameKey
	c.mu.Unlock()

	valueID := c.Pool.Intern(e.NodePath)
	c.Annos.Upsert(id, nameKey, valueID)
}

func (c *Corpus) applyDeleteNode(e Event) {
	c.mu.RLock()
	id, exists := c.pathToNode[e.NodePath]
	c.mu.RUnlock()
	if !exists {
		return
	}

	// spec §9 open question: force-load pending components before delete
	// so the invariant "deleted as endpoint from every component" holds
	// even for components nobody has touched yet.
	if err := c.EnsureAllComponentsLoaded(); err != nil {
		log.Printf("corpus: delete node %s: could not load all components: %v", e.NodePath, err)
	}

	c.Annos.DeleteNode(id)

	c.mu.Lock()
	delete(c.pathToNode, e.NodePath)
	delete(c.nodeToPath, id)
	storages := make([]graphstorage.WritableGraphStorage, 0, len(c.components))
	for _, s := range c.components {
		storages = append(storages, s)
	}
	c.mu.Unlock()

	for _, s := range storages {
		_ = s.DeleteNode(id)
	}
}

func (c *Corpus) applyAddNodeLabel(e Event) {
	id, ok := c.NodeByPath(e.NodePath)
	if !ok {
		return
	}
	key := c.internKey(e.Ns, e.Name)
	value := c.Pool.Intern(e.Value)
	c.Annos.Upsert(id, key, value)
}

func (c *Corpus) applyDeleteNodeLabel(e Event) {
	id, ok := c.NodeByPath(e.NodePath)
	if !ok {
		return
	}
	key := c.internKey(e.Ns, e.Name)
	c.Annos.Delete(id, key)
}

func (c *Corpus) applyAddEdge(e Event) {
	src, okS := c.NodeByPath(e.Edge.SourcePath)
	tgt, okT := c.NodeByPath(e.Edge.TargetPath)
	if !okS || !okT {
		return
	}
	comp := toComponent(e.Edge.Component)
	storage, err := c.StorageOrCreate(comp)
	if err != nil {
		log.Printf("corpus: add edge %s -> %s on %s: %v", e.Edge.SourcePath, e.Edge.TargetPath, comp, err)
		return
	}
	_ = storage.AddEdge(graphstorage.Edge{Source: src, Target: tgt})
}

func (c *Corpus) applyDeleteEdge(e Event) {
	src, okS := c.NodeByPath(e.Edge.SourcePath)
	tgt, okT := c.NodeByPath(e.Edge.TargetPath)
	if !okS || !okT {
		return
	}
	comp := toComponent(e.Edge.Component)
	storage, err := c.Storage(comp)
	if err != nil {
		return
	}
	_ = storage.DeleteEdge(graphstorage.Edge{Source: src, Target: tgt})
}

func (c *Corpus) applyAddEdgeLabel(e Event) {
	src, okS := c.NodeByPath(e.Edge.SourcePath)
	tgt, okT := c.NodeByPath(e.Edge.TargetPath)
	if !okS || !okT {
		return
	}
	comp := toComponent(e.Edge.Component)
	storage, err := c.Storage(comp)
	if err != nil {
		return
	}
	edge := graphstorage.Edge{Source: src, Target: tgt}
	if !storage.IsConnected(edge, 1, 1) {
		return // "edge exists" precondition
	}
	key := c.internKey(e.Ns, e.Name)
	value := c.Pool.Intern(e.EdgeValue)
	_ = storage.AddEdgeAnnotation(edge, graphstorage.Annotation{Key: key, Value: value})
}

func (c *Corpus) applyDeleteEdgeLabel(e Event) {
	src, okS := c.NodeByPath(e.Edge.SourcePath)
	tgt, okT := c.NodeByPath(e.Edge.TargetPath)
	if !okS || !okT {
		return
	}
	comp := toComponent(e.Edge.Component)
	storage, err := c.Storage(comp)
	if err != nil {
		return
	}
	edge := graphstorage.Edge{Source: src, Target: tgt}
	key := c.internKey(e.Ns, e.Name)

	annos := storage.EdgeAnnotations(edge)
	remaining := make([]graphstorage.Annotation, 0, len(annos))
	for _, a := range annos {
		if a.Key == key {
			continue
		}
		remaining = append(remaining, a)
	}
	if len(remaining) == len(annos) {
		return // key not present: no-op
	}
	_ = storage.DeleteEdge(edge)
	_ = storage.AddEdge(edge)
	for _, a := range remaining {
		_ = storage.AddEdgeAnnotation(edge, a)
	}
}

func (c *Corpus) internKey(ns, name string) annostore.Key {
	return annostore.Key{Ns: c.Pool.Intern(ns), Name: c.Pool.Intern(name)}
}

func toComponent(r ComponentRef) component.Component {
	return component.New(component.Type(r.Type), r.Layer, r.Name)
}
