package osm

// Map owns every record parsed from one document. It is built once by Parse
// and is read-only afterwards, so it may be shared between goroutines.
//
// Records are keyed by id. When a document repeats an id within one kind,
// the last occurrence replaces the earlier ones.
type Map struct {
	Bounds    *Bounds
	Nodes     map[int64]*Node
	Ways      map[int64]*Way
	Relations map[int64]*Relation
}

func newMap() *Map {
	return &Map{
		Nodes:     make(map[int64]*Node),
		Ways:      make(map[int64]*Way),
		Relations: make(map[int64]*Relation),
	}
}

// Stats summarizes the contents of a Map.
type Stats struct {
	Nodes     int  `json:"nodes"`
	Ways      int  `json:"ways"`
	Relations int  `json:"relations"`
	HasBounds bool `json:"has_bounds"`
}

// Stats returns element counts.
func (m *Map) Stats() Stats {
	return Stats{
		Nodes:     len(m.Nodes),
		Ways:      len(m.Ways),
		Relations: len(m.Relations),
		HasBounds: m.Bounds != nil,
	}
}

// Resolve looks ref up in the namespace selected by its kind. It returns a
// Reference with Kind Unresolved when no such element was loaded.
func (m *Map) Resolve(ref UnresolvedReference) Reference {
	switch ref.Kind {
	case KindNode:
		if n, ok := m.Nodes[ref.ID]; ok {
			return Reference{Kind: ResolvedNode, Node: n}
		}
	case KindWay:
		if w, ok := m.Ways[ref.ID]; ok {
			return Reference{Kind: ResolvedWay, Way: w}
		}
	case KindRelation:
		if r, ok := m.Relations[ref.ID]; ok {
			return Reference{Kind: ResolvedRelation, Relation: r}
		}
	}
	return Reference{}
}

// ResolveAll resolves refs in order and returns the number left unresolved.
func (m *Map) ResolveAll(refs []UnresolvedReference) ([]Reference, int) {
	out := make([]Reference, len(refs))
	missing := 0
	for i, ref := range refs {
		out[i] = m.Resolve(ref)
		if !out[i].Resolved() {
			missing++
		}
	}
	return out, missing
}

// WayNodes resolves the node list of w. Nodes absent from the map are
// skipped and their ids returned in missing.
func (m *Map) WayNodes(w *Way) (nodes []*Node, missing []int64) {
	nodes = make([]*Node, 0, len(w.Nodes))
	for _, ref := range w.Nodes {
		r := m.Resolve(ref)
		if r.Kind != ResolvedNode {
			missing = append(missing, ref.ID)
			continue
		}
		nodes = append(nodes, r.Node)
	}
	return nodes, missing
}
