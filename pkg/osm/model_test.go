package osm

import (
	"encoding/json"
	"sync"
	"testing"
)

const resolveDoc = `<osm>
	<node id="1" lat="1" lon="1"/>
	<node id="2" lat="2" lon="2"/>
	<node id="3" lat="3" lon="3"/>
	<way id="1"><nd ref="1"/><nd ref="2"/><nd ref="3"/></way>
	<way id="2"><nd ref="3"/><nd ref="99"/><nd ref="1"/></way>
	<relation id="1">
		<member type="node" ref="2" role="stop"/>
		<member type="way" ref="1" role=""/>
		<member type="relation" ref="1" role="self"/>
		<member type="way" ref="404" role="outer"/>
	</relation>
</osm>`

func TestResolve(t *testing.T) {
	m := parseString(t, resolveDoc)

	r := m.Resolve(NodeRef(2))
	if r.Kind != ResolvedNode || r.Node != m.Nodes[2] {
		t.Errorf("node 2 resolved to %+v", r)
	}

	r = m.Resolve(WayRef(1))
	if r.Kind != ResolvedWay || r.Way != m.Ways[1] {
		t.Errorf("way 1 resolved to %+v", r)
	}

	r = m.Resolve(RelationRef(1))
	if r.Kind != ResolvedRelation || r.Relation != m.Relations[1] {
		t.Errorf("relation 1 resolved to %+v", r)
	}

	for _, ref := range []UnresolvedReference{NodeRef(99), WayRef(3), RelationRef(2), {Kind: 0, ID: 1}} {
		if got := m.Resolve(ref); got.Resolved() || got.Kind != Unresolved {
			t.Errorf("%v resolved to %+v", ref, got)
		}
	}
}

func TestResolveUsesKindNamespace(t *testing.T) {
	m := parseString(t, `<osm><node id="5" lat="0" lon="0"/></osm>`)

	if m.Resolve(WayRef(5)).Resolved() {
		t.Error("way 5 must not resolve to node 5")
	}
	if !m.Resolve(NodeRef(5)).Resolved() {
		t.Error("node 5 should resolve")
	}
}

func TestResolveAllWayNodes(t *testing.T) {
	m := parseString(t, resolveDoc)

	refs, missing := m.ResolveAll(m.Ways[1].Nodes)
	if missing != 0 || len(refs) != 3 {
		t.Fatalf("resolved %d refs with %d missing", len(refs), missing)
	}
	for i, r := range refs {
		if r.Node != m.Nodes[int64(i+1)] {
			t.Errorf("ref %d = %+v", i, r)
		}
	}

	refs, missing = m.ResolveAll(memberRefs(m.Relations[1]))
	if missing != 1 || refs[3].Resolved() {
		t.Errorf("expected the last member to be unresolved, got %d missing", missing)
	}
}

func memberRefs(r *Relation) []UnresolvedReference {
	refs := make([]UnresolvedReference, len(r.Members))
	for i, m := range r.Members {
		refs[i] = m.Ref
	}
	return refs
}

func TestWayNodes(t *testing.T) {
	m := parseString(t, resolveDoc)

	nodes, missing := m.WayNodes(m.Ways[2])
	if len(nodes) != 2 || nodes[0] != m.Nodes[3] || nodes[1] != m.Nodes[1] {
		t.Errorf("nodes = %+v", nodes)
	}
	if len(missing) != 1 || missing[0] != 99 {
		t.Errorf("missing = %v", missing)
	}
}

func TestResolveDoesNotMutate(t *testing.T) {
	m := parseString(t, resolveDoc)
	before := m.Stats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, w := range m.Ways {
				m.ResolveAll(w.Nodes)
			}
			m.Resolve(RelationRef(404))
		}()
	}
	wg.Wait()

	if m.Stats() != before {
		t.Errorf("stats changed from %+v to %+v", before, m.Stats())
	}
}

func TestTagsMap(t *testing.T) {
	tags := Tags{{"name", "a"}, {"name", "b"}, {"ref", "1"}}
	got := tags.Map()
	if len(got) != 2 || got["name"] != "a" || got["ref"] != "1" {
		t.Errorf("Map() = %v", got)
	}
}

func TestUnresolvedReferenceJSON(t *testing.T) {
	data, err := json.Marshal(RelationRef(42))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"relation","ref":42}` {
		t.Errorf("json = %s", data)
	}

	var ref UnresolvedReference
	if err := json.Unmarshal([]byte(`{"type":"Way","ref":7}`), &ref); err != nil {
		t.Fatal(err)
	}
	if ref != WayRef(7) {
		t.Errorf("ref = %v", ref)
	}

	if err := json.Unmarshal([]byte(`{"type":"area","ref":7}`), &ref); err == nil {
		t.Error("expected error for unknown kind")
	}
}
