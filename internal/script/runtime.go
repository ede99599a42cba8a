// Package script embeds a Lua runtime so users can filter and rewrite
// features from a script instead of a static style file. The script
// defines any of osmstream.process_node, osmstream.process_way and
// osmstream.process_relation; each receives the feature as a table and
// returns false to drop it. Tag edits made on the table are applied back
// to the feature.
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/wegman-software/osmstream/osm"
)

// Runtime manages the Lua interpreter and the osmstream API
type Runtime struct {
	L               *lua.LState
	processNode     lua.LValue
	processWay      lua.LValue
	processRelation lua.LValue
}

// NewRuntime creates a new Lua runtime with the osmstream API registered
func NewRuntime() *Runtime {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	r := &Runtime{L: L}

	osmstream := L.NewTable()
	osmstream.RawSetString("version", lua.LString("1.0.0"))
	L.SetGlobal("osmstream", osmstream)

	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadFile loads and executes a Lua script file
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}

	r.extractCallbacks()
	return nil
}

// LoadString loads and executes Lua code from a string (for testing)
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}

	r.extractCallbacks()
	return nil
}

func (r *Runtime) extractCallbacks() {
	osmstream := r.L.GetGlobal("osmstream")
	if osmstream.Type() == lua.LTTable {
		tbl := osmstream.(*lua.LTable)
		r.processNode = tbl.RawGetString("process_node")
		r.processWay = tbl.RawGetString("process_way")
		r.processRelation = tbl.RawGetString("process_relation")
	}
}

// Process invokes the callback matching the feature's kind. It returns
// whether the feature should be kept; a feature kind without a callback
// is always kept.
func (r *Runtime) Process(f osm.Feature) (bool, error) {
	var fn lua.LValue
	switch f.Type() {
	case osm.TypeNode:
		fn = r.processNode
	case osm.TypeWay:
		fn = r.processWay
	case osm.TypeRelation:
		fn = r.processRelation
	}
	if fn == nil || fn.Type() != lua.LTFunction {
		return true, nil
	}

	objTable := r.featureToLua(f)

	if err := r.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, objTable); err != nil {
		return false, fmt.Errorf("lua callback error: %w", err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	// Only an explicit false drops the feature; nil and anything else keep it.
	if ret.Type() == lua.LTBool && !bool(ret.(lua.LBool)) {
		return false, nil
	}

	r.applyTags(f, objTable)
	return true, nil
}

// featureToLua converts a feature to a Lua table
func (r *Runtime) featureToLua(f osm.Feature) *lua.LTable {
	L := r.L
	tbl := L.NewTable()

	tbl.RawSetString("id", lua.LNumber(f.FeatureID()))
	tbl.RawSetString("type", lua.LString(string(f.Type())))

	var featureTags osm.Tags
	switch o := f.(type) {
	case *osm.Node:
		featureTags = o.Tags
		tbl.RawSetString("lat", lua.LNumber(o.Lat))
		tbl.RawSetString("lon", lua.LNumber(o.Lon))
	case *osm.Way:
		featureTags = o.Tags
		refs := L.NewTable()
		for i, ref := range o.Refs {
			refs.RawSetInt(i+1, lua.LNumber(ref))
		}
		tbl.RawSetString("refs", refs)
	case *osm.Relation:
		featureTags = o.Tags
		members := L.NewTable()
		for i, m := range o.Members {
			member := L.NewTable()
			member.RawSetString("type", lua.LString(string(m.Type)))
			member.RawSetString("ref", lua.LNumber(m.Ref))
			member.RawSetString("role", lua.LString(m.Role))
			members.RawSetInt(i+1, member)
		}
		tbl.RawSetString("members", members)
	}

	tags := L.NewTable()
	for k, v := range featureTags {
		tags.RawSetString(k, lua.LString(v))
	}
	tbl.RawSetString("tags", tags)

	return tbl
}

// applyTags copies the (possibly edited) tags table back to the feature.
func (r *Runtime) applyTags(f osm.Feature, objTable *lua.LTable) {
	tagsVal := objTable.RawGetString("tags")
	if tagsVal.Type() != lua.LTTable {
		return
	}

	tags := osm.Tags{}
	tagsVal.(*lua.LTable).ForEach(func(key, value lua.LValue) {
		if key.Type() == lua.LTString {
			tags[string(key.(lua.LString))] = value.String()
		}
	})

	switch o := f.(type) {
	case *osm.Node:
		o.Tags = tags
	case *osm.Way:
		o.Tags = tags
	case *osm.Relation:
		o.Tags = tags
	}
}
