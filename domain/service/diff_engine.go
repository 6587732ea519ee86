package service

import "github.com/ajkula/plistener/domain/model"

// Diff computes the changed leaves between two data trees. It is pure and
// deterministic: dict keys of from are walked in sorted order (common keys are
// recursed, missing ones removed), then keys only present in to are added in
// sorted order. Arrays are compared by index. A key whose value changes between
// a scalar and a container, or between a dict and an array, is a single modify.
// Added or removed containers are expanded into one op per leaf.
//
// The result is never nil; identical trees yield an empty slice.
func Diff(from, to model.Value) []model.DiffOp {
	d := &differ{ops: []model.DiffOp{}}
	d.value("", orEmpty(from), orEmpty(to))
	return d.ops
}

type differ struct {
	ops []model.DiffOp
}

func orEmpty(v model.Value) model.Value {
	if v == nil {
		return model.EmptyTree()
	}
	return v
}

func (d *differ) value(key string, from, to model.Value) {
	switch fv := from.(type) {
	case model.Dict:
		if tv, ok := to.(model.Dict); ok {
			d.dict(key, fv, tv)
			return
		}
	case model.Array:
		if tv, ok := to.(model.Array); ok {
			d.array(key, fv, tv)
			return
		}
	}

	if model.Equal(from, to) {
		return
	}
	d.ops = append(d.ops, model.NewModify(key, from, to))
}

func (d *differ) dict(prefix string, from, to model.Dict) {
	for _, k := range from.SortedKeys() {
		child := model.JoinKey(prefix, k)
		if tv, ok := to[k]; ok {
			d.value(child, from[k], tv)
		} else {
			d.remove(child, from[k])
		}
	}

	for _, k := range to.SortedKeys() {
		if _, ok := from[k]; !ok {
			d.add(model.JoinKey(prefix, k), to[k])
		}
	}
}

func (d *differ) array(prefix string, from, to model.Array) {
	common := min(len(from), len(to))
	for i := 0; i < common; i++ {
		d.value(model.IndexKey(prefix, i), from[i], to[i])
	}
	for i := common; i < len(from); i++ {
		d.remove(model.IndexKey(prefix, i), from[i])
	}
	for i := common; i < len(to); i++ {
		d.add(model.IndexKey(prefix, i), to[i])
	}
}

func (d *differ) add(key string, v model.Value) {
	model.WalkLeaves(key, v, func(leafKey string, leaf model.Value) {
		d.ops = append(d.ops, model.NewAdd(leafKey, leaf))
	})
}

func (d *differ) remove(key string, v model.Value) {
	model.WalkLeaves(key, v, func(leafKey string, leaf model.Value) {
		d.ops = append(d.ops, model.NewRemove(leafKey, leaf))
	})
}
