package attrs

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/entity"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/typeconv"
)

const attrsDirtyBit = 1

var (
	float64Type = reflect.TypeOf(float64(0))
	stringType  = reflect.TypeOf("")
	boolType    = reflect.TypeOf(false)
)

// Attrs is a replicated component of attributes indexed by string keys
//
// Values must be encodable by MessagePack. Values read on a peer come back as the decoded
// MessagePack type, so use the typed getters to read numbers.
type Attrs struct {
	entity.NetworkBehavior

	// OnAttrChange is called on the receiving side for every changed or deleted key
	OnAttrChange func(key string, val interface{}, deleted bool)

	attrs   map[string]interface{}
	changed common.StringSet
	deleted common.StringSet
}

// New creates an empty Attrs
func New() *Attrs {
	return &Attrs{
		attrs:   map[string]interface{}{},
		changed: common.StringSet{},
		deleted: common.StringSet{},
	}
}

// Size returns the number of attributes
func (a *Attrs) Size() int {
	return len(a.attrs)
}

func (a *Attrs) String() string {
	var sb strings.Builder
	sb.WriteString("Attrs{")
	for i, k := range a.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%#v: %#v", k, a.attrs[k])
	}
	sb.WriteString("}")
	return sb.String()
}

// HasKey returns if the key exists
func (a *Attrs) HasKey(key string) bool {
	_, ok := a.attrs[key]
	return ok
}

// Keys returns all keys in sorted order
func (a *Attrs) Keys() []string {
	keys := make(common.StringSet, len(a.attrs))
	for k := range a.attrs {
		keys.Add(k)
	}
	return keys.ToList()
}

// Set sets the value of key
func (a *Attrs) Set(key string, val interface{}) {
	a.attrs[key] = val
	a.changed.Add(key)
	a.deleted.Remove(key)
	a.SetDirtyBit(attrsDirtyBit)
}

// Delete deletes the key
func (a *Attrs) Delete(key string) {
	if !a.HasKey(key) {
		return
	}
	delete(a.attrs, key)
	a.changed.Remove(key)
	a.deleted.Add(key)
	a.SetDirtyBit(attrsDirtyBit)
}

// Get returns the value of key, or nil
func (a *Attrs) Get(key string) interface{} {
	return a.attrs[key]
}

// GetInt returns the value of key as int64, 0 if missing or not convertible
func (a *Attrs) GetInt(key string) (v int64) {
	a.convert(key, func(val interface{}) {
		v = typeconv.Int(val)
	})
	return
}

// GetFloat returns the value of key as float64, 0 if missing or not convertible
func (a *Attrs) GetFloat(key string) (v float64) {
	a.convert(key, func(val interface{}) {
		v = typeconv.Convert(val, float64Type).Float()
	})
	return
}

// GetStr returns the value of key as string, "" if missing or not convertible
func (a *Attrs) GetStr(key string) (v string) {
	a.convert(key, func(val interface{}) {
		v = typeconv.Convert(val, stringType).String()
	})
	return
}

// GetBool returns the value of key as bool, false if missing or not convertible
func (a *Attrs) GetBool(key string) (v bool) {
	a.convert(key, func(val interface{}) {
		v = typeconv.Convert(val, boolType).Bool()
	})
	return
}

// convert calls f with the value of key, logging instead of panicking when typeconv fails
func (a *Attrs) convert(key string, f func(val interface{})) {
	val, ok := a.attrs[key]
	if !ok || val == nil {
		return
	}
	if err := gwutils.CatchPanic(func() { f(val) }); err != nil {
		gwlog.Warnf("%s: can not convert attribute %s=%v: %v", a, key, val, err)
	}
}

// ToMap returns a copy of all attributes
func (a *Attrs) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(a.attrs))
	for k, v := range a.attrs {
		m[k] = v
	}
	return m
}

// ClearDirtyBits forgets changed and deleted keys
func (a *Attrs) ClearDirtyBits() {
	a.NetworkBehavior.ClearDirtyBits()
	a.changed = common.StringSet{}
	a.deleted = common.StringSet{}
}

// Serialize writes all attributes if initial, otherwise changed attributes and deleted keys
func (a *Attrs) Serialize(w *netutil.NetWriter, initial bool) error {
	if initial {
		return w.AppendData(a.attrs)
	}

	changed := make(map[string]interface{}, len(a.changed))
	for k := range a.changed {
		changed[k] = a.attrs[k]
	}
	if err := w.AppendData(changed); err != nil {
		return err
	}
	w.AppendStringList(a.deleted.ToList())
	return nil
}

// Deserialize applies attributes written by Serialize
func (a *Attrs) Deserialize(r *netutil.NetReader, initial bool) error {
	var changed map[string]interface{}
	if err := r.ReadData(&changed); err != nil {
		return err
	}

	var deleted []string
	if initial {
		for k := range a.attrs {
			if _, ok := changed[k]; !ok {
				deleted = append(deleted, k)
			}
		}
	} else {
		deleted = r.ReadStringList()
		if r.Err() != nil {
			return r.Err()
		}
	}

	for k, v := range changed {
		a.attrs[k] = v
		a.notify(k, v, false)
	}
	for _, k := range deleted {
		if _, ok := a.attrs[k]; !ok {
			gwlog.Warnf("%s: component %d deletes missing attribute %s", a.Identity(), a.ComponentIndex(), k)
			continue
		}
		delete(a.attrs, k)
		a.notify(k, nil, true)
	}
	return nil
}

func (a *Attrs) notify(key string, val interface{}, deleted bool) {
	if a.OnAttrChange != nil {
		a.OnAttrChange(key, val, deleted)
	}
}
