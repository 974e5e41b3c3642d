package entity

import (
	"hash/fnv"

	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// FunctionKey identifies a remote callable function of a component
type FunctionKey uint32

// GetFunctionKey returns the stable key of the function name (32-bit FNV-1a)
func GetFunctionKey(name string) FunctionKey {
	h := fnv.New32a()
	h.Write([]byte(name))
	return FunctionKey(h.Sum32())
}

// CallHandler handles a remote call, reading arguments from r
type CallHandler func(r *netutil.NetReader) error

type rpcDesc struct {
	Name    string
	Kind    proto.CallKind
	Handler CallHandler
}

type rpcDescMap map[FunctionKey]*rpcDesc

func (rdm rpcDescMap) register(name string, kind proto.CallKind, handler CallHandler) FunctionKey {
	key := GetFunctionKey(name)
	if desc, ok := rdm[key]; ok && desc.Name != name {
		gwlog.Panicf("function %s has the same key %d as %s", name, key, desc.Name)
	}
	rdm[key] = &rpcDesc{
		Name:    name,
		Kind:    kind,
		Handler: handler,
	}
	return key
}

func (rdm rpcDescMap) get(key FunctionKey, kind proto.CallKind) *rpcDesc {
	desc := rdm[key]
	if desc == nil || desc.Kind != kind {
		return nil
	}
	return desc
}

// PackArgs packs call arguments with MSG_PACKER, to be read by CallHandler with ReadData
func PackArgs(args ...interface{}) ([]byte, error) {
	w := netutil.NewNetWriter(0)
	for _, arg := range args {
		if err := w.AppendData(arg); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}
