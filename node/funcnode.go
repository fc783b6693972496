package node

import (
	"context"
	"fmt"
	"reflect"

	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

// funcParam describes one positional argument of a wrapped function: either
// an input port feeding that argument, or (for a pointer-typed argument) an
// output port bound to the storage the function writes through.
type funcParam struct {
	key       iname.IndexableName
	argIndex  int
	paramType reflect.Type
	isOutput  bool
}

// funcBehavior adapts an arbitrary Go function into a Behavior, grounded on
// the original C++ FunctionNode<F, Func>'s FunctionTraits-driven argument
// parsing: a non-pointer parameter becomes an input named by its position
// ('a', 'b', 'c', ...), a pointer parameter becomes an output bound to the
// storage the call writes through, and a non-void return becomes the
// "return" output.
type funcBehavior struct {
	fn        reflect.Value
	params    []funcParam
	hasReturn bool
	returnKey iname.IndexableName
}

// NewFunctionNode builds a Node whose Compute calls fn, deriving its ports
// from fn's signature via reflection. fn must be a func value with at most
// one return value; Go generics cannot be instantiated from a
// reflect.Type, so the adapter drives the call entirely through
// reflect.Value instead of generating per-signature code the way the
// original's variadic-template FunctionNode does at compile time.
func NewFunctionNode(ctx context.Context, id uid.UUID, className, displayName string, env Env, fn any) (*Node, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("function node: %T is not a func", fn)
	}
	rt := rv.Type()
	if rt.NumOut() > 1 {
		return nil, fmt.Errorf("function node: %s has %d return values, at most one is supported", rt, rt.NumOut())
	}

	fb := &funcBehavior{fn: rv}
	n := New(ctx, id, className, displayName, env, fb)

	for i := 0; i < rt.NumIn(); i++ {
		pt := rt.In(i)
		key := iname.New(string(rune('a' + i)))
		if pt.Kind() == reflect.Pointer {
			n.AddOutput(key, key.Label(), typename.FromReflectType(pt.Elem()), nil)
			fb.params = append(fb.params, funcParam{key: key, argIndex: i, paramType: pt, isOutput: true})
			continue
		}
		n.AddInput(key, key.Label(), typename.FromReflectType(pt), nil, true)
		fb.params = append(fb.params, funcParam{key: key, argIndex: i, paramType: pt, isOutput: false})
	}

	if rt.NumOut() == 1 {
		fb.hasReturn = true
		fb.returnKey = iname.New("return")
		n.AddOutput(fb.returnKey, "return", typename.FromReflectType(rt.Out(0)), nil)
	}

	n.Seal()
	return n, nil
}

// Compute reads every input port, calls the wrapped function, writes the
// "return" output if any, and then re-broadcasts every output port —
// including the pointer-bound ones the call only wrote through in place —
// matching the original FunctionNode::Compute's final sweep over
// GetOutputPorts() rather than signalling only the ports it explicitly set.
// A missing input is a silent no-op, not an error: the original's Compute()
// just returns when any input is absent, and the call only fires once every
// input has arrived.
func (fb *funcBehavior) Compute(ctx context.Context, n *Node) error {
	args := make([]reflect.Value, len(fb.params))

	for _, p := range fb.params {
		if p.isOutput {
			args[p.argIndex] = reflect.New(p.paramType.Elem())
			continue
		}
		v := n.GetInputData(p.key)
		if v == nil {
			return nil
		}
		arg, err := coerceArgument(n.Env(), v, p.paramType)
		if err != nil {
			return fmt.Errorf("function node %s: input %q: %w", n.ID(), p.key.Label(), err)
		}
		args[p.argIndex] = arg
	}

	results := fb.fn.Call(args)

	if fb.hasReturn {
		n.SetOutputData(ctx, fb.returnKey, value.FromReflect(results[0].Interface()), false)
	}

	for _, p := range fb.params {
		if !p.isOutput {
			continue
		}
		n.setOutputDataQuiet(p.key, value.FromReflect(args[p.argIndex].Elem().Interface()))
	}

	for _, p := range fb.params {
		if p.isOutput {
			n.broadcastOutputUpdate(ctx, p.key)
		}
	}
	if fb.hasReturn {
		n.broadcastOutputUpdate(ctx, fb.returnKey)
	}
	return nil
}

// coerceArgument reads v as want if its erased type already matches, else
// asks env to convert it first. It never silently truncates: a conversion
// registry miss or mismatch surfaces as an error, since a function-wrapped
// node's parameter types are a hard contract, unlike a regular port's
// best-effort AssignFrom.
func coerceArgument(env Env, v value.Value, want reflect.Type) (reflect.Value, error) {
	if rv := reflect.ValueOf(v.Ptr()); rv.IsValid() && rv.Type().Elem() == want {
		return rv.Elem(), nil
	}
	converted, err := env.Convert(v, typename.FromReflectType(want))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("convert %s to %s: %w", v.Type(), want, err)
	}
	rv := reflect.ValueOf(converted.Ptr())
	if !rv.IsValid() || rv.Type().Elem() != want {
		return reflect.Value{}, fmt.Errorf("converted value does not match parameter type %s", want)
	}
	return rv.Elem(), nil
}
