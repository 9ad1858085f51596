package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/binding"
	"github.com/singlet-dev/singlet/internal/dom"
	"github.com/singlet-dev/singlet/internal/errors"
	"github.com/singlet-dev/singlet/internal/render"
)

// vmHandle bundles an instance's JavaScript runtime, the object exposed to
// scripts as `this`, and compiled handler/expression caches.
type vmHandle struct {
	rt       *goja.Runtime
	self     *goja.Object
	handlers map[*binding.EventBinding]goja.Callable
	exprs    map[string]goja.Callable
}

// stateProxy is the interception layer behind this.state: property reads
// and writes on it route through the reactive store, so rewritten script
// references trigger renders naturally, including through increment,
// decrement, and compound assignment.
type stateProxy struct {
	inst *Instance
}

func (p *stateProxy) Get(key string) goja.Value {
	v, ok := p.inst.state.Get(key)
	if !ok {
		return goja.Undefined()
	}
	if gv, isValue := v.(goja.Value); isValue {
		return gv
	}
	return p.inst.vm.rt.ToValue(v)
}

func (p *stateProxy) Set(key string, val goja.Value) bool {
	// Function values are kept as live VM values so they stay callable;
	// everything else is exported to plain Go values for comparison and
	// rendering.
	if _, isFn := goja.AssertFunction(val); isFn {
		p.inst.state.Set(key, val)
		return true
	}
	p.inst.state.Set(key, val.Export())
	return true
}

func (p *stateProxy) Has(key string) bool {
	return p.inst.state.Has(key)
}

func (p *stateProxy) Delete(key string) bool {
	return false
}

func (p *stateProxy) Keys() []string {
	return p.inst.state.Keys()
}

// setupVM builds the instance's JavaScript runtime and the `this` object
// user scripts execute against: state, setState, emit, listen, and the
// scoped query methods.
func (i *Instance) setupVM() error {
	rt := goja.New()
	self := rt.NewObject()
	i.vm = vmHandle{
		rt:       rt,
		self:     self,
		handlers: make(map[*binding.EventBinding]goja.Callable),
		exprs:    make(map[string]goja.Callable),
	}

	if err := self.Set("state", rt.NewDynamicObject(&stateProxy{inst: i})); err != nil {
		return err
	}
	// Helpers are set on `this` and as runtime globals so scripts can call
	// them bare. Each instance owns its runtime, so globals stay private.
	mustSet := func(name string, v interface{}) {
		_ = self.Set(name, v)
		_ = rt.Set(name, v)
	}

	mustSet("setState", func(call goja.FunctionCall) goja.Value {
		if partial, ok := call.Argument(0).Export().(map[string]interface{}); ok {
			i.state.SetState(partial)
		}
		return goja.Undefined()
	})
	mustSet("emit", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var detail interface{}
		if len(call.Arguments) > 1 {
			detail = call.Argument(1).Export()
		}
		i.Emit(name, detail)
		return goja.Undefined()
	})
	mustSet("listen", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		cb, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		i.Listen(name, func(detail interface{}) {
			if _, err := cb(self, rt.ToValue(detail)); err != nil {
				i.log.Warn(context.Background(), err, "listen handler failed", "event", name)
			}
		})
		return goja.Undefined()
	})
	storeObj := rt.NewObject()
	_ = storeObj.Set("getState", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(i.reg.shared.GetState())
	})
	_ = storeObj.Set("setState", func(call goja.FunctionCall) goja.Value {
		if partial, ok := call.Argument(0).Export().(map[string]interface{}); ok {
			i.reg.shared.SetState(partial)
		}
		return goja.Undefined()
	})
	_ = storeObj.Set("subscribe", func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		unsub := i.reg.shared.Subscribe(func(snapshot map[string]interface{}) {
			if _, err := cb(self, rt.ToValue(snapshot)); err != nil {
				i.log.Warn(context.Background(), err, "store subscriber failed")
			}
		})
		i.unsubs = append(i.unsubs, unsub)
		return goja.Undefined()
	})
	_ = storeObj.Set("reset", func(goja.FunctionCall) goja.Value {
		i.reg.shared.Reset()
		return goja.Undefined()
	})
	mustSet("store", storeObj)
	mustSet("querySelector", func(call goja.FunctionCall) goja.Value {
		node := i.QuerySelector(call.Argument(0).String())
		if node == nil {
			return goja.Null()
		}
		return i.wrapElement(node)
	})
	mustSet("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		nodes := i.QuerySelectorAll(call.Argument(0).String())
		wrapped := make([]interface{}, len(nodes))
		for idx, n := range nodes {
			wrapped[idx] = i.wrapElement(n)
		}
		return rt.ToValue(wrapped)
	})
	return nil
}

// runInstanceScript executes a script body with `this` bound to the
// instance. A throwing script is caught and logged with the transformed
// source attached; the instance continues with whatever state exists.
func (i *Instance) runInstanceScript(src string) {
	wrapped := "(function(){\n" + src + "\n})"
	v, err := i.vm.rt.RunString(wrapped)
	if err == nil {
		var fn goja.Callable
		var ok bool
		if fn, ok = goja.AssertFunction(v); ok {
			_, err = fn(i.vm.self)
		} else {
			err = fmt.Errorf("script did not compile to a callable body")
		}
	}
	if err != nil {
		scriptErr := errors.NewScriptError("inline script failed", err).
			WithComponent(i.def.TagName).WithDetail(src)
		i.log.Error(context.Background(), scriptErr, "script execution failed",
			"source", src)
	}
}

// runModuleScript executes a type="module" body in its own function scope
// without instance binding; module bodies are never rewritten.
func (i *Instance) runModuleScript(src string) {
	if _, err := i.vm.rt.RunString("(function(){\n" + src + "\n})();"); err != nil {
		scriptErr := errors.NewScriptError("module script failed", err).
			WithComponent(i.def.TagName).WithDetail(src)
		i.log.Error(context.Background(), scriptErr, "script execution failed")
	}
}

// invokeHandler dispatches one declarative event handler according to its
// parsed form.
func (i *Instance) invokeHandler(eb *binding.EventBinding, ev *Event) error {
	jsEvent := i.eventValue(ev)

	switch eb.Kind {
	case binding.EventArrowLiteral:
		fn, err := i.arrowHandler(eb)
		if err != nil {
			return err
		}
		_, err = fn(i.vm.self, jsEvent)
		return err

	case binding.EventCallExpression:
		fn, ok := i.vm.handlers[eb]
		if !ok {
			// Name resolution tries instance methods before state methods,
			// so `this` is the innermost scope.
			src := "(function(event){ with(this.state){ with(this){ return " +
				eb.HandlerSource + "; } } })"
			v, err := i.vm.rt.RunString(src)
			if err != nil {
				return err
			}
			fn, ok = goja.AssertFunction(v)
			if !ok {
				return fmt.Errorf("handler %q did not compile", eb.HandlerSource)
			}
			i.vm.handlers[eb] = fn
		}
		_, err := fn(i.vm.self, jsEvent)
		return err

	default:
		target := i.resolveMethod(eb.HandlerSource)
		if target == nil {
			return fmt.Errorf("no instance or state method %q", eb.HandlerSource)
		}
		_, err := target(i.vm.self, jsEvent)
		return err
	}
}

// arrowHandler evaluates an inline arrow-function literal once and caches
// the resulting callable; its lexical `this` is the instance.
func (i *Instance) arrowHandler(eb *binding.EventBinding) (goja.Callable, error) {
	if fn, ok := i.vm.handlers[eb]; ok {
		return fn, nil
	}
	factoryV, err := i.vm.rt.RunString(
		"(function(){ with(this.state){ with(this){ return (" + eb.HandlerSource + "); } } })")
	if err != nil {
		return nil, err
	}
	factory, ok := goja.AssertFunction(factoryV)
	if !ok {
		return nil, fmt.Errorf("arrow handler %q did not compile", eb.HandlerSource)
	}
	v, err := factory(i.vm.self)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("arrow handler %q is not callable", eb.HandlerSource)
	}
	i.vm.handlers[eb] = fn
	return fn, nil
}

// resolveMethod resolves a bare identifier handler: instance methods first,
// then state methods.
func (i *Instance) resolveMethod(name string) goja.Callable {
	if v := i.vm.self.Get(name); v != nil {
		if fn, ok := goja.AssertFunction(v); ok {
			return fn
		}
	}
	if v, ok := i.state.Get(name); ok {
		if gv, isValue := v.(goja.Value); isValue {
			if fn, ok := goja.AssertFunction(gv); ok {
				return fn
			}
		}
	}
	return nil
}

// eventValue builds the JavaScript event object passed to handlers.
func (i *Instance) eventValue(ev *Event) goja.Value {
	rt := i.vm.rt
	obj := rt.NewObject()
	_ = obj.Set("type", ev.Type)
	_ = obj.Set("detail", rt.ToValue(ev.Detail))
	_ = obj.Set("value", ev.Value)
	if ev.Target != nil {
		_ = obj.Set("target", i.wrapElement(ev.Target))
	} else {
		_ = obj.Set("target", goja.Null())
	}
	return obj
}

// wrapElement exposes a DOM element to scripts with the small surface the
// runtime supports: attribute access, value and textContent accessors, and
// addEventListener routed through the instance listener table.
func (i *Instance) wrapElement(node *html.Node) goja.Value {
	rt := i.vm.rt
	obj := rt.NewObject()
	_ = obj.Set("tagName", strings.ToUpper(node.Data))
	_ = obj.Set("getAttribute", func(name string) goja.Value {
		v, ok := dom.GetAttr(node, name)
		if !ok {
			return goja.Null()
		}
		return rt.ToValue(v)
	})
	_ = obj.Set("setAttribute", func(name, value string) {
		dom.SetAttr(node, name, value)
	})
	_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		eventType := call.Argument(0).String()
		cb, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		i.addListener(node, eventType, func(ev *Event) {
			if _, err := cb(i.vm.self, i.eventValue(ev)); err != nil {
				i.log.Warn(context.Background(), err, "element listener failed",
					"event", eventType)
			}
		})
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("value",
		rt.ToValue(func() string { return render.ReadElementValue(node) }),
		rt.ToValue(func(v string) { render.WriteElementValue(node, v) }),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("textContent",
		rt.ToValue(func() string { return dom.InnerText(node) }),
		rt.ToValue(func(v string) { dom.SetText(node, v) }),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// Lookup implements render.Evaluator.
func (i *Instance) Lookup(path string) (interface{}, bool) {
	return i.state.Get(path)
}

// EvalCondition implements render.Evaluator: conditional expressions
// evaluate against state with failures treated as false.
func (i *Instance) EvalCondition(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	fn, ok := i.vm.exprs[expr]
	if !ok {
		v, err := i.vm.rt.RunString("(function(){ with(this.state){ return (" + expr + "); } })")
		if err != nil {
			i.logBindingFailure(expr, err)
			return false
		}
		fn, ok = goja.AssertFunction(v)
		if !ok {
			i.logBindingFailure(expr, fmt.Errorf("expression did not compile"))
			return false
		}
		i.vm.exprs[expr] = fn
	}
	result, err := fn(i.vm.self)
	if err != nil {
		i.logBindingFailure(expr, err)
		return false
	}
	return result.ToBoolean()
}

// CallValue implements render.Evaluator: function-valued bindings are
// invoked with the instance as receiver.
func (i *Instance) CallValue(v interface{}) (interface{}, bool) {
	gv, isValue := v.(goja.Value)
	if !isValue {
		return nil, false
	}
	fn, ok := goja.AssertFunction(gv)
	if !ok {
		return nil, false
	}
	result, err := fn(i.vm.self)
	if err != nil {
		i.logBindingFailure("binding function", err)
		return nil, true
	}
	return result.Export(), true
}

func (i *Instance) logBindingFailure(expr string, err error) {
	bindErr := errors.NewBindingError(expr, err).WithComponent(i.def.TagName)
	i.log.Warn(context.Background(), bindErr, "binding evaluation failed")
}
