package runtime

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/binding"
	"github.com/singlet-dev/singlet/internal/dom"
	"github.com/singlet-dev/singlet/internal/errors"
	"github.com/singlet-dev/singlet/internal/logging"
	"github.com/singlet-dev/singlet/internal/render"
	"github.com/singlet-dev/singlet/internal/rewrite"
	"github.com/singlet-dev/singlet/internal/state"
)

// LifecycleState tracks where an instance is in its lifecycle.
type LifecycleState int

const (
	StateUnattached LifecycleState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

// Event is the payload delivered to handlers on dispatch.
type Event struct {
	Type   string
	Detail interface{}
	Target *html.Node
	Value  string
}

type domListener struct {
	node  *html.Node
	event string
	fn    func(*Event)
}

// Instance is one live component: a clone of the definition's template, a
// binding table bound to that clone, a reactive state store, and a script
// VM. Instances are created by the registry and are exclusively owned by
// their host element.
type Instance struct {
	def  *ComponentDefinition
	reg  *Registry
	log  logging.Logger
	host *html.Node

	state  *state.Store
	table  *binding.Table
	engine *render.Engine

	lifecycle   LifecycleState
	initialized bool

	listeners []*domListener
	unsubs    []func()

	vm vmHandle
}

// hostAttrSkip are host attributes that never seed state.
var hostAttrSkip = map[string]bool{
	"class": true, "id": true, "style": true, "slot": true,
}

func newInstance(reg *Registry, def *ComponentDefinition, host *html.Node) *Instance {
	inst := &Instance{
		def:       def,
		reg:       reg,
		log:       reg.log.WithComponent(def.TagName),
		host:      host,
		lifecycle: StateUnattached,
	}
	inst.state = state.NewStore(inst.renderPass)
	inst.lifecycle = StateConnecting
	return inst
}

// Connect runs the connection lifecycle: clone the template, scan bindings,
// execute scripts, seed state, and perform the first paint. Reconnecting an
// instance that already initialized only flips the lifecycle state; it never
// re-runs initialization or re-registers listeners.
func (i *Instance) Connect() error {
	if i.initialized {
		i.lifecycle = StateConnected
		return nil
	}
	i.lifecycle = StateConnecting

	// Mount the template clone under the host. Shadow-root isolation is a
	// definition flag; headless both shapes root at the host element.
	clone := dom.Clone(i.def.Template)
	for clone.FirstChild != nil {
		child := clone.FirstChild
		clone.RemoveChild(child)
		i.host.AppendChild(child)
	}
	if i.def.StyleText != "" {
		styleEl := &html.Node{Type: html.ElementNode, Data: "style"}
		styleEl.AppendChild(&html.Node{Type: html.TextNode, Data: i.def.StyleText})
		if i.host.FirstChild != nil {
			i.host.InsertBefore(styleEl, i.host.FirstChild)
		} else {
			i.host.AppendChild(styleEl)
		}
	}

	i.table = binding.Scan(i.host)

	if err := i.setupVM(); err != nil {
		return errors.NewInternalError("script vm setup failed", err).WithComponent(i.def.TagName)
	}

	i.state.BeginInit()

	bound := i.table.BoundNames()
	for _, attr := range i.host.Attr {
		if !hostAttrSkip[attr.Key] {
			bound[attr.Key] = true
		}
	}

	if strings.TrimSpace(i.def.InlineScript) != "" {
		program, err := rewrite.Compile(i.def.InlineScript, bound)
		if err != nil {
			i.log.Error(context.Background(), err, "script rewrite failed")
		} else {
			i.runInstanceScript(program.Source)
		}
	}

	i.seedAttributes()
	i.seedTwoWayDefaults()

	for _, src := range i.def.BoundScripts {
		program, err := rewrite.Compile(src, bound)
		if err != nil {
			i.log.Error(context.Background(), err, "script rewrite failed")
			continue
		}
		i.runInstanceScript(program.Source)
	}
	for _, src := range i.def.ModuleScripts {
		i.runModuleScript(src)
	}
	for _, url := range i.def.PlainScripts {
		scriptEl := &html.Node{Type: html.ElementNode, Data: "script"}
		dom.SetAttr(scriptEl, "src", url)
		i.host.AppendChild(scriptEl)
	}

	i.bindEvents()
	i.bindTwoWay()

	i.state.EndInit()
	i.engine = render.NewEngine(i.table, i)
	i.engine.Render()

	i.lifecycle = StateConnected
	i.initialized = true
	return nil
}

// Disconnect releases every DOM event listener and bus subscription the
// instance registered. The instance can reconnect, but will not re-run
// initialization.
func (i *Instance) Disconnect() {
	for _, unsub := range i.unsubs {
		unsub()
	}
	i.unsubs = nil
	i.listeners = nil
	i.lifecycle = StateDisconnected
}

// Lifecycle returns the instance's current lifecycle state.
func (i *Instance) Lifecycle() LifecycleState {
	return i.lifecycle
}

// State returns the instance's reactive state store.
func (i *Instance) State() *state.Store {
	return i.state
}

// Host returns the host element.
func (i *Instance) Host() *html.Node {
	return i.host
}

// SetState merges a partial state map and renders once.
func (i *Instance) SetState(partial map[string]interface{}) {
	i.state.SetState(partial)
}

// Emit publishes an event on the registry bus. A nil detail defaults to the
// full current state snapshot.
func (i *Instance) Emit(name string, detail interface{}) {
	if detail == nil {
		detail = i.state.Snapshot()
	}
	i.reg.bus.Publish(name, detail)
}

// Listen subscribes to a bus event; the subscription is released on
// disconnect.
func (i *Instance) Listen(name string, handler EventHandler) {
	unsub := i.reg.bus.Subscribe(name, handler)
	i.unsubs = append(i.unsubs, unsub)
}

// QuerySelector returns the first element under the instance root matching
// the selector.
func (i *Instance) QuerySelector(sel string) *html.Node {
	return dom.QuerySelector(i.host, sel)
}

// QuerySelectorAll returns every element under the instance root matching
// the selector.
func (i *Instance) QuerySelectorAll(sel string) []*html.Node {
	return dom.QuerySelectorAll(i.host, sel)
}

// HTML serializes the instance's current DOM.
func (i *Instance) HTML() (string, error) {
	return dom.Serialize(i.host)
}

// SetAttribute is the attribute mutation path: the host attribute is updated
// and the parsed value routed into state, triggering a render.
func (i *Instance) SetAttribute(name, value string) {
	dom.SetAttr(i.host, name, value)
	if hostAttrSkip[name] {
		return
	}
	i.state.Set(name, i.parseAttributeValue(name, value))
}

// DispatchEvent delivers an event to every listener registered on target
// for the event type. Dispatch is synchronous.
func (i *Instance) DispatchEvent(target *html.Node, eventType string, detail interface{}) {
	ev := &Event{Type: eventType, Detail: detail, Target: target}
	if target != nil {
		ev.Value = render.ReadElementValue(target)
	}
	for _, l := range i.listeners {
		if l.node == target && l.event == eventType {
			l.fn(ev)
		}
	}
}

// DispatchInput sets the element's display value and dispatches an input
// event, mirroring user typing into a bound control.
func (i *Instance) DispatchInput(target *html.Node, value string) {
	render.WriteElementValue(target, value)
	i.DispatchEvent(target, "input", value)
}

// Click dispatches a click event to the first element matching the
// selector. It reports whether a matching element was found.
func (i *Instance) Click(sel string) bool {
	el := i.QuerySelector(sel)
	if el == nil {
		return false
	}
	i.DispatchEvent(el, "click", nil)
	return true
}

func (i *Instance) addListener(node *html.Node, event string, fn func(*Event)) {
	i.listeners = append(i.listeners, &domListener{node: node, event: event, fn: fn})
}

// renderPass is the state store's change callback.
func (i *Instance) renderPass() {
	if i.engine != nil {
		i.engine.Render()
	}
}

// seedAttributes populates state from host element attributes. Values that
// parse as JSON seed their parsed form (so count="5" seeds the number 5);
// anything else seeds the raw string.
func (i *Instance) seedAttributes() {
	for _, attr := range i.host.Attr {
		if hostAttrSkip[attr.Key] {
			continue
		}
		i.state.Set(attr.Key, i.parseAttributeValue(attr.Key, attr.Val))
	}
}

func (i *Instance) parseAttributeValue(name, raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	switch trimmed[0] {
	case '{', '[', '"', '-', 't', 'f', 'n',
		'0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
		if trimmed[0] == '{' || trimmed[0] == '[' {
			attrErr := errors.NewAttributeError(name, raw, nil).WithComponent(i.def.TagName)
			i.log.Debug(context.Background(), attrErr.Error())
		}
	}
	return raw
}

// seedTwoWayDefaults reads each two-way-bound element's current rendered
// value into state, but only for paths the state does not already define,
// so DOM-authored defaults survive until something writes over them.
func (i *Instance) seedTwoWayDefaults() {
	for _, tw := range i.table.TwoWay {
		if i.state.Has(tw.Path) {
			continue
		}
		i.state.Set(tw.Path, render.ReadElementValue(tw.Element))
	}
}

// bindTwoWay routes user input on bound elements back into state.
func (i *Instance) bindTwoWay() {
	for _, tw := range i.table.TwoWay {
		tw := tw
		writeback := func(ev *Event) {
			i.state.Set(tw.Path, render.ReadElementValue(tw.Element))
		}
		i.addListener(tw.Element, "input", writeback)
		i.addListener(tw.Element, "change", writeback)
	}
}

// bindEvents attaches a dispatcher for every declarative handler. All three
// handler forms route through the VM; evaluation failures are logged and
// swallowed so a broken handler can never break dispatch.
func (i *Instance) bindEvents() {
	for _, eb := range i.table.Events {
		eb := eb
		i.addListener(eb.Element, eb.EventType, func(ev *Event) {
			if err := i.invokeHandler(eb, ev); err != nil {
				bindErr := errors.NewBindingError(eb.HandlerSource, err).WithComponent(i.def.TagName)
				i.log.Warn(context.Background(), bindErr, "event handler failed",
					"event", eb.EventType)
			}
		})
	}
}
