// Package render implements the incremental render engine.
//
// A render pass evaluates the binding table against current state and
// applies minimal DOM writes, in a fixed order: conditional groups first,
// then text interpolations, then attribute interpolations, then two-way
// display mirrors. Node identity is preserved across passes; the template is
// never recloned, and a pass over unchanged state performs zero writes.
package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/binding"
	"github.com/singlet-dev/singlet/internal/dom"
)

// markupPattern detects HTML tag syntax in a substituted text result. A
// result containing markup replaces the text node with a parsed fragment so
// bound values can inject rendered markup; callers are trusted to supply
// safe HTML.
var markupPattern = regexp.MustCompile(`</?[A-Za-z]`)

// Evaluator resolves state values and expressions for the engine. The
// component instance implements it; every evaluation failure is handled
// inside the implementation and surfaces here as a false condition or a
// missing value, never as an error.
type Evaluator interface {
	// Lookup returns the state value at a dot path.
	Lookup(path string) (interface{}, bool)
	// EvalCondition evaluates a conditional expression against state.
	// Failures are treated as false.
	EvalCondition(expr string) bool
	// CallValue invokes a function-valued binding with the instance as
	// receiver and returns its result. ok is false when v is not callable.
	CallValue(v interface{}) (result interface{}, ok bool)
}

// textSlot tracks what a text binding currently has in the DOM.
type textSlot struct {
	nodes []*html.Node
	last  string
	first bool
}

// Engine renders one component instance's binding table.
type Engine struct {
	table *binding.Table
	eval  Evaluator
	text  map[*binding.TextBinding]*textSlot
	attrs map[*binding.AttributeBinding]string
	// active tracks which branch of each conditional group is attached.
	active map[*binding.ConditionalGroup]*binding.ConditionalBranch
}

// NewEngine creates an engine over a scanned binding table.
func NewEngine(table *binding.Table, eval Evaluator) *Engine {
	e := &Engine{
		table:  table,
		eval:   eval,
		text:   make(map[*binding.TextBinding]*textSlot),
		attrs:  make(map[*binding.AttributeBinding]string),
		active: make(map[*binding.ConditionalGroup]*binding.ConditionalBranch),
	}
	for _, tb := range table.Text {
		e.text[tb] = &textSlot{nodes: []*html.Node{tb.Node}, last: tb.Template, first: true}
	}
	return e
}

// Render runs one full pass and returns the number of DOM mutations it
// performed. Rendering twice against unchanged state returns zero on the
// second pass.
func (e *Engine) Render() int {
	writes := 0
	writes += e.renderConditionals()
	writes += e.renderText()
	writes += e.renderAttributes()
	writes += e.renderTwoWay()
	return writes
}

// renderConditionals selects at most one visible branch per group: the first
// truthy if/else-if wins, a trailing else is the fallback. Non-selected
// branches stay detached behind their comment anchors.
func (e *Engine) renderConditionals() int {
	writes := 0
	for _, group := range e.table.Conditionals {
		var selected *binding.ConditionalBranch
		for _, branch := range group.Branches {
			if branch.Kind == binding.KindElse {
				if selected == nil {
					selected = branch
				}
				break
			}
			if e.eval.EvalCondition(branch.Expression) {
				selected = branch
				break
			}
		}

		if e.active[group] == selected {
			continue
		}
		if prev := e.active[group]; prev != nil {
			dom.Detach(prev.Element)
			writes++
		}
		if selected != nil {
			dom.InsertAfter(selected.Element, selected.Anchor)
			writes++
		}
		e.active[group] = selected
	}
	return writes
}

// renderText recomputes each bound text node's full substituted string,
// resolving every placeholder independently. Results containing markup are
// parsed and spliced in place of the text node.
func (e *Engine) renderText() int {
	writes := 0
	for _, tb := range e.table.Text {
		slot := e.text[tb]
		result := e.substitute(tb.Template)
		if !slot.first && result == slot.last {
			continue
		}
		slot.first = false
		slot.last = result

		if markupPattern.MatchString(result) {
			frag, err := dom.ParseFragment(result)
			if err != nil {
				continue
			}
			var fresh []*html.Node
			for c := frag.FirstChild; c != nil; c = c.NextSibling {
				fresh = append(fresh, c)
			}
			if e.replaceSlot(slot, fresh) {
				writes++
			}
			continue
		}

		if len(slot.nodes) == 1 && slot.nodes[0].Type == html.TextNode {
			if slot.nodes[0].Data != result {
				slot.nodes[0].Data = result
				writes++
			}
			continue
		}
		if e.replaceSlot(slot, []*html.Node{{Type: html.TextNode, Data: result}}) {
			writes++
		}
	}
	return writes
}

// replaceSlot swaps the slot's current DOM nodes for fresh ones at the same
// position.
func (e *Engine) replaceSlot(slot *textSlot, fresh []*html.Node) bool {
	if len(slot.nodes) == 0 || slot.nodes[0].Parent == nil {
		return false
	}
	ref := slot.nodes[0]
	parent := ref.Parent
	for _, n := range fresh {
		dom.Detach(n)
		parent.InsertBefore(n, ref)
	}
	for _, old := range slot.nodes {
		dom.Detach(old)
	}
	slot.nodes = fresh
	return true
}

func (e *Engine) renderAttributes() int {
	writes := 0
	for _, ab := range e.table.Attributes {
		result := e.substitute(ab.Template)
		if prev, seen := e.attrs[ab]; seen && prev == result {
			continue
		}
		e.attrs[ab] = result
		dom.SetAttr(ab.Element, ab.Name, result)
		writes++
	}
	return writes
}

// renderTwoWay mirrors state into bound form elements, writing only when
// the element's current content differs so active user edits are never
// clobbered.
func (e *Engine) renderTwoWay() int {
	writes := 0
	for _, tw := range e.table.TwoWay {
		value, ok := e.eval.Lookup(tw.Path)
		if !ok {
			continue
		}
		text := FormatValue(value)
		if ReadElementValue(tw.Element) == text {
			continue
		}
		WriteElementValue(tw.Element, text)
		writes++
	}
	return writes
}

// substitute resolves every placeholder in a template string. Missing and
// null values substitute as empty strings; function values are invoked and
// their return value used.
func (e *Engine) substitute(template string) string {
	return binding.Placeholder.ReplaceAllStringFunc(template, func(m string) string {
		path := m[1 : len(m)-1]
		value, ok := e.eval.Lookup(path)
		if !ok || value == nil {
			return ""
		}
		if result, called := e.eval.CallValue(value); called {
			if result == nil {
				return ""
			}
			return FormatValue(result)
		}
		return FormatValue(value)
	})
}

// ReadElementValue reads an element's display value: the value attribute
// for form controls, text content otherwise.
func ReadElementValue(el *html.Node) string {
	if isFormControl(el) {
		v, _ := dom.GetAttr(el, "value")
		return v
	}
	return dom.InnerText(el)
}

// WriteElementValue writes an element's display value through the channel
// matching its kind.
func WriteElementValue(el *html.Node, text string) {
	if isFormControl(el) {
		dom.SetAttr(el, "value", text)
		return
	}
	dom.SetText(el, text)
}

func isFormControl(el *html.Node) bool {
	switch strings.ToLower(el.Data) {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// FormatValue renders a state value for text, attribute, and two-way
// display. Numbers use their shortest decimal form.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
