// Package binding discovers template bindings and builds the per-instance
// binding table.
//
// The scanner walks one cloned template fragment and records every live
// association between a template location and reactive state: text
// interpolations ({path}), attribute interpolations, two-way data-bind
// targets, data-if/data-else-if/data-else conditional groups, and on<event>
// handler attributes. Every table entry references nodes of the scanned
// clone, so a table is built once per component instance, never shared
// across instances.
package binding

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/dom"
	"github.com/singlet-dev/singlet/internal/rewrite"
)

// Placeholder matches one {identifier.path} interpolation. Paths are
// dot-separated word characters; arbitrary expressions are not interpolated.
var Placeholder = regexp.MustCompile(`\{([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\}`)

var (
	arrowLiteral = regexp.MustCompile(`^(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)
	callExpr     = regexp.MustCompile(`^([A-Za-z_$][\w$]*)\((.*)\)$`)
	bareIdent    = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// TextBinding associates a template text node with the state paths
// interpolated into it. A single node may hold several placeholders; they
// are grouped so a render recomputes the whole node text in one pass.
type TextBinding struct {
	Node      *html.Node
	Template  string
	StateKeys []string
}

// AttributeBinding associates an element attribute with interpolated state
// paths. Renders rewrite the attribute through the DOM attribute API.
type AttributeBinding struct {
	Element   *html.Node
	Name      string
	Template  string
	StateKeys []string
}

// TwoWayBinding marks an element carrying data-bind="path". State drives the
// element's display value, and user input on the element writes back into
// state at the same path.
type TwoWayBinding struct {
	Element *html.Node
	Path    string
}

// ConditionalKind identifies a branch's role within its group.
type ConditionalKind int

const (
	KindIf ConditionalKind = iota
	KindElseIf
	KindElse
)

// ConditionalBranch is one data-if/data-else-if/data-else element. The
// element is detached at scan time; Anchor is the comment node left in its
// place and marks the reinsertion point.
type ConditionalBranch struct {
	Element    *html.Node
	Kind       ConditionalKind
	Expression string
	Anchor     *html.Node
}

// ConditionalGroup is an ordered run of branches of which exactly one is
// visible at a time: the first truthy if/else-if, or the trailing else.
type ConditionalGroup struct {
	Branches []*ConditionalBranch
}

// EventKind identifies how a handler attribute value is interpreted. The
// three forms are tried in a fixed precedence order: arrow literal, call
// expression, bare identifier.
type EventKind int

const (
	EventArrowLiteral EventKind = iota
	EventCallExpression
	EventIdentifier
)

// EventBinding is one on<event> declarative handler. The source attribute is
// removed from the DOM at scan time so it can never double-fire through
// native inline-handler semantics.
type EventBinding struct {
	Element       *html.Node
	EventType     string
	HandlerSource string
	Kind          EventKind
	// CallName and CallArgs are populated for call-expression handlers.
	CallName string
	CallArgs string
}

// Table is the complete binding table for one template instance clone.
type Table struct {
	Text         []*TextBinding
	Attributes   []*AttributeBinding
	TwoWay       []*TwoWayBinding
	Conditionals []*ConditionalGroup
	Events       []*EventBinding
}

// Scan walks a cloned template fragment and builds its binding table.
// Conditional elements are detached and replaced by comment anchors as a
// side effect.
func Scan(fragment *html.Node) *Table {
	t := &Table{}
	t.scanText(fragment)
	t.scanElements(fragment)
	t.scanConditionals(fragment)
	return t
}

func (t *Table) scanText(fragment *html.Node) {
	for _, node := range dom.TextNodes(fragment) {
		matches := Placeholder.FindAllStringSubmatch(node.Data, -1)
		if len(matches) == 0 {
			continue
		}
		keys := make([]string, 0, len(matches))
		for _, m := range matches {
			keys = append(keys, m[1])
		}
		t.Text = append(t.Text, &TextBinding{
			Node:      node,
			Template:  node.Data,
			StateKeys: keys,
		})
	}
}

func (t *Table) scanElements(fragment *html.Node) {
	for _, el := range dom.Elements(fragment) {
		var removeAttrs []string
		for _, attr := range el.Attr {
			switch {
			case attr.Key == "data-bind":
				path := strings.TrimSpace(attr.Val)
				if path != "" {
					t.TwoWay = append(t.TwoWay, &TwoWayBinding{Element: el, Path: path})
				}
			case attr.Key == "data-if" || attr.Key == "data-else-if" || attr.Key == "data-else":
				// Grouped in scanConditionals.
			case isEventAttr(attr.Key):
				eb := parseEventAttr(el, attr.Key, attr.Val)
				if eb != nil {
					t.Events = append(t.Events, eb)
				}
				removeAttrs = append(removeAttrs, attr.Key)
			case Placeholder.MatchString(attr.Val):
				matches := Placeholder.FindAllStringSubmatch(attr.Val, -1)
				keys := make([]string, 0, len(matches))
				for _, m := range matches {
					keys = append(keys, m[1])
				}
				t.Attributes = append(t.Attributes, &AttributeBinding{
					Element:   el,
					Name:      attr.Key,
					Template:  attr.Val,
					StateKeys: keys,
				})
			}
		}
		for _, name := range removeAttrs {
			dom.RemoveAttr(el, name)
		}
	}
}

// scanConditionals groups consecutive sibling elements starting with data-if
// and continuing through any number of data-else-if and at most one trailing
// data-else. Each branch element is detached and a comment anchor takes its
// place, preserving source order for reinsertion.
func (t *Table) scanConditionals(fragment *html.Node) {
	var starts []*html.Node
	dom.Walk(fragment, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if _, ok := dom.GetAttr(n, "data-if"); ok {
				starts = append(starts, n)
			}
		}
		return true
	})

	for _, start := range starts {
		group := &ConditionalGroup{}
		expr, _ := dom.GetAttr(start, "data-if")
		group.Branches = append(group.Branches, &ConditionalBranch{
			Element:    start,
			Kind:       KindIf,
			Expression: expr,
		})

		for next := nextElementSibling(start); next != nil; {
			if v, ok := dom.GetAttr(next, "data-else-if"); ok {
				group.Branches = append(group.Branches, &ConditionalBranch{
					Element:    next,
					Kind:       KindElseIf,
					Expression: v,
				})
				next = nextElementSibling(next)
				continue
			}
			if _, ok := dom.GetAttr(next, "data-else"); ok {
				group.Branches = append(group.Branches, &ConditionalBranch{
					Element: next,
					Kind:    KindElse,
				})
			}
			break
		}

		for _, branch := range group.Branches {
			branch.Anchor = dom.NewComment("singlet:if")
			dom.ReplaceNode(branch.Element, branch.Anchor)
			dom.RemoveAttr(branch.Element, conditionalAttr(branch.Kind))
		}
		t.Conditionals = append(t.Conditionals, group)
	}
}

func conditionalAttr(kind ConditionalKind) string {
	switch kind {
	case KindIf:
		return "data-if"
	case KindElseIf:
		return "data-else-if"
	default:
		return "data-else"
	}
}

// nextElementSibling skips whitespace-only text nodes and comments between
// conditional branches.
func nextElementSibling(n *html.Node) *html.Node {
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		switch sib.Type {
		case html.ElementNode:
			return sib
		case html.TextNode:
			if strings.TrimSpace(sib.Data) != "" {
				return nil
			}
		case html.CommentNode:
			// skip
		default:
			return nil
		}
	}
	return nil
}

func isEventAttr(name string) bool {
	if !strings.HasPrefix(name, "on") || len(name) <= 2 {
		return false
	}
	for _, r := range name[2:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// parseEventAttr classifies a handler attribute value using the fixed
// precedence order: arrow-function literal, call expression, bare
// identifier. Unrecognized values are dropped.
func parseEventAttr(el *html.Node, name, value string) *EventBinding {
	src := strings.TrimSpace(value)
	if src == "" {
		return nil
	}
	eb := &EventBinding{
		Element:       el,
		EventType:     name[2:],
		HandlerSource: src,
	}
	if arrowLiteral.MatchString(src) {
		eb.Kind = EventArrowLiteral
		return eb
	}
	if m := callExpr.FindStringSubmatch(src); m != nil {
		eb.Kind = EventCallExpression
		eb.CallName = m[1]
		eb.CallArgs = m[2]
		return eb
	}
	if bareIdent.MatchString(src) {
		eb.Kind = EventIdentifier
		return eb
	}
	return nil
}

// BoundNames collects every root identifier referenced by some binding:
// interpolation paths, two-way paths, conditional expressions, and event
// handler sources. Script declarations matching these names are redirected
// through reactive state by the rewrite pass.
func (t *Table) BoundNames() map[string]bool {
	bound := make(map[string]bool)
	root := func(path string) {
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[:i]
		}
		if path != "" {
			bound[path] = true
		}
	}

	for _, tb := range t.Text {
		for _, key := range tb.StateKeys {
			root(key)
		}
	}
	for _, ab := range t.Attributes {
		for _, key := range ab.StateKeys {
			root(key)
		}
	}
	for _, tw := range t.TwoWay {
		root(tw.Path)
	}
	for _, group := range t.Conditionals {
		for _, branch := range group.Branches {
			for _, id := range rewrite.Identifiers(branch.Expression) {
				bound[id] = true
			}
		}
	}
	for _, eb := range t.Events {
		for _, id := range rewrite.Identifiers(eb.HandlerSource) {
			bound[id] = true
		}
	}
	return bound
}
