// Package dom provides a small headless DOM layer over golang.org/x/net/html.
//
// Component templates are parsed into html.Node fragments, cloned once per
// component instance, and mutated in place by the render engine. The helpers
// here cover the operations the runtime needs: fragment parsing, deep clones,
// attribute access, text extraction, node replacement around comment anchors,
// and a minimal CSS-style selector for the instance query API.
package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses markup as body content and returns a fragment
// container node holding the parsed children. The container itself is a
// DocumentNode and is never serialized.
func ParseFragment(markup string) (*html.Node, error) {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// Clone returns a deep copy of n. Parent and sibling links of the copy are
// fresh; the original tree is untouched.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// Walk visits root and every descendant in document order. Returning false
// from visit skips that node's children.
func Walk(root *html.Node, visit func(*html.Node) bool) {
	if !visit(root) {
		return
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		Walk(child, visit)
	}
}

// TextNodes returns every text node under root in document order.
func TextNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Elements returns every element node under root in document order,
// excluding root itself.
func Elements(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n != root && n.Type == html.ElementNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// GetAttr returns the value of the named attribute and whether it exists.
func GetAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes the named attribute if present.
func RemoveAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// InnerText returns the concatenation of all text node content under n.
func InnerText(n *html.Node) string {
	var sb strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// SetText replaces all children of n with a single text node holding s.
func SetText(n *html.Node, s string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// NewComment creates a detached comment node.
func NewComment(data string) *html.Node {
	return &html.Node{Type: html.CommentNode, Data: data}
}

// Detach removes n from its parent, leaving n reusable for reinsertion.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ReplaceNode swaps old for repl in old's parent. old is detached.
func ReplaceNode(old, repl *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
}

// InsertAfter inserts n as the sibling immediately following ref.
func InsertAfter(n, ref *html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	if ref.NextSibling != nil {
		parent.InsertBefore(n, ref.NextSibling)
	} else {
		parent.AppendChild(n)
	}
}

// ReplaceWithNodes replaces old with the given nodes, preserving order.
func ReplaceWithNodes(old *html.Node, nodes []*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	for _, n := range nodes {
		Detach(n)
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
}

// Serialize renders n to HTML text. DocumentNode containers render their
// children only.
func Serialize(n *html.Node) (string, error) {
	var sb strings.Builder
	if n.Type == html.DocumentNode {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := html.Render(&sb, child); err != nil {
				return "", err
			}
		}
		return sb.String(), nil
	}
	if err := html.Render(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// selectorPart is one compound simple selector: tag#id.class[attr=val].
type selectorPart struct {
	tag     string
	id      string
	classes []string
	attrs   [][2]string // name, value; value "" means presence check
}

func parseSelector(sel string) []selectorPart {
	var parts []selectorPart
	for _, raw := range strings.Split(sel, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts = append(parts, parseCompound(raw))
	}
	return parts
}

func parseCompound(s string) selectorPart {
	var p selectorPart
	i := 0
	readName := func() string {
		start := i
		for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
			i++
		}
		return s[start:i]
	}
	p.tag = readName()
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			p.id = readName()
		case '.':
			i++
			p.classes = append(p.classes, readName())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return p
			}
			body := s[i+1 : i+end]
			i += end + 1
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				val := strings.Trim(body[eq+1:], `"'`)
				p.attrs = append(p.attrs, [2]string{body[:eq], val})
			} else {
				p.attrs = append(p.attrs, [2]string{body, ""})
			}
		default:
			i++
		}
	}
	return p
}

func (p selectorPart) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if p.tag != "" && p.tag != "*" && !strings.EqualFold(p.tag, n.Data) {
		return false
	}
	if p.id != "" {
		id, _ := GetAttr(n, "id")
		if id != p.id {
			return false
		}
	}
	for _, class := range p.classes {
		cv, _ := GetAttr(n, "class")
		found := false
		for _, c := range strings.Fields(cv) {
			if c == class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, av := range p.attrs {
		val, ok := GetAttr(n, av[0])
		if !ok {
			return false
		}
		if av[1] != "" && val != av[1] {
			return false
		}
	}
	return true
}

// QuerySelector returns the first element under root matching the selector,
// or nil. Supported selectors are compound simple selectors
// (tag, #id, .class, [attr], [attr=value]) and comma-separated lists;
// combinators are not supported.
func QuerySelector(root *html.Node, sel string) *html.Node {
	matches := QuerySelectorAll(root, sel)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// QuerySelectorAll returns every element under root matching the selector in
// document order.
func QuerySelectorAll(root *html.Node, sel string) []*html.Node {
	parts := parseSelector(sel)
	if len(parts) == 0 {
		return nil
	}
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		for _, p := range parts {
			if p.matches(n) {
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out
}
