package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/binding"
	"github.com/singlet-dev/singlet/internal/dom"
)

// mapEvaluator backs the engine with a plain map for tests. Conditional
// expressions are limited to a single bound name, truthy when the value is
// a non-false, non-zero, non-empty entry.
type mapEvaluator struct {
	values map[string]interface{}
}

func (m *mapEvaluator) Lookup(path string) (interface{}, bool) {
	var current interface{} = m.values
	for _, part := range strings.Split(path, ".") {
		mm, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = mm[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (m *mapEvaluator) EvalCondition(expr string) bool {
	v, ok := m.Lookup(strings.TrimSpace(expr))
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func (m *mapEvaluator) CallValue(v interface{}) (interface{}, bool) {
	if fn, ok := v.(func() interface{}); ok {
		return fn(), true
	}
	return nil, false
}

func setup(t *testing.T, markup string, values map[string]interface{}) (*html.Node, *Engine, *mapEvaluator) {
	t.Helper()
	frag, err := dom.ParseFragment(markup)
	require.NoError(t, err)
	table := binding.Scan(frag)
	eval := &mapEvaluator{values: values}
	return frag, NewEngine(table, eval), eval
}

func serialize(t *testing.T, n *html.Node) string {
	t.Helper()
	out, err := dom.Serialize(n)
	require.NoError(t, err)
	return out
}

func TestRenderText(t *testing.T) {
	frag, engine, eval := setup(t, `<p>Hello {name}!</p>`, map[string]interface{}{"name": "Ada"})

	writes := engine.Render()
	assert.Equal(t, 1, writes)
	assert.Equal(t, "<p>Hello Ada!</p>", serialize(t, frag))

	eval.values["name"] = "Grace"
	assert.Equal(t, 1, engine.Render())
	assert.Equal(t, "<p>Hello Grace!</p>", serialize(t, frag))
}

func TestRenderIdempotent(t *testing.T) {
	frag, engine, _ := setup(t, `<p>{a} and {b}</p><img src="{pic}"><input data-bind="a">`,
		map[string]interface{}{"a": 1, "b": 2, "pic": "x.png"})

	first := engine.Render()
	assert.Greater(t, first, 0)
	assert.Equal(t, 0, engine.Render(), "unchanged state renders zero writes")
	_ = frag
}

func TestRenderMissingAndNilValues(t *testing.T) {
	frag, engine, _ := setup(t, `<p>[{missing}][{null}]</p>`, map[string]interface{}{"null": nil})

	engine.Render()
	assert.Equal(t, "<p>[][]</p>", serialize(t, frag))
}

func TestRenderMultiplePlaceholdersOneNode(t *testing.T) {
	frag, engine, eval := setup(t, `<p>{first} {last}</p>`,
		map[string]interface{}{"first": "Ada", "last": "Lovelace"})

	engine.Render()
	assert.Equal(t, "<p>Ada Lovelace</p>", serialize(t, frag))

	eval.values["last"] = "Byron"
	assert.Equal(t, 1, engine.Render(), "whole node recomputed in one write")
	assert.Equal(t, "<p>Ada Byron</p>", serialize(t, frag))
}

func TestRenderNestedPaths(t *testing.T) {
	frag, engine, _ := setup(t, `<p>{user.name}</p>`,
		map[string]interface{}{"user": map[string]interface{}{"name": "Ada"}})

	engine.Render()
	assert.Equal(t, "<p>Ada</p>", serialize(t, frag))
}

func TestRenderFunctionValuedBinding(t *testing.T) {
	frag, engine, _ := setup(t, `<p>{greeting}</p>`,
		map[string]interface{}{"greeting": func() interface{} { return "computed" }})

	engine.Render()
	assert.Equal(t, "<p>computed</p>", serialize(t, frag))
}

func TestRenderMarkupValue(t *testing.T) {
	frag, engine, eval := setup(t, `<div>{content}</div>`,
		map[string]interface{}{"content": "<em>rich</em>"})

	engine.Render()
	assert.Equal(t, "<div><em>rich</em></div>", serialize(t, frag))

	// Flipping back to plain text replaces the spliced nodes.
	eval.values["content"] = "plain"
	engine.Render()
	assert.Equal(t, "<div>plain</div>", serialize(t, frag))
}

func TestRenderAttributes(t *testing.T) {
	frag, engine, eval := setup(t, `<img src="/img/{file}" alt="static">`,
		map[string]interface{}{"file": "a.png"})

	engine.Render()
	img := dom.QuerySelector(frag, "img")
	src, _ := dom.GetAttr(img, "src")
	assert.Equal(t, "/img/a.png", src)

	eval.values["file"] = "b.png"
	assert.Equal(t, 1, engine.Render())
	src, _ = dom.GetAttr(img, "src")
	assert.Equal(t, "/img/b.png", src)
}

func TestRenderConditionalFirstTruthyWins(t *testing.T) {
	markup := `
<div data-if="gold" id="gold">gold</div>
<div data-else-if="silver" id="silver">silver</div>
<div data-else id="none">none</div>`
	frag, engine, eval := setup(t, markup, map[string]interface{}{"gold": true, "silver": true})

	engine.Render()
	assert.NotNil(t, dom.QuerySelector(frag, "#gold"))
	assert.Nil(t, dom.QuerySelector(frag, "#silver"))
	assert.Nil(t, dom.QuerySelector(frag, "#none"))

	eval.values["gold"] = false
	engine.Render()
	assert.Nil(t, dom.QuerySelector(frag, "#gold"))
	assert.NotNil(t, dom.QuerySelector(frag, "#silver"))

	eval.values["silver"] = false
	engine.Render()
	assert.NotNil(t, dom.QuerySelector(frag, "#none"))
}

func TestRenderConditionalWithoutElseCanShowNothing(t *testing.T) {
	frag, engine, eval := setup(t, `<div data-if="show" id="x">x</div>`,
		map[string]interface{}{"show": false})

	engine.Render()
	assert.Nil(t, dom.QuerySelector(frag, "#x"))

	eval.values["show"] = true
	engine.Render()
	assert.NotNil(t, dom.QuerySelector(frag, "#x"))
}

func TestRenderConditionalPreservesNodeIdentity(t *testing.T) {
	frag, engine, eval := setup(t, `
<div data-if="show" id="x">x</div>
<div data-else id="y">y</div>`, map[string]interface{}{"show": true})

	engine.Render()
	original := dom.QuerySelector(frag, "#x")
	require.NotNil(t, original)

	eval.values["show"] = false
	engine.Render()
	eval.values["show"] = true
	engine.Render()

	assert.Same(t, original, dom.QuerySelector(frag, "#x"),
		"reinserted branch is the same node, not a clone")
}

func TestRenderConditionalPosition(t *testing.T) {
	frag, engine, eval := setup(t, `<span>before</span><div data-if="show">mid</div><span>after</span>`,
		map[string]interface{}{"show": false})

	engine.Render()
	eval.values["show"] = true
	engine.Render()

	out := serialize(t, frag)
	mid := strings.Index(out, "mid")
	assert.Greater(t, mid, strings.Index(out, "before"))
	assert.Less(t, mid, strings.Index(out, "after"))
}

func TestRenderTwoWayMirror(t *testing.T) {
	frag, engine, eval := setup(t, `<input data-bind="email">`,
		map[string]interface{}{"email": "a@b.c"})

	assert.Equal(t, 1, engine.Render())
	input := dom.QuerySelector(frag, "input")
	v, _ := dom.GetAttr(input, "value")
	assert.Equal(t, "a@b.c", v)

	// Matching element content suppresses the write.
	assert.Equal(t, 0, engine.Render())

	eval.values["email"] = "x@y.z"
	assert.Equal(t, 1, engine.Render())
	v, _ = dom.GetAttr(input, "value")
	assert.Equal(t, "x@y.z", v)
}

func TestRenderTwoWayNonFormElement(t *testing.T) {
	frag, engine, _ := setup(t, `<span data-bind="label"></span>`,
		map[string]interface{}{"label": "hi"})

	engine.Render()
	span := dom.QuerySelector(frag, "span")
	assert.Equal(t, "hi", dom.InnerText(span))
}

func TestRenderTwoWayMissingPathSkipped(t *testing.T) {
	frag, engine, _ := setup(t, `<input data-bind="absent">`, map[string]interface{}{})

	assert.Equal(t, 0, engine.Render())
	input := dom.QuerySelector(frag, "input")
	_, ok := dom.GetAttr(input, "value")
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	testCases := []struct {
		name     string
		value    interface{}
		expected string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float whole", 3.0, "3"},
		{"float fraction", 2.5, "2.5"},
		{"float32", float32(1.25), "1.25"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatValue(tc.value))
		})
	}
}
