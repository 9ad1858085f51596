package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInstance(t *testing.T, sources map[string]string, name, path string) *Instance {
	t.Helper()
	reg := newTestRegistry(sources)
	require.NoError(t, reg.RegisterComponent(context.Background(), name, path, false))
	inst, err := reg.NewInstance(name)
	require.NoError(t, err)
	return inst
}

func mustInstanceWithAttrs(t *testing.T, sources map[string]string, name, path string, attrs map[string]string) *Instance {
	t.Helper()
	reg := newTestRegistry(sources)
	require.NoError(t, reg.RegisterComponent(context.Background(), name, path, false))
	inst, err := reg.NewInstanceWithAttrs(name, attrs)
	require.NoError(t, err)
	return inst
}

func instanceHTML(t *testing.T, inst *Instance) string {
	t.Helper()
	out, err := inst.HTML()
	require.NoError(t, err)
	return out
}

func TestConnectRendersInitialState(t *testing.T) {
	inst := mustInstance(t, map[string]string{"c.html": counterSource}, "my-counter", "c.html")

	assert.Equal(t, StateConnected, inst.Lifecycle())
	assert.Contains(t, instanceHTML(t, inst), "Count: 0")
}

func TestClickRunsRewrittenHandler(t *testing.T) {
	inst := mustInstance(t, map[string]string{"c.html": counterSource}, "my-counter", "c.html")

	require.True(t, inst.Click("#inc"))
	assert.Contains(t, instanceHTML(t, inst), "Count: 1")

	inst.Click("#inc")
	inst.Click("#inc")
	assert.Contains(t, instanceHTML(t, inst), "Count: 3")
}

func TestClickUnknownSelector(t *testing.T) {
	inst := mustInstance(t, map[string]string{"c.html": counterSource}, "my-counter", "c.html")
	assert.False(t, inst.Click("#nope"))
}

func TestArrowLiteralHandler(t *testing.T) {
	src := `
<p>{count}</p>
<button id="b" onclick="() => count = count + 10">go</button>
<script>let count = 1;</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "arrow-demo", "c.html")

	inst.Click("#b")
	assert.Contains(t, instanceHTML(t, inst), "<p>11</p>")
}

func TestLocalShadowingBoundNameKeepsScriptRunning(t *testing.T) {
	src := `
<p>{count}</p>
<button id="b" onclick="reset()">reset</button>
<script>
  let count = 1;
  function reset() {
    let count = 99;
    count++;
  }
</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "shadow-demo", "c.html")

	// The whole script ran: state holds the top-level value.
	v, ok := inst.State().Get("count")
	require.True(t, ok)
	assert.Contains(t, instanceHTML(t, inst), "<p>1</p>")
	assert.Equal(t, float64(1), toFloat(v))

	// The handler's local never leaks into state.
	inst.Click("#b")
	assert.Contains(t, instanceHTML(t, inst), "<p>1</p>")
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return -1
}

func TestBareIdentifierHandler(t *testing.T) {
	src := `
<p>{n}</p>
<button id="b" onclick="bump">go</button>
<script>
  let n = 0;
  function bump() { n = n + 2; }
</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "ident-demo", "c.html")

	inst.Click("#b")
	assert.Contains(t, instanceHTML(t, inst), "<p>2</p>")
}

func TestCallExpressionHandlerWithArgs(t *testing.T) {
	src := `
<p>{total}</p>
<button id="b" onclick="add(7)">go</button>
<script>
  let total = 0;
  function add(amount) { total += amount; }
</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "args-demo", "c.html")

	inst.Click("#b")
	assert.Contains(t, instanceHTML(t, inst), "<p>7</p>")
}

func TestBrokenHandlerDoesNotPanic(t *testing.T) {
	src := `
<p>{x}</p>
<button id="b" onclick="undefinedFunction()">go</button>
<script>let x = 1;</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "broken-demo", "c.html")

	assert.NotPanics(t, func() { inst.Click("#b") })
	assert.Contains(t, instanceHTML(t, inst), "<p>1</p>")
}

func TestAttributeSeedingOverridesScriptDefault(t *testing.T) {
	inst := mustInstanceWithAttrs(t, map[string]string{"c.html": counterSource},
		"my-counter", "c.html", map[string]string{"count": "5"})

	assert.Contains(t, instanceHTML(t, inst), "Count: 5")

	// The seeded value parses as a number, so arithmetic keeps working.
	inst.Click("#inc")
	assert.Contains(t, instanceHTML(t, inst), "Count: 6")
}

func TestAttributeSeedingJSONAndRaw(t *testing.T) {
	src := `<p>{label}: {limit}</p>`
	inst := mustInstanceWithAttrs(t, map[string]string{"c.html": src},
		"attr-demo", "c.html", map[string]string{"label": "items", "limit": "25"})

	v, ok := inst.State().Get("limit")
	require.True(t, ok)
	assert.Equal(t, float64(25), v, "numeric attribute seeds as a number")

	v, ok = inst.State().Get("label")
	require.True(t, ok)
	assert.Equal(t, "items", v, "non-JSON attribute seeds as the raw string")
}

func TestAttributeSkipListNotSeeded(t *testing.T) {
	src := `<p>{x}</p>`
	inst := mustInstanceWithAttrs(t, map[string]string{"c.html": src},
		"skip-demo", "c.html", map[string]string{"class": "fancy", "id": "one", "x": "1"})

	assert.False(t, inst.State().Has("class"))
	assert.False(t, inst.State().Has("id"))
	assert.True(t, inst.State().Has("x"))
}

func TestSetAttributeUpdatesStateAndDOM(t *testing.T) {
	src := `<p>{msg}</p>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "observe-demo", "c.html")

	inst.SetAttribute("msg", "hello")
	assert.Contains(t, instanceHTML(t, inst), "<p>hello</p>")

	inst.SetAttribute("msg", "again")
	assert.Contains(t, instanceHTML(t, inst), "<p>again</p>")
}

func TestTwoWayBindingRoundTrip(t *testing.T) {
	src := `
<p>Hello {name}</p>
<input id="field" data-bind="name">
<script>let name = "Ada";</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "form-demo", "c.html")

	// State drives the element.
	html := instanceHTML(t, inst)
	assert.Contains(t, html, "Hello Ada")
	assert.Contains(t, html, `value="Ada"`)

	// Typing drives state, which re-renders the dependent text.
	field := inst.QuerySelector("#field")
	require.NotNil(t, field)
	inst.DispatchInput(field, "Grace")

	v, _ := inst.State().Get("name")
	assert.Equal(t, "Grace", v)
	assert.Contains(t, instanceHTML(t, inst), "Hello Grace")
}

func TestTwoWayDOMDefaultSeedsState(t *testing.T) {
	src := `<input value="preset" data-bind="query">`
	inst := mustInstance(t, map[string]string{"c.html": src}, "default-demo", "c.html")

	v, ok := inst.State().Get("query")
	require.True(t, ok)
	assert.Equal(t, "preset", v)
}

func TestTwoWayStateWinsOverDOMDefault(t *testing.T) {
	src := `
<input value="preset" data-bind="query">
<script>let query = "scripted";</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "priority-demo", "c.html")

	v, _ := inst.State().Get("query")
	assert.Equal(t, "scripted", v, "script initialization beats the DOM default")
	assert.Contains(t, instanceHTML(t, inst), `value="scripted"`)
}

func TestConditionalToggleThroughHandler(t *testing.T) {
	src := `
<button id="toggle" onclick="flip()">toggle</button>
<div data-if="open" id="panel">open!</div>
<script>
  let open = false;
  function flip() { open = !open; }
</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "toggle-demo", "c.html")

	assert.Nil(t, inst.QuerySelector("#panel"))

	inst.Click("#toggle")
	assert.NotNil(t, inst.QuerySelector("#panel"))

	inst.Click("#toggle")
	assert.Nil(t, inst.QuerySelector("#panel"))
}

func TestConditionalChainWithExpressions(t *testing.T) {
	src := `
<div data-if="score > 90" id="a">A</div>
<div data-else-if="score > 70" id="b">B</div>
<div data-else id="f">F</div>
<script>let score = 0;</script>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "grade-demo", "c.html")

	assert.NotNil(t, inst.QuerySelector("#f"))

	inst.SetState(map[string]interface{}{"score": 80})
	assert.NotNil(t, inst.QuerySelector("#b"))
	assert.Nil(t, inst.QuerySelector("#f"))

	inst.SetState(map[string]interface{}{"score": 95})
	assert.NotNil(t, inst.QuerySelector("#a"))
	assert.Nil(t, inst.QuerySelector("#b"))
}

func TestSetStateRendersOnce(t *testing.T) {
	src := `<p>{a} {b}</p>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "merge-demo", "c.html")

	inst.SetState(map[string]interface{}{"a": "x", "b": "y"})
	assert.Contains(t, instanceHTML(t, inst), "<p>x y</p>")
}

func TestEmitListenBetweenInstances(t *testing.T) {
	reg := newTestRegistry(map[string]string{
		"sender.html":   `<button id="send" onclick="ping()">send</button><script>function ping() { emit("ping", "hello"); }</script>`,
		"receiver.html": `<p>{msg}</p><script>let msg = "waiting"; listen("ping", (d) => { msg = d; });</script>`,
	})
	ctx := context.Background()
	require.NoError(t, reg.RegisterComponent(ctx, "ping-sender", "sender.html", false))
	require.NoError(t, reg.RegisterComponent(ctx, "ping-receiver", "receiver.html", false))

	sender, err := reg.NewInstance("ping-sender")
	require.NoError(t, err)
	receiver, err := reg.NewInstance("ping-receiver")
	require.NoError(t, err)

	assert.Contains(t, instanceHTML(t, receiver), "waiting")

	sender.Click("#send")
	assert.Contains(t, instanceHTML(t, receiver), "hello")
}

func TestEmitNilDetailSendsSnapshot(t *testing.T) {
	inst := mustInstance(t, map[string]string{"c.html": `<p>{x}</p><script>let x = 7;</script>`},
		"snap-demo", "c.html")

	var got interface{}
	inst.Listen("state-report", func(detail interface{}) { got = detail })
	inst.Emit("state-report", nil)

	snap, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, snap, "x")
}

func TestSharedStoreAcrossInstances(t *testing.T) {
	reg := newTestRegistry(map[string]string{
		"picker.html": `<button id="dark" onclick="choose()">dark</button><script>function choose() { store.setState({ theme: "dark" }); }</script>`,
		"banner.html": `<p>{theme}</p><script>let theme = "light"; store.subscribe((s) => { theme = s.theme; });</script>`,
	})
	ctx := context.Background()
	require.NoError(t, reg.RegisterComponent(ctx, "theme-picker", "picker.html", false))
	require.NoError(t, reg.RegisterComponent(ctx, "theme-banner", "banner.html", false))

	picker, err := reg.NewInstance("theme-picker")
	require.NoError(t, err)
	banner, err := reg.NewInstance("theme-banner")
	require.NoError(t, err)

	assert.Contains(t, instanceHTML(t, banner), "light")

	picker.Click("#dark")
	assert.Contains(t, instanceHTML(t, banner), "dark")

	v, ok := reg.Shared().GetState()["theme"]
	require.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestDisconnectReleasesListeners(t *testing.T) {
	reg := newTestRegistry(map[string]string{"c.html": `<p>{x}</p>`})
	ctx := context.Background()
	require.NoError(t, reg.RegisterComponent(ctx, "bye-demo", "c.html", false))
	inst, err := reg.NewInstance("bye-demo")
	require.NoError(t, err)

	var calls int
	inst.Listen("tick", func(interface{}) { calls++ })

	reg.Bus().Publish("tick", nil)
	assert.Equal(t, 1, calls)

	inst.Disconnect()
	assert.Equal(t, StateDisconnected, inst.Lifecycle())

	reg.Bus().Publish("tick", nil)
	assert.Equal(t, 1, calls, "disconnected instances receive nothing")
}

func TestReconnectDoesNotReinitialize(t *testing.T) {
	inst := mustInstance(t, map[string]string{"c.html": counterSource}, "my-counter", "c.html")

	inst.Click("#inc")
	inst.Disconnect()

	require.NoError(t, inst.Connect())
	assert.Equal(t, StateConnected, inst.Lifecycle())
	// State survived; the script did not run again.
	assert.Contains(t, instanceHTML(t, inst), "Count: 1")
}

func TestStyleInjectedIntoInstance(t *testing.T) {
	src := `<p>{x}</p><style>p { color: red; }</style>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "style-demo", "c.html")

	html := instanceHTML(t, inst)
	assert.Contains(t, html, "<style>")
	assert.Contains(t, html, "color: red")
}

func TestBoundExternalScriptRuns(t *testing.T) {
	inst := mustInstance(t, map[string]string{
		"w.html":   `<p>{label}</p><script src="ext.js" bind></script>`,
		"ext.js":   `let label = "external ran";`,
	}, "ext-demo", "w.html")

	assert.Contains(t, instanceHTML(t, inst), "external ran")
}

func TestQuerySelectorAllOnInstance(t *testing.T) {
	src := `<li class="row">a</li><li class="row">b</li>`
	inst := mustInstance(t, map[string]string{"c.html": src}, "list-demo", "c.html")

	assert.Len(t, inst.QuerySelectorAll(".row"), 2)
}
