package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bound(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func TestCompileSimpleDeclaration(t *testing.T) {
	p, err := Compile("let count = 0;", bound("count"))
	require.NoError(t, err)
	assert.Equal(t, "this.state.count = 0;", p.Source)
	assert.Empty(t, p.BoundFunctions)
}

func TestCompileUnboundDeclarationStaysLocal(t *testing.T) {
	p, err := Compile("let helper = 42;", bound("count"))
	require.NoError(t, err)
	assert.Equal(t, "let helper = 42;", p.Source)
}

func TestCompileDeclarationWithoutInitializer(t *testing.T) {
	p, err := Compile("let count;", bound("count"))
	require.NoError(t, err)
	assert.Equal(t, "this.state.count = undefined;", p.Source)
}

func TestCompileMixedMultiDeclarator(t *testing.T) {
	p, err := Compile("let count = 0, scratch = 1;", bound("count"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.count = 0;")
	assert.Contains(t, p.Source, "let scratch = 1;")
}

func TestCompileReferencesInsideFunction(t *testing.T) {
	src := `let count = 0;
function increment() {
  count++;
}`
	p, err := Compile(src, bound("count", "increment"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.count = 0;")
	assert.Contains(t, p.Source, "this.state.count++;")
	assert.Contains(t, p.Source, "this.increment = increment;")
	assert.Equal(t, []string{"increment"}, p.BoundFunctions)
}

func TestCompileNestedDeclarationShadows(t *testing.T) {
	src := `let count = 1;
function shadow() {
  let count = 99;
  count++;
}`
	p, err := Compile(src, bound("count"))
	require.NoError(t, err)
	assert.Equal(t, `this.state.count = 1;
function shadow() {
  let count = 99;
  count++;
}`, p.Source)
}

func TestCompileNestedConstAndVarShadow(t *testing.T) {
	src := `let total = 0;
function calc() {
  const total = 10;
  var extra = total * 2;
  return extra;
}`
	p, err := Compile(src, bound("total"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.total = 0;")
	assert.Contains(t, p.Source, "const total = 10;")
	assert.Contains(t, p.Source, "var extra = total * 2;")
	assert.NotContains(t, p.Source, "let this.state.")
	assert.NotContains(t, p.Source, "const this.state.")
}

func TestCompileNestedMultiDeclaratorShadows(t *testing.T) {
	src := `let a = 1;
let b = 2;
function mix() {
  let a = f(1, 2), b = 3;
  return a + b;
}`
	p, err := Compile(src, bound("a", "b"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.a = 1;")
	assert.Contains(t, p.Source, "this.state.b = 2;")
	assert.Contains(t, p.Source, "let a = f(1, 2), b = 3;")
	assert.Contains(t, p.Source, "return a + b;")
}

func TestCompileNestedDeclarationInitializerStillRewritten(t *testing.T) {
	src := `let count = 5;
function snap() {
  let local = count + 1;
  return local;
}`
	p, err := Compile(src, bound("count"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "let local = this.state.count + 1;")
}

func TestCompileBlockLevelDeclarationShadows(t *testing.T) {
	src := `let count = 1;
if (ready) {
  let count = 2;
  use(count);
}`
	p, err := Compile(src, bound("count"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.count = 1;")
	assert.Contains(t, p.Source, "let count = 2;")
	assert.Contains(t, p.Source, "use(count);")
	assert.NotContains(t, p.Source, "let this.state.")
}

func TestCompileForLoopDeclarationShadows(t *testing.T) {
	src := `let i = 0;
function walk() {
  for (let i = 0; i < 3; i++) {
    visit(i);
  }
}`
	p, err := Compile(src, bound("i"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.i = 0;")
	assert.Contains(t, p.Source, "for (let i = 0; i < 3; i++)")
	assert.Contains(t, p.Source, "visit(i);")
}

func TestCompileCompoundAssignment(t *testing.T) {
	p, err := Compile("function bump() { total += 5; }", bound("total", "bump"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "this.state.total += 5;")
}

func TestCompileCallPositionNotRewritten(t *testing.T) {
	p, err := Compile("function go() { reset(); }", bound("go", "reset"))
	require.NoError(t, err)
	// reset is called, so it resolves against functions, not state values.
	assert.Contains(t, p.Source, "reset();")
	assert.NotContains(t, p.Source, "this.state.reset")
}

func TestCompilePropertyAccessNotRewritten(t *testing.T) {
	p, err := Compile("function f() { user.count = 5; }", bound("count", "f"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "user.count = 5;")
	assert.NotContains(t, p.Source, "this.state")
}

func TestCompileStringLiteralsUntouched(t *testing.T) {
	p, err := Compile(`let msg = "count is high";`, bound("count", "msg"))
	require.NoError(t, err)
	assert.Equal(t, `this.state.msg = "count is high";`, p.Source)
}

func TestCompileParameterShadowing(t *testing.T) {
	p, err := Compile("function add(count) { return count + 1; }", bound("count", "add"))
	require.NoError(t, err)
	// The shadowing parameter is renamed so state never leaks into it.
	assert.Contains(t, p.Source, "function add(count__p1)")
	assert.Contains(t, p.Source, "return count__p1 + 1;")
	assert.NotContains(t, p.Source, "this.state.count")
}

func TestCompileParameterDefaultUsesState(t *testing.T) {
	p, err := Compile("function f(count = limit) { return count; }", bound("count", "limit", "f"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "count__p1 = this.state.limit")
	assert.Contains(t, p.Source, "return count__p1;")
}

func TestCompileArrowExpressionBody(t *testing.T) {
	p, err := Compile("const double = (x) => x * factor;", bound("factor"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "(x) => x * this.state.factor")
	assert.Contains(t, p.Source, "const double =")
}

func TestCompileSingleParamArrowShadowing(t *testing.T) {
	p, err := Compile("function f() { items.forEach(item => total += item.price); }", bound("total", "item", "f"))
	require.NoError(t, err)
	// The arrow parameter shadows the bound name inside its body only.
	assert.Contains(t, p.Source, "this.state.total +=")
	assert.Contains(t, p.Source, "item__p1 =>")
	assert.Contains(t, p.Source, "item__p1.price")
}

func TestCompileArrowScopeEndsWithExpression(t *testing.T) {
	p, err := Compile("function f() { g(x => x); h(item); }", bound("item", "f"))
	require.NoError(t, err)
	// item is referenced after the arrow closed, so it reads from state.
	assert.Contains(t, p.Source, "h(this.state.item)")
}

func TestCompileBoundFunctionValued(t *testing.T) {
	p, err := Compile("let save = function() { return 1; };", bound("save"))
	require.NoError(t, err)
	// Function-valued bound declarations stay local and are mirrored onto
	// the instance for handler resolution.
	assert.Contains(t, p.Source, "let save = function()")
	assert.Contains(t, p.Source, "this.save = save;")
	assert.Equal(t, []string{"save"}, p.BoundFunctions)
}

func TestCompileBoundArrowValued(t *testing.T) {
	p, err := Compile("const clear = () => { count = 0; };", bound("clear", "count"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "const clear =")
	assert.Contains(t, p.Source, "this.state.count = 0;")
	assert.Contains(t, p.Source, "this.clear = clear;")
}

func TestCompileNestedFunctionsNotMirrored(t *testing.T) {
	src := `function outer() {
  function inner() { return 1; }
  return inner();
}`
	p, err := Compile(src, bound("outer", "inner"))
	require.NoError(t, err)
	// Only top-level function declarations become instance methods.
	assert.Equal(t, []string{"outer"}, p.BoundFunctions)
}

func TestCompileKeywordsNeverRewritten(t *testing.T) {
	p, err := Compile("function f() { if (count) { return count; } }", bound("count", "f", "if", "return"))
	require.NoError(t, err)
	assert.Contains(t, p.Source, "if (this.state.count)")
	assert.Contains(t, p.Source, "return this.state.count;")
}

func TestCompileDestructuringLeftAlone(t *testing.T) {
	p, err := Compile("function f({ count }) { return count; }", bound("count", "f"))
	require.NoError(t, err)
	// Destructuring parameters pass through without renaming.
	assert.Contains(t, p.Source, "{ count }")
}

func TestCompileUnbalancedParamsError(t *testing.T) {
	_, err := Compile("function f(a, b { return a; }", bound("f"))
	assert.Error(t, err)
}

func TestCompileEmptySource(t *testing.T) {
	p, err := Compile("", bound("count"))
	require.NoError(t, err)
	assert.Equal(t, "", p.Source)
}

func TestIdentifiers(t *testing.T) {
	testCases := []struct {
		name     string
		src      string
		expected []string
	}{
		{"simple", "count > 5", []string{"count"}},
		{"multiple", "a + b * c", []string{"a", "b", "c"}},
		{"deduplicated", "x + x", []string{"x"}},
		{"keywords excluded", "typeof value", []string{"value"}},
		{"property tails excluded", "user.name === other", []string{"user", "other"}},
		{"strings excluded", `label + "count"`, []string{"label"}},
		{"call names included", "save(draft)", []string{"save", "draft"}},
		{"empty", "", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Identifiers(tc.src))
		})
	}
}
