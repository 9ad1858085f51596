// Package rewrite implements the script-to-state compiler.
//
// A component's inline script is transformed so that top-level declarations
// referenced by some template binding read and write through the instance's
// reactive state container instead of local bindings. The transform is a
// single scanning pass with explicit scope tracking rather than a chain of
// regular expressions: string and template literals are consumed whole,
// function and arrow parameter lists open shadowing scopes, and parameters
// that collide with bound names are renamed to generated unique names so
// inner references never leak into state accidentally.
//
// The rewritten body executes with `this` bound to the component instance;
// bound identifiers become this.state.<name> accesses, which an interception
// layer turns into reactive reads and writes. Prefix and postfix
// increment/decrement and compound assignment work unchanged on the
// rewritten member expressions. Declarations that no binding references stay
// ordinary local variables, invisible outside the script.
package rewrite

import (
	"fmt"
	"strconv"
	"strings"
)

// Program is the executable result of a rewrite pass.
type Program struct {
	// Source is the rewritten script body.
	Source string
	// BoundFunctions lists function-valued declarations referenced by some
	// binding. The rewritten source ends with this.<name> = <name>
	// assignments for each, so event handler resolution can find them on
	// the instance.
	BoundFunctions []string
}

// Compile rewrites a comment-stripped script body. bound holds the
// identifiers referenced by the component's binding table; only declarations
// whose names appear in bound are redirected through state.
func Compile(source string, bound map[string]bool) (*Program, error) {
	r := newRewriter(source, bound)
	body, err := r.run()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(body)
	for _, name := range r.boundFns {
		sb.WriteString("\nthis.")
		sb.WriteString(name)
		sb.WriteString(" = ")
		sb.WriteString(name)
		sb.WriteString(";")
	}
	return &Program{Source: sb.String(), BoundFunctions: r.boundFns}, nil
}

// scope is one shadowing frame opened by a function or arrow parameter list.
type scope struct {
	// params maps declared parameter names to their emitted names. The two
	// differ only when the parameter collides with a bound identifier.
	params map[string]string
	// exprArrow marks an expression-bodied arrow, which closes at the end
	// of the surrounding expression instead of at a brace.
	exprArrow bool
	// openBrace is the brace depth outside the function body.
	openBrace int
	// exprParen is the paren depth at which an expression arrow began.
	exprParen int
}

type rewriter struct {
	src        string
	out        strings.Builder
	i          int
	bound      map[string]bool
	scopes     []*scope
	braceDepth int
	parenDepth int
	boundFns   []string
	renames    int
	pending    *scope
}

func newRewriter(src string, bound map[string]bool) *rewriter {
	return &rewriter{src: src, bound: bound}
}

func (r *rewriter) run() (string, error) {
	for r.i < len(r.src) {
		c := r.src[r.i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := scanString(r.src, r.i)
			r.out.WriteString(r.src[r.i:end])
			r.i = end
		case isIdentStart(c):
			if err := r.ident(); err != nil {
				return "", err
			}
		case c == '(':
			if isArrowParams(r.src, r.i) {
				if err := r.arrowParams(); err != nil {
					return "", err
				}
				continue
			}
			r.parenDepth++
			r.emitByte(c)
		case c == ')':
			r.parenDepth--
			r.popExprArrows(func(s *scope) bool { return s.exprParen > r.parenDepth })
			r.emitByte(c)
		case c == ',':
			r.popExprArrows(func(s *scope) bool { return s.exprParen == r.parenDepth })
			r.emitByte(c)
		case c == ';':
			r.popExprArrows(func(s *scope) bool { return s.exprParen >= r.parenDepth })
			r.emitByte(c)
		case c == '{':
			r.braceDepth++
			r.emitByte(c)
		case c == '}':
			r.braceDepth--
			r.popBodies()
			r.emitByte(c)
		case c == '=' && r.i+1 < len(r.src) && r.src[r.i+1] == '>':
			r.out.WriteString("=>")
			r.i += 2
			r.activatePending()
		default:
			r.emitByte(c)
		}
	}
	return r.out.String(), nil
}

func (r *rewriter) emitByte(c byte) {
	r.out.WriteByte(c)
	r.i++
}

func (r *rewriter) atTopLevel() bool {
	return r.braceDepth == 0 && r.parenDepth == 0 && len(r.scopes) == 0
}

// ident handles one identifier or keyword token.
func (r *rewriter) ident() error {
	name, end := scanIdent(r.src, r.i)

	switch name {
	case "function":
		return r.functionDecl(end)
	case "class":
		return r.classDecl(end)
	case "let", "const", "var":
		if r.atTopLevel() {
			return r.declaration(name, end)
		}
		// A nested declaration shadows any bound name it reuses: the local
		// is registered so later references in the scope stay local.
		r.registerLocals(end)
	}
	if jsKeywords[name] {
		r.out.WriteString(name)
		r.i = end
		return nil
	}

	// Single-parameter arrow: name => body.
	if j := skipSpace(r.src, end); j+1 < len(r.src) && r.src[j] == '=' && r.src[j+1] == '>' {
		s := &scope{params: map[string]string{name: r.renameIfBound(name)}}
		r.pending = s
		r.out.WriteString(s.params[name])
		r.i = end
		return nil
	}

	// Property access right-hand side: obj.name is never rewritten.
	if prevNonSpace(r.src, r.i) == '.' {
		r.out.WriteString(name)
		r.i = end
		return nil
	}

	// A parameter in scope shadows any bound variable of the same name.
	// Read references resolve to the (possibly renamed) parameter.
	for k := len(r.scopes) - 1; k >= 0; k-- {
		if emitted, ok := r.scopes[k].params[name]; ok {
			r.out.WriteString(emitted)
			r.i = end
			return nil
		}
	}

	if r.bound[name] {
		// Call positions resolve against local or instance functions, not
		// state values.
		if j := skipSpace(r.src, end); j < len(r.src) && r.src[j] == '(' {
			r.out.WriteString(name)
		} else {
			r.out.WriteString("this.state.")
			r.out.WriteString(name)
		}
		r.i = end
		return nil
	}

	r.out.WriteString(name)
	r.i = end
	return nil
}

// functionDecl handles a function declaration or expression: the name is
// never rewritten, the parameter list opens a scope, and bound top-level
// names are scheduled for instance assignment.
func (r *rewriter) functionDecl(afterKeyword int) error {
	top := r.atTopLevel()
	r.out.WriteString("function")
	r.i = afterKeyword

	j := skipSpace(r.src, r.i)
	r.out.WriteString(r.src[r.i:j])
	r.i = j
	if r.i < len(r.src) && r.src[r.i] == '*' {
		r.emitByte('*')
		j = skipSpace(r.src, r.i)
		r.out.WriteString(r.src[r.i:j])
		r.i = j
	}

	if r.i < len(r.src) && isIdentStart(r.src[r.i]) {
		name, end := scanIdent(r.src, r.i)
		r.out.WriteString(name)
		r.i = end
		if top && r.bound[name] {
			r.boundFns = append(r.boundFns, name)
		}
	}

	j = skipSpace(r.src, r.i)
	r.out.WriteString(r.src[r.i:j])
	r.i = j
	if r.i >= len(r.src) || r.src[r.i] != '(' {
		return fmt.Errorf("rewrite: expected parameter list at offset %d", r.i)
	}
	return r.paramList()
}

// classDecl emits the class keyword and name untouched; the body is handled
// by the main loop.
func (r *rewriter) classDecl(afterKeyword int) error {
	r.out.WriteString("class")
	r.i = afterKeyword
	j := skipSpace(r.src, r.i)
	r.out.WriteString(r.src[r.i:j])
	r.i = j
	if r.i < len(r.src) && isIdentStart(r.src[r.i]) {
		name, end := scanIdent(r.src, r.i)
		r.out.WriteString(name)
		r.i = end
	}
	return nil
}

// arrowParams handles a parenthesized arrow parameter list at r.i.
func (r *rewriter) arrowParams() error {
	return r.paramList()
}

// paramList parses the ( ... ) at r.i, renames parameters that collide with
// bound names, and leaves the resulting scope pending until the body opens.
func (r *rewriter) paramList() error {
	end := matchParen(r.src, r.i)
	if end < 0 {
		return fmt.Errorf("rewrite: unbalanced parameter list at offset %d", r.i)
	}
	inner := r.src[r.i+1 : end]
	s := &scope{params: make(map[string]string)}

	var emitted []string
	for _, param := range splitTopLevel(inner, ',') {
		trimmed := strings.TrimSpace(param)
		if trimmed == "" || !isIdentStart(trimmed[0]) {
			// Destructuring and rest parameters pass through untouched.
			emitted = append(emitted, param)
			continue
		}
		name, rest := scanIdent(trimmed, 0)
		if jsKeywords[name] {
			emitted = append(emitted, param)
			continue
		}
		out := r.renameIfBound(name)
		s.params[name] = out

		tail := trimmed[rest:]
		if eq := strings.TrimSpace(tail); strings.HasPrefix(eq, "=") {
			// Default values evaluate in the outer scope, so bound
			// references inside them still go through state.
			sub := newRewriter(strings.TrimPrefix(eq, "="), r.bound)
			def, err := sub.run()
			if err != nil {
				return err
			}
			tail = " = " + strings.TrimSpace(def)
		}
		emitted = append(emitted, out+tail)
	}

	r.out.WriteByte('(')
	r.out.WriteString(strings.Join(emitted, ", "))
	r.out.WriteByte(')')
	r.i = end + 1
	r.pending = s

	// Function bodies follow immediately; arrows first pass through =>.
	j := skipSpace(r.src, r.i)
	if j < len(r.src) && r.src[j] == '{' {
		r.out.WriteString(r.src[r.i:j])
		r.i = j
		r.openBody()
	}
	return nil
}

// activatePending attaches the pending arrow scope to its body: a braced
// body closes at the matching brace, an expression body closes with the
// surrounding expression.
func (r *rewriter) activatePending() {
	if r.pending == nil {
		return
	}
	j := skipSpace(r.src, r.i)
	if j < len(r.src) && r.src[j] == '{' {
		r.out.WriteString(r.src[r.i:j])
		r.i = j
		r.openBody()
		return
	}
	s := r.pending
	r.pending = nil
	s.exprArrow = true
	s.exprParen = r.parenDepth
	r.scopes = append(r.scopes, s)
}

// openBody consumes the { at r.i and activates the pending scope.
func (r *rewriter) openBody() {
	s := r.pending
	r.pending = nil
	if s == nil {
		s = &scope{params: map[string]string{}}
	}
	s.openBrace = r.braceDepth
	r.scopes = append(r.scopes, s)
	r.braceDepth++
	r.out.WriteByte('{')
	r.i++
}

// popBodies removes brace-bodied scopes whose body just closed.
func (r *rewriter) popBodies() {
	for len(r.scopes) > 0 {
		top := r.scopes[len(r.scopes)-1]
		if top.exprArrow || top.openBrace != r.braceDepth {
			return
		}
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
}

// popExprArrows removes expression-arrow scopes matching the predicate.
func (r *rewriter) popExprArrows(done func(*scope) bool) {
	for len(r.scopes) > 0 {
		top := r.scopes[len(r.scopes)-1]
		if !top.exprArrow || !done(top) {
			return
		}
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
}

// registerLocals records the names declared by a nested let/const/var into
// the innermost scope, emitted unchanged, mirroring parameter shadowing.
// Only the names are consumed here; the statement itself flows through the
// main loop, where the registered names now resolve locally.
func (r *rewriter) registerLocals(afterKeyword int) {
	s := r.currentScope()
	j := afterKeyword
	for {
		j = skipSpace(r.src, j)
		if j >= len(r.src) || !isIdentStart(r.src[j]) {
			// Destructuring declarators pass through untouched.
			return
		}
		name, end := scanIdent(r.src, j)
		if !jsKeywords[name] {
			s.params[name] = name
		}
		j = skipSpace(r.src, end)
		if j < len(r.src) && r.src[j] == '=' {
			j = scanInitializer(r.src, j+1)
		}
		if j < len(r.src) && r.src[j] == ',' {
			j++
			continue
		}
		return
	}
}

// currentScope returns the innermost scope, creating a block-level one when
// a declaration appears inside a plain block or statement head with no
// enclosing function scope.
func (r *rewriter) currentScope() *scope {
	if len(r.scopes) > 0 {
		return r.scopes[len(r.scopes)-1]
	}
	open := r.braceDepth - 1
	if open < 0 {
		open = 0
	}
	s := &scope{params: map[string]string{}, openBrace: open}
	r.scopes = append(r.scopes, s)
	return s
}

// renameIfBound generates a unique parameter name when a parameter collides
// with a bound identifier, preventing accidental shadowing writes.
func (r *rewriter) renameIfBound(name string) string {
	if !r.bound[name] {
		return name
	}
	r.renames++
	return name + "__p" + strconv.Itoa(r.renames)
}

// declaration handles one top-level let/const/var statement. Each bound,
// non-function declarator becomes a state assignment; everything else keeps
// its declaration keyword. Multi-declarator statements are split so the two
// forms can mix.
func (r *rewriter) declaration(keyword string, afterKeyword int) error {
	r.i = afterKeyword
	first := true
	for {
		r.i = skipSpace(r.src, r.i)
		if r.i >= len(r.src) || !isIdentStart(r.src[r.i]) {
			// Destructuring declarations are left as ordinary locals.
			r.out.WriteString(keyword + " ")
			return nil
		}
		name, end := scanIdent(r.src, r.i)
		r.i = skipSpace(r.src, end)

		var init string
		hasInit := false
		if r.i < len(r.src) && r.src[r.i] == '=' && (r.i+1 >= len(r.src) || r.src[r.i+1] != '=') {
			hasInit = true
			start := r.i + 1
			stop := scanInitializer(r.src, start)
			init = strings.TrimSpace(r.src[start:stop])
			r.i = stop
		}

		rewritten := init
		if hasInit {
			sub := newRewriter(init, r.bound)
			var err error
			rewritten, err = sub.run()
			if err != nil {
				return err
			}
			r.boundFns = append(r.boundFns, sub.boundFns...)
		}

		if !first {
			r.out.WriteString("\n")
		}
		first = false

		funcValued := hasInit && looksFunctionValued(init)
		switch {
		case r.bound[name] && !funcValued:
			if !hasInit {
				rewritten = "undefined"
			}
			r.out.WriteString("this.state." + name + " = " + rewritten + ";")
		default:
			if hasInit {
				r.out.WriteString(keyword + " " + name + " = " + rewritten + ";")
			} else {
				r.out.WriteString(keyword + " " + name + ";")
			}
			if r.bound[name] && funcValued {
				r.boundFns = append(r.boundFns, name)
			}
		}

		if r.i < len(r.src) && r.src[r.i] == ',' {
			r.i++
			continue
		}
		if r.i < len(r.src) && r.src[r.i] == ';' {
			r.i++
		}
		return nil
	}
}

// scanInitializer returns the index of the , or ; terminating a declarator
// initializer that starts at i, honoring nesting and string literals.
func scanInitializer(src string, i int) int {
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',', ';':
			if depth == 0 {
				return j
			}
		case '\'', '"', '`':
			j = scanString(src, j) - 1
		}
	}
	return len(src)
}

// splitTopLevel splits s on sep occurrences outside any nesting or string
// literal.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for j := 0; j < len(s); j++ {
		switch s[j] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '\'', '"', '`':
			j = scanString(s, j) - 1
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:j])
				start = j + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
