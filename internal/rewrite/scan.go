package rewrite

import "strings"

// jsKeywords are names that can never be rewrite candidates or identifier
// references.
var jsKeywords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "let": true, "new": true,
	"null": true, "of": true, "return": true, "static": true, "super": true,
	"switch": true, "this": true, "throw": true, "true": true, "try": true,
	"typeof": true, "undefined": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true,
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// scanIdent returns the identifier starting at i and the index just past it.
func scanIdent(src string, i int) (string, int) {
	j := i
	for j < len(src) && isIdentPart(src[j]) {
		j++
	}
	return src[i:j], j
}

// scanString returns the index just past the string or template literal
// starting at i. Escapes are honored. Template literals are consumed whole,
// including ${} interpolations, by tracking brace nesting inside them.
func scanString(src string, i int) int {
	quote := src[i]
	j := i + 1
	depth := 0
	for j < len(src) {
		c := src[j]
		switch {
		case c == '\\':
			j += 2
			continue
		case quote == '`' && c == '$' && j+1 < len(src) && src[j+1] == '{':
			depth++
			j += 2
			continue
		case quote == '`' && depth > 0 && c == '}':
			depth--
		case c == quote && depth == 0:
			return j + 1
		case c == '\n' && quote != '`':
			return j
		}
		j++
	}
	return j
}

// skipSpace returns the index of the next non-whitespace byte at or after i.
func skipSpace(src string, i int) int {
	for i < len(src) {
		c := src[i]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return i
		}
		i++
	}
	return i
}

// prevNonSpace returns the last non-whitespace byte before i, or 0.
func prevNonSpace(src string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		c := src[j]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return c
		}
	}
	return 0
}

// matchParen returns the index of the ) matching the ( at i, honoring
// nesting and string literals, or -1 when unbalanced.
func matchParen(src string, i int) int {
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j
			}
		case '\'', '"', '`':
			j = scanString(src, j) - 1
		}
	}
	return -1
}

// matchBrace returns the index of the } matching the { at i, or -1.
func matchBrace(src string, i int) int {
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		case '\'', '"', '`':
			j = scanString(src, j) - 1
		}
	}
	return -1
}

// isArrowParams reports whether the ( at i opens an arrow function
// parameter list, decided by a lookahead for => past the matching paren.
func isArrowParams(src string, i int) bool {
	end := matchParen(src, i)
	if end < 0 {
		return false
	}
	j := skipSpace(src, end+1)
	return j+1 < len(src) && src[j] == '=' && src[j+1] == '>'
}

// looksFunctionValued reports whether an initializer expression produces a
// function: a function expression, an async function, or an arrow literal.
func looksFunctionValued(init string) bool {
	init = strings.TrimSpace(init)
	if strings.HasPrefix(init, "function") {
		return len(init) == len("function") || !isIdentPart(init[len("function")])
	}
	if strings.HasPrefix(init, "async") {
		rest := strings.TrimSpace(strings.TrimPrefix(init, "async"))
		return strings.HasPrefix(rest, "function") || looksFunctionValued(rest)
	}
	if strings.HasPrefix(init, "(") {
		return isArrowParams(init, 0)
	}
	if len(init) > 0 && isIdentStart(init[0]) {
		_, j := scanIdent(init, 0)
		j = skipSpace(init, j)
		return j+1 < len(init) && init[j] == '=' && init[j+1] == '>'
	}
	return false
}

// Identifiers returns every identifier referenced in a script or expression
// fragment, excluding keywords, string literal content, and property names
// after a dot. Used to decide which declared names are bound by a template
// binding or event handler.
func Identifiers(src string) []string {
	seen := make(map[string]bool)
	var out []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = scanString(src, i)
		case isIdentStart(c):
			name, j := scanIdent(src, i)
			if !jsKeywords[name] && prevNonSpace(src, i) != '.' && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			i = j
		default:
			i++
		}
	}
	return out
}
