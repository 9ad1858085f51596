// Package segment splits a single-file component source into its template,
// script, and style segments.
//
// A component source is one text file holding top-level HTML markup, any
// number of <script> elements (inline, src-bearing, optionally type="module",
// optionally marked with a bind attribute to execute in instance scope), and
// any number of <style> elements or <link rel="stylesheet"> references.
// Segmentation strips HTML comments first, classifies and removes the script
// and style elements, and leaves the remaining markup as the template.
package segment

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/dom"
)

// InlineScript is a script body scheduled for execution in instance scope.
type InlineScript struct {
	// Content is the script body. Non-module bodies have JS comments
	// stripped; module bodies are preserved verbatim since they are never
	// rewritten.
	Content string
	// IsModule marks type="module" scripts, which execute without
	// identifier rewriting because module scope cannot alias this.
	IsModule bool
}

// ExternalScript describes a src-bearing script element.
type ExternalScript struct {
	// URL is the script location, resolved relative to the component source.
	URL string
	// IsModule marks type="module" external scripts.
	IsModule bool
	// BindToInstance marks scripts carrying the bind attribute; their bodies
	// execute in instance scope instead of being injected as plain tags.
	BindToInstance bool
}

// Source is the segmented form of a component source file.
type Source struct {
	// TemplateMarkup is the markup left after script and style removal.
	TemplateMarkup string
	// Fragment is the parsed template, shared by the component definition.
	Fragment *html.Node
	// InlineScripts are the non-external script bodies in document order.
	// Plain inline bodies are concatenated into a single entry; module
	// bodies keep their own entries.
	InlineScripts []InlineScript
	// ExternalScripts are src-bearing scripts in document order.
	ExternalScripts []ExternalScript
	// StyleText is the concatenated content of all <style> elements.
	StyleText string
	// StyleLinks are stylesheet URLs from <link rel="stylesheet"> elements,
	// resolved relative to the component source. Their fetched content is
	// appended to StyleText by the caller; a failed fetch contributes
	// nothing.
	StyleLinks []string
}

// Split segments raw component source text. basePath is the component's own
// source location and anchors relative script and stylesheet URLs.
func Split(raw, basePath string) (*Source, error) {
	cleaned := StripHTMLComments(raw)

	frag, err := dom.ParseFragment(cleaned)
	if err != nil {
		return nil, err
	}

	src := &Source{}
	var inlineParts []string
	var remove []*html.Node

	dom.Walk(frag, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch strings.ToLower(n.Data) {
		case "script":
			src.collectScript(n, basePath, &inlineParts)
			remove = append(remove, n)
			return false
		case "style":
			src.StyleText += StripBlockComments(dom.InnerText(n))
			remove = append(remove, n)
			return false
		case "link":
			rel, _ := dom.GetAttr(n, "rel")
			if strings.EqualFold(rel, "stylesheet") {
				if href, ok := dom.GetAttr(n, "href"); ok && href != "" {
					src.StyleLinks = append(src.StyleLinks, ResolveURL(basePath, href))
				}
				remove = append(remove, n)
				return false
			}
		}
		return true
	})

	for _, n := range remove {
		dom.Detach(n)
	}

	if joined := strings.TrimSpace(strings.Join(inlineParts, "\n")); joined != "" {
		src.InlineScripts = append([]InlineScript{{Content: joined}}, src.InlineScripts...)
	}

	markup, err := dom.Serialize(frag)
	if err != nil {
		return nil, err
	}
	src.TemplateMarkup = markup
	src.Fragment = frag
	return src, nil
}

func (s *Source) collectScript(n *html.Node, basePath string, inlineParts *[]string) {
	typ, _ := dom.GetAttr(n, "type")
	isModule := strings.EqualFold(strings.TrimSpace(typ), "module")
	_, bind := dom.GetAttr(n, "bind")

	if srcAttr, ok := dom.GetAttr(n, "src"); ok && srcAttr != "" {
		s.ExternalScripts = append(s.ExternalScripts, ExternalScript{
			URL:            ResolveURL(basePath, srcAttr),
			IsModule:       isModule,
			BindToInstance: bind,
		})
		return
	}

	body := dom.InnerText(n)
	if isModule {
		s.InlineScripts = append(s.InlineScripts, InlineScript{Content: body, IsModule: true})
		return
	}
	*inlineParts = append(*inlineParts, StripJSComments(body))
}

// StripHTMLComments removes every <!-- --> comment from markup. Comments are
// removed before any other processing because their content may confuse
// downstream segment scanning.
func StripHTMLComments(markup string) string {
	var sb strings.Builder
	for {
		start := strings.Index(markup, "<!--")
		if start < 0 {
			sb.WriteString(markup)
			return sb.String()
		}
		sb.WriteString(markup[:start])
		end := strings.Index(markup[start+4:], "-->")
		if end < 0 {
			return sb.String()
		}
		markup = markup[start+4+end+3:]
	}
}

// StripJSComments removes /* */ and // comments from a script body while
// preserving comment-like sequences inside string and template literals and
// the :// substring inside URLs.
func StripJSComments(src string) string {
	var sb strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		switch c {
		case '\'', '"', '`':
			j := scanStringLiteral(src, i)
			sb.WriteString(src[i:j])
			i = j
		case '/':
			if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					return sb.String()
				}
				i += 2 + end + 2
				continue
			}
			if i+1 < len(src) && src[i+1] == '/' && (i == 0 || src[i-1] != ':') {
				nl := strings.IndexByte(src[i:], '\n')
				if nl < 0 {
					return sb.String()
				}
				i += nl
				continue
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// StripBlockComments removes /* */ comments from CSS text.
func StripBlockComments(css string) string {
	var sb strings.Builder
	for {
		start := strings.Index(css, "/*")
		if start < 0 {
			sb.WriteString(css)
			return sb.String()
		}
		sb.WriteString(css[:start])
		end := strings.Index(css[start+2:], "*/")
		if end < 0 {
			return sb.String()
		}
		css = css[start+2+end+2:]
	}
}

// scanStringLiteral returns the index just past the string or template
// literal starting at i. Escapes are honored; an unterminated literal runs
// to the end of input.
func scanStringLiteral(src string, i int) int {
	quote := src[i]
	j := i + 1
	for j < len(src) {
		switch src[j] {
		case '\\':
			j += 2
			continue
		case quote:
			return j + 1
		case '\n':
			if quote != '`' {
				return j
			}
		}
		j++
	}
	return j
}

// ResolveURL resolves ref against the component source location base.
// Absolute URLs and absolute paths pass through unchanged; bare relative
// references resolve against base's directory.
func ResolveURL(base, ref string) string {
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	if u, err := url.Parse(base); err == nil && u.Scheme != "" {
		if r, err := url.Parse(ref); err == nil {
			return u.ResolveReference(r).String()
		}
	}
	return path.Join(path.Dir(base), ref)
}
