package runtime

import (
	"golang.org/x/net/html"

	"github.com/singlet-dev/singlet/internal/segment"
)

// ComponentDefinition is the immutable result of registering one component
// source. It is created once per tag name and shared by every instance of
// that tag; instances clone the template fragment, never mutate it.
type ComponentDefinition struct {
	// TagName is the custom element name the definition is registered under.
	TagName string
	// SourcePath is the location the source text was fetched from.
	SourcePath string
	// Template is the parsed template fragment. Cloned per instance.
	Template *html.Node
	// InlineScript is the concatenated comment-stripped inline script body,
	// rewritten per instance against that instance's bound names.
	InlineScript string
	// ModuleScripts are type="module" bodies, executed without rewriting.
	ModuleScripts []string
	// BoundScripts are fetched external script bodies marked with the bind
	// attribute; they execute in instance scope.
	BoundScripts []string
	// PlainScripts are external script URLs injected as ordinary script
	// tags with no instance binding.
	PlainScripts []string
	// StyleText is the concatenated style content, inline styles plus any
	// stylesheet links that fetched successfully.
	StyleText string
	// UseShadowDOM selects shadow-root style isolation for instances.
	UseShadowDOM bool
}

// newDefinition assembles a definition from a segmented source. External
// resource content (bound scripts, linked stylesheets) has already been
// fetched by the registry; failed resources arrive as empty strings and
// contribute nothing.
func newDefinition(tag, path string, src *segment.Source, useShadowDOM bool) *ComponentDefinition {
	def := &ComponentDefinition{
		TagName:      tag,
		SourcePath:   path,
		Template:     src.Fragment,
		StyleText:    src.StyleText,
		UseShadowDOM: useShadowDOM,
	}
	for _, is := range src.InlineScripts {
		if is.IsModule {
			def.ModuleScripts = append(def.ModuleScripts, is.Content)
		} else if def.InlineScript == "" {
			def.InlineScript = is.Content
		} else {
			def.InlineScript += "\n" + is.Content
		}
	}
	return def
}
