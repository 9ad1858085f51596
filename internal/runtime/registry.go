package runtime

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/singlet-dev/singlet/internal/dom"
	"github.com/singlet-dev/singlet/internal/errors"
	"github.com/singlet-dev/singlet/internal/fetch"
	"github.com/singlet-dev/singlet/internal/logging"
	"github.com/singlet-dev/singlet/internal/segment"
	"github.com/singlet-dev/singlet/internal/store"
)

// DefaultConcurrency bounds simultaneous in-flight fetches during batch
// registration.
const DefaultConcurrency = 5

// maxMountPasses caps template expansion so mutually recursive components
// cannot expand forever.
const maxMountPasses = 50

// Registration describes one component for batch registration.
type Registration struct {
	Name         string
	Path         string
	UseShadowDOM bool
}

// SettledResult reports the per-item outcome of a batch registration. A
// batch never fails as a whole.
type SettledResult struct {
	Name string
	Path string
	Err  error
}

// Registry holds every registered component definition, the process-wide
// source cache, and the emit/listen bus shared by instances. Registries are
// explicit objects so tests can construct isolated ones.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*ComponentDefinition
	instances map[*html.Node]*Instance

	cache  *fetch.Cache
	bus    *Bus
	shared *store.Store
	log    logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFetcher replaces the source fetcher; it is still wrapped by the
// registry's cache.
func WithFetcher(f fetch.Fetcher) Option {
	return func(r *Registry) {
		r.cache = fetch.NewCache(f)
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// NewRegistry creates an empty registry with default HTTP/file fetching.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:      make(map[string]*ComponentDefinition),
		instances: make(map[*html.Node]*Instance),
		cache:     fetch.NewCache(fetch.NewClient()),
		bus:       NewBus(),
		shared:    store.CreateStore(nil),
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bus returns the registry's emit/listen bus.
func (r *Registry) Bus() *Bus {
	return r.bus
}

// Shared returns the cross-component shared store. Instances reach it from
// scripts through the `store` global.
func (r *Registry) Shared() *store.Store {
	return r.shared
}

// Cache returns the registry's source cache.
func (r *Registry) Cache() *fetch.Cache {
	return r.cache
}

// IsRegistered reports whether a tag name has a definition.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (*ComponentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Names returns the registered tag names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// RegisterComponent fetches, segments, and registers one component source
// under the given tag name. Registering an already-registered name is a
// logged no-op. A failed template fetch or an empty template segment aborts
// this registration only; the error is logged and returned, and the name
// stays unregistered. Failures of secondary resources (external scripts,
// stylesheets) degrade to empty content and never abort.
func (r *Registry) RegisterComponent(ctx context.Context, name, path string, useShadowDOM bool) error {
	if r.IsRegistered(name) {
		r.log.Info(ctx, "component already registered, skipping", "name", name, "path", path)
		return nil
	}

	text, err := r.cache.Fetch(ctx, path)
	if err != nil {
		regErr := errors.NewRegistrationError("template_fetch", "template fetch failed", err).
			WithComponent(name).WithSource(path)
		r.log.Error(ctx, regErr, "registration failed")
		return regErr
	}

	src, err := segment.Split(text, path)
	if err != nil {
		regErr := errors.NewRegistrationError("template_parse", "template parse failed", err).
			WithComponent(name).WithSource(path)
		r.log.Error(ctx, regErr, "registration failed")
		return regErr
	}
	if strings.TrimSpace(src.TemplateMarkup) == "" {
		regErr := errors.NewRegistrationError("no_template", "source contains no template segment", nil).
			WithComponent(name).WithSource(path)
		r.log.Error(ctx, regErr, "registration failed")
		return regErr
	}

	def := newDefinition(name, path, src, useShadowDOM)
	r.loadResources(ctx, def, src)

	r.mu.Lock()
	if _, exists := r.defs[name]; exists {
		r.mu.Unlock()
		r.log.Info(ctx, "component already registered, skipping", "name", name, "path", path)
		return nil
	}
	r.defs[name] = def
	r.mu.Unlock()

	r.log.Info(ctx, "component registered", "name", name, "path", path)
	return nil
}

// loadResources fetches linked stylesheets and external script bodies.
// Every failure here is per-resource: logged, treated as empty, never
// aborting the registration.
func (r *Registry) loadResources(ctx context.Context, def *ComponentDefinition, src *segment.Source) {
	for _, link := range src.StyleLinks {
		css, err := r.cache.Fetch(ctx, link)
		if err != nil {
			resErr := errors.NewResourceError(link, err).WithComponent(def.TagName)
			r.log.Warn(ctx, resErr, "stylesheet load failed, continuing without it")
			continue
		}
		def.StyleText += segment.StripBlockComments(css)
	}

	for _, ext := range src.ExternalScripts {
		if !ext.BindToInstance && !ext.IsModule {
			def.PlainScripts = append(def.PlainScripts, ext.URL)
			continue
		}
		body, err := r.cache.Fetch(ctx, ext.URL)
		if err != nil {
			resErr := errors.NewResourceError(ext.URL, err).WithComponent(def.TagName)
			r.log.Warn(ctx, resErr, "external script load failed, continuing without it")
			continue
		}
		if ext.IsModule {
			def.ModuleScripts = append(def.ModuleScripts, body)
		} else {
			def.BoundScripts = append(def.BoundScripts, segment.StripJSComments(body))
		}
	}
}

// RegisterComponents registers a batch with a bounded admission window:
// at most concurrency fetches are in flight at once. The batch never fails
// as a whole; each item's outcome is reported in its SettledResult.
func (r *Registry) RegisterComponents(ctx context.Context, regs []Registration, concurrency int) []SettledResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]SettledResult, len(regs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for idx, reg := range regs {
		idx, reg := idx, reg
		g.Go(func() error {
			err := r.RegisterComponent(ctx, reg.Name, reg.Path, reg.UseShadowDOM)
			results[idx] = SettledResult{Name: reg.Name, Path: reg.Path, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// NewInstance creates a detached host element for a registered tag and
// connects a component instance to it.
func (r *Registry) NewInstance(name string) (*Instance, error) {
	def, ok := r.Definition(name)
	if !ok {
		return nil, errors.NewRegistrationError("not_registered", "component is not registered", nil).
			WithComponent(name)
	}
	host := &html.Node{Type: html.ElementNode, Data: name}
	return r.connect(def, host)
}

// NewInstanceWithAttrs creates an instance whose host element carries the
// given attributes before connection, so they seed initial state.
func (r *Registry) NewInstanceWithAttrs(name string, attrs map[string]string) (*Instance, error) {
	def, ok := r.Definition(name)
	if !ok {
		return nil, errors.NewRegistrationError("not_registered", "component is not registered", nil).
			WithComponent(name)
	}
	host := &html.Node{Type: html.ElementNode, Data: name}
	for k, v := range attrs {
		dom.SetAttr(host, k, v)
	}
	return r.connect(def, host)
}

func (r *Registry) connect(def *ComponentDefinition, host *html.Node) (*Instance, error) {
	inst := newInstance(r, def, host)
	r.mu.Lock()
	r.instances[host] = inst
	r.mu.Unlock()
	if err := inst.Connect(); err != nil {
		return inst, err
	}
	return inst, nil
}

// InstanceFor returns the instance connected to a host element.
func (r *Registry) InstanceFor(host *html.Node) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[host]
	return inst, ok
}

// Mount expands every registered custom tag under root into a connected
// instance. Expansion repeats until no unexpanded tags remain, so templates
// that contain other registered components expand transitively; passes are
// capped to break mutual recursion.
func (r *Registry) Mount(ctx context.Context, root *html.Node) []*Instance {
	var mounted []*Instance
	for pass := 0; pass < maxMountPasses; pass++ {
		var pending []*html.Node
		dom.Walk(root, func(n *html.Node) bool {
			if n.Type != html.ElementNode || !r.IsRegistered(n.Data) {
				return true
			}
			r.mu.RLock()
			_, connected := r.instances[n]
			r.mu.RUnlock()
			if !connected {
				pending = append(pending, n)
			}
			return true
		})
		if len(pending) == 0 {
			return mounted
		}
		for _, host := range pending {
			def, _ := r.Definition(host.Data)
			inst, err := r.connect(def, host)
			if err != nil {
				r.log.Error(ctx, err, "instance connection failed", "name", host.Data)
				continue
			}
			mounted = append(mounted, inst)
		}
	}
	r.log.Warn(ctx, nil, "mount pass limit reached, possible recursive components")
	return mounted
}
