package protocol

import (
	"fmt"
	"path"

	"github.com/CefBoud/kafkamux/compress"
	"github.com/CefBoud/kafkamux/types"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
)

const resolveCacheSize = 1024

// Route selects the route id for topics matching any of its glob patterns.
type Route struct {
	ID       int64
	patterns []string
}

// Matches reports whether topic matches one of the route's patterns.
// A route without patterns matches every topic.
func (r *Route) Matches(topic string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, pattern := range r.patterns {
		if ok, _ := path.Match(pattern, topic); ok {
			return true
		}
	}
	return false
}

// TopicOptions holds the per-topic options of a binding.
type TopicOptions struct {
	Name          string
	DefaultOffset string
	Compression   compress.Codec
}

// Binding is the parsed, attached form of a BindingConfig.
type Binding struct {
	ID        int64
	Namespace string
	Name      string

	routes   []*Route
	topics   map[string]TopicOptions
	resolved *lru.Cache[string, *Route]
}

// BindingLookup finds an attached binding by id.
type BindingLookup func(id int64) (*Binding, bool)

// NewBinding validates cfg and builds a Binding.
func NewBinding(cfg types.BindingConfig) (*Binding, error) {
	var errs *multierror.Error

	b := &Binding{
		ID:        cfg.ID,
		Namespace: cfg.Namespace,
		Name:      cfg.Name,
		topics:    make(map[string]TopicOptions, len(cfg.Topics)),
	}
	for _, rc := range cfg.Routes {
		for _, pattern := range rc.Topics {
			if _, err := path.Match(pattern, ""); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("route %d: bad topic pattern %q: %w", rc.ID, pattern, err))
			}
		}
		b.routes = append(b.routes, &Route{ID: rc.ID, patterns: rc.Topics})
	}
	for _, tc := range cfg.Topics {
		codec, err := compress.ParseCodec(tc.Compression)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("topic %q: %w", tc.Name, err))
		}
		b.topics[tc.Name] = TopicOptions{Name: tc.Name, DefaultOffset: tc.DefaultOffset, Compression: codec}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("binding %d: %w", cfg.ID, err)
	}

	cache, err := lru.New[string, *Route](resolveCacheSize)
	if err != nil {
		return nil, err
	}
	b.resolved = cache
	return b, nil
}

// Resolve returns the first route whose patterns match topic, or nil.
// A binding without routes resolves every topic to a route carrying the binding id.
func (b *Binding) Resolve(topic string) *Route {
	if r, ok := b.resolved.Get(topic); ok {
		return r
	}
	var resolved *Route
	if len(b.routes) == 0 {
		resolved = &Route{ID: b.ID}
	} else {
		for _, r := range b.routes {
			if r.Matches(topic) {
				resolved = r
				break
			}
		}
	}
	if resolved != nil {
		b.resolved.Add(topic, resolved)
	}
	return resolved
}

// Topic returns the options configured for topic.
func (b *Binding) Topic(name string) (TopicOptions, bool) {
	opts, ok := b.topics[name]
	return opts, ok
}

// Routes returns the route ids of the binding, in configuration order.
func (b *Binding) Routes() []int64 {
	ids := make([]int64, 0, len(b.routes))
	for _, r := range b.routes {
		ids = append(ids, r.ID)
	}
	return ids
}
