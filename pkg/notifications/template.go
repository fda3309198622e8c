package notifications

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Rendered is the content produced from a named template.
type Rendered struct {
	Type     Type     `json:"type,omitempty"`
	Category Category `json:"category,omitempty"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Actions  []Action `json:"actions,omitempty"`
}

// TemplateRenderer turns a template name and data into notification content.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, data map[string]any) (Rendered, error)
}

type actionSpec struct {
	Type    ActionType `yaml:"type"`
	Label   string     `yaml:"label"`
	URL     string     `yaml:"url"`
	Default bool       `yaml:"default"`
}

type templateSpec struct {
	Type     Type         `yaml:"type"`
	Category Category     `yaml:"category"`
	Title    string       `yaml:"title"`
	Body     string       `yaml:"body"`
	Actions  []actionSpec `yaml:"actions"`
}

type compiledAction struct {
	spec actionSpec
	url  *template.Template
}

type compiledTemplate struct {
	spec    templateSpec
	title   *template.Template
	body    *template.Template
	actions []compiledAction
}

// CatalogRenderer renders templates from a YAML catalog with text/template.
// Parsed templates are kept in an LRU cache.
type CatalogRenderer struct {
	mu       sync.RWMutex
	specs    map[string]templateSpec
	compiled *cache.LRU[string, *compiledTemplate]
}

type catalogConfig struct {
	files     []string
	sources   [][]byte
	cacheSize int
}

// CatalogOption configures a CatalogRenderer.
type CatalogOption func(*catalogConfig)

// WithCatalogFile overlays templates read from a YAML file on the built-in catalog.
func WithCatalogFile(path string) CatalogOption {
	return func(c *catalogConfig) {
		if path != "" {
			c.files = append(c.files, path)
		}
	}
}

// WithCatalog overlays templates from raw YAML on the built-in catalog.
func WithCatalog(raw []byte) CatalogOption {
	return func(c *catalogConfig) {
		c.sources = append(c.sources, raw)
	}
}

// WithCompiledCacheSize bounds the number of parsed templates kept in memory.
func WithCompiledCacheSize(n int) CatalogOption {
	return func(c *catalogConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// NewCatalogRenderer loads the built-in catalog plus any overlays.
func NewCatalogRenderer(opts ...CatalogOption) (*CatalogRenderer, error) {
	cfg := catalogConfig{cacheSize: 64}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &CatalogRenderer{
		specs:    make(map[string]templateSpec),
		compiled: cache.NewLRU[string, *compiledTemplate](cfg.cacheSize, nil),
	}
	if err := r.Load(defaultCatalog); err != nil {
		return nil, err
	}
	for _, path := range cfg.files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template catalog %s: %w", path, err)
		}
		if err := r.Load(raw); err != nil {
			return nil, fmt.Errorf("load template catalog %s: %w", path, err)
		}
	}
	for _, raw := range cfg.sources {
		if err := r.Load(raw); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Load parses a YAML catalog and adds or replaces its templates.
func (r *CatalogRenderer) Load(raw []byte) error {
	var specs map[string]templateSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return fmt.Errorf("parse template catalog: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, spec := range specs {
		r.specs[name] = spec
		r.compiled.Remove(name)
	}
	return nil
}

// Names lists the loaded template names in sorted order.
func (r *CatalogRenderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template. Title and body must resolve every
// referenced key; actions whose URL cannot be resolved are dropped.
func (r *CatalogRenderer) Render(_ context.Context, name string, data map[string]any) (Rendered, error) {
	tpl, err := r.lookup(name)
	if err != nil {
		return Rendered{}, err
	}

	out := Rendered{Type: tpl.spec.Type, Category: tpl.spec.Category}
	if out.Title, err = execute(tpl.title, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: %s title: %w", ErrTemplateRender, name, err)
	}
	if out.Body, err = execute(tpl.body, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: %s body: %w", ErrTemplateRender, name, err)
	}

	for _, a := range tpl.actions {
		url, err := execute(a.url, data)
		if err != nil {
			continue
		}
		out.Actions = append(out.Actions, Action{
			Type:      a.spec.Type,
			Label:     a.spec.Label,
			URL:       url,
			IsDefault: a.spec.Default,
		})
	}
	return out, nil
}

func (r *CatalogRenderer) lookup(name string) (*compiledTemplate, error) {
	if tpl, ok := r.compiled.Get(name); ok {
		return tpl, nil
	}

	r.mu.RLock()
	spec, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	tpl, err := compile(name, spec)
	if err != nil {
		return nil, err
	}
	r.compiled.Add(name, tpl)
	return tpl, nil
}

func compile(name string, spec templateSpec) (*compiledTemplate, error) {
	parse := func(part, text string) (*template.Template, error) {
		t, err := template.New(name + "." + part).
			Funcs(templateFuncs).
			Option("missingkey=error").
			Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrTemplateRender, name, part, err)
		}
		return t, nil
	}

	var (
		tpl = &compiledTemplate{spec: spec}
		err error
	)
	if tpl.title, err = parse("title", spec.Title); err != nil {
		return nil, err
	}
	if tpl.body, err = parse("body", spec.Body); err != nil {
		return nil, err
	}
	for i, a := range spec.Actions {
		u, err := parse(fmt.Sprintf("action%d", i), a.URL)
		if err != nil {
			return nil, err
		}
		tpl.actions = append(tpl.actions, compiledAction{spec: a, url: u})
	}
	return tpl, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

var templateFuncs = template.FuncMap{
	"title": func(v any) string {
		return cases.Title(language.Und).String(fmt.Sprint(v))
	},
	"relTime": func(v any) (string, error) {
		t, err := asTime(v)
		if err != nil {
			return "", err
		}
		return humanize.Time(t), nil
	},
	"comma": func(v any) (string, error) {
		n, err := asInt64(v)
		if err != nil {
			return "", err
		}
		return humanize.Comma(n), nil
	},
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		return time.Parse(time.RFC3339, t)
	}
	return time.Time{}, errors.New("relTime: unsupported value")
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	}
	return 0, errors.New("comma: unsupported value")
}
