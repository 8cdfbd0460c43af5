package notifykit

import (
	"regexp"
	"sync"
)

// Template is a named message blueprint with {{variable}} placeholders.
type Template struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	HTMLBody  string    `json:"html_body,omitempty"`
	Variables []string  `json:"variables,omitempty"`
	Channels  []Channel `json:"channels,omitempty"`
	Priority  Priority  `json:"priority,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// substitute replaces {{key}} placeholders with values from data.
// Unmatched placeholders are left literally in place; a missing variable
// is not an error.
func substitute(text string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return match
	})
}

// Rendered holds the outcome of template substitution.
type Rendered struct {
	Subject  string
	Body     string
	HTMLBody string
}

// TemplateRegistry stores named templates. Read-mostly; safe for
// concurrent use.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]Template),
	}
}

// Register stores a template, replacing any previous one with the same ID.
func (r *TemplateRegistry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[t.ID] = t
}

// Get returns a registered template.
func (r *TemplateRegistry) Get(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	return t, ok
}

// Render substitutes data into a registered template.
func (r *TemplateRegistry) Render(id string, data map[string]string) (*Rendered, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &Rendered{
		Subject:  substitute(t.Subject, data),
		Body:     substitute(t.Body, data),
		HTMLBody: substitute(t.HTMLBody, data),
	}, nil
}
