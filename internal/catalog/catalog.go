// Package catalog maps the human-readable model labels offered by the
// agent wizard to canonical model identifiers.
package catalog

// Model is one selectable entry in the catalog.
type Model struct {
	Label string
	ID    string
}

// DefaultModelID is used when an inline create omits --model.
const DefaultModelID = "claude-sonnet-4-5"

var builtin = []Model{
	{Label: "Claude Sonnet 4.5", ID: "claude-sonnet-4-5"},
	{Label: "Claude Opus 4.1", ID: "claude-opus-4-1"},
	{Label: "Claude Haiku 4.5", ID: "claude-haiku-4-5"},
	{Label: "GPT-4o", ID: "gpt-4o"},
	{Label: "Gemini 2.5 Pro", ID: "gemini-2.5-pro"},
}

// Catalog is an immutable label -> identifier table. It is safe for
// concurrent use.
type Catalog struct {
	models       []Model
	byLabel      map[string]string
	defaultModel string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(nil, "")
}

// New builds a catalog from the given models. An empty model list falls back
// to the built-in table and an empty default falls back to DefaultModelID.
// When labels repeat, the first entry wins.
func New(models []Model, defaultModel string) *Catalog {
	if len(models) == 0 {
		models = builtin
	}
	if defaultModel == "" {
		defaultModel = DefaultModelID
	}

	c := &Catalog{
		models:       make([]Model, 0, len(models)),
		byLabel:      make(map[string]string, len(models)),
		defaultModel: defaultModel,
	}
	for _, m := range models {
		if _, dup := c.byLabel[m.Label]; dup {
			continue
		}
		c.byLabel[m.Label] = m.ID
		c.models = append(c.models, m)
	}
	return c
}

// Resolve returns the identifier for an exact label match. Anything else is
// returned unchanged so a custom identifier can be typed in directly.
func (c *Catalog) Resolve(reply string) string {
	if id, ok := c.byLabel[reply]; ok {
		return id
	}
	return reply
}

// Labels returns the selectable labels in table order.
func (c *Catalog) Labels() []string {
	labels := make([]string, len(c.models))
	for i, m := range c.models {
		labels[i] = m.Label
	}
	return labels
}

// Models returns a copy of the table.
func (c *Catalog) Models() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}

// DefaultModel returns the identifier used when none is given.
func (c *Catalog) DefaultModel() string { return c.defaultModel }
