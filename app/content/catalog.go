// Package content serves the static theory catalog: topic menus and theory files
// looked up by the exact (folded) text of a message.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// Entry answers one or more lookup keys.
type Entry struct {
	Keys      []string   `yaml:"keys"`
	Text      string     `yaml:"text"`
	Menu      [][]string `yaml:"menu"`
	Documents []string   `yaml:"documents"`
}

// Replies renders the entry as outbound messages: the text with its menu, then
// one message per document.
func (e Entry) Replies() []state.Reply {
	out := []state.Reply{{Text: e.Text, Menu: e.Menu}}
	for _, doc := range e.Documents {
		out = append(out, state.Reply{Document: doc})
	}
	if e.Text == "" {
		out = out[1:]
		if len(out) > 0 {
			out[0].Menu = e.Menu
		}
	}
	return out
}

// Catalog is an immutable set of entries indexed by folded key.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

type file struct {
	Entries []Entry `yaml:"entries"`
}

// Parse decodes a catalog. Relative document paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("content: parse: %w", err)
	}
	c := &Catalog{index: make(map[string]int)}
	var errs []error
	for i, e := range f.Entries {
		if len(e.Keys) == 0 {
			errs = append(errs, fmt.Errorf("entry %d: no keys", i))
			continue
		}
		if e.Text == "" && len(e.Documents) == 0 {
			errs = append(errs, fmt.Errorf("entry %d (%s): needs text or documents", i, e.Keys[0]))
			continue
		}
		for j, doc := range e.Documents {
			if !filepath.IsAbs(doc) && baseDir != "" {
				e.Documents[j] = filepath.Join(baseDir, doc)
			}
		}
		pos := len(c.entries)
		for _, k := range e.Keys {
			key := state.Fold(k)
			if key == "" {
				errs = append(errs, fmt.Errorf("entry %d: empty key", i))
				continue
			}
			if _, dup := c.index[key]; dup {
				errs = append(errs, fmt.Errorf("entry %d: duplicate key %q", i, key))
				continue
			}
			c.index[key] = pos
		}
		c.entries = append(c.entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("content: invalid catalog: %w", err)
	}
	return c, nil
}

// Load reads and parses the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(path))
}

// Lookup finds the entry for an already folded message.
func (c *Catalog) Lookup(normalized string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.index[normalized]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// MissingDocuments lists document paths that do not exist on disk.
func (c *Catalog) MissingDocuments() []string {
	if c == nil {
		return nil
	}
	var missing []string
	for _, e := range c.entries {
		for _, doc := range e.Documents {
			if _, err := os.Stat(doc); err != nil {
				missing = append(missing, doc)
			}
		}
	}
	return missing
}
