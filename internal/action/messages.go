package action

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FallbackMessage covers a blocked decision whose message key resolves to
// nothing, including a missing catalog file.
const FallbackMessage = "Response blocked due to policy violation."

// fallbackKey is consulted when the decision's own key has no entry.
const fallbackKey = "blocked"

// Message is one safe-message catalog entry.
type Message struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type messagesDoc struct {
	SafeMessages map[string]Message `yaml:"safe_messages"`
}

// Catalog serves user-facing safe messages from a YAML file with the same
// mtime-gated reload the policy store uses. A missing or malformed file
// degrades to the fallback message; block output never depends on catalog
// health.
type Catalog struct {
	path string

	mu       sync.Mutex
	mtime    time.Time
	messages map[string]Message
}

// NewCatalog creates a catalog over the given file. The file is read lazily
// on first render.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Render resolves a safe message key into the string returned to the caller
// in place of blocked content.
func (c *Catalog) Render(key string) string {
	messages := c.load()
	entry, ok := messages[key]
	if !ok {
		entry, ok = messages[fallbackKey]
	}
	if !ok {
		return FallbackMessage
	}
	if entry.Title != "" && entry.Description != "" {
		return fmt.Sprintf("%s: %s", entry.Title, entry.Description)
	}
	if entry.Description != "" {
		return entry.Description
	}
	if entry.Title != "" {
		return entry.Title
	}
	return FallbackMessage
}

func (c *Catalog) load() map[string]Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		c.messages = nil
		return nil
	}
	if c.messages != nil && info.ModTime().Equal(c.mtime) {
		return c.messages
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return c.messages
	}
	var doc messagesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		// Keep serving the previous catalog on a bad edit.
		return c.messages
	}

	c.messages = doc.SafeMessages
	c.mtime = info.ModTime()
	return c.messages
}
