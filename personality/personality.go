// Package personality loads personality definitions and compiles them
// into system prompts.
package personality

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xiaot623/recall/domain"
)

// Template is a structured personality definition.
type Template struct {
	Name                 string            `json:"name"`
	Role                 string            `json:"role"`
	CoreIdentity         string            `json:"core_identity"`
	CommunicationStyle   map[string]string `json:"communication_style,omitempty"`
	AnchorPhrases        []string          `json:"anchor_phrases,omitempty"`
	BehavioralGuidelines map[string]string `json:"behavioral_guidelines,omitempty"`
	ExampleResponses     []string          `json:"example_responses,omitempty"`
}

// Definition is one loaded personality: either a structured template or
// a raw prompt. Definitions are immutable after load.
type Definition struct {
	ID       string
	Template *Template // nil for raw prompts
	Raw      string    // empty for templates
}

// Info is the listing view of a definition.
type Info struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "template" or "prompt"
	Name string `json:"name"`
	Role string `json:"role"`
}

// Manager owns the loaded definitions. New definitions may be added at
// runtime but never removed.
type Manager struct {
	dir string

	mu          sync.RWMutex
	definitions map[string]*Definition
	defaultID   string
}

// NewManager loads every definition file from dir. Files with a .json
// extension are parsed as structured templates; any other extension is
// treated as a raw prompt. The first file in lexical order becomes the
// default personality.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create personalities dir: %w", err)
	}

	m := &Manager{
		dir:         dir,
		definitions: make(map[string]*Definition),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read personalities dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("WARN: skipping personality %s: %v", name, err)
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		def, err := parseDefinition(id, filepath.Ext(name), string(content))
		if err != nil {
			log.Printf("WARN: skipping personality %s: %v", name, err)
			continue
		}
		m.definitions[id] = def
		if m.defaultID == "" {
			m.defaultID = id
		}
	}

	log.Printf("[PERSONALITY] Loaded %d definitions from %s (default: %s)", len(m.definitions), dir, m.defaultID)
	return m, nil
}

func parseDefinition(id, ext, content string) (*Definition, error) {
	if ext == ".json" {
		var tpl Template
		if err := json.Unmarshal([]byte(content), &tpl); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
		}
		if tpl.Name == "" || tpl.Role == "" || tpl.CoreIdentity == "" {
			return nil, fmt.Errorf("%w: name, role and core_identity are required", domain.ErrInvalidDefinition)
		}
		return &Definition{ID: id, Template: &tpl}, nil
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty prompt", domain.ErrInvalidDefinition)
	}
	return &Definition{ID: id, Raw: content}, nil
}

// Get returns the definition for id, or the default when id is empty.
func (m *Manager) Get(id string) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.definitions) == 0 {
		return nil, domain.ErrNotInitialized
	}
	if id == "" {
		id = m.defaultID
	}
	def, ok := m.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: personality %q", domain.ErrNotFound, id)
	}
	return def, nil
}

// List returns every loaded definition's metadata, sorted by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.definitions))
	for id, def := range m.definitions {
		if def.Template != nil {
			infos = append(infos, Info{ID: id, Type: "template", Name: def.Template.Name, Role: def.Template.Role})
		} else {
			infos = append(infos, Info{ID: id, Type: "prompt", Name: id, Role: "Custom Agent"})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// CompileSystemPrompt renders the definition for id (default when empty)
// into a system prompt. Raw prompts are returned verbatim; templates are
// rendered deterministically, with sections omitted when their source
// field is empty.
func (m *Manager) CompileSystemPrompt(id string) (string, error) {
	def, err := m.Get(id)
	if err != nil {
		return "", err
	}
	if def.Template == nil {
		return def.Raw, nil
	}
	return compileTemplate(def.Template), nil
}

func compileTemplate(tpl *Template) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s.\n\n", tpl.Name, tpl.Role)
	b.WriteString(tpl.CoreIdentity)
	b.WriteString("\n")

	if len(tpl.CommunicationStyle) > 0 {
		b.WriteString("\nCommunication style:\n")
		writeKeyValues(&b, tpl.CommunicationStyle)
	}
	if len(tpl.AnchorPhrases) > 0 {
		b.WriteString("\nUse these anchor phrases in your responses:\n")
		for _, phrase := range tpl.AnchorPhrases {
			fmt.Fprintf(&b, "- %q\n", phrase)
		}
	}
	if len(tpl.BehavioralGuidelines) > 0 {
		b.WriteString("\nGuidelines for your responses:\n")
		writeKeyValues(&b, tpl.BehavioralGuidelines)
	}
	if len(tpl.ExampleResponses) > 0 {
		b.WriteString("\nExamples of your typical responses:\n")
		for _, example := range tpl.ExampleResponses {
			fmt.Fprintf(&b, "- %q\n", example)
		}
	}

	return b.String()
}

// writeKeyValues renders a key/value section with humanized keys in
// sorted key order, keeping the output byte-identical across runs.
func writeKeyValues(b *strings.Builder, kv map[string]string) {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", humanize(k), kv[k])
	}
}

// humanize replaces separators with spaces and title-cases each word:
// "response_length" becomes "Response Length".
func humanize(key string) string {
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Add validates content, persists it into the definitions directory and
// indexes it. ext selects the interpretation (".json" for a structured
// template, anything else for a raw prompt).
func (m *Manager) Add(id, ext, content string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("%w: personality id %q", domain.ErrInvalidIdentifier, id)
	}
	if ext == "" {
		ext = ".json"
	}

	def, err := parseDefinition(id, ext, content)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.dir, id+ext)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("persist personality: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[id] = def
	if m.defaultID == "" {
		m.defaultID = id
	}
	return id, nil
}
