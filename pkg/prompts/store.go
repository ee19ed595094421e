package prompts

import "sync"

// Section is one editable block of the system prompt.
type Section struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Store holds prompt sections in memory. Edits take effect for new
// turns immediately; restarts reset everything to defaults. There is
// deliberately no persistence behind it.
type Store struct {
	mu       sync.RWMutex
	order    []string
	defaults map[string]Section
	sections map[string]Section
}

// NewStore returns a store populated with the default sections.
func NewStore() *Store {
	s := &Store{
		defaults: make(map[string]Section),
		sections: make(map[string]Section),
	}
	registerDefaults(s)
	return s
}

func (s *Store) registerDefault(key, title, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := Section{Key: key, Title: title, Content: content}
	s.defaults[key] = sec
	if _, ok := s.sections[key]; !ok {
		s.sections[key] = sec
		s.order = append(s.order, key)
	}
}

// Get returns a section's current content, falling back to the default
// and then to empty.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sec, ok := s.sections[key]; ok {
		return sec.Content
	}
	if sec, ok := s.defaults[key]; ok {
		return sec.Content
	}
	return ""
}

// All returns every section in registration order.
func (s *Store) All() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Section, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.sections[key])
	}
	return out
}

// Update replaces a section's content. Unknown keys are rejected;
// sections are a fixed set defined at startup.
func (s *Store) Update(key, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[key]
	if !ok {
		return false
	}
	sec.Content = content
	s.sections[key] = sec
	return true
}

// Reset restores one section to its default.
func (s *Store) Reset(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defaults[key]
	if !ok {
		return false
	}
	s.sections[key] = def
	return true
}

// ResetAll restores every section to its default.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, def := range s.defaults {
		s.sections[key] = def
	}
}
