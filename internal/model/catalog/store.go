package catalog

// Store exposes model lookup for handlers and the dialogue engine.
type Store interface {
	List() []Model
	FindByID(id string) (Model, bool)
	Default() Model
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Model
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied models.
func NewMemoryStore(items []Model) *MemoryStore {
	return &MemoryStore{items: append([]Model(nil), items...)}
}

// List returns the selectable models in display order.
func (s *MemoryStore) List() []Model {
	return append([]Model(nil), s.items...)
}

// FindByID looks up a model by identifier.
func (s *MemoryStore) FindByID(id string) (Model, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Model{}, false
}

// Default returns the model flagged as default, falling back to the first one.
func (s *MemoryStore) Default() Model {
	for _, item := range s.items {
		if item.Default {
			return item
		}
	}
	if len(s.items) > 0 {
		return s.items[0]
	}
	return Model{}
}

// WithDefault returns a copy of items where only id is flagged as default.
// Unknown ids leave items unchanged.
func WithDefault(items []Model, id string) []Model {
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			break
		}
	}
	out := append([]Model(nil), items...)
	if !found {
		return out
	}
	for i := range out {
		out[i].Default = out[i].ID == id
	}
	return out
}
