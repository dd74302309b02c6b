package catalog

// Model describes one language model offered in the sidebar selector.
type Model struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Seed provides the selectable models. The first entry is the default.
func Seed() []Model {
	return []Model{
		{
			ID:          "gpt-4",
			Label:       "GPT-4",
			Description: "더 정확하지만 응답이 느린 모델",
			Default:     true,
		},
		{
			ID:          "gpt-3.5-turbo",
			Label:       "GPT-3.5 Turbo",
			Description: "빠르고 저렴한 모델",
		},
	}
}
