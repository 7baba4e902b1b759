package entity

import "sort"

// Category describes one entry of the expense category registry. The
// registry is configuration data injected at startup, never compiled-in
// global state, so deployments can localize or extend it.
type Category struct {
	ID       string `json:"id" mapstructure:"id"`
	NameHe   string `json:"name_he" mapstructure:"name_he"`
	NameEn   string `json:"name_en" mapstructure:"name_en"`
	Icon     string `json:"icon" mapstructure:"icon"`
	Color    string `json:"color" mapstructure:"color"`
	SortRank int    `json:"sort_rank" mapstructure:"sort_rank"`
}

// CategoryRegistry is an immutable category lookup table
type CategoryRegistry struct {
	byID  map[string]Category
	order []Category
}

// NewCategoryRegistry builds a registry from the given categories,
// ordered by sort rank. Later entries with a repeated id win, which
// lets a config file override a seed entry.
func NewCategoryRegistry(categories []Category) *CategoryRegistry {
	byID := make(map[string]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	order := make([]Category, 0, len(byID))
	for _, c := range byID {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].SortRank != order[j].SortRank {
			return order[i].SortRank < order[j].SortRank
		}
		return order[i].ID < order[j].ID
	})

	return &CategoryRegistry{byID: byID, order: order}
}

// Get returns the category for an id
func (r *CategoryRegistry) Get(id string) (Category, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns the categories in display order. The returned slice is a
// copy; mutating it does not affect the registry.
func (r *CategoryRegistry) All() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered categories
func (r *CategoryRegistry) Len() int {
	return len(r.byID)
}

// SeedCategories returns the default registry content, used when the
// configuration file does not supply one.
func SeedCategories() []Category {
	return []Category{
		{ID: "office", NameHe: "ציוד משרדי", NameEn: "Office Supplies", Icon: "paperclip", Color: "#4A90D9", SortRank: 10},
		{ID: "travel", NameHe: "נסיעות", NameEn: "Travel", Icon: "car", Color: "#D98E4A", SortRank: 20},
		{ID: "meals", NameHe: "אירוח וכיבוד", NameEn: "Meals & Hospitality", Icon: "coffee", Color: "#8E44AD", SortRank: 30},
		{ID: "software", NameHe: "תוכנה ומחשוב", NameEn: "Software & IT", Icon: "monitor", Color: "#27AE60", SortRank: 40},
		{ID: "rent", NameHe: "שכירות", NameEn: "Rent", Icon: "home", Color: "#C0392B", SortRank: 50},
		{ID: "professional", NameHe: "שירותים מקצועיים", NameEn: "Professional Services", Icon: "briefcase", Color: "#16A085", SortRank: 60},
		{ID: "other", NameHe: "אחר", NameEn: "Other", Icon: "tag", Color: "#7F8C8D", SortRank: 100},
	}
}
