package software

import "strings"

// Category classifies a title for filtering and display.
type Category string

const (
	CategoryUnknown     Category = "Unknown"
	CategoryGame        Category = "Game"
	CategoryApplication Category = "Application"
	CategoryDevelopment Category = "Development"
	CategoryMedia       Category = "Media"
	CategoryUtility     Category = "Utility"
	CategorySystem      Category = "System"
)

var knownCategories = []Category{
	CategoryUnknown,
	CategoryGame,
	CategoryApplication,
	CategoryDevelopment,
	CategoryMedia,
	CategoryUtility,
	CategorySystem,
}

// Categories returns every known category in display order.
func Categories() []Category {
	out := make([]Category, len(knownCategories))
	copy(out, knownCategories)
	return out
}

// ParseCategory maps a case-insensitive name to a Category. Unrecognized or
// empty values map to CategoryUnknown.
func ParseCategory(value string) Category {
	value = strings.TrimSpace(value)
	for _, c := range knownCategories {
		if strings.EqualFold(string(c), value) {
			return c
		}
	}
	return CategoryUnknown
}

// IsDefault reports whether the category carries no classification.
func (c Category) IsDefault() bool {
	return c == "" || c == CategoryUnknown
}

// Normalize returns CategoryUnknown for the zero value.
func (c Category) Normalize() Category {
	if c == "" {
		return CategoryUnknown
	}
	return ParseCategory(string(c))
}

func (c Category) String() string {
	return string(c.Normalize())
}
