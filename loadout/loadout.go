// Package loadout holds the scraped meta-loadout data model and the text
// normalisation that turns a card's raw detail lines into attachment bullets.
package loadout

// Unknown placeholders used only for display. The model itself stores an
// empty string when a value could not be scraped.
const (
	UnknownWeapon = "Unknown Weapon"
	UnknownDate   = "Unknown"
)

// Combination identifies one scraped slot: a category (game mode) and a
// sub-category (range band) within it.
type Combination struct {
	Category    string `json:"mode"`
	SubCategory string `json:"range"`
}

// Key returns the snapshot key "{category}_{subCategory}".
func (c Combination) Key() string {
	return c.Category + "_" + c.SubCategory
}

func (c Combination) String() string {
	return c.Category + " [" + c.SubCategory + "]"
}

// Record is one scraped result for a combination.
type Record struct {
	Combination
	WeaponName  string   `json:"gun"`
	Attachments []string `json:"class"`
	LastUpdated string   `json:"updated"`
	ImageURL    string   `json:"image,omitempty"` // rehosted; empty when absent
}

// DisplayName returns the weapon name, or UnknownWeapon when it was not found.
func (r Record) DisplayName() string {
	if r.WeaponName == "" {
		return UnknownWeapon
	}
	return r.WeaponName
}

// DisplayUpdated returns the last-updated label, or UnknownDate.
func (r Record) DisplayUpdated() string {
	if r.LastUpdated == "" {
		return UnknownDate
	}
	return r.LastUpdated
}

// Combinations returns the cross product of categories and sub-categories in
// category-major order.
func Combinations(categories, subCategories []string) []Combination {
	out := make([]Combination, 0, len(categories)*len(subCategories))
	for _, c := range categories {
		for _, s := range subCategories {
			out = append(out, Combination{Category: c, SubCategory: s})
		}
	}
	return out
}
