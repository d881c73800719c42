package core

import "github.com/google/uuid"

// Names of the protected reference rows every ledger starts with.
const (
	DefaultCategoryName = "Misc"
	DefaultAccountName  = "Cash"
)

var seedNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("spendly"))

// SeedID derives a stable identifier for a seeded reference row so that
// seeding twice, or on two backends, yields the same ids.
func SeedID(kind, name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(kind+"/"+name)).String()
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultCategory is the undeletable fallback category.
func DefaultCategory() Category {
	return Category{
		ID:        SeedID("category", DefaultCategoryName),
		Name:      DefaultCategoryName,
		Icon:      "category",
		Color:     "#9E9E9E",
		IsDefault: true,
	}
}

// DefaultAccount is the undeletable account entries fall back to.
func DefaultAccount() Account {
	return Account{
		ID:        SeedID("account", DefaultAccountName),
		Name:      DefaultAccountName,
		Icon:      "wallet",
		Color:     "#4CAF50",
		IsDefault: true,
	}
}
