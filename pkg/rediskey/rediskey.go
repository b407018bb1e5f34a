package rediskey

import "fmt"

// Key prefixes shared across the fulfillment core.
const (
	SequencePrefix = "seq"
	BrandPrefix    = "brand"
	CreatorPrefix  = "creator"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildClaimSequenceKey returns "seq:claim:{brandID}:{day}".
func BuildClaimSequenceKey(brandID, day string) string {
	return fmt.Sprintf("%s:claim:%s:%s", SequencePrefix, brandID, day)
}

// BuildBrandKey returns "brand:{brandID}".
func BuildBrandKey(brandID string) string {
	return NamespaceKey(BrandPrefix, brandID)
}

// BuildCreatorKey returns "creator:{creatorID}".
func BuildCreatorKey(creatorID string) string {
	return NamespaceKey(CreatorPrefix, creatorID)
}
