package favorite

import "time"

// BrandFavorite bookmarks a creator for a brand. A favorite may only exist
// once the pair shares a verified deliverable.
type BrandFavorite struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	BrandID   string    `gorm:"column:brand_id;type:varchar(32);not null;uniqueIndex:idx_brand_favorites_pair"`
	CreatorID string    `gorm:"column:creator_id;type:varchar(32);not null;uniqueIndex:idx_brand_favorites_pair"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BrandFavorite) TableName() string { return "brand_favorites" }

// CreatorFavorite is the symmetric creator-side bookmark of a brand.
type CreatorFavorite struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	CreatorID string    `gorm:"column:creator_id;type:varchar(32);not null;uniqueIndex:idx_creator_favorites_pair"`
	BrandID   string    `gorm:"column:brand_id;type:varchar(32);not null;uniqueIndex:idx_creator_favorites_pair"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CreatorFavorite) TableName() string { return "creator_favorites" }
