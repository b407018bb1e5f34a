package offer

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

type DeliverableType string

const (
	DeliverablePost  DeliverableType = "POST"
	DeliverableReel  DeliverableType = "REEL"
	DeliverableStory DeliverableType = "STORY"
	DeliverableVideo DeliverableType = "VIDEO"
)

// Offer is a brand's standing product-for-content proposal. Only PUBLISHED
// offers are claimable.
type Offer struct {
	ID                       string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	BrandID                  string          `gorm:"column:brand_id;type:varchar(32);index;not null"`
	Title                    string          `gorm:"column:title;type:varchar(255);not null"`
	ContentTemplate          string          `gorm:"column:content_template;type:text"`
	Status                   Status          `gorm:"column:status;type:varchar(20);not null;default:'DRAFT'"`
	CountriesAllowed         datatypes.JSON  `gorm:"column:countries_allowed;not null"`
	MaxClaims                int             `gorm:"column:max_claims;not null;default:50"`
	DeadlineDays             int             `gorm:"column:deadline_days;not null;default:14"`
	DeliverableType          DeliverableType `gorm:"column:deliverable_type;type:varchar(20);not null;default:'POST'"`
	UsageRightsRequired      bool            `gorm:"column:usage_rights_required;not null;default:false"`
	UsageRightsScope         string          `gorm:"column:usage_rights_scope;type:varchar(100)"`
	AcceptanceThreshold      *int64          `gorm:"column:acceptance_threshold"`
	AutoAcceptAboveThreshold bool            `gorm:"column:auto_accept_above_threshold;not null;default:false"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Products []Product `gorm:"foreignKey:OfferID"`
}

func (Offer) TableName() string { return "offers" }

// Countries decodes the allowed-country list.
func (o *Offer) Countries() []string {
	var out []string
	if len(o.CountriesAllowed) == 0 {
		return out
	}
	_ = json.Unmarshal(o.CountriesAllowed, &out)
	return out
}

// SetCountries encodes the allowed-country list.
func (o *Offer) SetCountries(codes []string) error {
	b, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	o.CountriesAllowed = b
	return nil
}

// AllowsCountry reports whether a creator from the given country may claim.
func (o *Offer) AllowsCountry(code string) bool {
	for _, c := range o.Countries() {
		if c == code {
			return true
		}
	}
	return false
}

// Threshold resolves the brand override against the platform default.
func (o *Offer) Threshold(platformDefault int64) int64 {
	if o.AcceptanceThreshold != nil {
		return *o.AcceptanceThreshold
	}
	return platformDefault
}

// Product is a seeded item attached to an offer. Products are field-copied
// with fresh ids when the offer is duplicated.
type Product struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	OfferID      string    `gorm:"column:offer_id;type:varchar(32);index;not null"`
	ExternalRef  string    `gorm:"column:external_ref;type:varchar(100)"`
	Title        string    `gorm:"column:title;type:varchar(255);not null"`
	ValueCents   int64     `gorm:"column:value_cents;not null;default:0"`
	CurrencyCode string    `gorm:"column:currency_code;type:varchar(3);not null;default:'USD'"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
