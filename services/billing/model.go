package billing

import "time"

type SubjectType string

const (
	SubjectBrand   SubjectType = "BRAND"
	SubjectCreator SubjectType = "CREATOR"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionTrialing SubscriptionStatus = "TRIALING"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Subscription mirrors the billing subsystem's state. The fulfillment core
// only ever reads these rows; the payment provider webhook pipeline owns the
// writes.
type Subscription struct {
	ID               string             `gorm:"column:id;primaryKey;type:varchar(32)"`
	SubjectType      SubjectType        `gorm:"column:subject_type;type:varchar(20);not null;uniqueIndex:idx_billing_subject"`
	SubjectID        string             `gorm:"column:subject_id;type:varchar(32);not null;uniqueIndex:idx_billing_subject"`
	Status           SubscriptionStatus `gorm:"column:status;type:varchar(20);not null"`
	CurrentPeriodEnd time.Time          `gorm:"column:current_period_end"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "billing_subscriptions" }

// Entitled reports whether the subscription currently unlocks premium
// actions.
func (s *Subscription) Entitled(now time.Time) bool {
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd.IsZero() || now.Before(s.CurrentPeriodEnd)
}
