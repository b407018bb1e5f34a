package fulfillment

import "time"

type MatchStatus string

const (
	MatchPendingApproval MatchStatus = "PENDING_APPROVAL"
	MatchAccepted        MatchStatus = "ACCEPTED"
	MatchClaimed         MatchStatus = "CLAIMED"
	MatchRevoked         MatchStatus = "REVOKED"
	MatchCanceled        MatchStatus = "CANCELED"
)

// Match binds one offer to one creator. Status only advances forward except
// the terminal REVOKED/CANCELED states, and at most one live match exists per
// (offer, creator) pair.
type Match struct {
	ID           string      `gorm:"column:id;primaryKey;type:varchar(32)"`
	OfferID      string      `gorm:"column:offer_id;type:varchar(32);not null;index:idx_matches_offer_creator"`
	CreatorID    string      `gorm:"column:creator_id;type:varchar(32);not null;index:idx_matches_offer_creator"`
	Status       MatchStatus `gorm:"column:status;type:varchar(20);not null;default:'PENDING_APPROVAL'"`
	CampaignCode string      `gorm:"column:campaign_code;type:varchar(40);uniqueIndex;not null"`
	CreatedAt    time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time   `gorm:"column:updated_at;autoUpdateTime"`
	AcceptedAt   *time.Time  `gorm:"column:accepted_at"`
}

func (Match) TableName() string { return "matches" }

// Live reports whether the match still occupies the (offer, creator) slot.
func (m *Match) Live() bool {
	return m.Status != MatchRevoked && m.Status != MatchCanceled
}

// Terminal reports whether the match can no longer advance.
func (m *Match) Terminal() bool {
	return m.Status == MatchRevoked || m.Status == MatchCanceled
}

var liveMatchStatuses = []MatchStatus{MatchPendingApproval, MatchAccepted, MatchClaimed}

type DeliverableStatus string

const (
	DeliverableDue       DeliverableStatus = "DUE"
	DeliverableSubmitted DeliverableStatus = "SUBMITTED"
	DeliverableVerified  DeliverableStatus = "VERIFIED"
	DeliverableFailed    DeliverableStatus = "FAILED"
)

// Deliverable is the content-submission obligation attached to exactly one
// match. Moving to FAILED or back to DUE clears every submission,
// verification and usage-rights field so stale content never survives a
// rejection.
type Deliverable struct {
	ID                   string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	MatchID              string            `gorm:"column:match_id;type:varchar(32);uniqueIndex;not null"`
	Status               DeliverableStatus `gorm:"column:status;type:varchar(20);not null;default:'DUE'"`
	DueAt                *time.Time        `gorm:"column:due_at"`
	SubmittedPermalink   *string           `gorm:"column:submitted_permalink;type:varchar(500)"`
	SubmittedNotes       *string           `gorm:"column:submitted_notes;type:text"`
	SubmittedAt          *time.Time        `gorm:"column:submitted_at"`
	VerifiedPermalink    *string           `gorm:"column:verified_permalink;type:varchar(500)"`
	VerifiedAt           *time.Time        `gorm:"column:verified_at"`
	UsageRightsGrantedAt *time.Time        `gorm:"column:usage_rights_granted_at"`
	UsageRightsScope     *string           `gorm:"column:usage_rights_scope;type:varchar(100)"`
	FailureReason        *string           `gorm:"column:failure_reason;type:text"`
	ReviewedBy           *string           `gorm:"column:reviewed_by;type:varchar(32)"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Deliverable) TableName() string { return "deliverables" }

// Strike is a penalty record written at most once per match when its
// deliverable is rejected. The per-match slot frees up again only if the
// strike is forgiven.
type Strike struct {
	ID         string     `gorm:"column:id;primaryKey;type:varchar(32)"`
	CreatorID  string     `gorm:"column:creator_id;type:varchar(32);index;not null"`
	MatchID    string     `gorm:"column:match_id;type:varchar(32);index;not null"`
	Reason     string     `gorm:"column:reason;type:text;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	ForgivenAt *time.Time `gorm:"column:forgiven_at"`
}

func (Strike) TableName() string { return "strikes" }
