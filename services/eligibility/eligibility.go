package eligibility

import (
	"context"

	"gorm.io/gorm"
)

// Decision is the outcome of the acceptance gate for a new claim.
type Decision string

const (
	AutoAccept      Decision = "AUTO_ACCEPT"
	PendingApproval Decision = "PENDING_APPROVAL"
)

// AcceptanceDecision is the pure auto-acceptance rule: a claim is accepted
// without review only when the brand opted in and the creator clears the
// follower threshold.
func AcceptanceDecision(threshold int64, autoAcceptAboveThreshold bool, followersCount int64) Decision {
	if autoAcceptAboveThreshold && followersCount >= threshold {
		return AutoAccept
	}
	return PendingApproval
}

// ActiveStrikeCount counts unforgiven strikes for a creator. Callers decide
// what to do above their configured limit; the count itself carries no
// policy.
//
// Queries go through table names rather than model types so this package
// stays a leaf with no service imports.
func ActiveStrikeCount(ctx context.Context, db *gorm.DB, creatorID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("strikes").
		Where("creator_id = ? AND forgiven_at IS NULL", creatorID).
		Count(&count).Error
	return count, err
}

// FavoriteEligible reports whether at least one deliverable on a live match
// between the brand and the creator has been verified. To stay atomic with a
// favorite insert, run it on the transaction handle performing the insert.
func FavoriteEligible(ctx context.Context, db *gorm.DB, brandID, creatorID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("deliverables").
		Joins("JOIN matches ON matches.id = deliverables.match_id").
		Joins("JOIN offers ON offers.id = matches.offer_id").
		Where("offers.brand_id = ? AND matches.creator_id = ?", brandID, creatorID).
		Where("deliverables.status = ?", "VERIFIED").
		Where("matches.status NOT IN ?", []string{"REVOKED", "CANCELED"}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
