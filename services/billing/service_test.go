package billing_test

import (
	"context"
	"testing"
	"time"

	"seedloop-core/services/billing"
	"seedloop-core/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestEntitled(t *testing.T) {
	future := time.Now().UTC().Add(30 * 24 * time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	cases := []struct {
		name string
		sub  *billing.Subscription
		want bool
	}{
		{"active in period", &billing.Subscription{ID: "s1", Status: billing.SubscriptionActive, CurrentPeriodEnd: future}, true},
		{"trialing in period", &billing.Subscription{ID: "s1", Status: billing.SubscriptionTrialing, CurrentPeriodEnd: future}, true},
		{"active but expired", &billing.Subscription{ID: "s1", Status: billing.SubscriptionActive, CurrentPeriodEnd: past}, false},
		{"past due", &billing.Subscription{ID: "s1", Status: billing.SubscriptionPastDue, CurrentPeriodEnd: future}, false},
		{"canceled", &billing.Subscription{ID: "s1", Status: billing.SubscriptionCanceled, CurrentPeriodEnd: future}, false},
		{"no subscription", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.NewTestDB(t, &billing.Subscription{})
			svc := billing.NewService(billing.ServiceParams{DB: db})

			if tc.sub != nil {
				tc.sub.SubjectType = billing.SubjectBrand
				tc.sub.SubjectID = "brand-1"
				require.NoError(t, db.Create(tc.sub).Error)
			}

			got, err := svc.Entitled(context.Background(), billing.SubjectBrand, "brand-1")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
