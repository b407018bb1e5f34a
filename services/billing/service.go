package billing

import (
	"context"
	"time"

	"seedloop-core/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("billing.module",
	fx.Provide(NewService),
)

// Service is the read-only billing gate. It never mutates subscription rows.
type Service struct {
	repo repository.Repository[Subscription]
}

type ServiceParams struct {
	fx.In

	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: repository.ProvideStore[Subscription](p.DB),
	}
}

// Entitled reports whether the subject holds an active or trialing
// subscription. A missing row means no entitlement, not an error.
func (s *Service) Entitled(ctx context.Context, subjectType SubjectType, subjectID string) (bool, error) {
	sub, err := s.repo.FindOne(ctx, &Subscription{
		SubjectType: subjectType,
		SubjectID:   subjectID,
	})
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	return sub.Entitled(time.Now().UTC()), nil
}
