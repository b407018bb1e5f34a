package authctx

import "seedloop-core/pkg/errutil"

// Context carries the authenticated caller into every state-machine
// operation. The identity provider has already validated credentials; the
// core trusts this object and only checks ownership and role.
type Context struct {
	UserID    string
	BrandID   string
	CreatorID string

	// Creator profile attributes supplied by the external profile sync.
	FollowersCount int64
	CountryCode    string
}

// IsBrand reports whether the caller acts on behalf of a brand.
func (c Context) IsBrand() bool { return c.BrandID != "" }

// IsCreator reports whether the caller acts as a creator.
func (c Context) IsCreator() bool { return c.CreatorID != "" }

// RequireBrand returns FORBIDDEN unless the caller has a brand membership.
func (c Context) RequireBrand() error {
	if !c.IsBrand() {
		return errutil.Forbidden("brand membership required")
	}
	return nil
}

// RequireCreator returns FORBIDDEN unless the caller is a creator.
func (c Context) RequireCreator() error {
	if !c.IsCreator() {
		return errutil.Forbidden("creator account required")
	}
	return nil
}
