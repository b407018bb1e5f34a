package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/config"
	"seedloop-core/pkg/db/pagination"
	"seedloop-core/pkg/health"
	"seedloop-core/pkg/middleware"
	"seedloop-core/pkg/ratelimit"
	"seedloop-core/services/favorite"
	"seedloop-core/services/fulfillment"
	"seedloop-core/services/offer"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
)

type RouterParams struct {
	fx.In

	Config      *config.Config
	Limiter     *ratelimit.Limiter
	Health      health.HealthService
	Offers      *offer.Service
	Fulfillment *fulfillment.Service
	Favorites   *favorite.Service
}

// NewRouter builds the thin HTTP surface over the fulfillment core. Handlers
// only bind input, build the caller context and map errors; every rule lives
// in the services.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1")

	offers := v1.Group("/offers")
	{
		offers.POST("", createOffer(p.Offers))
		offers.GET("", listOffers(p.Offers))
		offers.GET("/:id", getOffer(p.Offers))
		offers.POST("/:id/publish", offerTransition(p.Offers, (*offer.Service).PublishOffer))
		offers.POST("/:id/archive", offerTransition(p.Offers, (*offer.Service).ArchiveOffer))
		offers.POST("/:id/duplicate", offerTransition(p.Offers, (*offer.Service).DuplicateOffer))
		offers.POST("/:id/claims",
			middleware.RateLimit(p.Limiter, "claim", p.Config.RateLimit.ClaimLimit, p.Config.RateLimit.ClaimWindow),
			claimOffer(p.Fulfillment),
		)
	}

	matches := v1.Group("/matches")
	{
		matches.POST("/:id/accept", matchTransition(p.Fulfillment, (*fulfillment.Service).AcceptMatch))
		matches.POST("/:id/reject", matchTransition(p.Fulfillment, (*fulfillment.Service).RejectMatch))
		matches.POST("/:id/cancel", matchTransition(p.Fulfillment, (*fulfillment.Service).CancelMatch))
		matches.POST("/:id/ship", matchTransition(p.Fulfillment, (*fulfillment.Service).MarkShipped))
	}

	deliverables := v1.Group("/deliverables")
	{
		deliverables.POST("/:id/submit", submitDeliverable(p.Fulfillment))
		deliverables.POST("/:id/verify", review(p.Fulfillment, fulfillment.ReviewVerify))
		deliverables.POST("/:id/fail", review(p.Fulfillment, fulfillment.ReviewFail))
		deliverables.POST("/:id/request-changes", review(p.Fulfillment, fulfillment.ReviewRequestChanges))
	}

	favorites := v1.Group("/favorites")
	{
		favorites.PUT("/creators/:id", addBrandFavorite(p.Favorites))
		favorites.DELETE("/creators/:id", removeBrandFavorite(p.Favorites))
		favorites.PUT("/brands/:id", addCreatorFavorite(p.Favorites))
		favorites.DELETE("/brands/:id", removeCreatorFavorite(p.Favorites))
	}

	// Internal surface for support tooling and the account deletion
	// pipeline. Exposed only on the private listener by the gateway.
	internal := v1.Group("/internal")
	{
		internal.POST("/strikes/:id/forgive", forgiveStrike(p.Fulfillment))
		internal.DELETE("/brands/:id", purgeBrand(p.Offers))
	}

	return r
}

// actorFrom rebuilds the authenticated caller context from the trusted
// headers set by the identity gateway.
func actorFrom(c *gin.Context) authctx.Context {
	followers, _ := strconv.ParseInt(c.GetHeader("X-Followers-Count"), 10, 64)
	return authctx.Context{
		UserID:         c.GetHeader("X-User-Id"),
		BrandID:        c.GetHeader("X-Brand-Id"),
		CreatorID:      c.GetHeader("X-Creator-Id"),
		FollowersCount: followers,
		CountryCode:    c.GetHeader("X-Country-Code"),
	}
}

type createOfferRequest struct {
	Title                    string   `json:"title"`
	ContentTemplate          string   `json:"content_template"`
	CountriesAllowed         []string `json:"countries_allowed"`
	MaxClaims                int      `json:"max_claims"`
	DeadlineDays             int      `json:"deadline_days"`
	DeliverableType          string   `json:"deliverable_type"`
	UsageRightsRequired      bool     `json:"usage_rights_required"`
	UsageRightsScope         string   `json:"usage_rights_scope"`
	AcceptanceThreshold      *int64   `json:"acceptance_threshold"`
	AutoAcceptAboveThreshold bool     `json:"auto_accept_above_threshold"`
	Products                 []struct {
		ExternalRef  string `json:"external_ref"`
		Title        string `json:"title"`
		ValueCents   int64  `json:"value_cents"`
		CurrencyCode string `json:"currency_code"`
	} `json:"products"`
}

func createOffer(svc *offer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOfferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_FAILED", "message": "invalid request body"}})
			return
		}

		products := make([]offer.ProductInput, 0, len(req.Products))
		for _, p := range req.Products {
			products = append(products, offer.ProductInput{
				ExternalRef:  p.ExternalRef,
				Title:        p.Title,
				ValueCents:   p.ValueCents,
				CurrencyCode: p.CurrencyCode,
			})
		}

		o, err := svc.CreateOffer(c.Request.Context(), actorFrom(c), offer.CreateOfferInput{
			Title:                    req.Title,
			ContentTemplate:          req.ContentTemplate,
			CountriesAllowed:         req.CountriesAllowed,
			MaxClaims:                req.MaxClaims,
			DeadlineDays:             req.DeadlineDays,
			DeliverableType:          offer.DeliverableType(req.DeliverableType),
			UsageRightsRequired:      req.UsageRightsRequired,
			UsageRightsScope:         req.UsageRightsScope,
			AcceptanceThreshold:      req.AcceptanceThreshold,
			AutoAcceptAboveThreshold: req.AutoAcceptAboveThreshold,
		}, products)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

func listOffers(svc *offer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var page pagination.Pagination
		if err := c.ShouldBindQuery(&page); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_FAILED", "message": "invalid query"}})
			return
		}

		offers, info, err := svc.ListOffers(c.Request.Context(), actorFrom(c), page)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offers": offers, "page_info": info})
	}
}

func getOffer(svc *offer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOffer(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// offerTransition adapts the publish/archive/duplicate method expressions
// into handlers so each transition stays one registration line.
func offerTransition(svc *offer.Service, fn func(*offer.Service, context.Context, authctx.Context, string) (*offer.Offer, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := fn(svc, c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func claimOffer(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, d, err := svc.Claim(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"match": m, "deliverable": d})
	}
}

func matchTransition(svc *fulfillment.Service, fn func(*fulfillment.Service, context.Context, authctx.Context, string) (*fulfillment.Match, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := fn(svc, c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

type submitRequest struct {
	Permalink string `json:"permalink"`
	Notes     string `json:"notes"`
}

func submitDeliverable(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_FAILED", "message": "invalid request body"}})
			return
		}

		d, err := svc.SubmitDeliverable(c.Request.Context(), actorFrom(c), c.Param("id"), req.Permalink, req.Notes)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

type reviewRequest struct {
	Reason    string `json:"reason"`
	Permalink string `json:"permalink"`
}

func review(svc *fulfillment.Service, kind fulfillment.ReviewKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviewRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_FAILED", "message": "invalid request body"}})
				return
			}
		}

		d, err := svc.Review(c.Request.Context(), actorFrom(c), fulfillment.ReviewCommand{
			Kind:          kind,
			DeliverableID: c.Param("id"),
			Reason:        req.Reason,
			Permalink:     req.Permalink,
		})
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func addBrandFavorite(svc *favorite.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.AddBrandFavorite(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func removeBrandFavorite(svc *favorite.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.RemoveBrandFavorite(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func addCreatorFavorite(svc *favorite.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.AddCreatorFavorite(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func removeCreatorFavorite(svc *favorite.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.RemoveCreatorFavorite(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func forgiveStrike(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ForgiveStrike(c.Request.Context(), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func purgeBrand(svc *offer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.PurgeBrand(c.Request.Context(), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
