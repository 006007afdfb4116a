package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/cache"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/internal/security"
	"github.com/jafarshop/shopsync/internal/service"
	"github.com/jafarshop/shopsync/internal/shopify"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// OAuthClient is the part of the Shopify client the install flow needs
type OAuthClient interface {
	AuthorizeURL(shop, scopes, redirectURI, state string) string
	ExchangeCode(ctx context.Context, shop, code string) (*shopify.TokenGrant, error)
}

// Dependencies are shared by every handler
type Dependencies struct {
	Sync    *service.SyncService
	Repos   *repository.Repositories
	OAuth   OAuthClient
	Cache   cache.Store
	Tokens  *security.TokenCipher
	Errors  *monitoring.ErrorTracker
	Metrics *monitoring.Collector
	Events  events.Publisher
}

// respondError maps typed errors to a status code; anything else is a 500.
func respondError(c *gin.Context, err error, logger *zap.Logger) {
	var (
		validation   *errors.ErrValidation
		notFound     *errors.ErrNotFound
		unauthorized *errors.ErrUnauthorized
		conflict     *errors.ErrConflict
	)
	switch {
	case stderrors.As(err, &validation):
		body := gin.H{"error": validation.Error()}
		if len(validation.Fields) > 0 {
			body["details"] = validation.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case stderrors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case stderrors.As(err, &unauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": unauthorized.Error()})
	case stderrors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	default:
		logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
