package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"keywarden/pkg/errutil"
	"keywarden/services/apikey"
)

// ContextKeyEntity is the gin context key under which RequireAPIKey stores
// the authenticated entity.
const ContextKeyEntity = "apikey.entity"

// Error renders the last error pushed with c.Error as a JSON body. Errors
// that are not BaseError fall back to a bare 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}
		internal := errutil.Internal("internal error").(errutil.BaseError)
		c.JSON(internal.Code.HTTPStatus(), internal.JSON())
	}
}

// ExtractAPIKey pulls the presented key string from the request, in order of
// preference: Authorization bearer token, X-API-Key header, api_key query
// parameter. Returns "" when none is present.
func ExtractAPIKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(c.Query("api_key"))
}

// RequireAPIKey guards a route group. On success the verified entity is
// stored in the gin context; on failure the request is aborted with the
// collapsed verification error.
func RequireAPIKey(verifier apikey.Verifier, requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, err := verifier.VerifyWithScopes(c.Request.Context(), ExtractAPIKey(c), requiredScopes)
		if err != nil {
			be := verifyError(err).(errutil.BaseError)
			c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.Set(ContextKeyEntity, entity)
		c.Next()
	}
}

// EntityFromContext returns the entity stored by RequireAPIKey, or nil.
func EntityFromContext(c *gin.Context) *apikey.ApiKey {
	v, ok := c.Get(ContextKeyEntity)
	if !ok {
		return nil
	}
	entity, _ := v.(*apikey.ApiKey)
	return entity
}

// verifyError maps a verification reject onto the externally visible error.
// All unauthenticated reasons collapse into one message so a caller cannot
// distinguish unknown key_id from wrong secret. Forbidden reasons stay
// specific because they are only reachable with a proven secret.
func verifyError(err error) error {
	switch {
	case apikey.IsUnauthenticated(err):
		return errutil.Unauthorized("invalid or missing API key", errutil.WithErr(err))
	case apikey.IsForbidden(err):
		return errutil.Forbidden(err.Error(), errutil.WithErr(err))
	default:
		return errutil.Internal("verification failed", errutil.WithErr(err))
	}
}
