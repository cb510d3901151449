package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"keywarden/pkg/config"
	"keywarden/pkg/health"
	"keywarden/services/apikey"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *apikey.CachedService) {
	t.Helper()

	codec, err := apikey.NewCodec("ak", "-")
	require.NoError(t, err)
	hasher, err := apikey.NewBcryptHasher("test-pepper", bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := apikey.NewService(apikey.NewMemoryRepository(), hasher, codec, 0, 0)
	require.NoError(t, err)
	cached := apikey.NewCachedService(svc, apikey.NewMemoryCache(time.Minute))

	router := NewRouter(RouterParams{
		Config:   &config.Config{},
		Handler:  NewHandler(cached),
		Health:   health.ProvideHealth(health.HealthParams{}),
		Verifier: cached,
	})
	return router, cached
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAndVerify(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/api-keys", gin.H{
		"name":   "ci-pipeline",
		"scopes": []string{"read"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ApiKey    map[string]any `json:"api_key"`
		Plaintext string         `json:"plaintext"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Plaintext)
	require.Equal(t, "ci-pipeline", created.ApiKey["name"])
	require.NotContains(t, created.ApiKey, "key_hash")

	rec = doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{"api_key": created.Plaintext})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{"api_key": "ak-0123456789abcdef-bogus"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_VerifyCollapsesUnauthenticatedReasons(t *testing.T) {
	router, cached := newTestRouter(t)

	_, plaintext, err := cached.Create(context.Background(), apikey.CreateInput{
		Name:     "k",
		IsActive: true,
	})
	require.NoError(t, err)

	codec, err := apikey.NewCodec("ak", "-")
	require.NoError(t, err)
	keyID, _, err := codec.Parse(plaintext)
	require.NoError(t, err)

	// Unknown key_id and wrong secret must be byte-identical responses.
	unknown := doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{"api_key": "ak-ffffffffffffffff-nosuchsecret"})
	wrongSecret := doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{"api_key": "ak-" + keyID + "-wrongsecret"})

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrongSecret.Code)
	require.JSONEq(t, unknown.Body.String(), wrongSecret.Body.String())
}

func TestHandler_VerifyForbidden(t *testing.T) {
	router, cached := newTestRouter(t)

	entity, plaintext, err := cached.Create(context.Background(), apikey.CreateInput{
		Name:     "k",
		IsActive: true,
	})
	require.NoError(t, err)

	_, err = cached.Deactivate(context.Background(), entity.ID)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{"api_key": plaintext})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_VerifyScopes(t *testing.T) {
	router, cached := newTestRouter(t)

	_, plaintext, err := cached.Create(context.Background(), apikey.CreateInput{
		Name:     "k",
		IsActive: true,
		Scopes:   []string{"read"},
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{
		"api_key":         plaintext,
		"required_scopes": []string{"read"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/verify", gin.H{
		"api_key":         plaintext,
		"required_scopes": []string{"write"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAPIKey_Transports(t *testing.T) {
	router, cached := newTestRouter(t)

	_, plaintext, err := cached.Create(context.Background(), apikey.CreateInput{
		Name:     "k",
		IsActive: true,
	})
	require.NoError(t, err)

	// Bearer token.
	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// X-API-Key header.
	req = httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("X-API-Key", plaintext)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Query parameter.
	req = httptest.NewRequest(http.MethodGet, "/v1/whoami?api_key="+plaintext, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// No credential.
	req = httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CRUD(t *testing.T) {
	router, cached := newTestRouter(t)
	ctx := context.Background()

	entity, _, err := cached.Create(ctx, apikey.CreateInput{Name: "k", IsActive: true})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/v1/api-keys/"+entity.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/api-keys/unknown-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/v1/api-keys/"+entity.ID, gin.H{"name": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated apikey.ApiKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "renamed", updated.Name)

	rec = doJSON(t, router, http.MethodPost, "/v1/api-keys/"+entity.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/api-keys/"+entity.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/api-keys?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/api-keys/search", gin.H{"name_contains": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/v1/api-keys/"+entity.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/v1/api-keys/"+entity.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Name is required.
	rec := doJSON(t, router, http.MethodPost, "/v1/api-keys", gin.H{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Expiry in the past.
	rec = doJSON(t, router, http.MethodPost, "/v1/api-keys", gin.H{
		"name":       "stale",
		"expires_at": time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
