package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timevault/internal/capsule/handler"
	"timevault/internal/capsule/service"
	"timevault/internal/capsule/store/memory"
	jwttoken "timevault/internal/jwt_token"
	"timevault/internal/platform/metrics"
	id "timevault/pkg/domain"
	"timevault/pkg/testutil"
)

type capsuleBody struct {
	Address    string `json:"address"`
	Creator    string `json:"creator"`
	Owner      string `json:"owner"`
	ID         uint64 `json:"id"`
	IsUnlocked bool   `json:"is_unlocked"`
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := memory.New()
	svc := service.New(ledger, ledger, service.WithLogger(logger))
	tokens := jwttoken.NewJWTService("test-signing-key", "timevault", "timevault-api")
	reg := prometheus.NewRegistry()

	return NewRouter(Deps{
		Logger:    logger,
		Capsules:  handler.New(svc, logger),
		Validator: tokens,
		Metrics:   metrics.NewHTTP(reg),
		Gatherer:  reg,
		Checks:    checks,
	}), tokens
}

func bearer(t *testing.T, tokens *jwttoken.JWTService, identity id.Identity) string {
	t.Helper()
	token, err := tokens.GenerateToken(identity, time.Hour)
	require.NoError(t, err)
	return token
}

func TestRouter_CapsuleLifecycle(t *testing.T) {
	router, tokens := newTestRouter(t, nil)
	authority := id.NewIdentity()
	alice := id.NewIdentity()
	bob := id.NewIdentity()
	unlockAt := time.Now().Add(2 * time.Second).Unix()

	var created *capsuleBody
	capsulePath := func(suffix string) string {
		return "/v1/capsules/" + created.Address + suffix + "?creator=" + created.Creator + "&id=" + strconv.FormatUint(created.ID, 10)
	}

	testutil.Given(t, "an initialized registry", func(t *testing.T) {
		req := testutil.BearerToken(testutil.NewRequest(t, http.MethodPost, "/v1/registry"), bearer(t, tokens, authority))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	testutil.When(t, "alice creates a capsule", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/capsules", map[string]any{
			"title":       "letter",
			"content":     "see you later",
			"unlock_date": unlockAt,
		})
		rr := testutil.DoRequest(router, testutil.BearerToken(req, bearer(t, tokens, alice)))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		created = testutil.UnmarshalResponse[capsuleBody](t, rr)
		assert.Equal(t, alice.String(), created.Owner)
		assert.Equal(t, uint64(0), created.ID)
	})
	require.NotNil(t, created)

	testutil.Then(t, "bob cannot transfer it", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, capsulePath("/transfer"), map[string]any{"new_owner": bob.String()})
		rr := testutil.DoRequest(router, testutil.BearerToken(req, bearer(t, tokens, bob)))
		testutil.AssertReason(t, rr, http.StatusForbidden, "unauthorized_access")
	})

	testutil.Then(t, "it cannot be closed while locked", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodDelete, capsulePath(""))
		rr := testutil.DoRequest(router, testutil.BearerToken(req, bearer(t, tokens, alice)))
		testutil.AssertReason(t, rr, http.StatusConflict, "cannot_close_locked_capsule")
	})

	testutil.Then(t, "alice transfers it to bob", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, capsulePath("/transfer"), map[string]any{"new_owner": bob.String()})
		rr := testutil.DoRequest(router, testutil.BearerToken(req, bearer(t, tokens, alice)))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "owner", bob.String())
	})

	testutil.Then(t, "the registry counted one capsule", func(t *testing.T) {
		req := testutil.BearerToken(testutil.NewRequest(t, http.MethodGet, "/v1/registry"), bearer(t, tokens, bob))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "total_capsules", float64(1))
	})
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/registry"))
	testutil.AssertError(t, rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.BearerToken(testutil.NewRequest(t, http.MethodGet, "/v1/registry"), "garbage")
	rr = testutil.DoRequest(router, req)
	testutil.AssertError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestRouter_RejectsNonJSONBodies(t *testing.T) {
	router, tokens := newTestRouter(t, nil)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/capsules", "title=x")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := testutil.DoRequest(router, testutil.BearerToken(req, bearer(t, tokens, id.NewIdentity())))

	testutil.AssertStatus(t, rr, http.StatusUnsupportedMediaType)
}

func TestRouter_EchoesRequestID(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := testutil.NewRequest(t, http.MethodGet, "/healthz")
	req.Header.Set("X-Request-ID", "req-123")
	rr := testutil.DoRequest(router, req)

	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestRouter_Healthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router, _ := newTestRouter(t, map[string]HealthCheck{
			"ledger": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("dependency down", func(t *testing.T) {
		router, _ := newTestRouter(t, map[string]HealthCheck{
			"ledger": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		body := testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.Equal(t, "connection refused", (*body)["checks"].(map[string]any)["ledger"])
	})
}

func TestRouter_ExposesMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "timevault_http_request_duration_seconds")
}
