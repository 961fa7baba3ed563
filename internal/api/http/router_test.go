package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore()
	fake := clock.Fake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	dispatcher := events.NewInMemoryDispatcher()
	identity := auth.ContextIdentity{}

	registry := service.NewRegistryService(service.RegistryDependencies{
		RuleRepo: store.Rules(), Transactor: store, Identity: identity, Clock: fake, Logger: logger,
	})
	sla := service.NewSLAService(service.SLADependencies{
		TrackingRepo: store.SLA(), IssueRepo: store.Issues(), Registry: registry, Transactor: store,
		Dispatcher: dispatcher, Identity: identity, Clock: fake, Logger: logger,
	})
	escalations := service.NewEscalationService(service.EscalationDependencies{
		IssueRepo: store.Issues(), EscalationRepo: store.Escalations(), Registry: registry, Tracker: sla,
		Transactor: store, Dispatcher: dispatcher, Identity: identity, Clock: fake, Logger: logger,
		Policy: service.EscalationPolicy{AllowManualSkipTier: true},
	})
	issues := service.NewIssueService(service.IssueDependencies{
		IssueRepo: store.Issues(), Registry: registry, Tracker: sla, Transactor: store,
		Dispatcher: dispatcher, Identity: identity, Clock: fake, Logger: logger,
	})

	tokens := auth.NewTokenManager("test-secret", 60)
	app := fiber.New()
	RegisterMiddlewares(app, logger, observability.NewMetrics(), time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", map[string]handlers.Pinger{"redis": nil}),
		Issues:         handlers.NewIssuesHandler(issues),
		Escalations:    handlers.NewEscalationsHandler(escalations, issues),
		SLA:            handlers.NewSLAHandler(sla),
		Matrix:         handlers.NewMatrixHandler(registry),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, clock: fake}
}

func (s *testServer) token(t *testing.T, role domain.StaffRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(domain.Identity{ID: "user-" + string(role), Role: role})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	agent := s.token(t, domain.StaffRoleAgent)

	status, body := s.do(t, "POST", "/api/helpdesk/issues", agent, map[string]any{
		"title":           "Laptop will not boot",
		"priority":        "HIGH",
		"related_service": "ASSET",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	issue := data(t, body)
	id := issue["id"].(string)
	assert.Equal(t, "L2", issue["current_support_level"])
	assert.Equal(t, "user-AGENT", issue["reported_by"])

	status, body = s.do(t, "PATCH", "/api/helpdesk/issues/"+id+"/assign", agent, map[string]any{"assigned_to": "agent-9"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "IN_PROGRESS", data(t, body)["status"])

	status, body = s.do(t, "POST", "/api/helpdesk/escalations/issue/"+id, agent, map[string]any{"target_level": "L3", "reason": "hardware"})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "L3", data(t, body)["to_level"])

	status, body = s.do(t, "GET", "/api/helpdesk/escalations/issue/"+id, agent, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, "POST", "/api/helpdesk/issues/"+id+"/resolve", agent, map[string]any{"resolution": "replaced disk"})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = s.do(t, "PATCH", "/api/helpdesk/issues/"+id+"/close", agent, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "CLOSED", data(t, body)["status"])

	status, body = s.do(t, "PATCH", "/api/helpdesk/issues/"+id+"/status", agent, map[string]any{"status": "OPEN"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = s.do(t, "GET", "/api/helpdesk/sla/issue/"+id, agent, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, data(t, body)["response_sla_met"])

	status, body = s.do(t, "GET", "/api/helpdesk/issues/mine", agent, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestMatrixWritesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	rule := map[string]any{
		"related_service":         "ASSET",
		"priority":                "HIGH",
		"support_level":           "L1",
		"escalate_to_level":       "L2",
		"escalation_time_minutes": 30,
		"response_time_minutes":   15,
		"resolution_time_minutes": 240,
	}

	status, body := s.do(t, "POST", "/api/helpdesk/escalation-matrix", s.token(t, domain.StaffRoleAgent), rule)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	admin := s.token(t, domain.StaffRoleAdmin)
	status, body = s.do(t, "POST", "/api/helpdesk/escalation-matrix", admin, rule)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "L1", data(t, body)["initial_assignment_level"])

	status, body = s.do(t, "POST", "/api/helpdesk/escalation-matrix", admin, rule)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, "GET", "/api/helpdesk/escalation-matrix/service/asset/priority/high/level/l1", s.token(t, domain.StaffRoleAgent), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, float64(30), data(t, body)["escalation_time_minutes"])

	status, _ = s.do(t, "GET", "/api/helpdesk/escalation-matrix/service/ASSET/priority/HIGH/level/L3", admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, "GET", "/api/helpdesk/issues", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestUnknownIssueIsNotFound(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, "GET", "/api/helpdesk/issues/nope", s.token(t, domain.StaffRoleAgent), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, "GET", "/health/live", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, "GET", "/health/ready", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	resp, err := s.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
