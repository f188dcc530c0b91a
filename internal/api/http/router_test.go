package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk/case-triage/internal/api/dto"
	"github.com/opsdesk/case-triage/internal/api/http/handlers"
	"github.com/opsdesk/case-triage/internal/auth"
	"github.com/opsdesk/case-triage/internal/classify"
	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/events"
	"github.com/opsdesk/case-triage/internal/observability"
	"github.com/opsdesk/case-triage/internal/repository"
	"github.com/opsdesk/case-triage/internal/service"
)

const testSecret = "test-secret"

type apiEnv struct {
	app   *fiber.App
	store *repository.MemoryStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	caseSvc := service.NewCaseService(service.CaseDependencies{
		CaseRepo:    store.Cases(),
		MessageRepo: store.Messages(),
		AuditRepo:   store.Audit(),
		Dispatcher:  dispatcher,
		Escalator:   classify.NewEscalator(3, 24*time.Hour),
		Identity:    service.StubIdentityResolver{},
	})
	assignSvc := service.NewAssignmentService(service.AssignmentDependencies{
		CaseRepo:   store.Cases(),
		Dispatcher: dispatcher,
	})
	exportSvc := service.NewExportService(store.Audit(), 100)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:      handlers.NewHealthHandler("case-triage", "test", nil, nil),
		Cases:       handlers.NewCasesHandler(caseSvc),
		Assignments: handlers.NewAssignmentHandler(assignSvc),
		Export:      handlers.NewExportHandler(exportSvc, logger),
		Auth:        auth.NewMiddleware(auth.NewTokenManager(testSecret)),
	})
	return &apiEnv{app: app, store: store}
}

func operatorToken(t *testing.T, operatorID string, role domain.OperatorRole) string {
	t.Helper()
	claims := auth.Claims{
		OperatorID: operatorID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (e *apiEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func createTicket(t *testing.T, env *apiEnv, token string) dto.MutationResponse {
	t.Helper()
	subject := "u1"
	resp := env.request(t, http.MethodPost, "/cases", token, dto.CreateCaseRequest{
		Kind:          domain.KindSupportTicket,
		SubjectUserID: &subject,
		Title:         "Cannot log into my account",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeData[dto.MutationResponse](t, resp)
}

func TestRoutesRequireAuth(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodGet, "/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndGetCase(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "op1", domain.OperatorRoleAgent)

	created := createTicket(t, env, token)
	assert.Equal(t, domain.StatusOpen, created.Case.Status)
	assert.NotNil(t, created.AuditEntryID)

	resp := env.request(t, http.MethodGet, "/cases/"+created.Case.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeData[dto.CaseDetailResponse](t, resp)
	assert.Equal(t, created.Case.ID, detail.ID)
	assert.Len(t, detail.AuditTrail, 1)
	require.NotNil(t, detail.Subject)
	assert.Equal(t, "user-u1", detail.Subject.Username)
}

func TestGetCaseNotFoundEnvelope(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "op1", domain.OperatorRoleAgent)

	resp := env.request(t, http.MethodGet, "/cases/missing", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestAdminCloseRequiresAdminRole(t *testing.T) {
	env := newAPIEnv(t)
	agent := operatorToken(t, "op1", domain.OperatorRoleAgent)
	admin := operatorToken(t, "admin1", domain.OperatorRoleAdmin)

	created := createTicket(t, env, agent)

	body := dto.TransitionRequest{To: domain.StatusClosed, AdminClose: true, Reason: "spam"}
	resp := env.request(t, http.MethodPost, "/cases/"+created.Case.ID+"/transition", agent, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/cases/"+created.Case.ID+"/transition", admin, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeData[dto.MutationResponse](t, resp)
	assert.Equal(t, domain.StatusClosed, updated.Case.Status)
}

func TestAssignAndQueueRoutes(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "admin1", domain.OperatorRoleAdmin)

	created := createTicket(t, env, token)

	resp := env.request(t, http.MethodGet, "/queue", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue := decodeData[[]dto.CaseSummary](t, resp)
	require.Len(t, queue, 1)

	resp = env.request(t, http.MethodPost, "/cases/"+created.Case.ID+"/assign", token, dto.AssignRequest{OperatorID: "op1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assigned := decodeData[dto.MutationResponse](t, resp)
	assert.Equal(t, domain.StatusInvestigating, assigned.Case.Status)

	resp = env.request(t, http.MethodGet, "/queue", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue = decodeData[[]dto.CaseSummary](t, resp)
	assert.Empty(t, queue)
}

// The bulk route must not resolve as /cases/:id.
func TestBulkAssignRoute(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "admin1", domain.OperatorRoleAdmin)

	c1 := createTicket(t, env, token)
	c2 := createTicket(t, env, token)

	resp := env.request(t, http.MethodPost, "/cases/bulk/assign", token, dto.BulkAssignRequest{
		CaseIDs:    []string{c1.Case.ID, c2.Case.ID, "missing"},
		OperatorID: "op1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decodeData[[]dto.BulkAssignItem](t, resp)
	require.Len(t, items, 3)
	assert.True(t, items[0].OK)
	assert.True(t, items[1].OK)
	assert.False(t, items[2].OK)
	assert.Equal(t, "NOT_FOUND", items[2].ErrorCode)
}

func TestAddMessageRoute(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "op1", domain.OperatorRoleAgent)

	created := createTicket(t, env, token)

	resp := env.request(t, http.MethodPost, "/cases/"+created.Case.ID+"/messages", token, dto.CreateMessageRequest{
		Sender: domain.SubjectTypeStaff,
		Body:   "Looking into this now",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decodeData[dto.MessageResponse](t, resp)
	assert.Equal(t, domain.SubjectTypeStaff, msg.Sender)

	// First staff reply claims the case.
	resp = env.request(t, http.MethodGet, "/cases/"+created.Case.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeData[dto.CaseDetailResponse](t, resp)
	assert.Equal(t, domain.StatusInvestigating, detail.Status)
	require.NotNil(t, detail.AssignedTo)
	assert.Equal(t, "op1", *detail.AssignedTo)
}

func TestExportRoute(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "admin1", domain.OperatorRoleAdmin)

	createTicket(t, env, token)

	resp := env.request(t, http.MethodGet, "/export?format=csv", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "seq,entry_id,case_id")
	assert.Contains(t, string(raw), string(domain.AuditCaseCreated))

	resp = env.request(t, http.MethodGet, "/export?format=xml", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListCasesFilterRoute(t *testing.T) {
	env := newAPIEnv(t)
	token := operatorToken(t, "op1", domain.OperatorRoleAgent)

	createTicket(t, env, token)

	resp := env.request(t, http.MethodGet, "/cases?kind=SUPPORT_TICKET&status=OPEN", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decodeData[[]dto.CaseSummary](t, resp)
	assert.Len(t, items, 1)

	resp = env.request(t, http.MethodGet, "/cases?kind=DISPUTE", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items = decodeData[[]dto.CaseSummary](t, resp)
	assert.Empty(t, items)
}
