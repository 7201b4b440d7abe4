package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/gateway/internal/domain/dispatch"
	"github.com/chatrelay/gateway/internal/domain/session"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/shared/token"
)

const testSecret = "unit-secret"

type stubService struct {
	queued     bool
	sendErr    error
	bulkResult *dispatch.BulkResult
	bulkErr    error
	status     session.Status
	logoutErr  error

	sentTo    string
	sentBody  string
	loggedOut string
}

func (s *stubService) Send(_ context.Context, tenantID, number, body string) (bool, error) {
	s.sentTo = number
	s.sentBody = body
	_ = tenantID
	return s.queued, s.sendErr
}

func (s *stubService) SendBulk(_ context.Context, _ string, recipients []dispatch.Recipient) (*dispatch.BulkResult, error) {
	if len(recipients) == 0 {
		return nil, dispatch.ErrNoRecipients
	}
	return s.bulkResult, s.bulkErr
}

func (s *stubService) Status(string) session.Status { return s.status }

func (s *stubService) Logout(_ context.Context, tenantID string) error {
	s.loggedOut = tenantID
	return s.logoutErr
}

func (s *stubService) Stats() session.Stats { return session.Stats{Sessions: 2, Ready: 1} }

func newTestRouter(t *testing.T, svc SessionService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandlers(svc, logging.NewNop()).RegisterRoutes(router, testSecret)
	return router
}

func bearerFor(t *testing.T, tenantID string) string {
	t.Helper()
	now := time.Now().UTC()
	tok, err := token.Mint([]byte(testSecret), token.Claims{
		TenantID:  tenantID,
		User:      "919876543210",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	return "Bearer " + tok
}

func authedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret-Key", testSecret)
	req.Header.Set("Authorization", bearerFor(t, "acme"))
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["sessions"])
	assert.EqualValues(t, 1, body["ready"])
}

func TestSendMessageMissingParameters(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	for _, payload := range []string{
		``,
		`{}`,
		`{"clientId":"acme","number":"9876543210"}`,
		`{"clientId":"acme","message":"hi"}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/message/send-message", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code, "payload %q", payload)
		assert.Equal(t, "Missing parameters", decode(t, w)["error"])
	}
}

func TestSendMessageDelivered(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message/send-message",
		strings.NewReader(`{"clientId":"acme","number":"9876543210","message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Message sent", body["message"])
	assert.Equal(t, "9876543210", svc.sentTo)
	assert.Equal(t, "hello", svc.sentBody)
}

func TestSendMessageQueuedWhenNotReady(t *testing.T) {
	router := newTestRouter(t, &stubService{queued: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message/send-message",
		strings.NewReader(`{"clientId":"acme","number":"9876543210","message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["queued"])
	assert.Equal(t, "Client is not ready yet. Message queued.", body["message"])
}

func TestSendMessageFailure(t *testing.T) {
	router := newTestRouter(t, &stubService{sendErr: errors.New("engine down")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message/send-message",
		strings.NewReader(`{"clientId":"acme","number":"9876543210","message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Failed to send message", body["error"])
	assert.Equal(t, "engine down", body["details"])
}

func TestSendBulkRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message/send-bulk-message",
		strings.NewReader(`{"clientId":"acme","recipients":[]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/message/send-bulk-message",
		strings.NewReader(`{"clientId":"acme","recipients":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret-Key", testSecret)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token not verified, please login to access the resource", decode(t, w)["message"])
}

func TestSendBulkResponseShape(t *testing.T) {
	svc := &stubService{
		bulkResult: &dispatch.BulkResult{
			Total:        7,
			SuccessCount: 6,
			Failed:       []dispatch.Failure{{Number: "12345", Reason: "invalid"}},
			Estimated:    time.Second,
			Elapsed:      3 * time.Second,
		},
	}
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/message/send-bulk-message",
		`{"clientId":"acme","recipients":[{"MobileNo":"9876543210","Message":"hi"}]}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 7, body["total"])
	assert.EqualValues(t, 6, body["successCount"])
	assert.EqualValues(t, 1, body["failedCount"])

	failed, ok := body["failedNumbers"].([]interface{})
	require.True(t, ok)
	require.Len(t, failed, 1)
	entry := failed[0].(map[string]interface{})
	assert.Equal(t, "12345", entry["number"])
	assert.Equal(t, "invalid", entry["error"])

	estimated := body["estimatedTime"].(map[string]interface{})
	assert.EqualValues(t, 1, estimated["seconds"])
	assert.Equal(t, "0.02", estimated["minutes"])

	actual := body["actualTime"].(map[string]interface{})
	assert.EqualValues(t, 3, actual["seconds"])
	assert.Equal(t, "0.05", actual["minutes"])
}

func TestSendBulkEmptyRecipients(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/message/send-bulk-message",
		`{"clientId":"acme","recipients":[]}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing parameters", decode(t, w)["error"])
}

func TestClientStatus(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/client-status?clientId=acme", ""))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["ready"])
	assert.Nil(t, body["clientInfo"])

	svc.status = session.Status{Ready: true, State: session.StateReady}
	svc.status.Info.PushName = "Tester"
	svc.status.Info.User = "919876543210"
	svc.status.Info.Platform = "android"

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/client-status?clientId=acme", ""))
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["ready"])
	info := body["clientInfo"].(map[string]interface{})
	assert.Equal(t, "Tester", info["name"])
	assert.Equal(t, "919876543210", info["number"])
	assert.Equal(t, "android", info["platform"])
}

func TestClientStatusMissingParameter(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/client-status", ""))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/disconnect?clientId=acme", ""))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Client logged out successfully", body["message"])
	assert.Equal(t, "acme", svc.loggedOut)
}

func TestLogoutUnknownTenant(t *testing.T) {
	router := newTestRouter(t, &stubService{logoutErr: session.ErrNotFound})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/disconnect?clientId=ghost", ""))

	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Client session not found", body["error"])
}

func TestLogoutMissingParameter(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/message/disconnect", ""))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
