package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/voicedrop-backend/internal/controller"
	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

// --- Mocks ---

type MockDispatcher struct {
	got []service.DispatchCommand
	err error
}

func (m *MockDispatcher) DispatchCampaign(ctx context.Context, cmd service.DispatchCommand) (*service.DispatchReport, error) {
	m.got = append(m.got, cmd)
	if m.err != nil {
		return nil, m.err
	}
	return &service.DispatchReport{
		Success:      true,
		CampaignID:   cmd.CampaignID,
		CampaignName: "Spring Promo",
		ExecutionID:  "exec-1",
		Mode:         model.ModePersonalized,
		TotalScripts: 2,
		SuccessCount: 1,
		FailureCount: 1,
		Results: []service.RecipientResult{
			{ScriptID: "s1", ContactID: "k1", Phone: "+17603977801", Status: model.AttemptSuccess, DropID: "d-1"},
			{ScriptID: "s2", ContactID: "k2", Phone: "+1555", Status: model.AttemptFailed, Error: "invalid_phone: phone \"555\" is not dialable"},
		},
	}, nil
}

type MockPublisher struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
	err    error
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.bodies = append(m.bodies, body)
	return nil
}

func newRouter(t *testing.T, c *controller.CampaignController) http.Handler {
	c.Log = logger.NewTestLogger(t)
	r := chi.NewRouter()
	c.Routes(r)
	return r
}

func post(h http.Handler, path, owner, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if owner != "" {
		req.Header.Set(controller.OwnerHeader, owner)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

// --- Tests ---

func TestDispatchCampaign_ReturnsReport(t *testing.T) {
	d := &MockDispatcher{}
	h := newRouter(t, &controller.CampaignController{Dispatcher: d})

	rr := post(h, "/campaigns/c1/dispatch", "u1", `{"sendNow": true}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "exec-1", body["executionId"])
	assert.Equal(t, float64(1), body["failureCount"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "d-1", results[0].(map[string]interface{})["dropId"])
	assert.Contains(t, results[1].(map[string]interface{})["error"], "invalid_phone")

	require.Len(t, d.got, 1)
	assert.Equal(t, service.DispatchCommand{CampaignID: "c1", OwnerID: "u1", SendNow: true}, d.got[0])
}

func TestDispatchCampaign_EmptyBodyDefaultsToSendNow(t *testing.T) {
	d := &MockDispatcher{}
	h := newRouter(t, &controller.CampaignController{Dispatcher: d})

	rr := post(h, "/campaigns/c1/dispatch", "u1", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, d.got, 1)
	assert.True(t, d.got[0].SendNow)
}

func TestDispatchCampaign_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		body    string
		err     error
		status  int
		message string
	}{
		{"missing owner", "", `{}`, nil, http.StatusUnauthorized, "missing X-User-ID header"},
		{"invalid body", "u1", `{"sendNow":`, nil, http.StatusBadRequest, "invalid body"},
		{"missing credentials", "u1", `{}`, appErrors.NewMissingCredentials("secret"), http.StatusInternalServerError, "voicemail provider credentials missing: [secret]"},
		{"missing forwarding", "u1", `{}`, appErrors.NewMissingForwardingNumber(), http.StatusBadRequest, "forwarding phone number is not configured for this account"},
		{"not found", "u1", `{}`, appErrors.NewCampaignNotFound("c1"), http.StatusNotFound, "campaign with ID c1 not found"},
		{"no work", "u1", `{}`, appErrors.NewNoWork("c1"), http.StatusBadRequest, "campaign c1 has no scripts with completed audio waiting to be sent"},
		{"already dispatching", "u1", `{}`, appErrors.NewAlreadyDispatching("c1"), http.StatusConflict, "campaign c1 is already being dispatched"},
		{"storage failure hidden", "u1", `{}`, errors.New("pq: connection refused"), http.StatusInternalServerError, "dispatch failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(t, &controller.CampaignController{Dispatcher: &MockDispatcher{err: tt.err}})

			rr := post(h, "/campaigns/c1/dispatch", tt.owner, tt.body)

			assert.Equal(t, tt.status, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestDispatchCampaign_Async(t *testing.T) {
	d := &MockDispatcher{}
	pub := &MockPublisher{}
	h := newRouter(t, &controller.CampaignController{Dispatcher: d, Jobs: pub, JobsTopic: "campaign_dispatches"})

	rr := post(h, "/campaigns/c1/dispatch?async=true", "u1", `{"sendNow": false, "scheduledDate": "2026-11-01"}`)

	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, d.got, "async requests do not dispatch inline")
	require.Len(t, pub.bodies, 1)
	assert.Equal(t, "campaign_dispatches", pub.topics[0])

	var job service.DispatchJob
	require.NoError(t, json.Unmarshal(pub.bodies[0], &job))
	assert.Equal(t, "c1", job.CampaignID)
	assert.Equal(t, "u1", job.OwnerID)
	require.NotNil(t, job.SendNow)
	assert.False(t, *job.SendNow)
	assert.Equal(t, "2026-11-01", job.ScheduledDate)
}

func TestDispatchCampaign_AsyncUnavailable(t *testing.T) {
	t.Run("no publisher", func(t *testing.T) {
		h := newRouter(t, &controller.CampaignController{Dispatcher: &MockDispatcher{}})
		rr := post(h, "/campaigns/c1/dispatch?async=true", "u1", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("publish fails", func(t *testing.T) {
		pub := &MockPublisher{err: errors.New("channel closed")}
		h := newRouter(t, &controller.CampaignController{Dispatcher: &MockDispatcher{}, Jobs: pub, JobsTopic: "q"})
		rr := post(h, "/campaigns/c1/dispatch?async=true", "u1", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "failed to queue dispatch", decode(t, rr)["error"])
	})
}
