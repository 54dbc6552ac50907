package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

type fakeReader struct {
	details  *service.CampaignDetails
	records  []*model.ExecutionRecord
	err      error
	gotOwner string
	gotLimit int
}

func (f *fakeReader) GetCampaignDetailsWithStats(ctx context.Context, campaignID, ownerID string) (*service.CampaignDetails, error) {
	f.gotOwner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return f.details, nil
}

func (f *fakeReader) ListExecutions(ctx context.Context, campaignID, ownerID string, limit int) ([]*model.ExecutionRecord, error) {
	f.gotOwner = ownerID
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func serve(t *testing.T, f *fakeReader, path, owner string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewCampaignHandler(f, logger.NewTestLogger(t)).Routes(r)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGetCampaignHandlerWithStats(t *testing.T) {
	f := &fakeReader{details: &service.CampaignDetails{
		ID:        "c1",
		Name:      "Spring Promo",
		Status:    model.CampaignActive,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Stats:     model.CampaignStats{TotalScripts: 4, SentScripts: 3, FailedScripts: 1},
	}}

	rr := serve(t, f, "/campaigns/c1", "u1")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", f.gotOwner)

	var got service.CampaignDetails
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "Spring Promo", got.Name)
	assert.Equal(t, 3, got.Stats.SentScripts)
}

func TestGetCampaignHandlerWithStats_Errors(t *testing.T) {
	tests := []struct {
		name   string
		owner  string
		err    error
		status int
	}{
		{"missing owner", "", nil, http.StatusUnauthorized},
		{"not found", "u1", appErrors.NewCampaignNotFound("c1"), http.StatusNotFound},
		{"storage error", "u1", errors.New("pq: timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, &fakeReader{err: tt.err}, "/campaigns/c1", tt.owner)
			assert.Equal(t, tt.status, rr.Code)
			assert.NotContains(t, rr.Body.String(), "pq:")
		})
	}
}

func TestListExecutionsHandler(t *testing.T) {
	f := &fakeReader{records: []*model.ExecutionRecord{
		{ID: "e2", CampaignID: "c1", Strategy: "ringless_voicemail_broadcast"},
		{ID: "e1", CampaignID: "c1", Strategy: "ringless_voicemail_personalized"},
	}}

	rr := serve(t, f, "/campaigns/c1/executions?limit=5", "u1")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, f.gotLimit)

	var body struct {
		Data []model.ExecutionRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "e2", body.Data[0].ID)
}

func TestListExecutionsHandler_Limit(t *testing.T) {
	f := &fakeReader{}

	rr := serve(t, f, "/campaigns/c1/executions", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, f.gotLimit, "service applies the default")

	rr = serve(t, f, "/campaigns/c1/executions?limit=ten", "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
