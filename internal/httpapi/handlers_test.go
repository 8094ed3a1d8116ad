package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/endpointpool"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, h Handlers, clientID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "user-1", clientID, "owner"))
		c.Next()
	})
	r.POST("/campaigns", h.CreateCampaign)
	r.POST("/campaigns/:campaign_id/pause", h.PauseCampaign)
	r.POST("/campaigns/:campaign_id/cancel", h.CancelCampaign)
	r.GET("/campaigns/:campaign_id/progress", h.CampaignProgress)
	r.POST("/pool/checkout", h.PoolCheckout)
	r.POST("/pool/release", h.PoolRelease)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCampaign(t *testing.T) {
	store := campaign.NewMemoryStore()
	h := Handlers{Control: campaign.NewControl(store, nil, nil)}
	r := newTestRouter(t, h, "cl-1")

	w := do(r, http.MethodPost, "/campaigns", `{"list_id":"list-1","total_contacts":10}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var camp campaign.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &camp))
	require.Equal(t, "cl-1", camp.ClientID)
	require.Equal(t, campaign.StatusPending, camp.Status)

	// Validation failures are 400s.
	w = do(r, http.MethodPost, "/campaigns", `{"total_contacts":10}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseCampaign_StatusMapping(t *testing.T) {
	store := campaign.NewMemoryStore()
	h := Handlers{Control: campaign.NewControl(store, nil, nil)}
	r := newTestRouter(t, h, "cl-1")

	w := do(r, http.MethodPost, "/campaigns", `{"list_id":"list-1","total_contacts":10}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var camp campaign.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &camp))

	// Pending campaigns cannot be paused.
	w = do(r, http.MethodPost, "/campaigns/"+camp.ID+"/pause", "")
	require.Equal(t, http.StatusConflict, w.Code)

	ok, err := store.TryTransition(context.Background(), camp.ID, []campaign.Status{campaign.StatusPending}, campaign.StatusRunning, campaign.TransitionOpts{WorkerID: "w1"})
	require.NoError(t, err)
	require.True(t, ok)

	w = do(r, http.MethodPost, "/campaigns/"+camp.ID+"/pause", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Unknown ids and foreign tenants read as 404.
	w = do(r, http.MethodPost, "/campaigns/nope/pause", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	other := newTestRouter(t, h, "cl-2")
	w = do(other, http.MethodPost, "/campaigns/"+camp.ID+"/cancel", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCampaignProgress(t *testing.T) {
	store := campaign.NewMemoryStore()
	h := Handlers{Control: campaign.NewControl(store, nil, nil)}
	r := newTestRouter(t, h, "cl-1")

	w := do(r, http.MethodPost, "/campaigns", `{"list_id":"list-1","total_contacts":4}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var camp campaign.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &camp))

	w = do(r, http.MethodGet, "/campaigns/"+camp.ID+"/progress", "")
	require.Equal(t, http.StatusOK, w.Code)

	var p campaign.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, camp.ID, p.CampaignID)
	require.Equal(t, 4, p.TotalContacts)
}

func TestPoolEndpoints(t *testing.T) {
	pool := endpointpool.NewAllocator(endpointpool.NewMemoryRepository("ep-1"), time.Hour, nil)
	h := Handlers{Pool: pool}
	r := newTestRouter(t, h, "cl-1")

	w := do(r, http.MethodPost, "/pool/checkout", `{"session_id":"sess-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/pool/checkout", `{"session_id":"sess-2"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/pool/release", `{"session_id":"sess-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/pool/release", `{"session_id":"sess-1"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/pool/checkout", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
