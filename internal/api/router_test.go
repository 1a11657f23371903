package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipad-status-backend/config"
	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/db"
	"ipad-status-backend/internal/model"
	"ipad-status-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReader struct {
	result catalog.AggregateResult
}

func (f *fakeReader) GetStatus(ctx context.Context, deviceIDs []string) catalog.AggregateResult {
	return f.result
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Catalog.Timezone = "UTC"
	cfg.Server.RateLimitBurst = 100
	return cfg
}

func newTestStore(t *testing.T) store.Store {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gormDB)
}

func do(r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var pushOptions = &webpush.Options{VAPIDPublicKey: "BPub", VAPIDPrivateKey: "priv"}

var completeRead = catalog.AggregateResult{
	Records: []catalog.DeviceRecord{
		{ID: "MINI0057", Site: "MINI", State: "修补中"},
		{ID: "IPAD0084", Site: "iLibrary Space2", State: "IN TRANSIT"},
		{ID: "IPAD0083", Site: "iLibrary Space2", State: "在架上"},
	},
	Level:   catalog.LevelSuccess,
	Message: catalog.MessageSuccess,
}

func TestGetStatus(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{result: completeRead}, nil, nil)

	for _, target := range []string{"/data/", "/api/status"} {
		w := do(r, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, w.Code, target)

		var payload catalog.StatusPayload
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, completeRead.Records, payload.Data)
		assert.Equal(t, catalog.StatusMessage{Level: catalog.LevelSuccess, Content: "data read succeeded."}, payload.Msg)
	}
}

func TestGetStatus_FailureIsStill200(t *testing.T) {
	reader := &fakeReader{result: catalog.AggregateResult{
		Level:   catalog.LevelDanger,
		Message: catalog.MessageFailure,
	}}
	r := NewRouter(testConfig(), reader, nil, nil)

	w := do(r, http.MethodGet, "/data/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"msg":{"level":"danger","content":"data read failure"}}`, w.Body.String())
}

func TestGetDevices(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{result: completeRead}, nil, nil)

	w := do(r, http.MethodGet, "/api/devices?type=ipad&sort=id", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			ID            string `json:"id"`
			Type          string `json:"type"`
			State         string `json:"state"`
			FriendlyState string `json:"friendlyState"`
			ClassName     string `json:"className"`
		} `json:"data"`
		Msg catalog.StatusMessage `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "IPAD0083", body.Data[0].ID)
	assert.Equal(t, "IPAD", body.Data[0].Type)
	assert.Equal(t, "success", body.Data[0].ClassName)
	assert.Equal(t, "IPAD0084", body.Data[1].ID)
	assert.Equal(t, "IN TRANSIT", body.Data[1].State)
	assert.Equal(t, catalog.LevelSuccess, body.Msg.Level)
}

func TestGetDevices_Search(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{result: completeRead}, nil, nil)

	w := do(r, http.MethodGet, "/api/devices?q=0057", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "MINI0057", body.Data[0].ID)
}

func TestGetIndex(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{}, nil, nil)

	w := do(r, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/api/devices")
}

func TestRouter_WithoutStore(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{}, nil, nil)

	for _, target := range []string{"/api/polls", "/api/devices/IPAD0083/history", "/api/vapid_public_key"} {
		w := do(r, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitPerSec = 0.001
	cfg.Server.RateLimitBurst = 1
	r := NewRouter(cfg, &fakeReader{}, nil, nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/data/", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", nil).Code, "the page itself is not limited")
}

func TestGetDeviceHistory(t *testing.T) {
	st := newTestStore(t)
	start := time.Date(2017, 1, 3, 8, 0, 0, 0, time.UTC)
	for i, state := range []string{"到期", "修补中"} {
		rec := model.HoldingHistory{
			DeviceID:    "IPAD0083",
			ObservedAt:  start.Add(time.Duration(i+1) * time.Hour),
			State:       state,
			RawState:    state,
			PeriodStart: start.Add(time.Duration(i) * time.Hour),
			PeriodEnd:   start.Add(time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, st.DB().Create(&rec).Error)
	}
	r := NewRouter(testConfig(), &fakeReader{}, st, nil)

	w := do(r, http.MethodGet, "/api/devices/ipad0083/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history []historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "修补中", history[0].State)
	assert.Equal(t, "2017-01-03T09:00:00Z", history[0].PeriodStart)

	w = do(r, http.MethodGet, "/api/devices/IPAD0083/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPolls(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.RecordPoll(context.Background(), &model.PollLog{ObservedAt: now.Add(-time.Minute), Level: "warning", Message: "partial data read failure", Records: 1, Failed: "mini"}))
	require.NoError(t, st.RecordPoll(context.Background(), &model.PollLog{ObservedAt: now, Level: "success", Message: "data read succeeded.", Records: 3}))
	r := NewRouter(testConfig(), &fakeReader{}, st, nil)

	w := do(r, http.MethodGet, "/api/polls", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var polls []model.PollLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &polls))
	require.Len(t, polls, 2)
	assert.Equal(t, "success", polls[0].Level)
	assert.Equal(t, "mini", polls[1].Failed)
}

func TestSubscriptionLifecycle(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.DB().Create(&model.Device{ID: "IPAD0083", Site: "iLibrary Space2", Type: "IPAD"}).Error)
	require.NoError(t, st.DB().Create(&model.Device{ID: "MINI0057", Site: "MINI", Type: "MINI"}).Error)
	r := NewRouter(testConfig(), &fakeReader{}, st, pushOptions)

	w := do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint":           "https://push.example.com/abc",
		"p256dh":             "key",
		"auth":               "secret",
		"subscribed_devices": []string{"ipad0083", "UNKNOWN"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_devices":["IPAD0083"]}`, w.Body.String())

	w = do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint":           "https://push.example.com/abc",
		"p256dh":             "key2",
		"auth":               "secret2",
		"subscribed_devices": []string{"MINI0057"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_devices":["MINI0057"]}`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": "https://push.example.com/abc"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var mappings int64
	require.NoError(t, st.DB().Table("subscription_device_mapping").Count(&mappings).Error)
	assert.Zero(t, mappings)
}

func TestPutSubscription_PushDisabled(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{}, newTestStore(t), &webpush.Options{})

	w := do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": "https://push.example.com/abc",
		"p256dh":   "key",
		"auth":     "secret",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetSubscription_MissingEndpoint(t *testing.T) {
	r := NewRouter(testConfig(), &fakeReader{}, newTestStore(t), nil)

	w := do(r, http.MethodGet, "/api/subscriptions", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	st := newTestStore(t)

	r := NewRouter(testConfig(), &fakeReader{}, st, pushOptions)
	w := do(r, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPub"}`, w.Body.String())

	r = NewRouter(testConfig(), &fakeReader{}, st, &webpush.Options{})
	w = do(r, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
