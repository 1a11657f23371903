package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipad-status-backend/config"
	"ipad-status-backend/internal/api"
	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/db"
	"ipad-status-backend/internal/model"
	"ipad-status-backend/internal/scraper"
	"ipad-status-backend/internal/store"
)

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *recordingDispatcher) Start(ctx context.Context) {}

func (d *recordingDispatcher) Dispatch(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, deviceID)
}

func catalogPage(rows ...[3]string) string {
	var b strings.Builder
	b.WriteString("<html><body><table class=\"bibItems\">\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td><!-- field 1 -->&nbsp;%s\n</td><td><a href=\"/search/browse\">%s</a></td><td><!-- field %% -->&nbsp;%s</td></tr>\n", r[0], r[1], r[2])
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// TestHoldingLifecycle follows a device from checked out to back on the shelf
// through the catalog, the poller, the database and the API.
func TestHoldingLifecycle(t *testing.T) {
	// --- Test Setup ---
	gin.SetMode(gin.TestMode)

	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:holding_lifecycle?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	appStore := store.NewGormStore(gormDB)

	pages := []string{
		catalogPage(
			[3]string{"iLibrary Space2", "IPAD0083", "到期 17-01-05"},
			[3]string{"iLibrary Space2", "IPAD0084", "在架上"},
		),
		catalogPage(
			[3]string{"iLibrary Space2", "IPAD0083", "在架上"},
			[3]string{"iLibrary Space2", "IPAD0084", "修补中"},
		),
	}
	var (
		mu       sync.Mutex
		requests int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n := requests
		requests++
		mu.Unlock()

		assert.Equal(t, "bipad", r.URL.RawQuery)
		if n >= len(pages) {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, pages[n])
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Catalog.URLTemplate = server.URL + "/holdings?b{id}"
	cfg.Catalog.DeviceIDs = []string{"ipad"}
	cfg.Catalog.Timezone = "UTC"
	cfg.Server.RateLimitBurst = 100

	aggregator := catalog.NewAggregator(
		catalog.NewHTTPFetcher(catalog.FetcherOptions{URLTemplate: cfg.Catalog.URLTemplate}),
		catalog.NewParser(),
		cfg.Catalog.Concurrency,
	)
	dispatcher := &recordingDispatcher{}
	svc := scraper.NewService(cfg, appStore, aggregator)
	svc.SetDispatcher(dispatcher)
	ctx := context.Background()

	// --- Cycle 1: IPAD0083 is on loan ---
	svc.ScrapeOnce(ctx)

	var open []model.HoldingOpen
	require.NoError(t, gormDB.Find(&open).Error)
	require.Len(t, open, 1, "a device first seen on the shelf has no open row")
	assert.Equal(t, "IPAD0083", open[0].DeviceID)
	assert.Equal(t, "到期", open[0].State)
	assert.Equal(t, "17-01-05", open[0].DueDate)

	var devices []model.Device
	require.NoError(t, gormDB.Order("id").Find(&devices).Error)
	require.Len(t, devices, 2)
	assert.Equal(t, "IPAD", devices[0].Type)

	// --- Cycle 2: IPAD0083 returns, IPAD0084 goes to repair ---
	svc.ScrapeOnce(ctx)

	open = nil
	require.NoError(t, gormDB.Find(&open).Error)
	require.Len(t, open, 1)
	assert.Equal(t, "IPAD0084", open[0].DeviceID)
	assert.Equal(t, "修补中", open[0].State)

	var history []model.HoldingHistory
	require.NoError(t, gormDB.Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, "IPAD0083", history[0].DeviceID)
	assert.Equal(t, "到期 17-01-05", history[0].RawState)
	assert.False(t, history[0].PeriodEnd.Before(history[0].PeriodStart))

	assert.Equal(t, []string{"IPAD0083"}, dispatcher.dispatched)

	// --- Cycle 3: the catalog is down; nothing is archived ---
	svc.ScrapeOnce(ctx)

	open = nil
	require.NoError(t, gormDB.Find(&open).Error)
	assert.Len(t, open, 1, "a failed read must not archive holdings")
	assert.Len(t, dispatcher.dispatched, 1)

	// --- API view of the same database ---
	router := api.NewRouter(cfg, aggregator, appStore, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/polls", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var polls []model.PollLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &polls))
	require.Len(t, polls, 3)
	assert.Equal(t, "danger", polls[0].Level)
	assert.Equal(t, "data read failure", polls[0].Message)
	assert.Equal(t, "ipad", polls[0].Failed)
	assert.Equal(t, "success", polls[2].Level)
	assert.Equal(t, 2, polls[2].Records)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/devices/IPAD0083/history", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var deviceHistory []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deviceHistory))
	require.Len(t, deviceHistory, 1)
	assert.Equal(t, "到期", deviceHistory[0]["state"])
	assert.Equal(t, "17-01-05", deviceHistory[0]["date"])
}
