package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/bridge"
	"github.com/gonglijing/biodataBridge/internal/database"
	"github.com/gonglijing/biodataBridge/internal/mapping"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

type fakeBridge struct {
	connected bool
	stats     bridge.Stats
}

func (f *fakeBridge) IsConnected() bool   { return f.connected }
func (f *fakeBridge) Stats() bridge.Stats { return f.stats }

type testEnv struct {
	h      *Handler
	router *mux.Router
	clock  *testClock
	auth   *auth.JWTManager
	bridge *fakeBridge
	node   *nodeconfig.Holder
}

const testAdminPassword = "correct-horse"

func testNodeRecord() *nodeconfig.Record {
	rec := nodeconfig.Defaults()
	rec.WiFiSSID = "molino-lab"
	rec.WiFiPassword = "wifi-pass"
	rec.MQTTBroker = "broker.example.org"
	rec.MQTTUsername = "node"
	rec.MQTTPassword = "mqtt-pass"
	rec.SensorID = "biodata_1"
	return &rec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	original := database.DB
	require.NoError(t, database.Init(database.Options{Path: filepath.Join(t.TempDir(), "biodata.db")}))
	t.Cleanup(func() {
		_ = database.Close()
		database.DB = original
	})

	clk := &testClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	svc := mapping.NewService(database.NewAssociationStore(database.DB), mapping.Options{
		CacheTTL: time.Minute,
		Metrics:  metrics.New(),
		Now:      clk.now,
	})

	hash, err := auth.Hash(testAdminPassword)
	require.NoError(t, err)
	jwtManager := auth.NewJWTManager(auth.Options{
		Secret:        []byte("handlers-test-secret-key"),
		AdminUser:     "admin",
		AdminPassHash: hash,
	})

	fb := &fakeBridge{connected: true, stats: bridge.Stats{Running: true, Connected: true, Broker: "tcp://broker.example.org:1883", Received: 3}}
	holder := nodeconfig.NewHolder("configs/secrets.yaml", testNodeRecord())

	h, err := NewHandler(Options{
		Mapping: svc,
		Node:    holder,
		Bridge:  fb,
		Auth:    jwtManager,
		DB:      database.DB,
		Limiter: NewBruteForceLimiter(3, time.Minute),
		Now:     clk.now,
	})
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Handle("/device-plant/associate", jwtManager.RequireAuth(http.HandlerFunc(h.CreateAssociation))).Methods(http.MethodPost)
	r.HandleFunc("/device-plant/active/{device_id}", h.GetActiveAssociation).Methods(http.MethodGet)
	r.HandleFunc("/device-plant/associations/{device_id}", h.ListAssociations).Methods(http.MethodGet)
	r.Handle("/device-plant/close/{device_id}", jwtManager.RequireAuth(http.HandlerFunc(h.CloseAssociation))).Methods(http.MethodPost)
	r.HandleFunc("/api/plants/map", h.GetPlantsMap).Methods(http.MethodGet)
	r.HandleFunc("/api/node", h.GetNode).Methods(http.MethodGet)
	r.HandleFunc("/api/bridge/stats", h.GetBridgeStats).Methods(http.MethodGet)
	r.HandleFunc("/api/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Readiness).Methods(http.MethodGet)

	return &testEnv{h: h, router: r, clock: clk, auth: jwtManager, bridge: fb, node: holder}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, _, err := e.auth.GenerateToken("admin", auth.RoleAdmin)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
