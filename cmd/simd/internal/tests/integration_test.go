package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gorilla/websocket" // Using Gorilla for the test CLIENT
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/admin"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/audit"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/catalog"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/hub"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/mirror"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/protocol"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/sim"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/stream"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/testutils"
	"github.com/dnckss/cryptox-sub000/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testStack struct {
	server *httptest.Server
	engine *sim.Engine
	cat    *catalog.Catalog
	mirror *mirror.Mirror
	redis  *miniredis.Miniredis
	writer *testutils.MockKafkaWriter
}

func startStack(t *testing.T) *testStack {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cat := catalog.Generate(3)
	engine := sim.NewEngine(cat, sim.Config{
		PriceFloor: 0.001,
		MinDelay:   1 * time.Second,
		MaxDelay:   2 * time.Second,
	}, sim.RealClock{}, zap.NewNop())

	wsHub := hub.NewHub(engine, 50*time.Millisecond, zap.NewNop())

	mockWriter := &testutils.MockKafkaWriter{}
	trail := audit.NewTrail(mockWriter, zap.NewNop())

	handler := admin.NewHandler(engine, cat, trail, sim.RealClock{}, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		stream.NewViewerConn(conn, wsHub, 256, zap.NewNop()).Start()
	})
	mux.Handle("/", handler.InitRoutes())

	server := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go wsHub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &testStack{
		server: server,
		engine: engine,
		cat:    cat,
		mirror: mirror.NewMirror(engine, rdb, time.Second, time.Hour, zap.NewNop()),
		redis:  mr,
		writer: mockWriter,
	}
}

func connectWS(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	return wsConn
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Invalid frame %q: %v", raw, err)
	}
	return msg
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestEndToEnd_InitialSnapshot(t *testing.T) {
	stack := startStack(t)

	wsConn := connectWS(t, stack.server.URL)
	defer wsConn.Close()

	msg := readMessage(t, wsConn, 2*time.Second)
	if msg.Type != protocol.TypeInitial {
		t.Fatalf("first frame must be initial, got %q", msg.Type)
	}
	if len(msg.Data) != stack.cat.Len() {
		t.Fatalf("initial snapshot must cover all %d coins, got %d", stack.cat.Len(), len(msg.Data))
	}
}

func TestEndToEnd_DriftBroadcast(t *testing.T) {
	stack := startStack(t)

	wsConn := connectWS(t, stack.server.URL)
	defer wsConn.Close()

	readMessage(t, wsConn, 2*time.Second) // initial

	// With 1-2s drift delays an update must arrive shortly
	msg := readMessage(t, wsConn, 5*time.Second)
	if msg.Type != protocol.TypeUpdate {
		t.Fatalf("expected an update frame, got %q", msg.Type)
	}
	if len(msg.Data) == 0 {
		t.Fatal("update frames must never be empty")
	}
}

func TestEndToEnd_OverrideFlow(t *testing.T) {
	stack := startStack(t)

	wsConn := connectWS(t, stack.server.URL)
	defer wsConn.Close()
	readMessage(t, wsConn, 2*time.Second) // initial

	symbol := stack.cat.All()[0].Symbol

	resp := postJSON(t, stack.server.URL+"/admin/coins/"+symbol+"/price", map[string]interface{}{
		"priceChangePercent": 50,
		"delaySeconds":       0,
		"currentPrice":       10,
		"newPrice":           15,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override: expected 200, got %d", resp.StatusCode)
	}

	// The next update frames must carry the overridden price
	deadline := time.Now().Add(3 * time.Second)
	found := false
	for !found && time.Now().Before(deadline) {
		msg := readMessage(t, wsConn, 2*time.Second)
		if msg.Type != protocol.TypeUpdate {
			continue
		}
		for _, q := range msg.Data {
			if q.Symbol == symbol && q.Price == 15 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("override price 15 never reached the viewer")
	}

	// Audit trail captured the override
	stack.writer.Mu.Lock()
	audited := len(stack.writer.Messages)
	stack.writer.Mu.Unlock()
	if audited == 0 {
		t.Error("expected an audit message for the override")
	}

	// Storage-side mirror picks the change up on its next cycle
	stack.mirror.Sync(context.Background())
	raw, err := stack.redis.Get("price:" + symbol)
	if err != nil {
		t.Fatalf("mirrored key missing: %v", err)
	}
	var update models.PriceUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		t.Fatal(err)
	}
	if update.Symbol != symbol {
		t.Errorf("mirrored symbol mismatch: %s", update.Symbol)
	}
}

func TestEndToEnd_PauseRoundTrip(t *testing.T) {
	stack := startStack(t)
	symbol := stack.cat.All()[1].Symbol
	base := stack.server.URL + "/admin/coins/" + symbol

	resp := postJSON(t, base+"/pause", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", resp.StatusCode)
	}

	var status struct {
		Symbol string `json:"symbol"`
		Paused bool   `json:"paused"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Paused || status.Symbol != symbol {
		t.Errorf("unexpected pause response: %+v", status)
	}

	statusResp, err := http.Get(base + "/pause")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Paused {
		t.Error("status should report paused")
	}

	resumeResp := postJSON(t, base+"/resume", nil)
	defer resumeResp.Body.Close()
	if err := json.NewDecoder(resumeResp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Paused {
		t.Error("resume should report paused=false")
	}
}

func TestEndToEnd_SettlementRead(t *testing.T) {
	stack := startStack(t)
	inst := stack.cat.All()[2]

	for _, key := range []string{inst.Symbol, inst.ID} {
		resp, err := http.Get(stack.server.URL + "/api/price/" + key)
		if err != nil {
			t.Fatal(err)
		}
		var body struct {
			CoinID string  `json:"coinId"`
			Price  float64 `json:"price"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("key %q: expected 200, got %d", key, resp.StatusCode)
		}
		if body.CoinID != inst.ID || body.Price <= 0 {
			t.Errorf("key %q: unexpected body %+v", key, body)
		}
	}

	resp, err := http.Get(stack.server.URL + "/api/price/UNKNOWN")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown key: expected 404, got %d", resp.StatusCode)
	}
}
