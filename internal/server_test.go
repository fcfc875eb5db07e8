package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/coordinator"
	"github.com/agentdeck/agentdeck/internal/gate"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/pushnotification"
	"github.com/agentdeck/agentdeck/internal/pushsubscription/repositoryimpl"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/pkg/storage"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	runner, err := agent.New(agent.Config{Engine: agent.EngineSimulated})
	require.NoError(t, err)
	return newTestServerWithRunner(t, runner)
}

func newTestServerWithRunner(t *testing.T, runner agent.Runner) (*Server, *httptest.Server) {
	t.Helper()

	env := &config.Env{
		BaseEnv:  config.BaseEnv{HTTPHost: "127.0.0.1", HTTPPort: "0"},
		AgentEnv: config.AgentEnv{Engine: agent.EngineSimulated, Sender: "Agent"},
	}

	h := hub.New(hub.Options{
		Welcome: func() *hub.Event {
			return hub.NewEvent(hub.KindSystem, hub.WelcomeMessage, hub.SenderSystem)
		},
	})
	g := gate.New()
	coord := coordinator.New(h, g, runner, coordinator.Options{AgentSender: "Agent"})

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(store)
	vapid := &config.VAPIDEnv{}
	push := pushnotification.NewServer(vapid, repo, pushnotification.NewSender(vapid, repo))

	s := NewServer(env, h, g, router.New(h, coord), coord, push, runner.Name())
	ts := httptest.NewServer(s.handler(context.Background()))
	t.Cleanup(ts.Close)
	return s, ts
}

func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	var ev hub.Event
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ev))
	return ev
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func postJSON(t *testing.T, url, payload string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

type sleepRunner struct {
	d time.Duration
}

func (r *sleepRunner) Run(ctx context.Context, task agent.Task) (*agent.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.d):
	}
	return &agent.Result{Final: "tâche lente terminée"}, nil
}

func (r *sleepRunner) Name() string {
	return "test"
}

func TestServer_WelcomeIsFirstFrame(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialChat(t, ts)

	ev := readEvent(t, conn)
	assert.Equal(t, hub.KindSystem, ev.Type)
	assert.Equal(t, hub.WelcomeMessage, ev.Content)
	assert.Equal(t, hub.SenderSystem, ev.Sender)
	assert.NotEmpty(t, ev.Timestamp)
}

func TestServer_UserMessageLifecycle(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialChat(t, ts)
	readEvent(t, conn) // welcome

	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_message","content":"  Analyse les ventes  "}`))
	require.NoError(t, err)

	want := []struct {
		kind     hub.Kind
		contains string
		sender   string
	}{
		{hub.KindUser, "Analyse les ventes", hub.SenderUser},
		{hub.KindSystem, "🔄 Traitement en cours...", "Agent"},
		{hub.KindSystem, "🧠 Analyse de la demande...", "Agent"},
		{hub.KindSystem, "🎯 Planification des actions...", "Agent"},
		{hub.KindSystem, "⚡ Exécution en cours...", "Agent"},
		{hub.KindSystem, "✨ Finalisation...", "Agent"},
		{hub.KindAgent, "🎉 Tâche terminée avec succès !", "Agent"},
	}
	for i, w := range want {
		ev := readEvent(t, conn)
		assert.Equal(t, w.kind, ev.Type, "event %d", i)
		assert.Contains(t, ev.Content, w.contains, "event %d", i)
		assert.Equal(t, w.sender, ev.Sender, "event %d", i)
	}

	// The gate is free again once the transcript is complete.
	busy, _ := s.gate.Status()
	assert.False(t, busy)
}

func TestServer_SubmitterSurvivesTaskLongerThanPongWait(t *testing.T) {
	s, ts := newTestServerWithRunner(t, &sleepRunner{d: 700 * time.Millisecond})
	// Keepalive windows far shorter than the task, so the read deadline
	// lapses several times over while the engine call is in flight.
	s.pongWait = 200 * time.Millisecond
	s.pingPeriod = 100 * time.Millisecond

	conn := dialChat(t, ts)
	readEvent(t, conn) // welcome

	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_message","content":"tâche lente"}`))
	require.NoError(t, err)

	// user echo, start, 4 progress, then the terminal event.
	var last hub.Event
	for i := 0; i < 7; i++ {
		last = readEvent(t, conn)
	}
	assert.Equal(t, hub.KindAgent, last.Type)
	assert.Contains(t, last.Content, "tâche lente terminée")

	// The submitter is still connected and responsive afterwards.
	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	require.NoError(t, err)
	var pong map[string]string
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &pong))
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, 1, s.hub.Len())
}

func TestServer_PingPong(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialChat(t, ts)
	readEvent(t, conn) // welcome

	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	require.NoError(t, err)

	var pong map[string]string
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &pong))
	assert.Equal(t, "pong", pong["type"])
	_, err = time.Parse(time.RFC3339, pong["timestamp"])
	assert.NoError(t, err)
}

func TestServer_MalformedFrameDropsConnection(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialChat(t, ts)
	readEvent(t, conn) // welcome

	err := conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return s.hub.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Status(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getJSON(t, ts.URL+"/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", body["status"])
	task, ok := body["current_task"]
	require.True(t, ok, "current_task must be present while idle")
	assert.Nil(t, task)
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}$`, body["uptime"])
}

func TestServer_StatusBusy(t *testing.T) {
	s, ts := newTestServer(t)
	require.True(t, s.gate.TryAcquire("analyse des ventes"))
	defer s.gate.Release()

	code, body := getJSON(t, ts.URL+"/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "busy", body["status"])
	assert.Equal(t, "analyse des ventes", body["current_task"])
}

func TestServer_Execute(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialChat(t, ts)
	readEvent(t, conn) // welcome

	code, body := postJSON(t, ts.URL+"/api/execute", `{"task":"générer le rapport"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Tâche exécutée", body["message"])

	// Observers see the banner, the lifecycle, then the terminal event.
	banner := readEvent(t, conn)
	assert.Equal(t, hub.KindSystem, banner.Type)
	assert.Equal(t, "🎯 Démarrage de la tâche: générer le rapport", banner.Content)

	var last hub.Event
	for i := 0; i < 6; i++ {
		last = readEvent(t, conn)
	}
	assert.Equal(t, hub.KindAgent, last.Type)
	assert.Contains(t, last.Content, "🎉 Tâche terminée avec succès !")
}

func TestServer_ExecuteBusy(t *testing.T) {
	s, ts := newTestServer(t)
	require.True(t, s.gate.TryAcquire("autre tâche"))
	defer s.gate.Release()

	code, body := postJSON(t, ts.URL+"/api/execute", `{"task":"demo"}`)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "aborted", body["code"])
	assert.Equal(t, "Agent occupé", body["message"])
}

func TestServer_ExecuteEmptyTask(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := postJSON(t, ts.URL+"/api/execute", `{"task":"   "}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", body["code"])
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getJSON(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["connections"])
	assert.Equal(t, false, body["agent_busy"])
	assert.Equal(t, "simulated", body["engine"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestServer_Index(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getJSON(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "🌐 AgentDeck API", body["message"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "active", body["status"])
	assert.Contains(t, body["websocket"], "ws://")

	resp, err := http.Get(ts.URL + "/bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_APINotFound(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getJSON(t, ts.URL+"/api/bogus")
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["code"])
}

func TestServer_ShutdownBeforeListen(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "00:00:00", formatUptime(0))
	assert.Equal(t, "00:00:42", formatUptime(42*time.Second))
	assert.Equal(t, "01:02:03", formatUptime(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "27:00:00", formatUptime(27*time.Hour))
}
