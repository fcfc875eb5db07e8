package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/gate"
	"github.com/agentdeck/agentdeck/internal/hub"
)

type funcRunner struct {
	fn func(ctx context.Context, task agent.Task) (*agent.Result, error)
}

func (r *funcRunner) Run(ctx context.Context, task agent.Task) (*agent.Result, error) {
	return r.fn(ctx, task)
}

func (r *funcRunner) Name() string {
	return "test"
}

func newTestCoordinator(runner agent.Runner, opts Options) (*Coordinator, *hub.Hub, *gate.Gate) {
	h := hub.New(hub.Options{BufferSize: 64})
	g := gate.New()
	return New(h, g, runner, opts), h, g
}

func readEvents(t *testing.T, obs *hub.Observer, n int) []*hub.Event {
	t.Helper()
	events := make([]*hub.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case frame, ok := <-obs.Frames():
			require.True(t, ok, "frame channel closed after %d events", i)
			var ev hub.Event
			require.NoError(t, json.Unmarshal(frame, &ev))
			events = append(events, &ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return events
}

func assertTranscript(t *testing.T, want []string, events []*hub.Event) {
	t.Helper()
	got := make([]string, 0, len(events))
	for _, ev := range events {
		got = append(got, ev.Content)
	}
	if len(want) == len(got) {
		match := true
		for i := range want {
			if !strings.Contains(got[i], want[i]) {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(want, "\n")),
		B:        difflib.SplitLines(strings.Join(got, "\n")),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	t.Fatalf("transcript mismatch:\n%s", diff)
}

func TestCoordinator_SuccessTranscript(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		return &agent.Result{Final: "le vol est réservé"}, nil
	}}
	c, h, g := newTestCoordinator(runner, Options{})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "réserver un vol"})
	assert.Equal(t, OutcomeCompleted, outcome)

	events := readEvents(t, obs, 6)
	assertTranscript(t, []string{
		"🔄 Traitement en cours...",
		"🧠 Analyse de la demande...",
		"🎯 Planification des actions...",
		"⚡ Exécution en cours...",
		"✨ Finalisation...",
		"le vol est réservé",
	}, events)

	final := events[5]
	assert.Equal(t, hub.KindAgent, final.Type)
	assert.Contains(t, final.Content, "Tâche terminée avec succès")
	assert.Equal(t, "Agent", final.Sender)

	held, _ := g.Status()
	assert.False(t, held, "gate must be released after completion")
}

func TestCoordinator_HardErrorTruncated(t *testing.T) {
	longErr := strings.Repeat("é", 400)
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		return nil, errors.New(longErr)
	}}
	c, h, g := newTestCoordinator(runner, Options{})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "tâche vouée à l'échec"})
	assert.Equal(t, OutcomeFailed, outcome)

	events := readEvents(t, obs, 6)
	final := events[5]
	assert.Equal(t, hub.KindError, final.Type)
	assert.Equal(t, hub.SenderSystem, final.Sender)
	assert.Contains(t, final.Content, "💥 Erreur lors de l'exécution:")
	assert.Contains(t, final.Content, strings.Repeat("é", 300)+"...")
	assert.NotContains(t, final.Content, strings.Repeat("é", 301))

	held, _ := g.Status()
	assert.False(t, held, "gate must be released after a hard failure")
}

func TestCoordinator_CredentialErrorClassified(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		return &agent.Result{Steps: []agent.StepOutcome{
			{Err: "Incorrect API key provided: sk-proj-****"},
		}}, nil
	}}
	c, h, g := newTestCoordinator(runner, Options{})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "analyser une page"})
	assert.Equal(t, OutcomePartialFailure, outcome)

	events := readEvents(t, obs, 6)
	final := events[5]
	assert.Equal(t, hub.KindError, final.Type)
	assert.Equal(t, hub.SenderSystem, final.Sender)
	assert.Contains(t, final.Content, "ERREUR CLEF API OPENAI")
	assert.Contains(t, final.Content, "platform.openai.com")

	held, _ := g.Status()
	assert.False(t, held)
}

func TestCoordinator_StepErrorsSummarized(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		return &agent.Result{Steps: []agent.StepOutcome{
			{Err: "erreur un"},
			{Err: "erreur deux"},
			{Err: "erreur trois"},
			{Err: "erreur quatre"},
			{Err: "erreur cinq"},
		}}, nil
	}}
	c, h, _ := newTestCoordinator(runner, Options{})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "remplir un formulaire"})
	assert.Equal(t, OutcomePartialFailure, outcome)

	events := readEvents(t, obs, 6)
	final := events[5]
	assert.Equal(t, hub.KindError, final.Type)
	assert.Equal(t, "Agent", final.Sender)
	assert.Contains(t, final.Content, "💥 **ERREUR AGENT**")
	assert.Contains(t, final.Content, "erreur un")
	assert.Contains(t, final.Content, "erreur trois")
	assert.NotContains(t, final.Content, "erreur quatre")
}

func TestCoordinator_PanicReleasesGate(t *testing.T) {
	calls := 0
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		calls++
		if calls == 1 {
			panic("explosion du moteur")
		}
		return &agent.Result{Final: "rétabli"}, nil
	}}
	c, h, g := newTestCoordinator(runner, Options{})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "première"})
	assert.Equal(t, OutcomeFailed, outcome)

	events := readEvents(t, obs, 6)
	assert.Equal(t, hub.KindError, events[5].Type)
	assert.Contains(t, events[5].Content, "explosion du moteur")

	held, _ := g.Status()
	require.False(t, held, "gate must be released after a panic")

	outcome = c.Submit(context.Background(), "", agent.Task{Text: "seconde"})
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestCoordinator_BusyRejection(t *testing.T) {
	release := make(chan struct{})
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		<-release
		return &agent.Result{Final: "enfin terminé"}, nil
	}}
	c, h, g := newTestCoordinator(runner, Options{})
	origin := h.Register()
	other := h.Register()

	first := make(chan Outcome, 1)
	go func() {
		first <- c.Submit(context.Background(), "", agent.Task{Text: "longue tâche"})
	}()
	require.Eventually(t, func() bool {
		held, _ := g.Status()
		return held
	}, 2*time.Second, time.Millisecond)

	outcome := c.Submit(context.Background(), origin.ID(), agent.Task{Text: "tâche rejetée"})
	assert.Equal(t, OutcomeRejected, outcome)

	close(release)
	select {
	case outcome := <-first:
		assert.Equal(t, OutcomeCompleted, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("first task did not finish")
	}

	// origin: start + 4 progress + personal busy notice + terminal.
	originEvents := readEvents(t, origin, 7)
	// other: the same transcript without the busy notice.
	otherEvents := readEvents(t, other, 6)

	var busy *hub.Event
	for _, ev := range originEvents {
		if ev.Content == "⏳ Agent occupé, veuillez patienter..." {
			busy = ev
		}
	}
	require.NotNil(t, busy, "origin observer must receive the busy notice")
	assert.Equal(t, hub.KindSystem, busy.Type)
	assert.Equal(t, hub.SenderSystem, busy.Sender)

	for _, ev := range otherEvents {
		assert.NotEqual(t, "⏳ Agent occupé, veuillez patienter...", ev.Content,
			"busy notice must stay personal to the origin")
	}

	held, task := g.Status()
	assert.False(t, held)
	assert.Empty(t, task)
}

func TestCoordinator_ConcurrentSubmitsAdmitOne(t *testing.T) {
	var mu sync.Mutex
	started := 0
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		mu.Lock()
		started++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return &agent.Result{Final: "ok"}, nil
	}}
	c, _, _ := newTestCoordinator(runner, Options{})

	outcomes := make(chan Outcome, 8)
	var wg conc.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Go(func() {
			outcomes <- c.Submit(context.Background(), "", agent.Task{Text: fmt.Sprintf("tâche %d", i)})
		})
	}
	wg.Wait()
	close(outcomes)

	admitted := 0
	rejected := 0
	for outcome := range outcomes {
		switch outcome {
		case OutcomeCompleted:
			admitted++
		case OutcomeRejected:
			rejected++
		default:
			t.Fatalf("unexpected outcome %s", outcome)
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 7, rejected)

	mu.Lock()
	assert.Equal(t, 1, started, "only the admitted task may reach the runner")
	mu.Unlock()
}

func TestCoordinator_TimeoutBoundsRun(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, h, g := newTestCoordinator(runner, Options{Timeout: 20 * time.Millisecond})
	obs := h.Register()

	outcome := c.Submit(context.Background(), "", agent.Task{Text: "tâche sans fin"})
	assert.Equal(t, OutcomeFailed, outcome)

	events := readEvents(t, obs, 6)
	assert.Equal(t, hub.KindError, events[5].Type)
	assert.Contains(t, events[5].Content, "deadline")

	held, _ := g.Status()
	assert.False(t, held)
}

func TestCoordinator_DefaultsApplied(t *testing.T) {
	var got agent.Task
	runner := &funcRunner{fn: func(ctx context.Context, task agent.Task) (*agent.Result, error) {
		got = task
		return &agent.Result{Final: "ok"}, nil
	}}
	c, _, _ := newTestCoordinator(runner, Options{})

	c.Submit(context.Background(), "", agent.Task{Text: "sans paramètres"})
	assert.Equal(t, DefaultModel, got.Model)
	assert.InDelta(t, DefaultTemperature, got.Temperature, 0.001)

	c.Submit(context.Background(), "", agent.Task{Text: "avec modèle", Model: "gpt-4o", Temperature: 0.2})
	assert.Equal(t, "gpt-4o", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 0.001)
}
