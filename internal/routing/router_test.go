package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/channel"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/registry"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id string

	mu      sync.Mutex
	sent    []domain.OutboundMessage
	handler func(domain.InboundMessage)
}

func (m *mockChannel) ID() string                  { return m.id }
func (m *mockChannel) Start(context.Context) error { return nil }
func (m *mockChannel) Stop(context.Context) error  { return nil }

func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) OnMessage(handler func(domain.InboundMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *mockChannel) receive(msg domain.InboundMessage) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h(msg)
}

func (m *mockChannel) sentCopy() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

type testEnv struct {
	ch     *mockChannel
	ctrl   *dialog.Controller
	router *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	sched := dialog.NewScheduler(log)
	ctrl := dialog.NewController(sched, registry.NewMemory(), nil, dialog.Settings{
		ReplyDelay:      10 * time.Millisecond,
		Acknowledgement: "noted",
	}, log)

	ch := &mockChannel{id: "irc"}
	reg := channel.NewRegistry(log)
	reg.Register(ch)

	router := NewRouter(ctrl, reg, "arbiter", log)
	router.Wire()

	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		router.Run(ctx)
	}()

	return &testEnv{ch: ch, ctrl: ctrl, router: router}
}

// say delivers a channel line and waits for the n-th reply to be sent.
func (e *testEnv) say(t *testing.T, body string, n int) domain.OutboundMessage {
	t.Helper()
	e.ch.receive(domain.InboundMessage{
		ID:        "m",
		ChannelID: "irc",
		From:      "alice",
		ChatID:    "#agents",
		ChatType:  domain.ChatTypeGroup,
		Body:      body,
		Timestamp: time.Now(),
	})
	require.Eventually(t, func() bool { return len(e.ch.sentCopy()) >= n }, 2*time.Second, 5*time.Millisecond)
	return e.ch.sentCopy()[n-1]
}

func TestRouter_WizardOverChannel(t *testing.T) {
	env := newTestEnv(t)

	reply := env.say(t, "arbiter: /agents new", 1)
	assert.Equal(t, "#agents", reply.To)
	assert.Equal(t, "irc", reply.ChannelID)
	assert.Equal(t, "Let's create a new agent. What should we name this agent?", reply.Body)

	env.say(t, "arbiter: Helper", 2)
	reply = env.say(t, "arbiter: skip", 3)
	assert.Contains(t, reply.Body, "Which model should it use?")
	assert.Contains(t, reply.Body, "\n1. Claude Sonnet 4.5")
	assert.Contains(t, reply.Body, "\n4. GPT-4o")

	env.say(t, "arbiter: 4", 4)
	reply = env.say(t, "arbiter: skip", 5)
	assert.Equal(t, `Agent "Helper" created with model gpt-4o.`, reply.Body)

	agents, err := env.ctrl.Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "gpt-4o", agents[0].Model)
}

func TestRouter_PlainTextGetsDelayedAck(t *testing.T) {
	env := newTestEnv(t)

	reply := env.say(t, "arbiter, hello there", 1)
	assert.Equal(t, "noted", reply.Body)

	msgs := env.ctrl.Transcript().Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "hello there", msgs[0].Content)
}

func TestRouter_NumberWithoutOptionsIsText(t *testing.T) {
	env := newTestEnv(t)

	env.say(t, "arbiter: 2", 1)
	msgs := env.ctrl.Transcript().Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "2", msgs[0].Content)
}

func TestRouter_DirectMessageRepliesToSender(t *testing.T) {
	env := newTestEnv(t)

	env.ch.receive(domain.InboundMessage{
		ChannelID: "irc",
		From:      "bob",
		ChatID:    "bob",
		ChatType:  domain.ChatTypeDM,
		Body:      "/agents list",
	})
	require.Eventually(t, func() bool { return len(env.ch.sentCopy()) == 1 }, 2*time.Second, 5*time.Millisecond)

	reply := env.ch.sentCopy()[0]
	assert.Equal(t, "bob", reply.To)
	assert.Equal(t, dialog.NoAgentsText, reply.Body)
}

func TestRouter_NoRouteBeforeFirstTurn(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Submit(context.Background(), "/agents list")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, env.ch.sentCopy())
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.Message
		want string
	}{
		{"plain", domain.Message{Content: "hi"}, "hi"},
		{"options", domain.Message{Content: "Pick:", Options: []string{"a", "b"}}, "Pick:\n1. a\n2. b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.msg))
		})
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"arbiter: /agents list", "/agents list"},
		{"Arbiter, hello", "hello"},
		{"@arbiter hello", "hello"},
		{"arbiter:hello", "hello"},
		{"arbiter", ""},
		{"  arbiter:   spaced  ", "spaced"},
		{"arbiterbot: hi", "arbiterbot: hi"},
		{"ask arbiter about it", "ask arbiter about it"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMention(tt.body, "arbiter"))
		})
	}
	assert.Equal(t, "arbiter: x", stripMention("arbiter: x", ""))
}

func TestPickOption(t *testing.T) {
	options := []string{"GPT-4o", "Gemini 2.5 Pro"}
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"1", "GPT-4o", true},
		{" 2 ", "Gemini 2.5 Pro", true},
		{"0", "", false},
		{"3", "", false},
		{"two", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := PickOption(tt.text, options)
		assert.Equal(t, tt.wantOK, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, ok := PickOption("1", nil)
	assert.False(t, ok)
}
