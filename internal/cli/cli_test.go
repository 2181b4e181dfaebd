package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/catalog"
	"github.com/soyeahso/arbiter/internal/command"
	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/registry"
)

func startController(t *testing.T) (*dialog.Controller, *dialog.Scheduler) {
	t.Helper()
	log := logging.New(nil, "silent")
	sched := dialog.NewScheduler(log)
	ctrl := dialog.NewController(sched, registry.NewMemory(), nil, dialog.Settings{
		ReplyDelay:      5 * time.Millisecond,
		Acknowledgement: "noted",
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctrl, sched
}

func TestRunChat_WizardAndList(t *testing.T) {
	ctrl, sched := startController(t)
	in := strings.NewReader(strings.Join([]string{
		"/agents new",
		"Helper",
		"skip",
		"4",
		"skip",
		"/agents list",
		"hello",
	}, "\n") + "\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), ctrl, sched, in, &out))

	got := out.String()
	assert.Contains(t, got, "What should we name this agent?")
	assert.Contains(t, got, "description> ")
	assert.Contains(t, got, "4) GPT-4o")
	assert.Contains(t, got, `Agent "Helper" created with model gpt-4o.`)
	assert.Contains(t, got, "1. Helper (idle)")
	assert.Contains(t, got, "noted", "pending acknowledgement is drained before exit")

	msgs := ctrl.Transcript().Messages()
	assert.Equal(t, "GPT-4o", msgs[6].Content, "option number is submitted as the option text")
}

func TestRunChat_Quit(t *testing.T) {
	ctrl, sched := startController(t)
	in := strings.NewReader("/quit\n/agents list\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), ctrl, sched, in, &out))
	assert.Equal(t, 0, ctrl.Transcript().Len())
}

func TestDescribeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
		want string
	}{
		{"plain", nil, "plain chat (acknowledged after the reply delay)"},
		{"wizard", command.StartWizard{}, "start the agent wizard"},
		{"list", command.ListAgents{}, "list agents"},
		{"delete", command.DeleteAgent{Name: "Ops Bot"}, `delete agent "Ops Bot"`},
		{"help", command.Help{}, "show help"},
		{"usage", command.Usage{Message: command.DeleteUsage}, "usage error: " + command.DeleteUsage},
		{
			"create",
			command.CreateAgent{Name: "Helper", Model: "gpt-4o", Description: "helps"},
			"create agent\n  name:        Helper\n  model:       gpt-4o\n  description: helps",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeCommand(tt.cmd))
		})
	}
}

func TestPrintModels(t *testing.T) {
	var out bytes.Buffer
	printModels(&out, catalog.New([]catalog.Model{
		{Label: "Fast", ID: "fast-1"},
		{Label: "Smart", ID: "smart-2"},
	}, "smart-2"))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "fast-1")
	assert.NotContains(t, lines[0], "(default)")
	assert.Contains(t, lines[1], "smart-2 (default)")
}

func TestDialogSettings(t *testing.T) {
	s := dialogSettings(config.DialogConfig{
		ReplyDelayMs:    250,
		Acknowledgement: "ok",
		Models:          []config.ModelEntry{{Label: "Fast", ID: "fast-1"}},
		DefaultModel:    "fast-1",
	})

	assert.Equal(t, 250*time.Millisecond, s.ReplyDelay)
	assert.Equal(t, "ok", s.Acknowledgement)
	assert.Equal(t, []string{"Fast"}, s.Catalog.Labels())
	assert.Equal(t, "fast-1", s.Catalog.Resolve("Fast"))
}

func TestOpenRegistry(t *testing.T) {
	log := logging.New(nil, "silent")
	ctx := context.Background()

	for _, store := range []string{"memory", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			reg, closeFn, err := openRegistry(ctx, config.RegistryConfig{Store: store}, log)
			require.NoError(t, err)
			defer closeFn()

			_, err = reg.Create(ctx, domain.Agent{Name: "Helper", Model: "gpt-4o", Status: domain.AgentStatusIdle})
			require.NoError(t, err)
			agents, err := reg.List(ctx)
			require.NoError(t, err)
			require.Len(t, agents, 1)
			assert.Equal(t, "Helper", agents[0].Name)
		})
	}
}

func TestProbeGateway(t *testing.T) {
	var agent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()
	port := ts.Listener.Addr().(*net.TCPAddr).Port

	health, err := probeGateway(context.Background(), config.GatewayConfig{Port: port})
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, strings.HasPrefix(agent, "arbiter/"), agent)

	ts.Close()
	_, err = probeGateway(context.Background(), config.GatewayConfig{Port: port})
	assert.Error(t, err)
}
