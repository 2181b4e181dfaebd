package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClone_DetachesOptions(t *testing.T) {
	orig := Message{
		ID:      3,
		Role:    RoleCoordinator,
		Content: "Which model?",
		Options: []string{"GPT-4o", "Claude Sonnet 4.5"},
	}

	clone := orig.Clone()
	clone.Options[0] = "mutated"

	assert.Equal(t, "GPT-4o", orig.Options[0])
	assert.Equal(t, orig.ID, clone.ID)
}

func TestMessageClone_NilOptions(t *testing.T) {
	clone := Message{Role: RoleUser, Content: "hi"}.Clone()
	assert.Nil(t, clone.Options)
}

func TestMessageJSON_OmitsEmptyOptions(t *testing.T) {
	msg := Message{
		ID:        1,
		Role:      RoleUser,
		Content:   "hello",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "options")
	assert.Contains(t, raw, `"role":"user"`)
}

func TestAgentJSON_OmitsEmpty(t *testing.T) {
	agent := Agent{
		ID:     "a-1",
		Name:   "scout",
		Model:  "gpt-4o",
		Status: AgentStatusIdle,
	}

	data, err := json.Marshal(agent)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "description")
	assert.NotContains(t, raw, "systemPrompt")
	assert.Contains(t, raw, `"status":"idle"`)
}

func TestSubAgentStatusValid(t *testing.T) {
	tests := []struct {
		status SubAgentStatus
		want   bool
	}{
		{SubAgentRunning, true},
		{SubAgentCompleted, true},
		{SubAgentFailed, true},
		{"paused", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}
