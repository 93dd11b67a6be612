package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gutcheck/internal/assistant"
	"gutcheck/internal/config"
	"gutcheck/internal/dialog"
	"gutcheck/internal/server"
	"gutcheck/internal/store"
	"gutcheck/internal/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := config.DefaultConfig()
	c.Store.DatabasePath = store.MemoryPath
	c.Escalation.Provider = config.ProviderNone
	c.Memory.Backend = config.BackendMemory
	return c
}

func TestNewApp_HandlesMessages(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	resp := a.assistant.Handle(context.Background(), dialog.Message{ID: "1", UserID: "u1", Text: "ate pizza for dinner"})
	require.Len(t, resp.Logged, 1)
	assert.True(t, resp.Logged[0].Success)

	rows, err := a.store.Query(context.Background(), "u1", store.Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewApp_WiresReminders(t *testing.T) {
	c := testConfig()
	c.Reminders.Enabled = true
	c.Reminders.Users = []config.ReminderUser{{ID: "u1", Timezone: "America/New_York"}}
	a, err := newApp(context.Background(), c)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.scheduler)

	c.Reminders.CheckinSpec = "not a cron spec"
	_, err = newApp(context.Background(), c)
	assert.Error(t, err)
}

func TestApp_ReloadSwapsThresholds(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	next := testConfig()
	next.NLU.DefaultLogThreshold = 0.9
	next.NLU.LogThresholds = nil
	a.reload(next)
	assert.InDelta(t, 0.9, a.dialog.Thresholds().LogThreshold("food"), 1e-9)
}

func TestParseCommand(t *testing.T) {
	cfg = testConfig()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&buf)

	require.NoError(t, runParse(cmd, []string{"stomach", "hurts"}))

	var out server.UnderstandResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, types.IntentSymptom, out.Parse.Intent)
	require.NotNil(t, out.Clarification)
	assert.Equal(t, dialog.TypeMissingSlot, out.Clarification.Type)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "gutcheck dev\n", buf.String())
}

// =============================================================================
// CHAT MODEL
// =============================================================================

type fakeHandler struct {
	got []dialog.Message
}

func (f *fakeHandler) Handle(_ context.Context, msg dialog.Message) assistant.Response {
	f.got = append(f.got, msg)
	return assistant.Response{Replies: []assistant.Reply{{Kind: assistant.KindAck, Text: "Logged " + msg.Text + "."}}}
}

type fakeOutbox struct{ queued []assistant.Reply }

func (f *fakeOutbox) Drain(string) []assistant.Reply {
	out := f.queued
	f.queued = nil
	return out
}

func newTestChat() (chatModel, *fakeHandler, *fakeOutbox) {
	h, ob := &fakeHandler{}, &fakeOutbox{}
	return newChatModel(h, ob, "u1", time.UTC), h, ob
}

func TestChat_EnterSendsMessage(t *testing.T) {
	m, h, _ := newTestChat()
	m.input.SetValue("  ate pizza  ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.history, 1)
	assert.Equal(t, "ate pizza", m.history[0].reply.Text)

	resp := m.send("ate pizza")()
	require.Len(t, h.got, 1)
	assert.Equal(t, "u1", h.got[0].UserID)
	assert.Equal(t, "chat", h.got[0].Channel)
	assert.NotEmpty(t, h.got[0].ID)

	next, _ = m.Update(resp)
	m = next.(chatModel)
	assert.False(t, m.busy)
	require.Len(t, m.history, 2)
	assert.Equal(t, "assistant", m.history[1].role)
	assert.Contains(t, m.renderHistory(), "Logged ate pizza.")
}

func TestChat_IgnoresEmptyAndBusyInput(t *testing.T) {
	m, _, _ := newTestChat()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, next.(chatModel).history)

	m.busy = true
	m.input.SetValue("hello")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, next.(chatModel).history)
}

func TestChat_Quit(t *testing.T) {
	m, _, _ := newTestChat()
	m.input.SetValue("/quit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestChat_OutboxNotices(t *testing.T) {
	m, _, ob := newTestChat()
	ob.queued = []assistant.Reply{{Kind: assistant.KindQuestion, Text: "How are you feeling after the pizza?", Options: []string{"fine", "bloated"}}}

	msg := m.drain()()
	next, _ := m.Update(msg)
	m = next.(chatModel)
	require.Len(t, m.history, 1)
	assert.Equal(t, "notice", m.history[0].role)
	out := m.renderHistory()
	assert.Contains(t, out, "after the pizza")
	assert.True(t, strings.Contains(out, "fine / bloated"))
}

func TestChat_ViewBeforeAndAfterResize(t *testing.T) {
	m, _, _ := newTestChat()
	assert.Contains(t, m.View(), "starting")

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(chatModel)
	assert.True(t, m.ready)
	assert.Contains(t, m.View(), "user u1")
}
