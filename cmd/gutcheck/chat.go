package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gutcheck/internal/assistant"
	"gutcheck/internal/dialog"
	"gutcheck/internal/logging"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat interface",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "User id (default: $USER)")
	rootCmd.Flags().StringVar(&chatUser, "user", "", "User id (default: $USER)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.start(ctx, configPath)

	user := chatUser
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "me"
	}

	m := newChatModel(a.assistant, a.outbox, user, cfg.Location())
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// =============================================================================
// MODEL
// =============================================================================

// pollInterval is how often the outbox is drained for reminders.
const pollInterval = 2 * time.Second

type turnHandler interface {
	Handle(ctx context.Context, msg dialog.Message) assistant.Response
}

type outboxDrainer interface {
	Drain(userID string) []assistant.Reply
}

type chatLine struct {
	role  string // user, assistant, notice
	reply assistant.Reply
}

type (
	responseMsg assistant.Response
	pollMsg     struct{}
	outboxMsg   []assistant.Reply
)

type chatStyles struct {
	title     lipgloss.Style
	you       lipgloss.Style
	bot       lipgloss.Style
	notice    lipgloss.Style
	errorText lipgloss.Style
	options   lipgloss.Style
	footer    lipgloss.Style
}

func defaultChatStyles() chatStyles {
	green := lipgloss.Color("#8BC34A")
	blue := lipgloss.Color("#2196F3")
	return chatStyles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(green).Padding(0, 1),
		you:       lipgloss.NewStyle().Bold(true).Foreground(blue),
		bot:       lipgloss.NewStyle().Bold(true).Foreground(green),
		notice:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#FFC107")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
		options:   lipgloss.NewStyle().Faint(true),
		footer:    lipgloss.NewStyle().Faint(true).Padding(0, 1),
	}
}

type chatModel struct {
	handler turnHandler
	outbox  outboxDrainer
	userID  string
	loc     *time.Location

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   chatStyles

	history []chatLine
	busy    bool
	ready   bool
	width   int
	height  int
}

func newChatModel(h turnHandler, ob outboxDrainer, userID string, loc *time.Location) chatModel {
	ti := textinput.New()
	ti.Placeholder = `what did you eat, or how do you feel?  (/help)`
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		handler:  h,
		outbox:   ob,
		userID:   userID,
		loc:      loc,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		styles:   defaultChatStyles(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, pollLater())
}

func pollLater() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m chatModel) send(text string) tea.Cmd {
	msg := dialog.Message{
		ID:       uuid.NewString(),
		UserID:   m.userID,
		Channel:  "chat",
		Text:     text,
		Location: m.loc,
	}
	h := m.handler
	return func() tea.Msg {
		return responseMsg(h.Handle(context.Background(), msg))
	}
}

func (m chatModel) drain() tea.Cmd {
	ob, user := m.outbox, m.userID
	return func() tea.Msg { return outboxMsg(ob.Drain(user)) }
}

// =============================================================================
// UPDATE
// =============================================================================

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			if text == "/quit" || text == "/exit" {
				return m, tea.Quit
			}
			m.input.Reset()
			m.history = append(m.history, chatLine{role: "user", reply: assistant.Reply{Text: text}})
			m.busy = true
			m.refresh()
			return m, tea.Batch(m.send(text), m.spinner.Tick)
		}

	case responseMsg:
		m.busy = false
		for _, r := range msg.Replies {
			m.history = append(m.history, chatLine{role: "assistant", reply: r})
		}
		m.refresh()
		return m, nil

	case pollMsg:
		return m, tea.Batch(m.drain(), pollLater())

	case outboxMsg:
		for _, r := range msg {
			m.history = append(m.history, chatLine{role: "notice", reply: r})
		}
		if len(msg) > 0 {
			logging.AssistantDebug("chat drained %d queued replies", len(msg))
			m.refresh()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy {
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(msg.Width-4, 20)),
		)
		if err == nil {
			m.renderer = r
		}
		m.ready = true
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// =============================================================================
// VIEW
// =============================================================================

func (m chatModel) renderHistory() string {
	var sb strings.Builder
	for _, line := range m.history {
		switch line.role {
		case "user":
			sb.WriteString(m.styles.you.Render("You") + "\n")
			sb.WriteString(line.reply.Text + "\n\n")
		case "notice":
			sb.WriteString(m.styles.notice.Render("gutcheck (reminder)") + "\n")
			sb.WriteString(m.renderReply(line.reply) + "\n")
		default:
			sb.WriteString(m.styles.bot.Render("gutcheck") + "\n")
			sb.WriteString(m.renderReply(line.reply) + "\n")
		}
	}
	return sb.String()
}

func (m chatModel) renderReply(r assistant.Reply) string {
	text := r.Text
	if m.renderer != nil && strings.ContainsAny(text, "|*#`") {
		if out, err := m.renderer.Render(text); err == nil {
			text = strings.TrimRight(out, "\n")
		}
	}
	if r.Kind == assistant.KindError {
		text = m.styles.errorText.Render(text)
	}
	if len(r.Options) > 0 {
		text += "\n" + m.styles.options.Render("("+strings.Join(r.Options, " / ")+")")
	}
	return text + "\n"
}

func (m chatModel) View() string {
	if !m.ready {
		return "starting gutcheck..."
	}
	status := fmt.Sprintf("user %s  ·  enter to send  ·  esc to quit", m.userID)
	if m.busy {
		status = m.spinner.View() + " thinking"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.title.Render("gutcheck"),
		m.viewport.View(),
		m.input.View(),
		m.styles.footer.Render(status),
	)
}
