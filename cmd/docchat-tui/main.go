package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/transport"
)

const (
	gap = "\n\n"

	initCommand = "/init"
)

type args struct {
	Addr    string        `arg:"--addr,-a" default:"http://localhost:8501" help:"docchat server address"`
	EnvFile string        `arg:"--env-file" default:".env" help:"dotenv file with the form values"`
	Timeout time.Duration `arg:"--timeout" default:"5m" help:"how long to wait for one answer"`
}

func main() {
	var args args
	arg.MustParse(&args)

	if err := config.LoadEnv(args.EnvFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	conf := config.Default()
	conf.ApplyEnv()

	c := newClient(args.Addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := c.createSession(ctx)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	missing, err := c.saveSettings(ctx, id, conf.Defaults)
	if err != nil {
		log.Fatalf("failed to save settings: %v", err)
	}

	p := tea.NewProgram(initialModel(c, id, args.Timeout, missing), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type (
	errMsg error
)

type responseMsg struct {
	Payload transport.MessageStreamPayload
	Done    bool
	Err     error
}

type model struct {
	client  *client
	session string
	timeout time.Duration
	sub     chan responseMsg

	acc        string
	answer     int
	sources    []string
	viewport   viewport.Model
	entries    []string
	textarea   textarea.Model
	userStyle  lipgloss.Style
	modelStyle lipgloss.Style
	infoStyle  lipgloss.Style
	err        error
}

func initialModel(c *client, session string, timeout time.Duration, missing []string) model {
	ta := textarea.New()
	ta.Placeholder = "What is up?"
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 1000

	ta.SetWidth(30)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	m := model{
		client:     c,
		session:    session,
		timeout:    timeout,
		sub:        make(chan responseMsg),
		textarea:   ta,
		viewport:   viewport.New(30, 5),
		userStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		modelStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("31")),
		infoStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		answer:     -1,
	}

	m.entries = append(m.entries, m.infoStyle.Render("Powered by MongoDB Atlas"))
	if len(missing) > 0 {
		m.entries = append(m.entries, m.infoStyle.Render(config.FillOutMessage+" Missing: "+strings.Join(missing, ", ")))
	} else {
		m.entries = append(m.entries, m.infoStyle.Render("Type "+initCommand+" to index the bucket, then ask away."))
	}
	m.viewport.SetContent(strings.Join(m.entries, "\n"))
	return m
}

// run starts a task with start and relays its messages to the model.
func (m model) run(start func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		traceID, err := start(ctx)
		if err != nil {
			return responseMsg{Done: true, Err: err}
		}
		err = m.client.follow(ctx, traceID, func(p transport.MessageStreamPayload) {
			m.sub <- responseMsg{Payload: p}
		})
		return responseMsg{Done: true, Err: err}
	}
}

func waitForActivity(sub chan responseMsg) tea.Cmd {
	return func() tea.Msg {
		return responseMsg(<-sub)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForActivity(m.sub),
	)
}

func (m *model) render() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(strings.Join(m.entries, "\n")))
	m.viewport.GotoBottom()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - lipgloss.Height(gap)
		m.render()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.textarea.Value())
			if q == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.textarea.Blur()

			if q == initCommand {
				m.entries = append(m.entries, m.infoStyle.Render("Initializing..."))
				m.render()
				return m, m.run(func(ctx context.Context) (string, error) {
					return m.client.init(ctx, m.session)
				})
			}

			m.entries = append(m.entries, m.userStyle.Render("You: ")+q)
			m.answer = -1
			m.render()
			return m, m.run(func(ctx context.Context) (string, error) {
				return m.client.send(ctx, m.session, q)
			})
		}

	case responseMsg:
		if msg.Done {
			if msg.Err != nil {
				m.entries = append(m.entries, m.infoStyle.Render("error: "+msg.Err.Error()))
			}
			if len(m.sources) > 0 {
				m.entries = append(m.entries, m.infoStyle.Render("Sources: "+strings.Join(m.sources, ", ")))
			}
			m.acc = ""
			m.answer = -1
			m.sources = nil
			m.textarea.Focus()
			m.render()
			return m, nil
		}

		p := msg.Payload
		switch p.Type {
		case transport.MessageTypeContent:
			if m.answer < 0 {
				m.entries = append(m.entries, "")
				m.answer = len(m.entries) - 1
			}
			m.acc += p.Content
			m.entries[m.answer] = m.modelStyle.Render("Assistant: ") + strings.TrimSpace(m.acc)
		case transport.MessageTypeDocument:
			if p.Document != nil {
				m.sources = append(m.sources, p.Document.Title)
			}
		case transport.MessageTypeStatus:
			if p.Status == transport.StatusOK && p.Content != "" {
				m.entries = append(m.entries, m.infoStyle.Render(p.Content))
			}
		case transport.MessageTypeError:
			m.entries = append(m.entries, m.infoStyle.Render(p.Content))
		}
		m.render()
		return m, waitForActivity(m.sub)

	case errMsg:
		m.err = msg
		return m, nil
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m model) View() string {
	return fmt.Sprintf(
		"%s%s%s",
		m.viewport.View(),
		gap,
		m.textarea.View(),
	)
}
