package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/routing"
)

const drainTimeout = 5 * time.Second

var (
	colorCoordinator = lipgloss.Color("#A78BFA")
	colorOption      = lipgloss.Color("#22D3EE")
	colorMuted       = lipgloss.Color("#9CA3AF")
)

type chatStyles struct {
	name   lipgloss.Style
	text   lipgloss.Style
	option lipgloss.Style
	hint   lipgloss.Style
	prompt lipgloss.Style
}

func newChatStyles() chatStyles {
	return chatStyles{
		name:   lipgloss.NewStyle().Foreground(colorCoordinator).Bold(true),
		text:   lipgloss.NewStyle(),
		option: lipgloss.NewStyle().Foreground(colorOption),
		hint:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		prompt: lipgloss.NewStyle().Foreground(colorMuted),
	}
}

// render formats one coordinator message. Lines are styled one at a time so
// lipgloss does not pad them to a common width.
func (s chatStyles) render(msg domain.Message) string {
	var b strings.Builder
	b.WriteString(s.name.Render("arbiter"))
	b.WriteString("\n")
	for _, line := range strings.Split(msg.Content, "\n") {
		b.WriteString("  " + s.text.Render(line) + "\n")
	}
	for i, opt := range msg.Options {
		b.WriteString("  " + s.option.Render(fmt.Sprintf("%d) %s", i+1, opt)) + "\n")
	}
	return b.String()
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the coordinator from the terminal",
		Long:  "Runs the coordinator in-process and reads turns from stdin. A reply that is only an option number picks that option.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = "warn"
			}
			clog := logging.NewWithStyle(nil, level, cfg.Logging.ConsoleStyle)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := newCore(ctx, cfg, clog)
			if err != nil {
				return err
			}
			defer c.close()

			schedCtx, cancelSched := context.WithCancel(context.WithoutCancel(ctx))
			done := make(chan struct{})
			go func() {
				c.sched.Run(schedCtx)
				close(done)
			}()
			defer func() {
				cancelSched()
				<-done
			}()

			return runChat(ctx, c.ctrl, c.sched, os.Stdin, cmd.OutOrStdout())
		},
	}
}

// runChat reads turns from in until EOF or /quit and writes every coordinator
// message to out. Replies still pending at the end are waited for.
func runChat(ctx context.Context, ctrl *dialog.Controller, sched *dialog.Scheduler, in io.Reader, out io.Writer) error {
	styles := newChatStyles()

	var (
		mu      sync.Mutex
		options []string
	)
	unsubscribe := ctrl.Transcript().Subscribe(func(msg domain.Message) {
		if msg.Role != domain.RoleCoordinator {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		options = msg.Options
		fmt.Fprint(out, styles.render(msg))
	})
	defer unsubscribe()

	mu.Lock()
	fmt.Fprintln(out, styles.hint.Render("Type /agents help for commands, /quit to leave."))
	mu.Unlock()

	scanner := bufio.NewScanner(in)
	for {
		prompt := "> "
		if st, err := ctrl.Wizard(ctx); err == nil && st.Active && st.Step != nil {
			prompt = string(*st.Step) + "> "
		}
		mu.Lock()
		fmt.Fprint(out, styles.prompt.Render(prompt))
		mu.Unlock()

		if !scanner.Scan() {
			break
		}
		text := scanner.Text()
		if t := strings.TrimSpace(text); t == "/quit" || t == "/exit" {
			break
		}

		mu.Lock()
		option, isOption := routing.PickOption(text, options)
		mu.Unlock()

		var err error
		if isOption {
			_, err = ctrl.SelectOption(ctx, option)
		} else {
			_, err = ctrl.Submit(ctx, text)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, dialog.ErrStopped) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := sched.Drain(drainCtx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("waiting for replies: %w", err)
	}
	return nil
}
