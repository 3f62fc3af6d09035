package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/wire"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
)

const defaultConsoleWidth = 80

var (
	senderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// ChatBackend is what the console drives.
type ChatBackend interface {
	SubmitOutgoingMessage(ctx context.Context, text string) (actor.SendResult, error)
	ShareRoster(ctx context.Context) error
	ResetPeers(ctx context.Context) error
	AddPeer(ctx context.Context, addr string) error
	Status(ctx context.Context) (actor.Status, error)
}

// Console prints chat events and turns typed lines into chat messages or
// slash commands.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

var _ actor.UI = (*Console)(nil)

// NewConsole creates a console writing to out. The wrap width follows the
// terminal when out is one.
func NewConsole(out io.Writer) *Console {
	width := defaultConsoleWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return &Console{out: out, width: width}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, wordwrap.String(s, c.width))
}

func (c *Console) system(format string, args ...interface{}) {
	c.println(systemStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) failure(err error) {
	c.println(errorStyle.Render("error: " + err.Error()))
}

// OnMessageReceived implements actor.UI.
func (c *Console) OnMessageReceived(row wire.Row) {
	c.println(fmt.Sprintf("%s %s %s",
		timestampStyle.Render("["+row.Timestamp+"]"),
		senderStyle.Render(row.Sender+":"),
		row.Body,
	))
}

// OnConnectionEstablished implements actor.UI.
func (c *Console) OnConnectionEstablished() {
	c.system("* connected")
}

// OnConnectionLost implements actor.UI.
func (c *Console) OnConnectionLost() {
	c.system("* connection lost")
}

// Run reads lines from in until it is exhausted, ctx is done or the user
// quits.
func (c *Console) Run(ctx context.Context, in io.Reader, backend ChatBackend) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if c.handleLine(ctx, scanner.Text(), backend) {
			return
		}
	}
}

// handleLine executes one typed line and reports whether the user quit.
func (c *Console) handleLine(ctx context.Context, line string, backend ChatBackend) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		res, err := backend.SubmitOutgoingMessage(ctx, line)
		if err != nil {
			c.failure(err)
			return false
		}
		if res.Relayed {
			c.system("* relaying to known peers")
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/roster":
		if err := backend.ShareRoster(ctx); err != nil {
			c.failure(err)
			return false
		}
		c.system("* roster shared")

	case "/peers":
		st, err := backend.Status(ctx)
		if err != nil {
			c.failure(err)
			return false
		}
		if len(st.KnownPeers) == 0 {
			c.system("* no known peers")
			return false
		}
		c.system("* known peers: %s", strings.Join(st.KnownPeers, ", "))

	case "/reset":
		if err := backend.ResetPeers(ctx); err != nil {
			c.failure(err)
			return false
		}
		c.system("* peers cleared")

	case "/add":
		if len(fields) != 2 {
			c.system("usage: /add <address>")
			return false
		}
		if err := backend.AddPeer(ctx, fields[1]); err != nil {
			c.failure(err)
			return false
		}
		c.system("* added %s", fields[1])

	case "/status":
		st, err := backend.Status(ctx)
		if err != nil {
			c.failure(err)
			return false
		}
		c.system("* %s as %s, connected=%t, multi-hop=%t, channels=%d, pending=%d",
			st.DeviceName, st.RoleName, st.Connected, st.MultiHop, len(st.Channels), len(st.PendingAcks))
		if st.LastError != "" {
			c.system("* last error: %s", st.LastError)
		}

	case "/help":
		c.system("commands: /roster /peers /reset /add <address> /status /quit")

	default:
		c.system("unknown command %s, try /help", fields[0])
	}
	return false
}
