package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

var (
	consoleTitle = lipgloss.NewStyle().Bold(true)
	consoleBody  = lipgloss.NewStyle().PaddingLeft(2)
	levelStyles  = map[alert.Level]lipgloss.Style{
		alert.LevelInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		alert.LevelWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		alert.LevelError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		alert.LevelCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Reverse(true),
	}
)

// Console renders alerts for the shifter's terminal.
type Console struct {
	name string
	mu   sync.Mutex
	w    io.Writer
	now  func() time.Time
}

// NewConsole writes to w.
func NewConsole(name string, w io.Writer) *Console {
	return &Console{name: name, w: w, now: time.Now}
}

func (c *Console) Name() string { return c.name }

func (c *Console) Notify(_ context.Context, a alert.Alert) error {
	badge := levelStyles[a.Level()].Render(fmt.Sprintf("[%s]", a.Level()))
	head := fmt.Sprintf("%s %s %s", c.now().Format("15:04:05"), badge, consoleTitle.Render(a.Message()))

	out := head + "\n"
	if d := a.Details(); d != "" {
		out += consoleBody.Render(d) + "\n"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, out)
	return err
}
