package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"phasepwm/host/mcu"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of every channel and the playback status",
	Long: `Poll the board and show every channel with a bar of its active window
within the period. Keys: s stops all channels, e latches an emergency stop,
q quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error {
			_, err := tea.NewProgram(newMonitorModel(m), tea.WithAltScreen()).Run()
			return err
		})
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 500*time.Millisecond, "Poll interval")
	rootCmd.AddCommand(monitorCmd)
}

type pollMsg struct{}

// snapshotMsg carries one poll of the board
type snapshotMsg struct {
	status   mcu.Status
	channels []mcu.ChannelState
	shutdown mcu.ShutdownState
	err      error
}

type monitorModel struct {
	m        *mcu.MCU
	channels int
	last     snapshotMsg
	polled   bool
	notice   string
	width    int
}

func newMonitorModel(m *mcu.MCU) monitorModel {
	channels, err := m.Dictionary().ConstantInt("PWM_CHANNELS")
	if err != nil {
		channels = 0
	}
	return monitorModel{m: m, channels: int(channels), width: 80}
}

func (mm monitorModel) Init() tea.Cmd {
	return mm.poll()
}

func pollAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollMsg{} })
}

// poll queries the board off the UI goroutine
func (mm monitorModel) poll() tea.Cmd {
	m, n := mm.m, mm.channels
	return func() tea.Msg {
		var snap snapshotMsg
		snap.status, snap.err = m.Status()
		if snap.err != nil {
			return snap
		}
		snap.shutdown, snap.err = m.Shutdown()
		if snap.err != nil {
			return snap
		}
		for ch := 0; ch < n; ch++ {
			st, err := m.Channel(ch)
			if err != nil {
				snap.err = err
				return snap
			}
			snap.channels = append(snap.channels, st)
		}
		return snap
	}
}

func (mm monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return mm, tea.Quit
		case "s":
			mm.notice = resultNotice("stop", mm.m.Stop())
		case "e":
			mm.notice = resultNotice("emergency stop", mm.m.EmergencyStop())
		}

	case tea.WindowSizeMsg:
		mm.width = msg.Width

	case pollMsg:
		return mm, mm.poll()

	case snapshotMsg:
		mm.last = msg
		mm.polled = true
		return mm, pollAfter(monitorInterval)
	}
	return mm, nil
}

func resultNotice(what string, err error) string {
	if err != nil {
		return what + " failed: " + err.Error()
	}
	return what + " sent"
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (mm monitorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("phasepwm monitor  " + device))
	b.WriteString("\n\n")

	if !mm.polled {
		b.WriteString(mutedStyle.Render("Waiting for the board..."))
		return b.String()
	}
	if mm.last.err != nil {
		b.WriteString(errorStyle.Render("Poll failed: " + mm.last.err.Error()))
		b.WriteString("\n")
	}

	st := mm.last.status
	var status strings.Builder
	fmt.Fprintf(&status, "%s %s\n", labelStyle.Render("Frequency:"), valueStyle.Render(fmt.Sprintf("%d Hz (%d ticks)", st.Frequency, st.PeriodTicks)))
	fmt.Fprintf(&status, "%s %s\n", labelStyle.Render("Commands: "), valueStyle.Render(fmt.Sprintf("%d, %d publishes, buffer %d", st.Commands, st.Publishes, st.Active)))
	fmt.Fprintf(&status, "%s %s", labelStyle.Render("Playback: "), valueStyle.Render(fmt.Sprintf("running=%v pending=%v", st.Running, st.Pending)))
	if mm.last.shutdown.IsShutdown {
		status.WriteString("\n")
		status.WriteString(errorStyle.Render("SHUTDOWN: " + mm.last.shutdown.Reason))
	}
	b.WriteString(boxStyle.Render(status.String()))
	b.WriteString("\n\n")

	barWidth := mm.width - 40
	if barWidth < 20 {
		barWidth = 20
	}
	for _, ch := range mm.last.channels {
		line := fmt.Sprintf("ch%-2d %7.2f° %6.2f%% ", ch.Channel, ch.Phase, ch.Duty)
		b.WriteString(line)
		b.WriteString(valueStyle.Render(windowBar(ch.Phase, ch.Duty, barWidth)))
		if ch.Ramping {
			b.WriteString(mutedStyle.Render(" ramping"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if mm.notice != "" {
		b.WriteString(mutedStyle.Render(mm.notice))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("s: stop  e: emergency stop  q: quit"))
	return b.String()
}

// windowBar draws one period with the channel's high window filled, wrapping
// past the end of the period like the output does
func windowBar(phase, duty float64, width int) string {
	cells := make([]rune, width)
	for i := range cells {
		cells[i] = '·'
	}
	start := int(phase / 360 * float64(width))
	on := int(duty / 100 * float64(width))
	for i := 0; i < on; i++ {
		cells[(start+i)%width] = '█'
	}
	return string(cells)
}
