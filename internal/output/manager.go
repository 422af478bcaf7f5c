package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/mtdown/internal/progress"
)

// JobView is the read side of a running job, polled on every display tick.
type JobView interface {
	Snapshot() progress.Snapshot
	Status() string
	Paused() bool
	Threads() int
	Logs() []Entry
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager renders one job as a live block of lines that is redrawn in
// place on every tick.
type Manager struct {
	mutex       sync.RWMutex
	out         io.Writer
	title       string
	message     string
	status      string
	job         JobView
	probeLines  []string
	errors      []ErrorReport
	numLines    int
	maxLogs     int
	height      func() int
	width       func() int
	startTime   time.Time
	endTime     time.Time
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager(out io.Writer, tick time.Duration) *Manager {
	if out == nil {
		out = os.Stdout
	}
	if tick <= 0 {
		tick = 300 * time.Millisecond
	}
	return &Manager{
		out:         out,
		status:      "pending",
		maxLogs:     8,
		height:      getTerminalHeight,
		width:       getTerminalWidth,
		startTime:   time.Now(),
		doneCh:      make(chan struct{}),
		displayTick: tick,
	}
}

func (m *Manager) SetTitle(title string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.title = title
}

func (m *Manager) SetMessage(message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.message = message
}

// Attach starts showing the segments, totals and logs of job.
func (m *Manager) Attach(job JobView) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.job = job
}

// ProbeLevel records one concurrency probe result.
func (m *Manager) ProbeLevel(level int, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	mark := FSuccess(StyleSymbols["pass"])
	if !ok {
		mark = FError(StyleSymbols["fail"])
	}
	m.probeLines = append(m.probeLines, fmt.Sprintf("Trying %d threads... %s", level, mark))
}

func (m *Manager) Complete(message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.status = "success"
	m.message = message
	m.endTime = time.Now()
}

func (m *Manager) ReportError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.status = "error"
	m.message = err.Error()
	m.endTime = time.Now()
	m.errors = append(m.errors, ErrorReport{Name: m.title, Error: err, Time: time.Now()})
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "completed":
		return FSuccess(StyleSymbols["pass"])
	case "error", "failed", "cancelled":
		return FError(StyleSymbols["fail"])
	case "warning", "paused":
		return FWarning(StyleSymbols["warning"])
	case "pending", "planning", "running":
		return FPending(StyleSymbols["pending"])
	default:
		return FInfo(StyleSymbols["bullet"])
	}
}

func (m *Manager) styleMessage(status, message string) string {
	switch status {
	case "success", "completed":
		return FSuccess(message)
	case "error", "failed", "cancelled":
		return FError(message)
	case "warning", "paused":
		return FWarning(message)
	default:
		return FPending(message)
	}
}

// render builds the current frame, bounded by the terminal height.
func (m *Manager) render() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	indent := strings.Repeat(" ", 2)
	streamIndent := strings.Repeat(" ", 2+4)
	status := m.status
	if m.job != nil && status == "pending" {
		status = m.job.Status()
		if m.job.Paused() && status == "running" {
			status = "paused"
		}
	}
	elapsed := time.Since(m.startTime)
	if !m.endTime.IsZero() {
		elapsed = m.endTime.Sub(m.startTime)
	}
	header := m.message
	if header == "" {
		header = m.title
	}
	lines := []string{fmt.Sprintf("%s%s %s %s", indent, m.GetStatusIndicator(status),
		FDebug(elapsed.Round(time.Second).String()), m.styleMessage(status, header))}

	for _, l := range m.probeLines {
		lines = append(lines, streamIndent+FStream(l))
	}
	if m.job == nil {
		return m.fit(lines)
	}

	snap := m.job.Snapshot()
	if len(snap.Segments) > 0 {
		for _, seg := range snap.Segments {
			lines = append(lines, fmt.Sprintf("%s%s %s%s", streamIndent, FDebug(fmt.Sprintf("#%-2d", seg.Index)),
				PrintProgressBar(seg.Received, seg.Expected, 30), FDebug(progress.FormatSize(seg.Received))))
		}
		eta, ok := snap.ETA()
		lines = append(lines, streamIndent+FInfo(fmt.Sprintf("%s %s %s %s %s",
			progress.FormatProgress(snap.Received, snap.Expected), StyleSymbols["bullet"],
			progress.FormatSpeed(snap.Throughput()), StyleSymbols["bullet"], progress.FormatETA(eta, ok))))
	}
	if status == "running" || status == "paused" {
		hint := "p pause " + StyleSymbols["dot"] + " q quit"
		if status == "paused" {
			hint = FWarning("[ PAUSED ]") + " " + FDebug("p resume "+StyleSymbols["dot"]+" q quit")
		} else {
			hint = FDebug(hint)
		}
		lines = append(lines, streamIndent+hint)
	}

	logs := m.job.Logs()
	if len(logs) > m.maxLogs {
		logs = logs[len(logs)-m.maxLogs:]
	}
	if len(logs) > 0 {
		lines = append(lines, indent+FHeader("[ Logs ]"))
		for _, e := range logs {
			for _, l := range wrapText(e.String(), len(streamIndent), m.width()) {
				lines = append(lines, streamIndent+styleLogLine(e.Level, l))
			}
		}
	}
	return m.fit(lines)
}

func (m *Manager) fit(lines []string) []string {
	available := m.height() - 3
	if available > 0 && len(lines) > available {
		lines = lines[:available]
	}
	return lines
}

func styleLogLine(level, line string) string {
	switch level {
	case "error", "fatal", "panic":
		return FError(line)
	case "warn":
		return FWarning(line)
	case "debug", "trace":
		return FDebug(line)
	default:
		return FStream(line)
	}
}

func (m *Manager) updateDisplay() {
	lines := m.render()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var sb strings.Builder
	if m.numLines > 0 {
		fmt.Fprintf(&sb, "\033[%dA\033[J", m.numLines)
	}
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	io.WriteString(m.out, sb.String())
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

// StopDisplay draws the final frame and the summary, then returns.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
		m.displayWg.Wait()
	})
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			FError(fmt.Sprintf("%d.", i+1)),
			FDebug(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			FError(fmt.Sprintf("Download: %s", err.Name)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), FError(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	if m.job != nil {
		snap := m.job.Snapshot()
		elapsed := m.endTime.Sub(m.startTime)
		if m.endTime.IsZero() {
			elapsed = time.Since(m.startTime)
		}
		summary := fmt.Sprintf("%s in %s with %d thread(s)", progress.FormatSize(snap.Received),
			elapsed.Round(time.Millisecond), m.job.Threads())
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+FSuccess2(summary))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
