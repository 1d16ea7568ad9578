package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/render"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the subsession log",
	Long: `View and filter the structured log kept in the state directory.

Examples:
  # Show the last 50 entries
  subsession logs

  # Everything one sub-session did
  subsession logs -s docs-sub-task-1767225600000-1a2b3c4d -n 0

  # Follow lock activity in real time
  subsession logs -f --component filelock

  # Warnings and errors from the last hour
  subsession logs --level warn --since 1h

With --output text entries are formatted; otherwise the raw JSON lines
are printed.`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsSessionID string
	logsComponent string
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
)

func init() {
	logsCmd.Flags().StringVarP(&logsSessionID, "session", "s", "", "only entries for this session")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "only entries from this component (session, filelock, permission, conflict, ...)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only entries newer than this duration (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries matching this regular expression")
}

// RegisterLogsCmd registers the logs command with the given parent command.
func RegisterLogsCmd(parent *cobra.Command) {
	parent.AddCommand(logsCmd)
}

// logEntry is one parsed JSON log line.
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	SessionID string         `json:"session_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON keeps the fields it does not know in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"time", "level", "msg", "session_id", "component"} {
		delete(all, k)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects entries.
type logFilter struct {
	minLevel  int
	since     time.Time
	grep      *regexp.Regexp
	sessionID string
	component string
}

func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func (f logFilter) match(e *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(e.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && e.Time.Before(f.since) {
		return false
	}
	if f.sessionID != "" && e.SessionID != f.sessionID {
		return false
	}
	if f.component != "" && e.Component != f.component {
		return false
	}
	if f.grep != nil {
		text := e.Msg
		for _, v := range e.Extra {
			text += " " + fmt.Sprint(v)
		}
		if !f.grep.MatchString(text) {
			return false
		}
	}
	return true
}

func formatLogEntry(s *render.Styles, e *logEntry) string {
	var b strings.Builder
	b.WriteString(s.Muted.Render("[" + e.Time.Format("15:04:05.000") + "]"))
	b.WriteString(" " + s.Level(strings.ToLower(e.Level)))
	if e.Component != "" {
		b.WriteString(" " + s.Label.Render(e.Component))
	}
	b.WriteString(" " + e.Msg)
	if e.SessionID != "" {
		b.WriteString(" " + s.Muted.Render("session_id=") + e.SessionID)
	}
	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s%v", s.Muted.Render(k+"="), e.Extra[k])
	}
	return b.String()
}

func buildLogFilter() (logFilter, error) {
	f := logFilter{minLevel: -1, sessionID: logsSessionID, component: logsComponent}
	if logsLevel != "" {
		f.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	filter, err := buildLogFilter()
	if err != nil {
		return err
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	logPath := filepath.Join(a.StateDir, logging.LogFileName)
	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		_, _ = fmt.Fprintf(out, "No log yet at %s\n", logPath)
		return nil
	}

	format := func(line string) string { return line }
	if a.Out.Format() == render.FormatText {
		styles := a.Out.Styles()
		format = func(line string) string {
			var e logEntry
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				return line
			}
			return formatLogEntry(styles, &e)
		}
	}
	keep := func(line string) bool {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return filter.grep == nil || filter.grep.MatchString(line)
		}
		return filter.match(&e)
	}

	if logsFollow {
		return followLogs(cmd.Context(), out, logPath, keep, format)
	}
	return displayLogs(out, logPath, logsTail, keep, format)
}

// displayLogs prints the last tail matching lines of the log.
func displayLogs(out io.Writer, logPath string, tail int, keep func(string) bool, format func(string) string) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !keep(line) {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(out, format(line))
	}
	if len(lines) == 0 {
		_, _ = fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs prints new matching lines until ctx is done.
func followLogs(ctx context.Context, out io.Writer, logPath string, keep func(string) bool, format func(string) string) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		if err == io.EOF {
			// Keep a line that is still being written for the next read.
			partial += chunk
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		line := strings.TrimSpace(partial + chunk)
		partial = ""
		if line == "" || !keep(line) {
			continue
		}
		_, _ = fmt.Fprintln(out, format(line))
	}
}
