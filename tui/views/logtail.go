package views

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"tui/styles"
)

func readLastLines(path string, n int) ([]string, time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	modTime := info.ModTime()

	f, err := os.Open(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	defer f.Close()

	var allLines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	if len(allLines) == 0 {
		return []string{"(empty log)"}, modTime
	}

	start := max(len(allLines)-n, 0)
	return allLines[start:], modTime
}

type logEntry struct {
	Time    time.Time
	Level   string
	Message string
	Attrs   []string
}

// parseLogLine reads one JSON line written by the daemon's file handler.
// Lines that are not JSON come back as a bare message.
func parseLogLine(line string) logEntry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return logEntry{Message: line}
	}

	var e logEntry
	if ts, ok := raw["time"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	e.Level, _ = raw["level"].(string)
	e.Message, _ = raw["msg"].(string)
	delete(raw, "time")
	delete(raw, "level")
	delete(raw, "msg")

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Attrs = append(e.Attrs, fmt.Sprintf("%s=%v", k, raw[k]))
	}
	return e
}

func styleLogLine(line string, maxWidth int) string {
	e := parseLogLine(line)
	if e.Level == "" {
		return truncate(e.Message, maxWidth)
	}

	ts := "--:--:--"
	if !e.Time.IsZero() {
		ts = e.Time.Local().Format("15:04:05")
	}
	text := e.Message
	if len(e.Attrs) > 0 {
		text += " " + strings.Join(e.Attrs, " ")
	}
	text = truncate(fmt.Sprintf("%-5s %s", e.Level, text), maxWidth-len(ts)-1)

	levelStyle := styles.LogInfo
	switch e.Level {
	case "DEBUG":
		levelStyle = styles.Muted
	case "WARN":
		levelStyle = styles.StatusPending
	case "ERROR":
		levelStyle = styles.StatusError
	}
	return styles.LogTimestamp.Render(ts) + " " + levelStyle.Render(text)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return s[:max-1] + "…"
}
