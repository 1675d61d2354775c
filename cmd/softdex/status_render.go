package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"softdex/internal/scan"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// scanLines renders a detection pass summary as status lines.
func scanLines(summary scan.Summary, passErr string, colorize bool) []string {
	passKind := statusOK
	passMsg := fmt.Sprintf("%s candidates in %s", humanize.Comma(int64(summary.Candidates)), summary.Duration.Round(time.Millisecond))
	if passErr != "" {
		passKind = statusError
		passMsg += "; " + passErr
	}
	lines := []string{
		renderStatusLine("Detection pass", passKind, passMsg, colorize),
		renderStatusLine("Catalog", statusInfo, fmt.Sprintf("%d new", summary.CatalogNew), colorize),
		renderStatusLine("Installations", statusInfo,
			fmt.Sprintf("%d inserted, %d updated, %d total", summary.Inserted, summary.Updated, summary.Installations), colorize),
	}
	if failed := summary.Failed + summary.CatalogFailed; failed > 0 {
		lines = append(lines, renderStatusLine("Write failures", statusError, fmt.Sprintf("%d", failed), colorize))
	}
	switch {
	case summary.SweepSkipped:
		lines = append(lines, renderStatusLine("Stale sweep", statusWarn, "skipped after detector failure", colorize))
	default:
		lines = append(lines, renderStatusLine("Stale sweep", statusInfo, fmt.Sprintf("%d removed", summary.StaleRemoved), colorize))
	}
	for _, failure := range summary.Failures {
		lines = append(lines, renderStatusLine("Detector "+failure.Source, statusWarn, failure.Error, colorize))
	}
	return lines
}

// relativeTime renders an API timestamp as "3 minutes ago", or "never".
func relativeTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return "never"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return humanize.Time(ts)
}
