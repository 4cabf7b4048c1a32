package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Stderr, format, args...)
	}
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp, "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// entryJSON is the JSON schema for one entry in ls, stat and search output.
type entryJSON struct {
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	ID             string `json:"id,omitempty"`
	Rev            string `json:"rev,omitempty"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash,omitempty"`
	ServerModified string `json:"server_modified,omitempty"`
}

func toEntryJSON(e *dropbox.Entry) entryJSON {
	out := entryJSON{
		Kind:        e.Kind.String(),
		Name:        e.Name,
		Path:        e.PathDisplay,
		ID:          e.ID,
		Rev:         e.Rev,
		Size:        e.Size,
		ContentHash: e.ContentHash,
	}

	if !e.ServerModified.IsZero() {
		out.ServerModified = e.ServerModified.UTC().Format(time.RFC3339)
	}

	return out
}

// entryRow is one table row for ls and search.
func entryRow(e *dropbox.Entry) []string {
	switch e.Kind {
	case dropbox.EntryFolder:
		return []string{"dir", "-", "-", e.PathDisplay}
	case dropbox.EntryDeleted:
		return []string{"deleted", "-", "-", e.PathDisplay}
	default:
		return []string{"file", formatSize(e.Size), formatTime(e.ServerModified), e.PathDisplay}
	}
}

var entryHeaders = []string{"TYPE", "SIZE", "MODIFIED", "PATH"}

// printTable writes aligned columns. headers and each row must have the
// same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row without trailing spaces.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
