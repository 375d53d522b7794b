// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mixer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FormatTable writes a page as a human-readable table to w.
func FormatTable(p Page, w io.Writer) {
	for _, in := range p.Info {
		line := fmt.Sprintf("%-20s  %-18s  found %d, retrieved %d", truncate(in.Provider, 20), in.Status, in.Found, in.Retrieved)
		if len(in.Messages) > 0 {
			line += "  (" + in.Messages[len(in.Messages)-1] + ")"
		}
		fmt.Fprintln(w, line)
	}
	if len(p.Info) > 0 {
		fmt.Fprintln(w)
	}

	if len(p.Items) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-10s  %-6s  %s\n",
		"Rank", "Title", "Author", "Date", "Score", "Provider")
	fmt.Fprintln(w, strings.Repeat("-", 116))

	offset := (p.Page - 1) * p.PageSize
	for i, it := range p.Items {
		date := it.DatePublished
		if len(date) > 10 {
			date = date[:10]
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-10s  %-6.2f  %s\n",
			offset+i+1, truncate(plain(it.Title), 60), truncate(it.Author, 20), date, it.Score, it.Provider)
	}

	fmt.Fprintf(w, "\n%d of %d results (page %d), %d retrieved\n", len(p.Items), p.TotalItems, p.Page, p.TotalRetrieved)
}

// FormatJSON writes a page as indented JSON to w.
func FormatJSON(p Page, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func plain(s string) string {
	return strings.NewReplacer("<em>", "", "</em>", "").Replace(s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
