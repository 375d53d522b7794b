// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mixer

import (
	"io"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// CSLItem is a bibliographic entry in CSL-YAML form, consumable by Pandoc
// and reference managers.
type CSLItem struct {
	ID       string    `yaml:"id"`
	Type     string    `yaml:"type"`
	Title    string    `yaml:"title"`
	Author   []CSLName `yaml:"author,omitempty"`
	Abstract string    `yaml:"abstract,omitempty"`
	Issued   *CSLDate  `yaml:"issued,omitempty"`
	URL      string    `yaml:"URL,omitempty"`
	DOI      string    `yaml:"DOI,omitempty"`
	Source   string    `yaml:"source,omitempty"`
}

// CSLName is a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes the items of a page as a CSL-YAML list to w.
func FormatCSL(p Page, w io.Writer) error {
	items := make([]CSLItem, len(p.Items))
	for i, it := range p.Items {
		items[i] = toCSLItem(it)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

func toCSLItem(it Item) CSLItem {
	item := CSLItem{
		ID:       it.ResultID + "-" + strconv.Itoa(it.Rank),
		Type:     "webpage",
		Title:    plain(it.Title),
		Abstract: plain(it.Body),
		URL:      it.URL,
		Source:   it.Provider,
	}
	if doi := doiFromURL(it.URL); doi != "" {
		item.Type = "article"
		item.DOI = doi
	}

	for _, a := range splitAuthors(plain(it.Author)) {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if parts := dateParts(it.DatePublished); parts != nil {
		item.Issued = &CSLDate{DateParts: [][]int{parts}}
	}
	return item
}

// doiFromURL extracts a DOI from a doi.org link.
func doiFromURL(u string) string {
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/"} {
		if strings.HasPrefix(u, prefix) {
			return strings.TrimPrefix(u, prefix)
		}
	}
	return ""
}

// splitAuthors splits the joined author field of a record.
func splitAuthors(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// parseAuthorName splits on the last space: everything before is given,
// the last token is family. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}

// dateParts accepts RFC 3339 timestamps, YYYY-MM-DD and bare years.
func dateParts(s string) []int {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			switch layout {
			case "2006":
				return []int{t.Year()}
			case "2006-01":
				return []int{t.Year(), int(t.Month())}
			}
			return []int{t.Year(), int(t.Month()), t.Day()}
		}
	}
	return nil
}
