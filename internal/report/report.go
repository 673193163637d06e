// Package report reads structure out of a generated sales intelligence report
// without changing its markdown.
package report

import (
	"regexp"
	"strings"
)

const (
	CalloutKeyInsight   = "KEY_INSIGHT"
	CalloutHiddenRisk   = "HIDDEN_RISK"
	CalloutTacticalEdge = "TACTICAL_EDGE"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)(?:\s+#+)?\s*$`)
	calloutPattern = regexp.MustCompile(`^>\s*\[!([A-Za-z_]+)\]\s*(.*)$`)
)

type Section struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Callout struct {
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Section string `json:"section,omitempty"`
}

type Document struct {
	Sections []Section `json:"sections"`
	Callouts []Callout `json:"callouts"`
}

// Parse splits markdown on ATX headings and collects [!TAG] blockquotes.
// Text before the first heading becomes an untitled level-0 section.
// Headings inside fenced code blocks are ignored.
func Parse(markdown string) Document {
	doc := Document{
		Sections: []Section{},
		Callouts: []Callout{},
	}

	var (
		current    *Section
		body       []string
		inFence    bool
		callout    *Callout
		calloutBuf []string
	)

	flushCallout := func() {
		if callout == nil {
			return
		}
		callout.Text = strings.TrimSpace(strings.Join(calloutBuf, "\n"))
		doc.Callouts = append(doc.Callouts, *callout)
		callout = nil
		calloutBuf = nil
	}

	flushSection := func() {
		if current == nil {
			if text := strings.TrimSpace(strings.Join(body, "\n")); text != "" {
				doc.Sections = append(doc.Sections, Section{Body: text})
			}
		} else {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			doc.Sections = append(doc.Sections, *current)
		}
		body = nil
	}

	sectionTitle := func() string {
		if current == nil {
			return ""
		}
		return current.Title
	}

	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flushCallout()
			inFence = !inFence
			body = append(body, line)
			continue
		}

		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
				flushCallout()
				flushSection()
				current = &Section{Level: len(m[1]), Title: strings.Trim(m[2], "* ")}
				continue
			}

			if m := calloutPattern.FindStringSubmatch(trimmed); m != nil {
				flushCallout()
				callout = &Callout{Kind: strings.ToUpper(m[1]), Section: sectionTitle()}
				if rest := strings.TrimSpace(m[2]); rest != "" {
					calloutBuf = append(calloutBuf, rest)
				}
				body = append(body, line)
				continue
			}

			if callout != nil {
				if strings.HasPrefix(trimmed, ">") {
					calloutBuf = append(calloutBuf, strings.TrimSpace(strings.TrimPrefix(trimmed, ">")))
					body = append(body, line)
					continue
				}
				flushCallout()
			}
		}

		body = append(body, line)
	}

	flushCallout()
	flushSection()

	return doc
}

// CalloutsOf returns the callouts of one kind in document order.
func (d Document) CalloutsOf(kind string) []Callout {
	var out []Callout
	for _, c := range d.Callouts {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// InferenceCounts tallies the labels the report uses for unverified claims.
type InferenceCounts struct {
	Inference      int `json:"inference"`
	Likely         int `json:"likely"`
	SignalSuggests int `json:"signalSuggests"`
}

func (c InferenceCounts) Total() int {
	return c.Inference + c.Likely + c.SignalSuggests
}

func InferenceLabels(markdown string) InferenceCounts {
	return InferenceCounts{
		Inference:      strings.Count(markdown, "Inference:"),
		Likely:         strings.Count(markdown, "Likely:"),
		SignalSuggests: strings.Count(markdown, "Signal suggests:"),
	}
}
