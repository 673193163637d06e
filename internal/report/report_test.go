package report

import "testing"

const sample = `Intro line before any heading.

# SECTION 1: EXECUTIVE SNAPSHOT
**Win Probability:** 35%

> [!KEY_INSIGHT]
> The CFO owns the budget.
> Likely: renewal in Q3.

Plain paragraph.

## Timing
> [!HIDDEN_RISK] Procurement freeze.

` + "```" + `
# not a heading
> [!TACTICAL_EDGE] not a callout
` + "```" + `

# SECTION 6: SELLER POSITIONING
> [!TACTICAL_EDGE]
> Lead with forecasting accuracy.
Inference: team is understaffed. Signal suggests: hiring.
`

func TestParseSections(t *testing.T) {
	doc := Parse(sample)

	if len(doc.Sections) != 4 {
		t.Fatalf("expected 4 sections, got %d: %+v", len(doc.Sections), doc.Sections)
	}
	if doc.Sections[0].Level != 0 || doc.Sections[0].Body != "Intro line before any heading." {
		t.Fatalf("unexpected preamble: %+v", doc.Sections[0])
	}
	if doc.Sections[1].Title != "SECTION 1: EXECUTIVE SNAPSHOT" || doc.Sections[1].Level != 1 {
		t.Fatalf("unexpected first section: %+v", doc.Sections[1])
	}
	if doc.Sections[2].Title != "Timing" || doc.Sections[2].Level != 2 {
		t.Fatalf("unexpected second section: %+v", doc.Sections[2])
	}
	if doc.Sections[3].Title != "SECTION 6: SELLER POSITIONING" {
		t.Fatalf("unexpected last section: %+v", doc.Sections[3])
	}
}

func TestParseCallouts(t *testing.T) {
	doc := Parse(sample)

	if len(doc.Callouts) != 3 {
		t.Fatalf("expected 3 callouts, got %d: %+v", len(doc.Callouts), doc.Callouts)
	}

	insight := doc.Callouts[0]
	if insight.Kind != CalloutKeyInsight || insight.Section != "SECTION 1: EXECUTIVE SNAPSHOT" {
		t.Fatalf("unexpected insight: %+v", insight)
	}
	if insight.Text != "The CFO owns the budget.\nLikely: renewal in Q3." {
		t.Fatalf("unexpected insight text: %q", insight.Text)
	}

	risk := doc.Callouts[1]
	if risk.Kind != CalloutHiddenRisk || risk.Text != "Procurement freeze." || risk.Section != "Timing" {
		t.Fatalf("unexpected risk: %+v", risk)
	}

	edges := doc.CalloutsOf(CalloutTacticalEdge)
	if len(edges) != 1 || edges[0].Text != "Lead with forecasting accuracy." {
		t.Fatalf("unexpected tactical edges: %+v", edges)
	}
}

func TestParseEmpty(t *testing.T) {
	doc := Parse("")
	if len(doc.Sections) != 0 || len(doc.Callouts) != 0 {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestInferenceLabels(t *testing.T) {
	counts := InferenceLabels(sample)
	if counts.Inference != 1 || counts.Likely != 1 || counts.SignalSuggests != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts.Total() != 3 {
		t.Fatalf("expected total 3, got %d", counts.Total())
	}
}

func TestParseHeadingClosingHashes(t *testing.T) {
	cases := map[string]string{
		"## Use C#":         "Use C#",
		"## Title ##":       "Title",
		"### F# and C# ###": "F# and C#",
		"# Spaced   ":       "Spaced",
	}
	for line, want := range cases {
		doc := Parse(line + "\nbody")
		if len(doc.Sections) != 1 {
			t.Fatalf("%q: expected 1 section, got %+v", line, doc.Sections)
		}
		if doc.Sections[0].Title != want {
			t.Fatalf("%q: expected title %q, got %q", line, want, doc.Sections[0].Title)
		}
	}
}
