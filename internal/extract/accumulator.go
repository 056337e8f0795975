package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
)

// Candidate is a record as read from text, before its date and amount are parsed.
type Candidate struct {
	SourceID    string
	DateToken   string
	AmountToken string
	Description string
	Category    string
	Type        domain.TransactionType

	Failed        bool
	FailureReason string
}

// Result is the output of Accumulate.
type Result struct {
	Candidates     []Candidate
	HadAnyComplete bool
}

const monthNames = `January|February|March|April|May|June|July|August|September|October|November|December|` +
	`Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`

// dateTokens are the accepted date spellings, tried in order.
var dateTokens = []string{
	`\d{1,2}-[A-Za-z]{3}-\d{4}`,
	`\d{1,2}/\d{1,2}/\d{4}`,
	`(?i:` + monthNames + `)\.?\s+\d{1,2},\s*\d{4}`,
	`\d{4}-\d{2}-\d{2}\b`,
}

// Date tokens must open the line, optionally behind a "... Date:" label.
var datePatterns = labeledDatePatterns(`^(?i:[a-z ]*date\s*:\s*)?`)

// labeledDatePatterns returns one pattern per date spelling, each preceded
// by label and capturing the date token.
func labeledDatePatterns(label string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(dateTokens))
	for i, tok := range dateTokens {
		out[i] = regexp.MustCompile(label + `(` + tok + `)`)
	}
	return out
}

const currencyToken = `(?:INR|USD|EUR|GBP|Rs\.?|\$|₹|€|£)`

// amountPattern matches a line holding a single two-decimal amount.
var amountPattern = regexp.MustCompile(`(?i)^(?:(total|amount)\s*:?\s*)?(-?\s*` + currencyToken + `?\s*-?\s*\d[\d,]*\.\d{2})\s*` + currencyToken + `?$`)

var totalMarker = regexp.MustCompile(`(?i)^total\s*:?$`)

type state struct {
	cur           Candidate
	awaitingTotal bool
}

// Accumulate folds lines into candidate records using g. It never fails:
// a document that yields no complete record produces one failure marker.
func Accumulate(sourceID string, lines []string, g Grammar) Result {
	var (
		s   state
		out []Candidate
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		var emitted *Candidate
		s, emitted = g.step(s, line)
		if emitted != nil {
			emitted.SourceID = sourceID
			out = append(out, *emitted)
		}
	}

	final := s.cur
	if g.SingleRecord && final.Description == "" {
		final.Description = g.DefaultDescription
	}
	if g.complete(final) {
		final.SourceID = sourceID
		out = append(out, final)
	}

	if len(out) == 0 {
		return Result{Candidates: []Candidate{{
			SourceID:      sourceID,
			Description:   final.Description,
			Category:      final.Category,
			Failed:        true,
			FailureReason: fmt.Sprintf("could not extract a complete %s record: missing %s", g.Kind, strings.Join(g.missing(final), ", ")),
		}}}
	}
	return Result{Candidates: out, HadAnyComplete: true}
}

// step consumes one line. Detectors run in a fixed order and the first hit
// consumes the line, even when its value is ignored because the field is set.
func (g Grammar) step(s state, line string) (state, *Candidate) {
	awaiting := s.awaitingTotal
	s.awaitingTotal = false

	if g.EntryLine != nil {
		entry, ok := g.EntryLine(line)
		if !ok {
			return s, nil
		}
		emitted := g.flush(s.cur)
		s.cur = entry
		return s, emitted
	}

	if tok, ok := g.matchDate(line); ok {
		if g.SingleRecord {
			if s.cur.DateToken == "" {
				s.cur.DateToken = tok
			}
			return s, nil
		}
		emitted := g.flush(s.cur)
		s.cur = Candidate{DateToken: tok}
		return s, emitted
	}

	if tok, labeled, ok := matchAmount(line); ok {
		if g.LabeledAmounts && !labeled && !awaiting {
			return s, nil
		}
		if s.cur.AmountToken == "" {
			s.cur.AmountToken = tok
		}
		return s, nil
	}

	if g.LabeledAmounts && totalMarker.MatchString(line) {
		s.awaitingTotal = true
		return s, nil
	}

	if c, ok := g.matchCategory(line); ok {
		if s.cur.Category == "" {
			s.cur.Category = c
		}
		return s, nil
	}

	if t, ok := g.matchType(line); ok {
		if s.cur.Type == "" {
			s.cur.Type = t
		}
		return s, nil
	}

	if g.Label != nil {
		if desc, ok := g.Label(line); ok {
			if s.cur.Description == "" {
				s.cur.Description = desc
			}
			return s, nil
		}
	}

	if !g.SingleRecord && s.cur.DateToken != "" && s.cur.Description == "" {
		s.cur.Description = line
	}
	return s, nil
}

// flush returns c when it is complete; incomplete records are dropped.
func (g Grammar) flush(c Candidate) *Candidate {
	if !g.complete(c) {
		return nil
	}
	return &c
}

func (g Grammar) complete(c Candidate) bool {
	return len(g.missing(c)) == 0
}

func (g Grammar) missing(c Candidate) []string {
	var m []string
	if c.DateToken == "" {
		m = append(m, "date")
	}
	if c.Description == "" {
		m = append(m, "description")
	}
	if g.RequireCategory && c.Category == "" {
		m = append(m, "category")
	}
	if g.RequireType && c.Type == "" {
		m = append(m, "transaction type")
	}
	if c.AmountToken == "" {
		m = append(m, "amount")
	}
	return m
}

// matchDate finds a date token. A grammar with DateLabels only accepts
// dates behind one of those labels, anywhere in the line.
func (g Grammar) matchDate(line string) (string, bool) {
	patterns := datePatterns
	if g.DateLabels != nil {
		patterns = g.DateLabels
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// matchAmount returns the amount token with any label removed. A trailing
// currency token is kept for the normalizer to strip.
func matchAmount(line string) (token string, labeled bool, ok bool) {
	idx := amountPattern.FindStringSubmatchIndex(line)
	if idx == nil {
		return "", false, false
	}
	return strings.TrimSpace(line[idx[4]:]), idx[2] >= 0, true
}
