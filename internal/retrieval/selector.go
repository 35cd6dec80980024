package retrieval

import (
	"context"
	"strings"

	"studymate/internal/models"
)

// MaxCandidates caps how many materials a single retrieval call may feed
// into the prompt. Hard contract, not configuration.
const MaxCandidates = 3

const minKeywordLen = 4

// MaterialSource lists the materials a principal is allowed to see, in
// store order. The Postgres repo implements it; tests use an in-memory one.
type MaterialSource interface {
	ListEligible(ctx context.Context, p models.Principal) ([]models.Material, error)
}

// Selector is the lexical candidate selector: eligibility filter first,
// then naive keyword narrowing, truncated to MaxCandidates. Read-only.
type Selector struct {
	source MaterialSource
}

func NewSelector(source MaterialSource) *Selector {
	return &Selector{source: source}
}

// SelectCandidates returns at most MaxCandidates eligible materials whose
// content contains at least one keyword from the question. A question that
// yields no keywords (only short words) skips the narrowing entirely so
// eligibility alone decides; it never errors into an empty result.
func (s *Selector) SelectCandidates(ctx context.Context, question string, p models.Principal) ([]models.Candidate, error) {
	materials, err := s.source.ListEligible(ctx, p)
	if err != nil {
		return nil, err
	}
	keywords := Keywords(question)

	out := make([]models.Candidate, 0, MaxCandidates)
	for _, m := range materials {
		if len(keywords) > 0 && !matchesAny(m.Content, keywords) {
			continue
		}
		out = append(out, models.Candidate{
			MaterialID: m.MaterialID,
			Title:      m.Title,
			Content:    m.Content,
		})
		if len(out) == MaxCandidates {
			break
		}
	}
	return out, nil
}

// Keywords splits the question on whitespace and keeps tokens longer than
// three characters. No stemming or tokenization beyond that.
func Keywords(question string) []string {
	fields := strings.Fields(question)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minKeywordLen {
			out = append(out, f)
		}
	}
	return out
}

// matchesAny reports whether content contains any keyword as a
// case-insensitive substring. Literal containment, mirroring ILIKE.
func matchesAny(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Eligible is the visibility rule as a pure predicate: a material is
// visible iff it is public and tag-matched to the requester, or the
// requester uploaded it. An untagged public material (nil department or
// year) skips that check, so fully untagged public content is visible to
// everyone. Private materials are visible only to their owner.
func Eligible(m models.Material, p models.Principal) bool {
	if m.UploadedBy != nil && *m.UploadedBy == p.ID {
		return true
	}
	if !m.IsPublic {
		return false
	}
	if m.Department != nil && *m.Department != p.Department {
		return false
	}
	if m.YearLevel != nil && *m.YearLevel != p.YearOfStudy {
		return false
	}
	return true
}
