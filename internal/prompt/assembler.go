package prompt

import (
	"fmt"
	"strings"

	"studymate/internal/models"
	"studymate/internal/util"
)

// HistoryWindow is how many recent messages of the active conversation are
// replayed into the prompt. ExcerptSize bounds each candidate's content
// contribution. Both are hard contracts of the assembler.
const (
	HistoryWindow = 5
	ExcerptSize   = 500
)

const systemPreamble = `You are a helpful student assistant. Use the provided context to answer the student's question.
If the context contains relevant course material, cite it.
If the student asks about past questions, look for materials categorized as such.`

type Payload struct {
	System string
	User   string
}

// BuildContext renders candidate excerpts in candidate order: a SOURCE
// header per material followed by the first ExcerptSize characters of its
// content, blank-line separated. It never re-ranks.
func BuildContext(candidates []models.Candidate) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("SOURCE: %s\n%s", c.Title, util.Excerpt(c.Content, ExcerptSize)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildHistory renders recent messages oldest-first as "<role>: <content>"
// lines. The input is expected newest-first, as the ledger returns it, and
// is reversed here.
func BuildHistory(recent []models.Message) string {
	lines := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// Assemble produces the two-block prompt payload: a system block carrying
// the candidate excerpts and a user block carrying history plus the literal
// question. Input bounding comes entirely from the candidate cap, the
// per-candidate excerpt, and the history window.
func Assemble(candidates []models.Candidate, recent []models.Message, question string) Payload {
	return Payload{
		System: systemPreamble + "\nContext:\n" + BuildContext(candidates),
		User:   fmt.Sprintf("History:\n%s\n\nQuestion: %s", BuildHistory(recent), question),
	}
}
