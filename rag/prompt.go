package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/marhaba-ai/marhaba/session"
)

// buildPrompt assembles the completion prompt: instructions, budget-bounded
// context snippets, recent conversation and the question. It returns the
// candidates whose snippets fit, in prompt order, so the caller can report
// them as sources.
func buildPrompt(question, language, defLang string, candidates []candidate, history []session.Turn, budget int) (string, []candidate) {
	var b strings.Builder
	b.WriteString("You are Marhaba, a tourism assistant for Egypt. ")
	b.WriteString("Answer the question using only the context below. ")
	fmt.Fprintf(&b, "Reply in %s. ", replyLanguage(language))
	b.WriteString("If the context does not contain the answer, say you do not know.\n\nContext:\n")

	var used []candidate
	spent := 0
	for _, c := range candidates {
		snippet := formatSnippet(c, language, defLang)
		if snippet == "" {
			continue
		}
		if spent+len(snippet) > budget {
			remaining := budget - spent
			// Not worth including a stub of a snippet.
			if remaining < 64 {
				break
			}
			snippet = truncateUTF8(snippet, remaining)
		}
		b.WriteString(snippet)
		b.WriteByte('\n')
		spent += len(snippet)
		used = append(used, c)
		if spent >= budget {
			break
		}
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, t := range history {
			if t.UserText != "" {
				b.WriteString("User: ")
				b.WriteString(t.UserText)
				b.WriteByte('\n')
			}
			if t.Reply != "" {
				b.WriteString("Assistant: ")
				b.WriteString(t.Reply)
				b.WriteByte('\n')
			}
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String(), used
}

func formatSnippet(c candidate, language, defLang string) string {
	e := c.both.Entity
	name := e.LocalizedName(language, defLang)
	if name == "" {
		return ""
	}
	desc := e.LocalizedDescription(language, defLang)
	if desc == "" {
		return "- " + name
	}
	return "- " + name + ": " + desc
}

func replyLanguage(code string) string {
	switch code {
	case "ar":
		return "Arabic"
	case "en":
		return "English"
	case "fr":
		return "French"
	case "de":
		return "German"
	default:
		return code
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
