package scheduler

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// qualifiers are politeness and hedging phrases removed on the first retry.
var qualifiers = regexp.MustCompile(`(?i)\b(please|kindly|could you|can you|would you|i need you to|i want you to|i would like you to|if possible|if you can|carefully|basically|simply|just|really|maybe|perhaps)\b[,]?\s*`)

var (
	sentenceEnd  = regexp.MustCompile(`[.!?](\s|$)`)
	spaceBeforeP = regexp.MustCompile(`\s+([.,;:!?])`)
)

// levels lists, per retry depth, the directive appended to the instruction
// and the word cap applied to its first sentence (0 keeps it whole).
var levels = []struct {
	directive string
	wordCap   int
}{
	{directive: "Make only this change.", wordCap: 0},
	{directive: "One change only.", wordCap: 20},
	{directive: "Only this.", wordCap: 12},
}

// Degrade returns the instruction to send on a zero-based attempt. Attempt 0
// gets the instruction unchanged. Later attempts strip qualifying language,
// keep less of the text and append a single-objective directive. The word
// count of the result never grows with the attempt index, and the result
// depends only on the arguments.
func Degrade(instruction string, attempt int) string {
	if attempt <= 0 {
		return instruction
	}

	budget := len(strings.Fields(instruction))
	out := instruction
	for k := 1; k <= attempt; k++ {
		out = degradeLevel(instruction, k, budget)
		budget = len(strings.Fields(out))
	}
	return out
}

// degradeLevel builds level k from the original instruction and trims it to
// at most budget words.
func degradeLevel(instruction string, k, budget int) string {
	lvl := levels[min(k, len(levels))-1]

	core := collapse(qualifiers.ReplaceAllString(instruction, ""))
	if k >= 2 {
		core = firstSentence(core)
	}
	words := strings.Fields(core)
	if lvl.wordCap > 0 && len(words) > lvl.wordCap {
		words = words[:lvl.wordCap]
	}
	if len(words) > 0 {
		words[0] = capitalize(words[0])
	}

	directive := strings.Fields(lvl.directive)
	if len(words)+len(directive) <= budget {
		return strings.Join(append(words, directive...), " ")
	}
	if room := budget - len(directive); room >= 1 {
		return strings.Join(append(words[:min(room, len(words))], directive...), " ")
	}
	return strings.Join(words[:min(budget, len(words))], " ")
}

func firstSentence(s string) string {
	if loc := sentenceEnd.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]+1])
	}
	return s
}

func collapse(s string) string {
	return spaceBeforeP.ReplaceAllString(strings.Join(strings.Fields(s), " "), "$1")
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
