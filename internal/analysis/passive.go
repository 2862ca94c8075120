package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/margin/internal/model"
)

// Passive voice heuristic: a form of "to be", an optional adverb, then a
// past participle (regular -ed or a common irregular form), optionally
// followed by "by". This is a pattern match, not a parse.
var passivePattern = regexp.MustCompile(`(?i)\b(?:am|is|are|was|were|be|been|being)\s+(?:\w+ly\s+)?(?:\w+ed|` +
	strings.Join(irregularParticiples, "|") + `)\b(?:\s+by\b)?`)

var irregularParticiples = []string{
	"arisen", "awoken", "beaten", "become", "begun", "bent", "bitten", "blown", "broken",
	"brought", "built", "bought", "caught", "chosen", "done", "drawn", "driven", "eaten",
	"fallen", "felt", "forgotten", "forgiven", "found", "frozen", "given", "gone", "grown",
	"held", "hidden", "hit", "hung", "kept", "known", "laid", "led", "left", "lent", "lost",
	"made", "meant", "met", "paid", "put", "read", "ridden", "rung", "risen", "run", "said",
	"seen", "sent", "set", "shaken", "shot", "shown", "shut", "sold", "sought", "spent",
	"spoken", "stolen", "struck", "sung", "swept", "taken", "taught", "thrown", "told",
	"thought", "torn", "understood", "woken", "won", "worn", "written",
}

// Adjectives ending in -ed that rarely signal passive voice after "to be".
var passiveFalsePositives = map[string]bool{
	"tired": true, "bored": true, "excited": true, "interested": true, "scared": true,
	"worried": true, "married": true, "supposed": true, "used": true, "red": true,
	"bed": true, "need": true, "seed": true, "speed": true, "indeed": true,
}

// PassivePass flags likely passive constructions.
func PassivePass(doc string) []Finding {
	var findings []Finding

	for _, m := range passivePattern.FindAllStringIndex(doc, -1) {
		text := doc[m[0]:m[1]]
		words := strings.Fields(text)
		participle := strings.ToLower(words[len(words)-1])
		if participle == "by" && len(words) > 1 {
			participle = strings.ToLower(words[len(words)-2])
		}
		if passiveFalsePositives[participle] {
			continue
		}

		msg := "Possible passive voice"
		if strings.HasSuffix(strings.ToLower(text), " by") {
			msg = "Passive voice: consider naming the actor first"
		}
		findings = append(findings, Finding{
			Pass:    "passive",
			Type:    model.TypePassive,
			Line:    lineAt(doc, m[0]),
			From:    m[0],
			To:      m[1],
			Text:    text,
			Message: fmt.Sprintf("%s (%q)", msg, text),
		})
	}

	return findings
}
