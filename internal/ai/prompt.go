package ai

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/margin/internal/model"
)

const responseFormat = `Report each problem as its own block:

ISSUE: <one-line explanation>
"<the exact passage from the text, copied character for character>"
SUGGESTION: "<replacement for that passage>"

Quote only text that appears in the document. Omit SUGGESTION when there is
no sensible rewrite. Do not number the blocks.`

var modeInstructions = map[string]string{
	ModePassive: "Find sentences written in the passive voice where an active " +
		"construction would be clearer. Name the hidden actor when you can.",
	ModeConsistency: "Find inconsistencies: contradictions in the timeline, " +
		"characters whose names, traits or knowledge change without reason, " +
		"and repeated phrases or facts.",
	ModeStyle: "Find wordy, vague or clumsy sentences and filler words. Keep " +
		"the author's voice; suggest the smallest rewrite that fixes each one.",
	ModeCritique: "Give an editor's critique of the piece. Label passive voice " +
		"as passive, and continuity problems as consistency issues.",
}

// Modes returns the supported analysis modes.
func Modes() []string {
	return []string{ModePassive, ModeConsistency, ModeStyle, ModeCritique, ModeCustom}
}

// ValidMode reports whether mode is supported.
func ValidMode(mode string) bool {
	for _, m := range Modes() {
		if m == mode {
			return true
		}
	}
	return false
}

// ModeType returns the annotation type forced by mode, or nil when the
// type should be inferred from the response text.
func ModeType(mode string) *model.Type {
	var t model.Type
	switch mode {
	case ModePassive:
		t = model.TypePassive
	case ModeConsistency:
		t = model.TypeConsistency
	case ModeStyle:
		t = model.TypeStyle
	case ModeCustom:
		t = model.TypeCustom
	default:
		return nil
	}
	return &t
}

// BuildPrompt returns the system and user messages for req.
func BuildPrompt(req Request) (system, user string) {
	instruction, ok := modeInstructions[req.Mode]
	if req.Mode == ModeCustom || !ok {
		instruction = strings.TrimSpace(req.Instruction)
		if instruction == "" {
			instruction = modeInstructions[ModeCritique]
		}
	}

	system = "You are a careful line editor reviewing prose.\n\n" + responseFormat
	user = fmt.Sprintf("%s\n\n<document>\n%s\n</document>", instruction, req.Document)
	return system, user
}
