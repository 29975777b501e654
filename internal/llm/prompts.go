package llm

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/structure_v1.txt
	structurePromptV1 string
)

// StructurePromptVersion identifies the prompt sent with every structuring call.
const StructurePromptVersion = "structure_v1"

// StructurePrompt returns the system prompt for structuring résumé text.
func StructurePrompt() string {
	return strings.TrimSpace(structurePromptV1)
}

// StructureUserMessage wraps the extracted text for the user turn.
func StructureUserMessage(text string) string {
	return "Résumé text:\n" + text
}
