package translator

import (
	"fmt"
	"strings"

	"github.com/valpere/codeconvert/internal/language"
)

// BuildPrompt returns the system and user messages for a translation. The
// user message is always the raw input so it never has to be escaped.
func BuildPrompt(body TranslateBody) (system, user string) {
	var sb strings.Builder

	sb.WriteString("You are an expert programmer in all programming languages. ")

	switch {
	case body.InputLanguage == language.NaturalLanguage:
		sb.WriteString(fmt.Sprintf("Translate the natural language to %q code.\n", body.OutputLanguage))
		sb.WriteString("Only respond with the code, nothing else. Do not wrap it in ``` fences.")
	case body.OutputLanguage == language.NaturalLanguage:
		sb.WriteString(fmt.Sprintf("Translate the %q code to natural language.\n", body.InputLanguage))
		sb.WriteString("Explain what the code does in plain English. Do not include any code.")
	default:
		sb.WriteString(fmt.Sprintf("Translate the %q code to %q code.\n", body.InputLanguage, body.OutputLanguage))
		sb.WriteString("Preserve behaviour and use idiomatic constructs of the target language. ")
		sb.WriteString("Only respond with the code, nothing else. Do not wrap it in ``` fences.")
	}

	return sb.String(), body.InputCode
}
