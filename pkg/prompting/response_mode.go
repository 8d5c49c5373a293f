package prompting

import (
	"strings"
)

// ResponseMode encodes how a prompt response should be displayed.
type ResponseMode uint8

const (
	// ResponseModeSecret indicates that a prompt response shouldn't be echoed.
	ResponseModeSecret ResponseMode = iota
	// ResponseModeMasked indicates that a prompt response should be masked.
	ResponseModeMasked
	// ResponseModeEcho indicates that a prompt response should be echoed.
	ResponseModeEcho
)

// DecisionSuffix is the suffix appended to yes/no questions.
const DecisionSuffix = " (yes/no)? "

// echoedPromptSuffixes are the prompt suffixes for which responses should be
// echoed.
var echoedPromptSuffixes = []string{
	DecisionSuffix,
	"(yes/no): ",
	"]: ",
}

// determineResponseMode determines the appropriate response mode for a prompt
// based on the prompt text. Decisions are echoed and everything else is
// treated as secret.
func determineResponseMode(prompt string) ResponseMode {
	for _, suffix := range echoedPromptSuffixes {
		if strings.HasSuffix(prompt, suffix) {
			return ResponseModeEcho
		}
	}
	return ResponseModeSecret
}
