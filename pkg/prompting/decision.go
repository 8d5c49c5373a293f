package prompting

import (
	"strings"

	"github.com/pkg/errors"
)

// maximumDecisionAttempts is the number of unrecognized responses tolerated
// before a decision fails.
const maximumDecisionAttempts = 3

// Decide asks the user a yes/no question through the prompter. Responses are
// case-insensitive and may be abbreviated to "y" or "n". An empty response
// selects the default.
func Decide(prompter Prompter, question string, defaultAnswer bool) (bool, error) {
	// Ensure that we have a prompter.
	if prompter == nil {
		return false, errors.New("no prompter available")
	}

	// Ask until we get a recognizable answer.
	for attempt := 0; attempt < maximumDecisionAttempts; attempt++ {
		response, err := prompter.Prompt(question + DecisionSuffix)
		if err != nil {
			return false, errors.Wrap(err, "unable to prompt for decision")
		}
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "":
			return defaultAnswer, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err := prompter.Message("Please answer yes or no."); err != nil {
			return false, errors.Wrap(err, "unable to send message")
		}
	}

	// Give up.
	return false, errors.New("no valid decision received")
}
