package prompting

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/mattn/go-isatty"

	"github.com/mutagen-io/gopass"
)

// ErrNoTerminal indicates that command line prompting isn't possible because
// standard input isn't a terminal.
var ErrNoTerminal = errors.New("standard input is not a terminal")

// CommandLine is a Prompter that interacts with the user through the
// controlling terminal.
type CommandLine struct{}

// terminalAvailable determines whether or not standard input is a terminal.
func terminalAvailable() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Message implements Prompter.Message.
func (CommandLine) Message(message string) error {
	_, err := fmt.Fprintln(os.Stderr, message)
	return err
}

// Prompt implements Prompter.Prompt.
func (CommandLine) Prompt(prompt string) (string, error) {
	return PromptCommandLine(prompt)
}

// PromptCommandLineWithResponseMode performs command line prompting using the
// specified response mode.
func PromptCommandLineWithResponseMode(prompt string, mode ResponseMode) (string, error) {
	// Verify that we have a terminal to read from.
	if !terminalAvailable() {
		return "", ErrNoTerminal
	}

	// Figure out which getter to use.
	var getter func() ([]byte, error)
	switch mode {
	case ResponseModeEcho:
		getter = gopass.GetPasswdEchoed
	case ResponseModeMasked:
		getter = gopass.GetPasswdMasked
	default:
		getter = gopass.GetPasswd
	}

	// Print the prompt.
	fmt.Fprint(os.Stderr, prompt)

	// Get the result.
	result, err := getter()
	if err != nil {
		return "", errors.Wrap(err, "unable to read response")
	}

	// Success.
	return string(result), nil
}

// PromptCommandLine performs command line prompting using an automatically
// determined response mode.
func PromptCommandLine(prompt string) (string, error) {
	return PromptCommandLineWithResponseMode(prompt, determineResponseMode(prompt))
}
