// Package prompting provides the interfaces through which negotiations ask
// the user to make decisions, along with command line and scripted
// implementations.
package prompting

// Prompter is the interface to which types supporting prompting must adhere.
// Implementations are not required to be safe for concurrent usage.
type Prompter interface {
	// Message should print a message to the user, returning an error if this is
	// not possible.
	Message(string) error
	// Prompt should print a prompt to the user, returning the user's response
	// or an error if this is not possible.
	Prompt(string) (string, error)
}

// Scripted is a Prompter that replays a fixed sequence of responses. Once the
// responses are exhausted, the final response is repeated. Messages are
// recorded. It is intended for headless operation and tests.
type Scripted struct {
	// Responses are the responses to return, in order.
	Responses []string
	// Messages records the messages received.
	Messages []string
	// Prompts records the prompts received.
	Prompts []string
	// index is the index of the next response.
	index int
}

// Message implements Prompter.Message.
func (s *Scripted) Message(message string) error {
	s.Messages = append(s.Messages, message)
	return nil
}

// Prompt implements Prompter.Prompt.
func (s *Scripted) Prompt(prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Responses) == 0 {
		return "", nil
	}
	response := s.Responses[s.index]
	if s.index < len(s.Responses)-1 {
		s.index++
	}
	return response, nil
}
