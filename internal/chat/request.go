package chat

import "github.com/chitchat-dev/chitchat/internal/token"

// Request is one completed prompt/response turn, with the sampling parameters
// it was generated under. Values are never mutated after creation.
type Request struct {
	Model     string
	Prompt    string
	Response  string
	Timestamp string

	// Optional sampling parameters; nil means the parameter was not supplied.
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Length is the token cost of the turn. It always bills against the request's
// own stored model, so historical turns keep stable costs even if the
// session's active model changes later.
func (r Request) Length(counter token.Counter) (int, error) {
	promptLen, err := counter.Count(r.Prompt, r.Model)
	if err != nil {
		return 0, err
	}
	responseLen, err := counter.Count(r.Response, r.Model)
	if err != nil {
		return 0, err
	}
	return promptLen + responseLen, nil
}
