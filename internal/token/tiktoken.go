package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens with the exact BPE encoding of the model.
type Tiktoken struct{}

func NewTiktoken() Tiktoken { return Tiktoken{} }

func (Tiktoken) Count(text, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return len(enc.Encode(text, nil, nil)), nil
}
