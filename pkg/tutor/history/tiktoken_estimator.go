package history

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// NewTiktokenEstimator returns an Estimator backed by tiktoken-go for the given model.
// If the model is unknown, EncodingForModel returns an error.
func NewTiktokenEstimator(model string) (Estimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}
