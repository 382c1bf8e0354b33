package model

// Prediction is the outcome of one stacked-predictor invocation.
type Prediction struct {
	Ordinal    int     `json:"ordinal"`    // position of the input within its batch
	Label      string  `json:"label"`      // personality type, e.g. "INTJ"
	Class      int     `json:"class"`      // index into the label codec
	Confidence float64 `json:"confidence"` // softmax probability of Class
	KeptTokens int     `json:"kept_tokens"`
}

// UserPredictions is the serving loop's result for one user.
type UserPredictions struct {
	UserID      string   `json:"user_id"`
	PostCount   int      `json:"post_count"`
	Predictions []string `json:"predictions"`
}
