package persona

// Prediction is the outcome for one text.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Prediction struct {
	Ordinal    int     `json:"ordinal"`     // Position of the text in its batch
	Label      string  `json:"label"`       // Type code, e.g. "INTJ"
	Class      int     `json:"class"`       // Index of Label in Labels()
	Confidence float64 `json:"confidence"`  // Softmax probability of Class
	KeptTokens int     `json:"kept_tokens"` // Tokens found in the vocabulary
}
