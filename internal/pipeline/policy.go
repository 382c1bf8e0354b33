package pipeline

import "fmt"

// RetrievalPolicy decides what a failed post fetch means for the caller.
type RetrievalPolicy int

const (
	// FailSoft logs the failure and continues with no posts.
	FailSoft RetrievalPolicy = iota
	// FailHard returns the failure to the caller.
	FailHard
)

func (p RetrievalPolicy) String() string {
	switch p {
	case FailSoft:
		return "soft"
	case FailHard:
		return "hard"
	}
	return fmt.Sprintf("RetrievalPolicy(%d)", int(p))
}

// ParsePolicy converts "soft" or "hard" to a RetrievalPolicy.
func ParsePolicy(s string) (RetrievalPolicy, error) {
	switch s {
	case "soft", "":
		return FailSoft, nil
	case "hard":
		return FailHard, nil
	}
	return FailSoft, fmt.Errorf("unknown retrieval policy %q (want soft or hard)", s)
}
