package redactor

// Result is the outcome of one filter call.
type Result struct {
	// Result is the input with every matched character replaced by the mask.
	Result string `json:"result"`
	// Keywords lists the redacted spans in order of occurrence, spelled as
	// they appeared in the input.
	Keywords []string `json:"keywords"`
}

// Matched reports whether anything was redacted.
func (r Result) Matched() bool {
	return len(r.Keywords) > 0
}
