package corpus

import (
	_ "embed"
	"strings"
)

//go:embed builtin.txt
var builtinText string

// Builtin returns the default long-form prompts. Each call returns a fresh
// slice.
func Builtin() []Message {
	msgs, err := decodeText(strings.NewReader(builtinText))
	if err != nil {
		panic("corpus: malformed builtin prompts: " + err.Error())
	}
	return msgs
}
