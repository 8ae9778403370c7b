package service

import "strings"

// contextBytes is how much of the response body is quoted in errors
const contextBytes = 100

// Error is a failed SERVICE request. It quotes the start and the end of
// the response body as far as it was read.
type Error struct {
	Endpoint string
	Msg      string
	First100 string
	Last100  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("Error while executing a SERVICE request to <")
	b.WriteString(e.Endpoint)
	b.WriteString(">: ")
	b.WriteString(e.Msg)
	b.WriteString(". First 100 bytes of the response: '")
	b.WriteString(e.First100)
	b.WriteByte('\'')
	if e.Last100 != "" {
		b.WriteString(", last 100 bytes: '")
		b.WriteString(e.Last100)
		b.WriteByte('\'')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
