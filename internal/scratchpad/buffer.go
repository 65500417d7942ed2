package scratchpad

import "strings"

// Separator joins committed sessions in the buffer.
const Separator = "\n\n"

// Buffer holds the editable text built from completed sessions.
// It is not safe for concurrent use; Controller serializes access.
type Buffer struct {
	text strings.Builder
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Commit appends a completed session's transcript.
func (b *Buffer) Commit(sessionText string) {
	if b.text.Len() > 0 {
		b.text.WriteString(Separator)
	}
	b.text.WriteString(sessionText)
}

// ReplaceAll overwrites the buffer with a user edit.
func (b *Buffer) ReplaceAll(newText string) {
	b.text.Reset()
	b.text.WriteString(newText)
}

func (b *Buffer) Text() string {
	return b.text.String()
}

func (b *Buffer) Len() int {
	return b.text.Len()
}
