package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_Scenario1(t *testing.T) {
	// "\x1B[31mhello\x1B[0m\r\nworld\x07" -> "hello\nworld"
	input := "\x1B[31mhello\x1B[0m\r\nworld\x07"
	got := Sanitize([]byte(input))
	assert.Equal(t, "hello\nworld", got)
}

func TestSanitize_StripsOSC(t *testing.T) {
	input := "\x1B]0;window title\x07prompt$ "
	got := Sanitize([]byte(input))
	assert.Equal(t, "prompt$ ", got)
}

func TestSanitize_StripsOSCWithStringTerminator(t *testing.T) {
	input := "\x1B]0;title\x1B\\rest"
	got := Sanitize([]byte(input))
	assert.Equal(t, "rest", got)
}

func TestSanitize_NormalizesLineEndings(t *testing.T) {
	got := Sanitize([]byte("a\r\nb\rc\n"))
	assert.Equal(t, "a\nb\nc\n", got)
}

func TestSanitize_PreservesTabsAndPrintables(t *testing.T) {
	got := Sanitize([]byte("a\tb c"))
	assert.Equal(t, "a\tb c", got)
}

func TestSanitize_DropsOtherC0Controls(t *testing.T) {
	got := Sanitize([]byte("a\x00\x01\x02b"))
	assert.Equal(t, "ab", got)
}

func TestSanitize_HandlesSplitUTF8AcrossWrites(t *testing.T) {
	s := New()
	euro := "€" // 3-byte UTF-8 sequence
	b := []byte(euro)
	s.Write(b[:1])
	s.Write(b[1:])
	assert.Equal(t, euro, s.String())
}

func TestSanitize_Idempotent(t *testing.T) {
	input := "\x1B[31mhello\x1B[0m\r\nworld\x07"
	once := Sanitize([]byte(input))
	twice := Sanitize([]byte(once))
	assert.Equal(t, once, twice)
}

func TestSanitize_TwoCharEscape(t *testing.T) {
	// ESC followed by a non-[ non-] byte consumes exactly one more byte.
	got := Sanitize([]byte("a\x1BMb"))
	assert.Equal(t, "ab", got)
}
