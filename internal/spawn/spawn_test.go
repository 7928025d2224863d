package spawn

import (
	"strings"
	"testing"
)

func TestStreamLinesInvokesCallbackPerLine(t *testing.T) {
	var got []string
	streamLines(strings.NewReader("one\ntwo\nthree"), func(line string) {
		got = append(got, line)
	})
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v lines, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamLinesNilCallbackDoesNotPanic(t *testing.T) {
	streamLines(strings.NewReader("a\nb"), nil)
}

func TestAccumulatorJoinsWithNewlines(t *testing.T) {
	var a accumulator
	a.add("first")
	a.add("second")
	if got, want := a.String(), "first\nsecond"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	var a accumulator
	if got := a.String(); got != "" {
		t.Errorf("String() = %q, want empty string", got)
	}
}
