package access

import "testing"

func TestLevel_Meets(t *testing.T) {
	cases := []struct {
		have, required Level
		want           bool
	}{
		{LevelAdmin, LevelRead, true},
		{LevelAdmin, LevelWrite, true},
		{LevelAdmin, LevelAdmin, true},
		{LevelWrite, LevelAdmin, false},
		{LevelRead, LevelWrite, false},
		{LevelRead, LevelRead, true},
	}
	for _, c := range cases {
		if got := c.have.meets(c.required); got != c.want {
			t.Errorf("%s.meets(%s) = %v, want %v", c.have, c.required, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := truncate(short, 500); got != short {
		t.Errorf("expected short string unchanged, got %q", got)
	}

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	if got := truncate(string(long), maxSnippetLen); len(got) != maxSnippetLen {
		t.Errorf("expected truncation to %d bytes, got %d", maxSnippetLen, len(got))
	}
}

func TestNullableStr(t *testing.T) {
	if nullableStr("") != nil {
		t.Error("expected nil for empty string")
	}
	if got := nullableStr("abc"); got == nil || *got != "abc" {
		t.Error("expected pointer to non-empty string")
	}
}
