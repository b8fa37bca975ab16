package textops

import "testing"

func TestApply(t *testing.T) {
	cases := []struct {
		action, in, want string
	}{
		{Uppercase, "Hello World", "HELLO WORLD"},
		{Lowercase, "Hello World", "hello world"},
		{Capitalize, "hello big-world 2day", "Hello Big-World 2day"},
		{Remove, "anything", ""},
		{" UPPERCASE ", "x", "X"},
	}
	for _, c := range cases {
		got, err := Apply(c.action, c.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.action, err)
		}
		if got != c.want {
			t.Fatalf("%s(%q)=%q want %q", c.action, c.in, got, c.want)
		}
	}
	if _, err := Apply("reverse", "x"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestApplyRange(t *testing.T) {
	out, sel, err := ApplyRange(Uppercase, "héllo wörld", 6, 11)
	if err != nil {
		t.Fatal(err)
	}
	if sel != "wörld" || out != "héllo WÖRLD" {
		t.Fatalf("got out=%q sel=%q", out, sel)
	}

	out, sel, err = ApplyRange(Remove, "abcdef", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if out != "abef" || sel != "cd" {
		t.Fatalf("got out=%q sel=%q", out, sel)
	}

	// clamped bounds
	out, sel, _ = ApplyRange(Uppercase, "abc", -3, 99)
	if out != "ABC" || sel != "abc" {
		t.Fatalf("got out=%q sel=%q", out, sel)
	}
	out, sel, _ = ApplyRange(Uppercase, "abc", 2, 1)
	if out != "abc" || sel != "" {
		t.Fatalf("got out=%q sel=%q", out, sel)
	}
}

func TestSlice(t *testing.T) {
	if got := Slice("日本語テキスト", 2, 4); got != "語テ" {
		t.Fatalf("Slice=%q", got)
	}
	if got := Slice("", 0, 5); got != "" {
		t.Fatalf("Slice on empty=%q", got)
	}
}
