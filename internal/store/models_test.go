package store

import "testing"

func TestParseWeakETag(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`W/"3"`, "3"},
		{"3", "3"},
		{`W/"abc"`, "abc"},
	}
	for _, tc := range cases {
		etag := ParseWeakETag(tc.in)
		if etag == nil {
			t.Fatalf("ParseWeakETag(%q) = nil", tc.in)
		}
		if etag.VersionID() != tc.want {
			t.Errorf("ParseWeakETag(%q).VersionID() = %q; want %q", tc.in, etag.VersionID(), tc.want)
		}
	}

	if ParseWeakETag("") != nil {
		t.Error("ParseWeakETag(\"\") should be nil (no precondition)")
	}
}

func TestWeakETagString(t *testing.T) {
	if got := ETagFromVersion("12").String(); got != `W/"12"` {
		t.Errorf("String() = %q; want %q", got, `W/"12"`)
	}
}

func TestWeakETagRoundTrip(t *testing.T) {
	etag := ETagFromVersion("5")
	if got := ParseWeakETag(etag.String()).VersionID(); got != "5" {
		t.Errorf("round trip = %q; want 5", got)
	}
}

func TestMustRowVersionSentinel(t *testing.T) {
	if got := mustRowVersion(nil); got != -1 {
		t.Errorf("mustRowVersion(nil) = %d; want -1", got)
	}
	if got := mustRowVersion(ETagFromVersion("junk")); got != -1 {
		t.Errorf("mustRowVersion(junk) = %d; want -1", got)
	}
	if got := mustRowVersion(ETagFromVersion("42")); got != 42 {
		t.Errorf("mustRowVersion(42) = %d; want 42", got)
	}
}
