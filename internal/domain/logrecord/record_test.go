package logrecord

import (
	"strings"
	"testing"
)

func TestIdentity_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		text string
		want string
	}{
		{"plain", "2026-02-08T10:00:00", "hello world here", "c4c92c025199b7eb79f967454d212870"},
		{"empty timestamp", "", "hello world here", "9a3e29be636bb4269129aa87bddcee30"},
		{"long text uses prefix", "2026-02-08T10:00:00", strings.Repeat("x", 250), "4c45efe7db20d12c4691b0e09710f78b"},
		{"prefix counts characters", "ts", strings.Repeat("é", 250), "c56cbc51da3e00b4b99ef209e4908523"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Identity(tc.ts, tc.text); got != tc.want {
				t.Errorf("Identity() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIdentity_IgnoresTextBeyondPrefix(t *testing.T) {
	base := strings.Repeat("a", IdentityPrefixLength)
	if Identity("t", base+"tail one") != Identity("t", base+"tail two") {
		t.Error("texts sharing the first 200 characters must share an identity")
	}
	if Identity("t1", base) == Identity("t2", base) {
		t.Error("different timestamps must produce different identities")
	}
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		ts   string
		want string
	}{
		{"2026-02-08T14:03:22.123456", "14:03:22"},
		{"2026-02-08T14:03:22+01:00", "14:03:22"},
		{"2026-02-08T14:03", "14:03"},
		{"2026-02-08", ""},
		{"", ""},
		{"2026-02-08T", ""},
		{"aTbTc", "b"},
		{"2026-2-8T09:15:00", "09:15:00"},
	}
	for _, tc := range tests {
		if got := TimeOfDay(tc.ts); got != tc.want {
			t.Errorf("TimeOfDay(%q) = %q, want %q", tc.ts, got, tc.want)
		}
	}
}

func TestNew_DerivedFields(t *testing.T) {
	text := strings.Repeat("ü", MaxBodyLength+10)
	r := New("2026-02-08T09:15:00", "", text, "2026-02-08")

	if r.Role() != "" {
		t.Errorf("Role() = %q, want it kept empty", r.Role())
	}
	if r.Time() != "09:15:00" {
		t.Errorf("Time() = %q", r.Time())
	}
	if r.Day() != "2026-02-08" {
		t.Errorf("Day() = %q", r.Day())
	}
	if got := len([]rune(r.Body())); got != MaxBodyLength {
		t.Errorf("body length = %d, want %d", got, MaxBodyLength)
	}
	if r.CharCount() != MaxBodyLength+10 {
		t.Errorf("CharCount() = %d, want %d", r.CharCount(), MaxBodyLength+10)
	}
	if r.ID() != Identity("2026-02-08T09:15:00", text) {
		t.Errorf("ID() does not match Identity()")
	}
}
