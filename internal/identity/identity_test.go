package identity

import "testing"

func TestRecordValid(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want bool
	}{
		{"valid id", Record{ID: "user-1"}, true},
		{"empty id", Record{ID: ""}, false},
		{"whitespace id", Record{ID: "   "}, false},
		{"tab and newline id", Record{ID: "\t\n"}, false},
		{"valid id with email", Record{ID: "u2", Email: "a@seomax.com"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v for %+v", got, tc.want, tc.rec)
			}
		})
	}
}

func TestIsAdminEmail(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"a@seomax.com", true},
		{"A@SEOMAX.COM", true},
		{"a@other.com", false},
		{"a@notseomax.com", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsAdminEmail(tc.email, "seomax.com"); got != tc.want {
			t.Fatalf("IsAdminEmail(%q) = %v, want %v", tc.email, got, tc.want)
		}
	}
}

func TestIsAdminEmailEmptyDomain(t *testing.T) {
	if IsAdminEmail("a@seomax.com", "") {
		t.Fatalf("expected false when no org domain is configured")
	}
}
