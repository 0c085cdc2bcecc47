package order

import "testing"

func TestValidPhone(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"+1 234 5678", true},
		{"89161234567", true},
		{"+7 (916) 123-45-67", true},
		{"8-916-123-45-67", true},
		{"12345678", true},
		{"1234567", false},
		{"+1234567", false},
		{"abc", false},
		{"", false},
		{"+", false},
		{"(916) 1234567", false},
		{"-79161234567", false},
		{"++79161234567", false},
		{"+7 916 123 45 67 ext", false},
		{"7916123456a", false},
	}
	for _, tc := range cases {
		if got := ValidPhone(tc.in); got != tc.want {
			t.Fatalf("ValidPhone(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
