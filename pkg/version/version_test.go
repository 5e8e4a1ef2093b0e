package version

import "testing"

func TestParseValid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("got %d.%d, want %d.%d", v.Major, v.Minor, tt.major, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0", "1.x", "-1.0", ".1"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.0", "1.0", true},
		{"1.0", "1.3", true},
		{"1.0", "2.0", false},
		{"1.0", "garbage", false},
	}
	for _, tt := range tests {
		if got := Compatible(tt.a, tt.b); got != tt.want {
			t.Errorf("Compatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if !Compatible(Current, Current) {
		t.Error("Current must be compatible with itself")
	}
}

func TestBuild(t *testing.T) {
	if Build() == "" {
		t.Error("Build() must not be empty")
	}
}
