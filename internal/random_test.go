package internal

import "testing"

func TestNewCodeLengthAndCharset(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewCode(digits)
		if err != nil {
			t.Fatalf("NewCode(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NewCode(%d) length = %d", digits, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("NewCode(%d) produced non-digit %q", digits, c)
			}
		}
	}
}

func TestNewCodeRejectsBadLengths(t *testing.T) {
	for _, digits := range []int{0, 3, 11, -1} {
		if _, err := NewCode(digits); err == nil {
			t.Fatalf("NewCode(%d) succeeded", digits)
		}
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	a := HashCode("123456")
	b := HashCode("123456")
	c := HashCode("654321")

	if a != b {
		t.Fatal("same code hashed differently")
	}
	if a == c {
		t.Fatal("different codes collided")
	}
}
