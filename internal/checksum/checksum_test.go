package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum = %s", got)
	}
	if SumString("hello") != want {
		t.Error("SumString differs from Sum")
	}
}

func TestMatches(t *testing.T) {
	sum := Sum([]byte("a"))
	if !Matches([]byte("a"), sum) {
		t.Error("same data should match")
	}
	if Matches([]byte("b"), sum) {
		t.Error("different data should not match")
	}
	if Matches(nil, "") {
		t.Error("empty sum should never match")
	}
}
