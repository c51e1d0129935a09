package normalize

import "testing"

func TestEmail(t *testing.T) {
	cases := map[string]string{
		"  Foo@Example.COM ": "foo@example.com",
		"bar@example.com":    "bar@example.com",
		"":                   "",
	}
	for in, want := range cases {
		if got := Email(in); got != want {
			t.Fatalf("Email(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatPairKey_OrderIndependent(t *testing.T) {
	k1 := ChatPairKey("u1", "u2")
	k2 := ChatPairKey("u2", "u1")
	if k1 != k2 {
		t.Fatalf("pair key should not depend on argument order: %q vs %q", k1, k2)
	}
	if k1 != "u1:u2" {
		t.Fatalf("unexpected pair key: %q", k1)
	}
}

func TestChatPairKey_DistinctPairs(t *testing.T) {
	if ChatPairKey("u1", "u2") == ChatPairKey("u1", "u3") {
		t.Fatalf("different pairs must produce different keys")
	}
}
