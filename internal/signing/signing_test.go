package signing

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := "s3cr3t"
	toSign := CanonicalString("POST", "/apps/1/events", "abc123", 1700000000000, "1.0", "")

	sig := Sign(secret, toSign)

	ok, malformed := Verify(secret, toSign, sig)
	if malformed {
		t.Fatalf("signature unexpectedly treated as malformed")
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	secret := "s3cr3t"
	toSign := CanonicalString("POST", "/apps/1/events", "abc123", 1700000000000, "1.0", "")
	sig := Sign(secret, toSign)

	tampered := []rune(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	ok, malformed := Verify(secret, toSign, string(tampered))
	if malformed {
		t.Fatalf("tampered signature should still decode as valid hex")
	}
	if ok {
		t.Fatalf("tampered signature must not verify")
	}
}

func TestVerifyMalformedHex(t *testing.T) {
	_, malformed := Verify("secret", "x", "not-hex-zz")
	if !malformed {
		t.Fatalf("expected malformed hex to be reported")
	}
}

func TestSignDeterministic(t *testing.T) {
	secret := "s3cr3t"
	toSign := CanonicalString("GET", "/apps/1/channels", "abc123", 42, "1.0", "d41d8cd98f00b204e9800998ecf8427e")

	if Sign(secret, toSign) != Sign(secret, toSign) {
		t.Fatalf("sign must be deterministic for identical inputs")
	}
}

func TestCanonicalStringOmitsEmptyBodyMD5(t *testing.T) {
	got := CanonicalString("POST", "/apps/1/events", "K", 1000, "1.0", "")
	want := "POST\n/apps/1/events\nauth_key=K&auth_timestamp=1000&auth_version=1.0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalStringIncludesBodyMD5(t *testing.T) {
	got := CanonicalString("POST", "/apps/1/events", "K", 1000, "1.0", "deadbeef")
	want := "POST\n/apps/1/events\nauth_key=K&auth_timestamp=1000&auth_version=1.0&body_md5=deadbeef"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeVersion(t *testing.T) {
	cases := map[string]string{
		"1":   "1.0",
		"1.0": "1.0",
		"2.1": "2.1",
	}
	for in, want := range cases {
		if got := NormalizeVersion(in); got != want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateSocketIDShape(t *testing.T) {
	id, err := GenerateSocketID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != socketIDDigits*2+1 {
		t.Fatalf("socket id %q has unexpected length %d", id, len(id))
	}
	if id[socketIDDigits] != '.' {
		t.Fatalf("socket id %q missing separator at expected position", id)
	}
}

func TestGenerateSocketIDUnique(t *testing.T) {
	a, _ := GenerateSocketID()
	b, _ := GenerateSocketID()
	if a == b {
		t.Fatalf("two consecutive socket ids collided: %s", a)
	}
}
