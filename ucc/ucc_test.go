package ucc_test

import (
	"strings"
	"testing"

	"github.com/eoscore/eoscore/ucc"
)

func TestRoundTripFixedSalt(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	plaintext := []byte("fid=0x2A&fsid=7&path=/a/b")

	query := c.Encrypt(plaintext)
	if !strings.Contains(query, "cap.sym=") || !strings.Contains(query, "cap.msg=") {
		t.Fatalf("unexpected encrypt output: %q", query)
	}
	got := c.Decrypt(query)
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestRoundTripPerMessageSalt(t *testing.T) {
	c := ucc.NewCipher(ucc.ModePerMessageSalt, "s3cr3t")
	plaintext := []byte("hello world")

	query := c.Encrypt(plaintext)
	got := c.Decrypt(query)
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestTamperLastCharOfSymInvalidatesDecrypt(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	query := c.Encrypt([]byte("fid=0x2A&fsid=7&path=/a/b"))

	idx := strings.Index(query, "cap.sym=")
	symStart := idx + len("cap.sym=")
	symEnd := strings.Index(query[symStart:], "&") + symStart
	sym := query[symStart:symEnd]

	tampered := flipLastChar(sym)
	corrupted := query[:symStart] + tampered + query[symEnd:]

	if got := c.Decrypt(corrupted); got != nil {
		t.Fatalf("expected empty on tampered cap.sym, got %q", got)
	}
}

func flipLastChar(s string) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := s[len(s)-1]
	for _, r := range alphabet {
		if byte(r) != last {
			return s[:len(s)-1] + string(r)
		}
	}
	return s
}

func TestTamperMsgInvalidatesDecrypt(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	query := c.Encrypt([]byte("payload"))

	idx := strings.Index(query, "cap.msg=")
	msgStart := idx + len("cap.msg=")
	tampered := flipLastChar(query[msgStart:])
	corrupted := query[:msgStart] + tampered

	if got := c.Decrypt(corrupted); got != nil {
		t.Fatalf("expected empty on tampered cap.msg, got %q", got)
	}
}

func TestAADBindingCrossCiphertextSymSwapFails(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	q1 := c.Encrypt([]byte("first"))
	q2 := c.Encrypt([]byte("second"))

	sym1 := extractField(q1, "cap.sym")
	msg2 := extractField(q2, "cap.msg")
	swapped := "cap.sym=" + sym1 + "&cap.msg=" + msg2

	if got := c.Decrypt(swapped); got != nil {
		t.Fatalf("expected empty after swapping cap.sym across ciphertexts, got %q", got)
	}
}

func extractField(query, field string) string {
	for _, kv := range strings.Split(query, "&") {
		if strings.HasPrefix(kv, field+"=") {
			return strings.TrimPrefix(kv, field+"=")
		}
	}
	return ""
}

func TestDecryptEmptyOnGarbageInput(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	if got := c.Decrypt("not a capability at all"); got != nil {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := c.Decrypt(""); got != nil {
		t.Fatalf("expected empty on empty input, got %q", got)
	}
}

func TestDecryptEmptyOnShortMsg(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	query := c.Encrypt([]byte("x"))
	sym := extractField(query, "cap.sym")
	short := "cap.sym=" + sym + "&cap.msg=QQ"
	if got := c.Decrypt(short); got != nil {
		t.Fatalf("expected empty on short cap.msg, got %q", got)
	}
}

func TestDecryptEmptyOnWrongHeaderLength(t *testing.T) {
	c := ucc.NewCipher(ucc.ModeFixedSalt, "hunter2")
	if got := c.Decrypt("cap.sym=QQ&cap.msg=QQQQQQQQQQQQQQQQQQQQQQ"); got != nil {
		t.Fatalf("expected empty on undersized cap.sym, got %q", got)
	}
}
