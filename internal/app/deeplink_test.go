package app

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDeepLink(t *testing.T) {
	link := DeepLink("telegram.me", "AutoAnimeBot", 42, -1001234567890)

	prefix := "https://telegram.me/AutoAnimeBot?start="
	if !strings.HasPrefix(link, prefix) {
		t.Fatalf("unexpected link: %s", link)
	}
	token := strings.TrimPrefix(link, prefix)
	if strings.Contains(token, "=") {
		t.Fatalf("token must not be padded: %s", token)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "get-42051851851380" {
		t.Fatalf("unexpected payload: %s", raw)
	}

	id, ok := DecodeDeepLinkToken(token, -1001234567890)
	if !ok || id != 42 {
		t.Fatalf("round trip: got %d %v", id, ok)
	}
}

func TestDeepLink_NormalizesHostAndBot(t *testing.T) {
	got := DeepLink("https://t.me/", "@bot", 1, 10)
	want := "https://t.me/bot?start=" + base64.RawURLEncoding.EncodeToString([]byte("get-10"))
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestDecodeDeepLinkToken_Rejects(t *testing.T) {
	if _, ok := DecodeDeepLinkToken("!!", 10); ok {
		t.Fatalf("invalid base64 accepted")
	}
	bad := base64.RawURLEncoding.EncodeToString([]byte("put-10"))
	if _, ok := DecodeDeepLinkToken(bad, 10); ok {
		t.Fatalf("wrong prefix accepted")
	}
	odd := base64.RawURLEncoding.EncodeToString([]byte("get-11"))
	if _, ok := DecodeDeepLinkToken(odd, 10); ok {
		t.Fatalf("non multiple accepted")
	}
}

func TestDeepLink_LargeMessageIDDoesNotOverflow(t *testing.T) {
	const store = -1001234567890
	link := DeepLink("telegram.me", "Bot", 9_500_000, store)
	token := strings.TrimPrefix(link, "https://telegram.me/Bot?start=")

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "get-9511728394955000000" {
		t.Fatalf("unexpected payload: %s", raw)
	}

	id, ok := DecodeDeepLinkToken(token, store)
	if !ok || id != 9_500_000 {
		t.Fatalf("round trip: got %d %v", id, ok)
	}
}
