package auth

import (
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"pgregory.net/rapid"
)

const testBotToken = "123456:TEST-TOKEN"

func basePayload() TelegramPayload {
	return TelegramPayload{
		AuthDate:  1700000000000,
		FirstName: "Chompy",
		Username:  "chompy_the_gator",
		ID:        42,
	}
}

func TestTelegramHashIsDeterministic(t *testing.T) {
	a := TelegramHash(basePayload(), testBotToken)
	b := TelegramHash(basePayload(), testBotToken)
	if a != b {
		t.Errorf("hash not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestTelegramHashSensitivity(t *testing.T) {
	base := TelegramHash(basePayload(), testBotToken)

	withLastName := basePayload()
	withLastName.LastName = "Gator"
	if TelegramHash(withLastName, testBotToken) == base {
		t.Error("adding a field did not change the hash")
	}

	otherUser := basePayload()
	otherUser.ID = 43
	if TelegramHash(otherUser, testBotToken) == base {
		t.Error("changing the id did not change the hash")
	}

	if TelegramHash(basePayload(), "other-token") == base {
		t.Error("changing the bot token did not change the hash")
	}
}

func TestEncodeAuthTokenRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := TelegramPayload{
			AuthDate:  rapid.Int64Range(1, 2_000_000_000_000).Draw(rt, "authDate"),
			FirstName: rapid.StringMatching(`[A-Za-z]{1,12}`).Draw(rt, "firstName"),
			Username:  rapid.StringMatching(`[a-z_]{0,12}`).Draw(rt, "username"),
			ID:        rapid.Int64Range(1, 1_000_000_000).Draw(rt, "id"),
		}

		encoded, err := EncodeAuthToken(payload, testBotToken)
		if err != nil {
			rt.Fatal(err)
		}

		raw, err := url.QueryUnescape(encoded)
		if err != nil {
			rt.Fatalf("token not URL-decodable: %v", err)
		}

		parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				rt.Fatalf("unexpected signing method %v", token.Method)
			}
			return []byte(testBotToken), nil
		})
		if err != nil {
			rt.Fatalf("token does not verify: %v", err)
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			rt.Fatal("claims are not a map")
		}
		if int64(claims["id"].(float64)) != payload.ID {
			rt.Errorf("id claim = %v, want %d", claims["id"], payload.ID)
		}
		if claims["firstName"] != payload.FirstName {
			rt.Errorf("firstName claim = %v", claims["firstName"])
		}
		if claims["hash"] != TelegramHash(payload, testBotToken) {
			rt.Error("hash claim does not match the payload hash")
		}
	})
}

func TestNewTelegramPayloadFillsAuthDate(t *testing.T) {
	p := NewTelegramPayload(7, "A", "B", "ab")
	if p.AuthDate == 0 {
		t.Error("auth date not set")
	}
	if p.ID != 7 || p.FirstName != "A" || p.LastName != "B" || p.Username != "ab" {
		t.Errorf("payload fields wrong: %+v", p)
	}
}
