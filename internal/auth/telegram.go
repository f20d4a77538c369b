package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TelegramPayload is the identity the backend authenticates a bot request
// with. AuthDate is unix milliseconds.
type TelegramPayload struct {
	AuthDate  int64
	FirstName string
	LastName  string
	Username  string
	ID        int64
	PhotoURL  string
}

func NewTelegramPayload(id int64, firstName, lastName, username string) TelegramPayload {
	return TelegramPayload{
		AuthDate:  time.Now().UnixMilli(),
		FirstName: firstName,
		LastName:  lastName,
		Username:  username,
		ID:        id,
	}
}

// TelegramHash computes the Telegram login-widget HMAC over the payload:
// empty fields are dropped, the rest serialized as sorted key=value lines
// joined with newlines, keyed with SHA-256 of the bot token.
func TelegramHash(p TelegramPayload, botToken string) string {
	fields := map[string]string{
		"auth_date":  strconv.FormatInt(p.AuthDate, 10),
		"first_name": p.FirstName,
		"id":         strconv.FormatInt(p.ID, 10),
		"last_name":  p.LastName,
		"photo_url":  p.PhotoURL,
		"username":   p.Username,
	}

	lines := make([]string, 0, len(fields))
	for key, value := range fields {
		if value == "" {
			continue
		}
		lines = append(lines, key+"="+value)
	}
	sort.Strings(lines)

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeAuthToken wraps the payload and its hash in an HS256 JWT signed
// with the bot token and URL-encodes it for use in query strings and JSON
// bodies alike.
func EncodeAuthToken(p TelegramPayload, botToken string) (string, error) {
	claims := jwt.MapClaims{
		"authDate":  p.AuthDate,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"username":  p.Username,
		"id":        p.ID,
		"photoURL":  p.PhotoURL,
		"hash":      TelegramHash(p, botToken),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(botToken))
	if err != nil {
		return "", err
	}
	return url.QueryEscape(signed), nil
}
