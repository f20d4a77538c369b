package models

import (
	"fmt"
	"strings"
)

type Wallet struct {
	Address string `json:"address"`
	UserID  string `json:"userId"`
}

type User struct {
	ID               string   `json:"id"`
	IsAdmin          bool     `json:"isAdmin"`
	TelegramID       int64    `json:"telegramId"`
	TelegramUsername string   `json:"telegramUsername"`
	Username         string   `json:"username"`
	IsBotSubscriber  bool     `json:"isBotSubscriber"`
	Wallets          []Wallet `json:"wallets"`
}

func (u *User) HasWallet() bool {
	return len(u.Wallets) > 0
}

func (u *User) DisplayName() string {
	var parts []string
	if u.Username != "" {
		parts = append(parts, u.Username)
	}
	if u.TelegramUsername != "" {
		parts = append(parts, fmt.Sprintf("@%s", u.TelegramUsername))
	}
	parts = append(parts, fmt.Sprintf("[%d]", u.TelegramID))
	return strings.Join(parts, " ")
}
