package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evetabi/prediction/internal/config"
)

// TelegramVerifier implements IdentityVerifier against Telegram WebApp
// initData: https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
type TelegramVerifier struct {
	botToken   string
	maxAuthAge time.Duration
}

// NewTelegramVerifier creates a TelegramVerifier from configuration.
func NewTelegramVerifier(cfg *config.Config) *TelegramVerifier {
	return &TelegramVerifier{
		botToken:   cfg.Identity.BotToken,
		maxAuthAge: cfg.Identity.MaxAuthAge,
	}
}

type telegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Verify validates the query-string-encoded initData blob: it rebuilds the
// sorted data-check-string, derives secret_key = HMAC-SHA256("WebAppData",
// bot_token), and compares the resulting hex digest against the blob's own
// hash field in constant time. A stale auth_date (older than maxAuthAge) is
// also rejected.
func (v *TelegramVerifier) Verify(tokenBlob string) (*UserDescriptor, error) {
	values, err := url.ParseQuery(tokenBlob)
	if err != nil {
		return nil, nil
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, nil
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}
	dataCheckString := strings.Join(parts, "\n")

	secretMAC := hmac.New(sha256.New, []byte("WebAppData"))
	secretMAC.Write([]byte(v.botToken))
	secretKey := secretMAC.Sum(nil)

	checkMAC := hmac.New(sha256.New, secretKey)
	checkMAC.Write([]byte(dataCheckString))
	calculated := hex.EncodeToString(checkMAC.Sum(nil))

	if !hmac.Equal([]byte(calculated), []byte(receivedHash)) {
		return nil, nil
	}

	if authDateStr := values.Get("auth_date"); authDateStr != "" {
		authDate, err := strconv.ParseInt(authDateStr, 10, 64)
		if err == nil && time.Since(time.Unix(authDate, 0)) > v.maxAuthAge {
			return nil, nil
		}
	}

	var user telegramUser
	if userJSON := values.Get("user"); userJSON != "" {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			return nil, nil
		}
	}
	if user.ID == 0 {
		return nil, nil
	}

	displayName := user.Username
	if displayName == "" {
		displayName = user.FirstName
	}

	return &UserDescriptor{
		ExternalID:  strconv.FormatInt(user.ID, 10),
		DisplayName: displayName,
	}, nil
}
