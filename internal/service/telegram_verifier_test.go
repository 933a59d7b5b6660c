package service_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/service"
)

// buildInitData signs a Telegram WebApp initData blob the same way the
// client SDK does, so tests can exercise TelegramVerifier.Verify end to end
// without a live Telegram deployment.
func buildInitData(botToken string, authDate time.Time, userID int64, username string) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAFoobar")
	values.Set("user", fmt.Sprintf(`{"id":%d,"username":%q,"first_name":"Ada"}`, userID, username))

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
	secretMAC.Write([]byte(botToken))
	secretKey := secretMAC.Sum(nil)

	checkMAC := hmac.New(sha256.New, secretKey)
	checkMAC.Write([]byte(dataCheckString))
	hash := hex.EncodeToString(checkMAC.Sum(nil))

	values.Set("hash", hash)
	return values.Encode()
}

func verifierCfg(botToken string, maxAge time.Duration) *config.Config {
	return &config.Config{
		Identity: config.IdentityConfig{
			BotToken:   botToken,
			MaxAuthAge: maxAge,
		},
	}
}

// TestTelegramVerifier_ValidBlob confirms a correctly signed initData blob
// resolves to a UserDescriptor with the username as display name.
func TestTelegramVerifier_ValidBlob(t *testing.T) {
	cfg := verifierCfg("bot-secret-123", 24*time.Hour)
	v := service.NewTelegramVerifier(cfg)

	blob := buildInitData("bot-secret-123", time.Now(), 555, "ada_lovelace")

	desc, err := v.Verify(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc == nil {
		t.Fatal("expected a descriptor for a validly signed blob")
	}
	if desc.ExternalID != "555" {
		t.Errorf("external id = %q, want %q", desc.ExternalID, "555")
	}
	if desc.DisplayName != "ada_lovelace" {
		t.Errorf("display name = %q, want %q", desc.DisplayName, "ada_lovelace")
	}
}

// TestTelegramVerifier_WrongSecret confirms a blob signed with the wrong bot
// token is rejected without error (nil, nil signals "invalid").
func TestTelegramVerifier_WrongSecret(t *testing.T) {
	cfg := verifierCfg("real-secret", 24*time.Hour)
	v := service.NewTelegramVerifier(cfg)

	blob := buildInitData("wrong-secret", time.Now(), 555, "ada")

	desc, err := v.Verify(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc != nil {
		t.Error("expected nil descriptor for a blob signed with the wrong secret")
	}
}

// TestTelegramVerifier_StaleAuthDate confirms an otherwise-valid blob is
// rejected once auth_date exceeds MaxAuthAge.
func TestTelegramVerifier_StaleAuthDate(t *testing.T) {
	cfg := verifierCfg("bot-secret-123", time.Hour)
	v := service.NewTelegramVerifier(cfg)

	blob := buildInitData("bot-secret-123", time.Now().Add(-2*time.Hour), 555, "ada")

	desc, err := v.Verify(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc != nil {
		t.Error("expected nil descriptor for a stale auth_date")
	}
}

// TestTelegramVerifier_MissingHash confirms a blob with no hash field is
// rejected.
func TestTelegramVerifier_MissingHash(t *testing.T) {
	cfg := verifierCfg("bot-secret-123", 24*time.Hour)
	v := service.NewTelegramVerifier(cfg)

	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":1,"username":"ada"}`)

	desc, err := v.Verify(values.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc != nil {
		t.Error("expected nil descriptor when hash field is absent")
	}
}

// TestTelegramVerifier_FallsBackToFirstName confirms display name falls back
// to first_name when username is empty.
func TestTelegramVerifier_FallsBackToFirstName(t *testing.T) {
	cfg := verifierCfg("bot-secret-123", 24*time.Hour)
	v := service.NewTelegramVerifier(cfg)

	blob := buildInitData("bot-secret-123", time.Now(), 777, "")

	desc, err := v.Verify(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc == nil {
		t.Fatal("expected a descriptor")
	}
	if desc.DisplayName != "Ada" {
		t.Errorf("display name = %q, want fallback %q", desc.DisplayName, "Ada")
	}
}
