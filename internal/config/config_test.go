package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_abc")
	t.Setenv("PAYSTACK_WEBHOOK_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("CART_TTL", "bogus")

	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "sk_test_abc", cfg.PaystackWebhookSecret)
	assert.Equal(t, 30*24*time.Hour, cfg.CartTTL)
	assert.Equal(t, 4, cfg.NotifierWorkers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_live")
	t.Setenv("PAYSTACK_WEBHOOK_SECRET", "whsec")
	t.Setenv("PAYSTACK_VERIFY_ON_ORDER", "true")
	t.Setenv("STORAGE_PUBLIC_URL", "https://store.example.co/")
	t.Setenv("NOTIFIER_WORKERS", "9")

	cfg := Load()

	assert.Equal(t, "whsec", cfg.PaystackWebhookSecret)
	assert.True(t, cfg.PaystackVerifyOnOrder)
	assert.Equal(t, "https://store.example.co", cfg.StoragePublicURL)
	assert.Equal(t, 9, cfg.NotifierWorkers)
}

func TestPublic_OmitsSecrets(t *testing.T) {
	t.Setenv("PAYSTACK_PUBLIC_KEY", "pk_test")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test")
	t.Setenv("STORE_ANON_KEY", "anon")
	t.Setenv("STORE_SERVICE_KEY", "service")

	cfg := Load()
	b, err := json.Marshal(cfg.Public())
	require.NoError(t, err)

	assert.Contains(t, string(b), "pk_test")
	assert.Contains(t, string(b), "anon")
	assert.NotContains(t, string(b), "sk_test")
	assert.NotContains(t, string(b), "service")
	assert.Equal(t, "service", cfg.StoreServiceKey)
}

func TestLoadCoupons(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coupons.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coupons:\n  - code: ' SUMMER20 '\n    percent: 20\n"), 0o600))

	got, err := LoadCoupons(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"summer20": 20}, got)

	none, err := LoadCoupons("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestParseCoupons_Rejects(t *testing.T) {
	_, err := ParseCoupons([]byte("coupons:\n  - code: X\n    percent: 150\n"))
	assert.Error(t, err)

	_, err = ParseCoupons([]byte("coupons:\n  - code: ''\n    percent: 5\n"))
	assert.Error(t, err)
}
