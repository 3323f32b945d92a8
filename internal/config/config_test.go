package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":        "postgres://localhost/scholaro",
		"REDIS_URL":           "redis://localhost:6379/0",
		"JWT_SECRET":          "secret",
		"RAZORPAY_KEY_ID":     "rzp_test_key",
		"RAZORPAY_KEY_SECRET": "rzp_secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, 300, cfg.Pricing.TaxRateBps)
	require.Equal(t, "INR", cfg.Pricing.Currency)
	require.Equal(t, 30*time.Minute, cfg.Checkout.SessionTTL)
	require.Equal(t, "20-M", cfg.CouponRateLimit)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE_BPS"] = "500"
	env["CURRENCY_CODE"] = "usd"
	env["CHECKOUT_SESSION_TTL"] = "5m"
	env["FRONTEND_BASE_URL"] = "https://scholaro.example/"
	env["BREAKER_FAILURE_RATE"] = "0.25"
	env["PORT"] = ":9090"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 500, cfg.Pricing.TaxRateBps)
	require.Equal(t, "USD", cfg.Pricing.Currency)
	require.Equal(t, 5*time.Minute, cfg.Checkout.SessionTTL)
	require.Equal(t, "https://scholaro.example", cfg.Checkout.FrontendBaseURL)
	require.InDelta(t, 0.25, cfg.Breaker.FailureRate, 0.0001)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiresGatewayKeys(t *testing.T) {
	env := baseEnv()
	env["RAZORPAY_KEY_SECRET"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "RAZORPAY")
}

func TestLoadRejectsTaxOutOfRange(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE_BPS"] = "20000"
	_, err := LoadForTests(env)
	require.Error(t, err)
}
