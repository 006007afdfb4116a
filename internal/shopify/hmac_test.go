package shopify

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "hush"

func TestValidateWebhookAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"id":632910392,"title":"IPod Nano - 8GB"}`)
	sig := Sign(body, testSecret)

	assert.True(t, ValidateWebhook(body, sig, testSecret))
	assert.True(t, ValidateWebhook(body, " "+sig+"\n", testSecret), "header whitespace is trimmed")
}

func TestValidateWebhookRejectsBodyBitFlips(t *testing.T) {
	body := []byte(`{"id":1,"title":"Shirt"}`)
	sig := Sign(body, testSecret)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			if ValidateWebhook(mutated, sig, testSecret) {
				t.Fatalf("flipping bit %d of byte %d still validated", bit, i)
			}
		}
	}
}

func TestValidateWebhookRejectsSignatureBitFlips(t *testing.T) {
	body := []byte(`{"id":1}`)
	raw, err := base64.StdEncoding.DecodeString(Sign(body, testSecret))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), raw...)
			mutated[i] ^= 1 << bit
			sig := base64.StdEncoding.EncodeToString(mutated)
			if ValidateWebhook(body, sig, testSecret) {
				t.Fatalf("flipping bit %d of signature byte %d still validated", bit, i)
			}
		}
	}
}

func TestValidateWebhookFailsClosed(t *testing.T) {
	body := []byte(`{}`)
	sig := Sign(body, testSecret)

	assert.False(t, ValidateWebhook(body, "", testSecret))
	assert.False(t, ValidateWebhook(body, sig, ""))
	assert.False(t, ValidateWebhook(body, "not base64 at all", testSecret))
	assert.False(t, ValidateWebhook(body, sig, "other-secret"))
}

func TestValidateOAuthQuery(t *testing.T) {
	q := url.Values{}
	q.Set("shop", "demo.myshopify.com")
	q.Set("code", "0907a61c0c8d55e99db179b68161bc00")
	q.Set("timestamp", "1337178173")
	q.Set("state", "abc")
	q.Set("hmac", SignOAuthQuery(q, testSecret))

	assert.True(t, ValidateOAuthQuery(q, testSecret))

	q.Set("signature", "ignored")
	assert.True(t, ValidateOAuthQuery(q, testSecret), "signature is excluded from the message")

	q.Set("timestamp", "1337178174")
	assert.False(t, ValidateOAuthQuery(q, testSecret))
}

func TestValidateOAuthQueryMalformedHMAC(t *testing.T) {
	q := url.Values{"shop": {"demo.myshopify.com"}, "hmac": {"zz-not-hex"}}
	assert.False(t, ValidateOAuthQuery(q, testSecret))

	q.Del("hmac")
	assert.False(t, ValidateOAuthQuery(q, testSecret))
}

func TestCanonicalQueryIsSorted(t *testing.T) {
	q := url.Values{"b": {"2"}, "a": {"1"}, "hmac": {"x"}}
	assert.Equal(t, "a=1&b=2", canonicalQuery(q))
}

func TestIsValidShopDomain(t *testing.T) {
	assert.True(t, IsValidShopDomain("demo-store.myshopify.com"))
	assert.True(t, IsValidShopDomain("Demo1.myshopify.com"))

	assert.False(t, IsValidShopDomain("-demo.myshopify.com"))
	assert.False(t, IsValidShopDomain("demo.example.com"))
	assert.False(t, IsValidShopDomain("https://demo.myshopify.com"))
	assert.False(t, IsValidShopDomain("evil.com/demo.myshopify.com"))
	assert.False(t, IsValidShopDomain(""))
}

func TestNormalizeShopDomain(t *testing.T) {
	assert.Equal(t, "demo.myshopify.com", NormalizeShopDomain(" https://Demo.myshopify.com/ "))
}
