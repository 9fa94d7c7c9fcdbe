package octo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignIsOrderIndependent(t *testing.T) {
	fields := map[string]string{
		"b": "2",
		"a": "1",
		"c": "3",
	}
	// 期望值：键排序后 a=1|b=2|c=3
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("a=1|b=2|c=3"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign(fields, "s"))
}

func TestVerifySignature(t *testing.T) {
	fields := map[string]string{
		"shop_transaction_id": "code-1",
		"status":              "succeeded",
		"total_sum":           "2500",
	}
	sig := Sign(fields, "secret")

	assert.True(t, VerifySignature(fields, "secret", sig))
	assert.False(t, VerifySignature(fields, "other-secret", sig))
	assert.False(t, VerifySignature(fields, "secret", "deadbeef"))

	// 任何字段被篡改签名即失效
	fields["total_sum"] = "1"
	assert.False(t, VerifySignature(fields, "secret", sig))
}
