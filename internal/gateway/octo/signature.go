package octo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Sign 按键名排序后以 k=v 用 | 连接，HMAC-SHA256 取 hex。
// 回调签名与出站校验共用这一套算法。
func Sign(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 常数时间比较，防时序侧信道
func VerifySignature(fields map[string]string, secret, signature string) bool {
	expected := Sign(fields, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
