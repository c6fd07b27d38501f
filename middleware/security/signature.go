package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"PPInbox/logger"
	"PPInbox/tools/errs"
)

// SignatureHeader 平台对原始 body 做 HMAC-SHA256，十六进制放在这个头里
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature 对"原始 body 字节"验签，常量时间比较。
// secret 配置为空时跳过验签（显式运维选择，必须留日志）；
// 配置了 secret 则 fail closed：头缺失/格式错/不匹配一律拒绝。
func VerifySignature(body []byte, header string, secret []byte) error {
	if len(secret) == 0 {
		logger.Warn("[signature] app secret not configured, skipping webhook signature verification")
		return nil
	}

	if header == "" {
		return errs.ErrBadSignature.WrapMsg("signature header missing")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return errs.ErrBadSignature.WrapMsg("signature header malformed")
	}
	got, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return errs.ErrBadSignature.WrapMsg("signature not hex")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := mac.Sum(nil)

	// hmac.Equal 已含长度检查
	if !hmac.Equal(got, want) {
		return errs.ErrBadSignature.WrapMsg("signature mismatch")
	}
	return nil
}
