package blobstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Upload tokens are short-lived HMACs binding a destination path to the
// authorized content type and an expiry. The store re-verifies the MAC
// on the write path, so the grant is enforced server-side rather than
// advisory.

const tokenTTL = 15 * time.Minute

func mintToken(secret []byte, path, contentType string, now time.Time) string {
	expiry := now.Add(tokenTTL).Unix()
	return fmt.Sprintf("%d.%s", expiry, tokenMAC(secret, path, contentType, expiry))
}

func verifyToken(secret []byte, path, contentType, token string, now time.Time) error {
	expiryStr, mac, ok := strings.Cut(token, ".")
	if !ok {
		return fmt.Errorf("malformed token")
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed token expiry")
	}
	if now.Unix() > expiry {
		return fmt.Errorf("token expired")
	}
	want := tokenMAC(secret, path, contentType, expiry)
	if !hmac.Equal([]byte(mac), []byte(want)) {
		return fmt.Errorf("token signature mismatch")
	}
	return nil
}

func tokenMAC(secret []byte, path, contentType string, expiry int64) string {
	h := hmac.New(sha256.New, secret)
	fmt.Fprintf(h, "%s|%s|%d", path, contentType, expiry)
	return hex.EncodeToString(h.Sum(nil))
}
