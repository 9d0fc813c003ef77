package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// AttachmentSignature binds an object key to its uploader. It is stored on
// the attachment row so a key edited in the database no longer verifies.
func AttachmentSignature(secret string, userID int64, objectKey string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	mac.Write([]byte{':'})
	mac.Write([]byte(objectKey))
	return []byte(base64.RawURLEncoding.EncodeToString(mac.Sum(nil)))
}

func VerifyAttachment(secret string, userID int64, objectKey string, signature []byte) bool {
	if len(signature) == 0 {
		return false
	}
	return hmac.Equal(signature, AttachmentSignature(secret, userID, objectKey))
}
