package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderSignature = "X-Picture-Signature"
	HeaderDate      = "X-Picture-Date"
	HeaderNonce     = "X-Picture-Nonce"
)

var ErrMissingSignature = errors.New("missing signature headers")

// SignedRequest is the part of an API call covered by the request signature.
// DeviceID binds the signature to the caller's session device.
type SignedRequest struct {
	DeviceID string
	Method   string
	Path     string
	Query    string
	Body     []byte
	Date     string
	Nonce    string
}

// NewSignedRequest canonicalises r: the query is re-encoded with keys sorted.
func NewSignedRequest(r *http.Request, deviceID string, body []byte, date, nonce string) SignedRequest {
	return SignedRequest{
		DeviceID: deviceID,
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.Query().Encode(),
		Body:     body,
		Date:     date,
		Nonce:    nonce,
	}
}

func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (r SignedRequest) canonical() string {
	return strings.Join([]string{
		r.DeviceID,
		strings.ToUpper(r.Method),
		r.Path,
		r.Query,
		BodyHash(r.Body),
		r.Date,
		r.Nonce,
	}, "\n")
}

func Sign(secret string, r SignedRequest) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.canonical()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, signature string, r SignedRequest) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, r)))
}

func SignatureHeaders(h http.Header) (date, nonce, signature string, err error) {
	date = h.Get(HeaderDate)
	nonce = h.Get(HeaderNonce)
	signature = h.Get(HeaderSignature)
	if date == "" || nonce == "" || signature == "" {
		return "", "", "", ErrMissingSignature
	}
	return date, nonce, signature, nil
}
