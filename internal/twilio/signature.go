package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// SignatureHeader is the HTTP header the provider signs requests with.
const SignatureHeader = "X-Twilio-Signature"

// ComputeSignature returns the expected signature for a form POST to url:
// base64(HMAC-SHA1(authToken, url + sorted(k+v ...))). Exposed so tests and
// local tooling can sign synthetic requests.
func ComputeSignature(authToken, url string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(url))
	for _, k := range keys {
		// The provider concatenates key and first value per parameter.
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks a request signature in constant time.
//
// url must be the operator-configured public webhook URL, not the URL the
// request physically arrived on: deployments behind proxies and load
// balancers rewrite the latter, and the provider signs against the former.
func ValidateSignature(authToken, url string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(authToken, url, form)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
