package ssrf

import "net/http"

func newRequest(rawURL string) (*http.Request, error) {
	return http.NewRequest(http.MethodGet, rawURL, nil)
}
