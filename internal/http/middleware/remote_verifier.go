package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// RemoteVerifier delegates token verification to the auth service's
// verify endpoint. Any transport error counts as "not authorized": the
// gateway's breaker protects the auth target, this middleware only needs
// the boolean answer.
type RemoteVerifier struct {
	verifyURL string
	client    *http.Client
}

func NewRemoteVerifier(verifyURL string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteVerifier{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, bool) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", false
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return "", false
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := v.client.Do(request)
	if err != nil {
		return "", false
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", false
	}

	var decoded struct {
		Valid  bool   `json:"valid"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", false
	}
	if !decoded.Valid || decoded.UserID == "" {
		return "", false
	}
	return decoded.UserID, true
}
