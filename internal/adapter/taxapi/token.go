package taxapi

import "time"

// RefreshBuffer is subtracted from the server-reported lifetime so tokens are renewed
// before the remote side starts rejecting them.
const RefreshBuffer = 5 * time.Minute

// AccessToken is a bearer token and the instant it stops being used.
type AccessToken struct {
	Value     string
	TokenType string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be sent at now.
func (t AccessToken) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

type authRequest struct {
	ClientID     string `json:"ClientId"`
	ClientSecret string `json:"ClientSecret"`
	UserToken    string `json:"UserToken"`
}

type authEnvelope struct {
	AccessToken   string `json:"AccessToken"`
	TokenType     string `json:"TokenType"`
	ExpiresIn     int64  `json:"ExpiresIn"`
	StatusCode    int    `json:"StatusCode"`
	StatusName    string `json:"StatusName"`
	StatusMessage string `json:"StatusMessage"`
}

type errorEnvelope struct {
	StatusName string `json:"StatusName"`
	Errors     []struct {
		ID      string `json:"Id"`
		Name    string `json:"Name"`
		Message string `json:"Message"`
	} `json:"Errors"`
}
