package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads one JSON object into dst. An empty body leaves dst
// zero. Unknown fields are ignored so clients can send the CSRF field.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", goIdentity.ErrValidation)
		}
		return fmt.Errorf("%w: malformed JSON body", goIdentity.ErrValidation)
	}
	return nil
}

type userJSON struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	PendingEmail string `json:"pendingEmail,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

func toUserJSON(p goIdentity.Profile) userJSON {
	u := userJSON{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
	}
	if p.PendingEmailChange != nil {
		u.PendingEmail = p.PendingEmailChange.Email
	}
	if !p.CreatedAt.IsZero() {
		u.CreatedAt = p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return u
}

type sessionJSON struct {
	User      userJSON `json:"user"`
	Token     string   `json:"token,omitempty"`
	ExpiresIn int64    `json:"expiresIn,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func newSessionJSON(p goIdentity.Profile, tokens *goIdentity.SessionTokens) sessionJSON {
	out := sessionJSON{User: toUserJSON(p)}
	if tokens != nil {
		out.Token = tokens.IDToken
		out.ExpiresIn = int64(tokens.ExpiresIn.Seconds())
	}
	return out
}

type messageJSON struct {
	Message string `json:"message"`
}
