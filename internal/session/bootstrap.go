// Package session provisions the collaborative workspace for a matched pair.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Session is what the bootstrap service hands back for a pair.
type Session struct {
	ID    string
	WSURL string
	// Credentials maps each participant to its connection token.
	Credentials map[string]string
}

// Bootstrapper creates a session for exactly two participants.
type Bootstrapper interface {
	CreateSession(ctx context.Context, participants [2]string) (Session, error)
}

// LocalBootstrapper provisions sessions without calling out: the id is a
// random UUID and every participant gets a token derived from the shared
// secret, so the collaboration service can verify it independently.
type LocalBootstrapper struct {
	secret []byte
	wsURL  string
}

func NewLocalBootstrapper(secret, wsURL string) *LocalBootstrapper {
	return &LocalBootstrapper{secret: []byte(secret), wsURL: wsURL}
}

func (b *LocalBootstrapper) CreateSession(_ context.Context, participants [2]string) (Session, error) {
	if participants[0] == "" || participants[1] == "" || participants[0] == participants[1] {
		return Session{}, fmt.Errorf("session needs two distinct participants, got %q and %q", participants[0], participants[1])
	}

	s := Session{
		ID:          "S_" + uuid.NewString(),
		WSURL:       b.wsURL,
		Credentials: make(map[string]string, 2),
	}
	for _, p := range participants {
		tok, err := b.Token(s.ID, p)
		if err != nil {
			return Session{}, err
		}
		s.Credentials[p] = tok
	}
	return s, nil
}

// Token derives the connection token of participant for sessionID.
func (b *LocalBootstrapper) Token(sessionID, participant string) (string, error) {
	r := hkdf.New(sha256.New, b.secret, []byte(sessionID), []byte("collab:"+participant))
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("derive token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
