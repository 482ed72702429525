// Package token issues and fetches room-scoped credentials.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

// TokenTTL is the fixed validity window of every issued credential.
const TokenTTL = 6 * time.Hour

// Issuer signs room-scoped access tokens. Stateless; safe for concurrent use.
type Issuer struct {
	apiKey    string
	apiSecret string
}

func NewIssuer(apiKey, apiSecret string) *Issuer {
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret}
}

// Issue returns a signed credential authorizing identity to join room with
// publish, subscribe and publish-data rights. Parameter validation happens
// before any signing work.
func (i *Issuer) Issue(room domain.RoomName, identity domain.Identity) (string, error) {
	if room == "" || identity == "" {
		return "", core.ErrBadRequest
	}
	if i.apiKey == "" || i.apiSecret == "" {
		return "", core.ErrMisconfigured
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     string(room),
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(i.apiKey, i.apiSecret).
		SetIdentity(string(identity)).
		SetValidFor(TokenTTL).
		SetVideoGrant(grant)

	jwt, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrSigningFailure, err)
	}

	log.Info().
		Str("module", "token").
		Str("room", string(room)).
		Str("identity", string(identity)).
		Msg("issued token")
	return jwt, nil
}

// Fetch implements core.TokenSource for in-process callers.
func (i *Issuer) Fetch(_ context.Context, room domain.RoomName, identity domain.Identity) (string, error) {
	return i.Issue(room, identity)
}
