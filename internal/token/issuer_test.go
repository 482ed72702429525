package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahabaat/voiceroom/internal/core"
)

const (
	testKey    = "APIxxxxxxxx"
	testSecret = "secretsecretsecretsecretsecret12"
)

func TestIssueMissingParams(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)

	_, err := issuer.Issue("", "alice")
	assert.ErrorIs(t, err, core.ErrBadRequest)

	_, err = issuer.Issue("room1", "")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestIssueMisconfigured(t *testing.T) {
	issuer := NewIssuer("", "")
	_, err := issuer.Issue("room1", "alice")
	assert.ErrorIs(t, err, core.ErrMisconfigured)
}

func TestIssueValidToken(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)
	before := time.Now()

	jwt, err := issuer.Issue("room1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, jwt)

	verifier, err := auth.ParseAPIToken(jwt)
	require.NoError(t, err)
	assert.Equal(t, testKey, verifier.APIKey())

	claims, err := verifier.Verify(testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity)
	require.NotNil(t, claims.Video)
	assert.Equal(t, "room1", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.GetCanPublish())
	assert.True(t, claims.Video.GetCanSubscribe())
	assert.True(t, claims.Video.GetCanPublishData())

	exp := tokenExpiry(t, jwt)
	want := before.Add(TokenTTL)
	assert.WithinDuration(t, want, exp, time.Second)
}

// tokenExpiry reads exp straight out of the payload segment; the auth
// verifier does not expose it.
func tokenExpiry(t *testing.T, jwt string) time.Time {
	t.Helper()
	parts := strings.Split(jwt, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var body struct {
		Exp int64 `json:"exp"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	return time.Unix(body.Exp, 0)
}
