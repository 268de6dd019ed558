package talent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/upstream"
)

const builder = "0x5f3aA0eB3b7d4A6e1b0C4a5F2D3e1A9b8C7d6E5f"

const passportJSON = `{"passport":{
	"score":72,"activity_score":55,"human_checkmark":true,
	"passport_profile":{"display_name":"","bio":"","tags":["solidity","go"]},
	"user":{"name":"Ada"},
	"passport_socials":[
		{"source":"farcaster","profile_name":"ada","follower_count":120,"profile_bio":"building onchain"},
		{"source":"github","profile_name":"ada-dev","profile_url":"https://github.com/ada-dev","follower_count":30,"following_count":4},
		{"source":"basename","profile_name":"ada.base.eth","profile_url":"https://base.org/name/ada"}
	]}}`

func newClient(t *testing.T, key string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(upstream.New("talent", srv.URL, upstream.Options{Timeout: time.Second, Retry: retry.Policy{MaxAttempts: 1}}), key)
}

func TestBuilderScore(t *testing.T) {
	c := newClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/passports/"+builder, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(passportJSON))
	})

	rep, err := c.BuilderScore(context.Background(), builder)
	require.NoError(t, err)
	a := rep.Analysis

	assert.Equal(t, builder, rep.BuilderAddress)
	assert.Equal(t, 72.0, *a.BuilderScore)
	assert.Equal(t, "Ada", a.Name)
	assert.Equal(t, "building onchain", a.Bio)
	assert.Equal(t, "Good", a.OverallStanding)
	assert.Equal(t, "Active", a.ActivityLevel)
	assert.True(t, a.IsVerified)
	assert.Equal(t, []string{"solidity", "go"}, a.Skills)
	assert.Equal(t, int64(150), a.SocialPresence.TotalFollowers)
	assert.Equal(t, []string{"farcaster", "github", "basename"}, a.SocialPresence.ConnectedPlatforms)
	assert.Equal(t, 3, a.SocialPresence.PlatformCount)
	assert.True(t, a.Github.Present)
	assert.Equal(t, "ada-dev", a.Github.Username)
	assert.Equal(t, int64(4), *a.Github.Following)
	assert.Equal(t, Basename{Present: true, Name: "ada.base.eth", ProfileURL: "https://base.org/name/ada"}, a.Basename)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(&Passport{})
	assert.Nil(t, a.BuilderScore)
	assert.Equal(t, "Unknown", a.Name)
	assert.Equal(t, "Unknown", a.OverallStanding)
	assert.Equal(t, "Unknown", a.ActivityLevel)
	assert.Empty(t, a.Skills)
	assert.False(t, a.Github.Present)

	out, err := json.Marshal(a.Github)
	require.NoError(t, err)
	assert.JSONEq(t, `{"present":false}`, string(out))
}

func TestAnalyze_Thresholds(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	tests := []struct {
		score, activity float64
		standing, level string
	}{
		{80, 80, "Excellent", "Very Active"},
		{60, 50, "Good", "Active"},
		{40, 49, "Average", "Low Activity"},
		{39.9, 0, "Developing", "Low Activity"},
	}
	for _, tt := range tests {
		a := Analyze(&Passport{Score: score(tt.score), ActivityScore: score(tt.activity)})
		assert.Equal(t, tt.standing, a.OverallStanding, tt.score)
		assert.Equal(t, tt.level, a.ActivityLevel, tt.activity)
	}
}

func TestBuilderScore_Errors(t *testing.T) {
	c := newClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Resource not found"}`))
	})

	_, err := c.BuilderScore(context.Background(), "0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = c.BuilderScore(context.Background(), builder)
	assert.EqualError(t, err, "Failed to fetch passport: API error (404): Resource not found")

	noKey := newClient(t, "", func(http.ResponseWriter, *http.Request) {})
	_, err = noKey.BuilderScore(context.Background(), builder)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
