// Package talent fetches Talent Protocol passports and summarises a
// builder's standing.
package talent

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/mbd888/basemcp/internal/upstream"
	"github.com/mbd888/basemcp/internal/validation"
)

var (
	ErrNoAPIKey       = errors.New("Talent Protocol API key not configured")
	ErrInvalidAddress = errors.New("Invalid builder address")
)

// Client wraps the Talent Protocol passport API.
type Client struct {
	api    *upstream.Client
	hasKey bool
}

// New creates a client authenticated with apiKey.
func New(api *upstream.Client, apiKey string) *Client {
	return &Client{api: api.WithHeader("x-api-key", apiKey), hasKey: apiKey != ""}
}

// Passport is the subset of the passport document the analysis reads.
type Passport struct {
	Score          *float64 `json:"score"`
	ActivityScore  *float64 `json:"activity_score"`
	HumanCheckmark bool     `json:"human_checkmark"`
	Verified       bool     `json:"verified"`
	Profile        *struct {
		DisplayName string   `json:"display_name"`
		Bio         string   `json:"bio"`
		Tags        []string `json:"tags"`
	} `json:"passport_profile"`
	User *struct {
		Name string `json:"name"`
	} `json:"user"`
	Socials []Social `json:"passport_socials"`
}

// Social is one connected account.
type Social struct {
	Source             string `json:"source"`
	ProfileName        string `json:"profile_name"`
	ProfileURL         string `json:"profile_url"`
	ProfileDisplayName string `json:"profile_display_name"`
	ProfileBio         string `json:"profile_bio"`
	FollowerCount      *int64 `json:"follower_count"`
	FollowingCount     *int64 `json:"following_count"`
}

// Analysis summarises a passport.
type Analysis struct {
	BuilderScore    *float64       `json:"builderScore"`
	Name            string         `json:"name"`
	Bio             string         `json:"bio"`
	OverallStanding string         `json:"overallStanding"`
	IsVerified      bool           `json:"isVerified"`
	ActivityLevel   string         `json:"activityLevel"`
	Skills          []string       `json:"skills"`
	SocialPresence  SocialPresence `json:"socialPresence"`
	Github          Github         `json:"github"`
	Basename        Basename       `json:"basename"`
}

type SocialPresence struct {
	TotalFollowers     int64    `json:"totalFollowers"`
	ConnectedPlatforms []string `json:"connectedPlatforms"`
	PlatformCount      int      `json:"platformCount"`
}

type Github struct {
	Present    bool   `json:"present"`
	Username   string `json:"username,omitempty"`
	Followers  *int64 `json:"followers,omitempty"`
	Following  *int64 `json:"following,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

type Basename struct {
	Present    bool   `json:"present"`
	Name       string `json:"name,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// Report is the get_builder_score result.
type Report struct {
	BuilderAddress string    `json:"builderAddress"`
	Analysis       *Analysis `json:"analysis"`
}

// BuilderScore fetches and analyses the passport of address.
func (c *Client) BuilderScore(ctx context.Context, address string) (*Report, error) {
	if !validation.IsValidEthAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	p, err := c.passport(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch passport: %w", err)
	}
	return &Report{BuilderAddress: address, Analysis: Analyze(p)}, nil
}

func (c *Client) passport(ctx context.Context, address string) (*Passport, error) {
	if !c.hasKey {
		return nil, ErrNoAPIKey
	}
	var resp struct {
		Passport *Passport `json:"passport"`
	}
	if err := c.api.GetJSON(ctx, "/api/v2/passports/"+url.PathEscape(address), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Passport == nil {
		return nil, errors.New("Invalid API response format")
	}
	return resp.Passport, nil
}

// Analyze derives standing, activity and social reach from a passport.
func Analyze(p *Passport) *Analysis {
	a := &Analysis{
		BuilderScore:    p.Score,
		OverallStanding: "Unknown",
		ActivityLevel:   "Unknown",
		IsVerified:      p.HumanCheckmark || p.Verified,
		Skills:          []string{},
		Name:            "Unknown",
	}

	if p.Score != nil {
		switch s := *p.Score; {
		case s >= 80:
			a.OverallStanding = "Excellent"
		case s >= 60:
			a.OverallStanding = "Good"
		case s >= 40:
			a.OverallStanding = "Average"
		default:
			a.OverallStanding = "Developing"
		}
	}
	if p.ActivityScore != nil {
		switch s := *p.ActivityScore; {
		case s >= 80:
			a.ActivityLevel = "Very Active"
		case s >= 50:
			a.ActivityLevel = "Active"
		default:
			a.ActivityLevel = "Low Activity"
		}
	}

	platforms := make([]string, 0, len(p.Socials))
	for _, s := range p.Socials {
		platforms = append(platforms, s.Source)
		if s.FollowerCount != nil {
			a.SocialPresence.TotalFollowers += *s.FollowerCount
		}
		switch s.Source {
		case "github":
			if !a.Github.Present {
				a.Github = Github{Present: true, Username: s.ProfileName, Followers: s.FollowerCount, Following: s.FollowingCount, ProfileURL: s.ProfileURL}
			}
		case "basename":
			if !a.Basename.Present {
				a.Basename = Basename{Present: true, Name: s.ProfileName, ProfileURL: s.ProfileURL}
			}
		}
	}
	a.SocialPresence.ConnectedPlatforms = platforms
	a.SocialPresence.PlatformCount = len(platforms)

	switch {
	case p.Profile != nil && p.Profile.DisplayName != "":
		a.Name = p.Profile.DisplayName
	case p.User != nil && p.User.Name != "":
		a.Name = p.User.Name
	case len(p.Socials) > 0 && p.Socials[0].ProfileDisplayName != "":
		a.Name = p.Socials[0].ProfileDisplayName
	}

	if p.Profile != nil {
		a.Bio = p.Profile.Bio
		if p.Profile.Tags != nil {
			a.Skills = p.Profile.Tags
		}
	}
	if a.Bio == "" {
		for _, s := range p.Socials {
			if s.ProfileBio != "" {
				a.Bio = s.ProfileBio
				break
			}
		}
	}
	return a
}
