package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	bob   = "0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb"
	carol = "0xcccccccccccccccccccccccccccccccccccccccc"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Nanosecond) // distinct ids per call
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(NewMemoryStore(), WithClock(c.Now)), c
}

func TestCreateDAO_Defaults(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)
	assert.Equal(t, GovernanceMultisig, d.GovernanceType)
	assert.Equal(t, Settings{VotingPeriod: 259200, VotingDelay: 86400, QuorumPercentage: 4, ExecutionDelay: 172800}, d.Settings)
	assert.Len(t, d.Address, 42)
	assert.True(t, strings.HasPrefix(d.Address, "0x"))
	assert.Equal(t, strings.ToLower(alice), d.Creator)
	assert.Nil(t, d.TokenAddress)
	assert.Empty(t, d.Members)

	got, err := s.GetDAO(ctx, strings.ToUpper("0x"+d.Address[2:]))
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
}

func TestCreateDAO_GovernanceType(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	tok, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Token", TokenAddress: carol})
	require.NoError(t, err)
	assert.Equal(t, GovernanceToken, tok.GovernanceType)
	assert.Equal(t, carol, *tok.TokenAddress)

	mem, err := s.CreateDAO(ctx, alice, CreateDAORequest{
		Name:    "Members",
		Members: []Member{{Address: alice, VotingPower: 3}, {Address: bob, VotingPower: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, GovernanceMembership, mem.GovernanceType)
	assert.Equal(t, 4.0, mem.TotalPower())
	assert.Equal(t, 3.0, mem.PowerOf(strings.ToLower(alice)))
	assert.Equal(t, 1.0, mem.PowerOf(carol))

	assert.NotEqual(t, tok.Address, mem.Address)
}

func TestCreateDAO_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateDAORequest
		want string
	}{
		{"no name", CreateDAORequest{Name: "  "}, "DAO name is required"},
		{"bad token", CreateDAORequest{Name: "x", TokenAddress: "0x12"}, "Invalid token address: 0x12"},
		{"bad member", CreateDAORequest{Name: "x", Members: []Member{{Address: "nope", VotingPower: 1}}}, "Invalid member address: nope"},
		{"zero power", CreateDAORequest{Name: "x", Members: []Member{{Address: alice}}}, "Voting power for " + alice + " must be positive"},
		{"duplicate member", CreateDAORequest{Name: "x", Members: []Member{{Address: alice, VotingPower: 1}, {Address: strings.ToLower(alice), VotingPower: 2}}}, "Duplicate member address: " + strings.ToLower(alice)},
		{"quorum", CreateDAORequest{Name: "x", QuorumPercentage: 120}, "Quorum percentage must be between 0 and 100, got 120"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateDAO(ctx, alice, tt.req)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestCreateProposal(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)

	end := c.Now().Add(48 * time.Hour).Unix()
	p, err := s.CreateProposal(ctx, bob, CreateProposalRequest{
		DAOAddress:  d.Address,
		Title:       "Fund grants",
		Description: "Allocate 100k",
		Options:     []string{"For", "Against", "Abstain"},
		EndTime:     end,
		ExecutionActions: []Action{
			{Target: carol, Value: "0", Signature: "transfer(address,uint256)", CallData: "0x"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, p.ID, 10)
	assert.True(t, strings.HasPrefix(p.ID, "0x"))
	assert.Equal(t, d.Settings.QuorumPercentage, p.Quorum)
	assert.Equal(t, strings.ToLower(bob), p.Proposer)
	assert.Equal(t, end, p.EndTime)
	assert.LessOrEqual(t, p.StartTime, c.Now().Unix())
	assert.Equal(t, StatusActive, p.StatusAt(c.Now()))
}

func TestCreateProposal_Validation(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)
	now := c.Now().Unix()

	tests := []struct {
		name string
		req  CreateProposalRequest
		want string
	}{
		{"no dao", CreateProposalRequest{Title: "t", Options: []string{"a", "b"}, EndTime: now + 10}, "DAO address is required"},
		{"unknown dao", CreateProposalRequest{DAOAddress: carol, Title: "t", Options: []string{"a", "b"}, EndTime: now + 10}, "DAO not found: " + carol},
		{"one option", CreateProposalRequest{DAOAddress: d.Address, Title: "t", Options: []string{"a"}, EndTime: now + 10}, "At least 2 options are required"},
		{"duplicate option", CreateProposalRequest{DAOAddress: d.Address, Title: "t", Options: []string{"a", "a"}, EndTime: now + 10}, "Duplicate option: a"},
		{"no title", CreateProposalRequest{DAOAddress: d.Address, Options: []string{"a", "b"}, EndTime: now + 10}, "Proposal title is required"},
		{"end before start", CreateProposalRequest{DAOAddress: d.Address, Title: "t", Options: []string{"a", "b"}, StartTime: now + 100, EndTime: now + 100}, "End time must be after start time"},
		{"bad target", CreateProposalRequest{DAOAddress: d.Address, Title: "t", Options: []string{"a", "b"}, EndTime: now + 10, ExecutionActions: []Action{{Target: "x"}}}, "Invalid action target: x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateProposal(ctx, alice, tt.req)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestListProposals_StatusAndPaging(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)

	now := c.Now().Unix()
	mk := func(title string, start, end int64) {
		_, err := s.CreateProposal(ctx, alice, CreateProposalRequest{
			DAOAddress: d.Address, Title: title, Options: []string{"For", "Against"},
			StartTime: start, EndTime: end,
		})
		require.NoError(t, err)
	}
	mk("closed", now-200, now-100)
	mk("active", now-100, now+1000)
	mk("pending", now+500, now+1000)
	mk("active 2", now-10, now+1000)

	page, err := s.ListProposals(ctx, ListRequest{DAOAddress: d.Address})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, "active 2", page.Proposals[0].Title, "newest first")

	page, err = s.ListProposals(ctx, ListRequest{DAOAddress: d.Address, Status: StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, p := range page.Proposals {
		assert.Equal(t, StatusActive, p.Status)
	}

	page, err = s.ListProposals(ctx, ListRequest{DAOAddress: d.Address, Limit: 2, Skip: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Proposals, 2)
	assert.Equal(t, "pending", page.Proposals[0].Title)

	page, err = s.ListProposals(ctx, ListRequest{DAOAddress: d.Address, Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Proposals)

	_, err = s.ListProposals(ctx, ListRequest{DAOAddress: d.Address, Status: "open"})
	assert.EqualError(t, err, "Invalid status: open")
}

func TestCastVote_AndTally(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{
		Name:             "Council",
		Members:          []Member{{Address: alice, VotingPower: 60}, {Address: bob, VotingPower: 30}, {Address: carol, VotingPower: 10}},
		QuorumPercentage: 50,
	})
	require.NoError(t, err)
	p, err := s.CreateProposal(ctx, alice, CreateProposalRequest{
		DAOAddress: d.Address, Title: "Upgrade", Options: []string{"For", "Against", "Abstain"},
		EndTime: c.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	r, err := s.CastVote(ctx, alice, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID, OptionIndex: 0, Reason: "ship it"})
	require.NoError(t, err)
	assert.Equal(t, "For", r.Vote)
	assert.Equal(t, 60.0, r.Weight)
	assert.Equal(t, `Vote cast successfully: For - "ship it"`, r.Message)

	_, err = s.CastVote(ctx, alice, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID, OptionIndex: 1})
	assert.EqualError(t, err, fmt.Sprintf("Address %s has already voted on proposal %s", strings.ToLower(alice), p.ID))

	_, err = s.CastVote(ctx, bob, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID, OptionIndex: 3})
	assert.EqualError(t, err, "Invalid option index: 3 (proposal has 3 options)")

	_, err = s.CastVote(ctx, bob, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID, OptionIndex: 1})
	require.NoError(t, err)

	det, err := s.ProposalDetails(ctx, d.Address, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, det.Status)
	assert.Equal(t, map[string]float64{"For": 60, "Against": 30, "Abstain": 0}, det.Votes)
	assert.Equal(t, 90.0, det.TotalWeight)
	require.NotNil(t, det.VoterParticipation)
	assert.InDelta(t, 0.9, *det.VoterParticipation, 1e-9)
	assert.True(t, det.QuorumReached)
	assert.Equal(t, "For", det.LeadingOption)
	assert.Empty(t, det.Result, "no result while voting is open")
	require.Len(t, det.Voters, 2)
	assert.Equal(t, "ship it", det.Voters[0].Reason)

	c.Advance(2 * time.Hour)
	det, err = s.ProposalDetails(ctx, d.Address, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, det.Status)
	assert.Equal(t, ResultPassed, det.Result)

	_, err = s.CastVote(ctx, carol, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID, OptionIndex: 0})
	assert.EqualError(t, err, fmt.Sprintf("Proposal %s is not open for voting (status: closed)", p.ID))

	raw, err := json.Marshal(det)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"Upgrade"`)
	assert.Contains(t, string(raw), `"result":"passed"`)
}

func TestTally_Results(t *testing.T) {
	now := time.Unix(1000, 0)
	p := &Proposal{ID: "0x01", Options: []string{"For", "Against"}, StartTime: 0, EndTime: 500, Quorum: 50}
	members := &DAO{Members: []Member{{Address: alice, VotingPower: 10}, {Address: bob, VotingPower: 10}}}

	vote := func(voter string, idx int, w float64) *Vote {
		return &Vote{Voter: voter, OptionIndex: idx, Weight: w}
	}

	det := tally(members, p, []*Vote{vote(alice, 1, 10)}, now)
	assert.Equal(t, ResultRejected, det.Result)

	det = tally(members, p, []*Vote{vote(alice, 0, 5)}, now)
	assert.Equal(t, ResultQuorumNotReached, det.Result)

	det = tally(members, p, []*Vote{vote(alice, 0, 10), vote(bob, 1, 10)}, now)
	assert.Equal(t, ResultRejected, det.Result, "a tie does not pass")
	assert.Empty(t, det.LeadingOption)

	det = tally(&DAO{}, p, nil, now)
	assert.Equal(t, ResultQuorumNotReached, det.Result)
	assert.Nil(t, det.VoterParticipation)

	det = tally(&DAO{}, p, []*Vote{vote(carol, 0, 1)}, now)
	assert.Equal(t, ResultPassed, det.Result)
}

func TestCastVote_PendingAndUnknown(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)
	p, err := s.CreateProposal(ctx, alice, CreateProposalRequest{
		DAOAddress: d.Address, Title: "Later", Options: []string{"For", "Against"},
		StartTime: c.Now().Add(time.Hour).Unix(), EndTime: c.Now().Add(2 * time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = s.CastVote(ctx, bob, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID})
	assert.EqualError(t, err, fmt.Sprintf("Proposal %s is not open for voting (status: pending)", p.ID))

	_, err = s.CastVote(ctx, bob, CastVoteRequest{DAOAddress: d.Address, ProposalID: "0xdeadbeef"})
	assert.EqualError(t, err, "Proposal with ID 0xdeadbeef not found")

	_, err = s.CastVote(ctx, "", CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID})
	assert.EqualError(t, err, "A valid voter address is required")
}

func TestCastVote_ConcurrentSameVoter(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()
	d, err := s.CreateDAO(ctx, alice, CreateDAORequest{Name: "Builders"})
	require.NoError(t, err)
	p, err := s.CreateProposal(ctx, alice, CreateProposalRequest{
		DAOAddress: d.Address, Title: "Race", Options: []string{"For", "Against"},
		EndTime: c.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CastVote(ctx, bob, CastVoteRequest{DAOAddress: d.Address, ProposalID: p.ID}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
