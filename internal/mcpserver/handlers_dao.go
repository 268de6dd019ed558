package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/basemcp/internal/dao"
)

// DAO tools answer {success:true,...} or {success:false,error} as text.

func daoResult(key string, v any) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"success": true, key: v})
}

func daoError(err error) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"success": false, "error": err.Error()})
}

// actor is the address DAOs are created, proposed and voted from.
func (h *Handlers) actor() (string, error) {
	if h.Wallet == nil {
		return "", fmt.Errorf("wallet not configured")
	}
	addr, err := h.Wallet.Address()
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// HandleCreateDAO registers a DAO created by the wallet.
func (h *Handlers) HandleCreateDAO(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creator, err := h.actor()
	if err != nil {
		return daoError(err)
	}
	var members []dao.Member
	if err := decodeArg(req, "members", &members); err != nil {
		return daoError(err)
	}
	d, err := h.DAO.CreateDAO(ctx, creator, dao.CreateDAORequest{
		Name:             req.GetString("name", ""),
		TokenAddress:     req.GetString("tokenAddress", ""),
		Members:          members,
		VotingPeriod:     int64(req.GetFloat("votingPeriod", 0)),
		VotingDelay:      int64(req.GetFloat("votingDelay", 0)),
		QuorumPercentage: req.GetFloat("quorumPercentage", 0),
		ExecutionDelay:   int64(req.GetFloat("executionDelay", 0)),
	})
	if err != nil {
		return daoError(err)
	}
	return daoResult("dao", d)
}

// HandleCreateProposal opens a proposal.
func (h *Handlers) HandleCreateProposal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposer, err := h.actor()
	if err != nil {
		return daoError(err)
	}
	options, err := stringSlice(req, "options")
	if err != nil {
		return daoError(err)
	}
	var actions []dao.Action
	if err := decodeArg(req, "executionActions", &actions); err != nil {
		return daoError(err)
	}
	preq := dao.CreateProposalRequest{
		DAOAddress:       req.GetString("daoAddress", ""),
		Title:            req.GetString("title", ""),
		Description:      req.GetString("description", ""),
		Options:          options,
		StartTime:        int64(req.GetFloat("startTime", 0)),
		EndTime:          int64(req.GetFloat("endTime", 0)),
		ExecutionActions: actions,
	}
	if v, ok := req.GetArguments()["quorum"].(float64); ok {
		preq.Quorum = &v
	}
	preq.SnapshotBlock = optionalBlock(req, "snapshotBlock")

	p, err := h.DAO.CreateProposal(ctx, proposer, preq)
	if err != nil {
		return daoError(err)
	}
	return daoResult("proposal", p)
}

// HandleListProposals pages through a DAO's proposals.
func (h *Handlers) HandleListProposals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := h.DAO.ListProposals(ctx, dao.ListRequest{
		DAOAddress: req.GetString("daoAddress", ""),
		Status:     req.GetString("status", dao.StatusAll),
		Limit:      req.GetInt("limit", 10),
		Skip:       req.GetInt("skip", 0),
	})
	if err != nil {
		return daoError(err)
	}
	return flatten(page)
}

// HandleProposalDetails returns a proposal with its tally.
func (h *Handlers) HandleProposalDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, err := h.DAO.ProposalDetails(ctx, req.GetString("daoAddress", ""), req.GetString("proposalId", ""))
	if err != nil {
		return daoError(err)
	}
	return daoResult("proposal", d)
}

// HandleCastVote records the wallet's vote.
func (h *Handlers) HandleCastVote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	voter, err := h.actor()
	if err != nil {
		return daoError(err)
	}
	idx, ok := req.GetArguments()["optionIndex"].(float64)
	if !ok {
		return daoError(fmt.Errorf("optionIndex is required"))
	}
	receipt, err := h.DAO.CastVote(ctx, voter, dao.CastVoteRequest{
		DAOAddress:  req.GetString("daoAddress", ""),
		ProposalID:  req.GetString("proposalId", ""),
		OptionIndex: int(idx),
		Reason:      req.GetString("reason", ""),
	})
	if err != nil {
		return daoError(err)
	}
	return flatten(receipt)
}

// flatten merges v's JSON fields next to success:true.
func flatten(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return daoError(err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return daoError(err)
	}
	fields["success"] = true
	return jsonResult(fields)
}
