package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

var ToolCreateDAO = mcp.NewTool("create_dao",
	mcp.WithDescription(
		"Register a DAO. Governance is token-based when tokenAddress is set, "+
			"membership-based when members are listed, and multisig otherwise."),
	mcp.WithString("name", mcp.Required(), mcp.Description("DAO name")),
	mcp.WithString("tokenAddress", mcp.Description("Governance token address")),
	mcp.WithArray("members",
		mcp.Description("Initial members"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"address":     map[string]any{"type": "string"},
				"votingPower": map[string]any{"type": "number"},
			},
			"required": []string{"address", "votingPower"},
		})),
	mcp.WithNumber("votingPeriod", mcp.Description("Voting period in seconds (default 3 days)")),
	mcp.WithNumber("votingDelay", mcp.Description("Delay before voting in seconds (default 1 day)")),
	mcp.WithNumber("quorumPercentage", mcp.Description("Quorum percentage (default 4)")),
	mcp.WithNumber("executionDelay", mcp.Description("Delay before execution in seconds (default 2 days)")),
)

var ToolCreateProposal = mcp.NewTool("create_dao_proposal",
	mcp.WithDescription("Open a proposal on a DAO."),
	mcp.WithString("daoAddress", mcp.Required(), mcp.Description("DAO address")),
	mcp.WithString("title", mcp.Required(), mcp.Description("Proposal title")),
	mcp.WithString("description", mcp.Required(), mcp.Description("Proposal description")),
	mcp.WithArray("options", mcp.Required(), mcp.Description("Voting options (at least 2)"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithNumber("startTime", mcp.Description("Unix time voting opens (default now)")),
	mcp.WithNumber("endTime", mcp.Required(), mcp.Description("Unix time voting closes")),
	mcp.WithNumber("quorum", mcp.Description("Quorum percentage (defaults to the DAO setting)")),
	mcp.WithNumber("snapshotBlock", mcp.Description("Block for the voting power snapshot")),
	mcp.WithArray("executionActions",
		mcp.Description("Calls to execute if the proposal passes"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target":    map[string]any{"type": "string"},
				"value":     map[string]any{"type": "string"},
				"signature": map[string]any{"type": "string"},
				"callData":  map[string]any{"type": "string"},
			},
		})),
)

var ToolListProposals = mcp.NewTool("list_dao_proposals",
	mcp.WithDescription("List a DAO's proposals, newest first."),
	mcp.WithString("daoAddress", mcp.Required(), mcp.Description("DAO address")),
	mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("active", "pending", "closed", "all"), mcp.DefaultString("all")),
	mcp.WithNumber("limit", mcp.Description("Maximum proposals to return (default 10)")),
	mcp.WithNumber("skip", mcp.Description("Proposals to skip (default 0)")),
)

var ToolProposalDetails = mcp.NewTool("get_dao_proposal_details",
	mcp.WithDescription("Get a proposal with its vote tally and, once closed, its result."),
	mcp.WithString("daoAddress", mcp.Required(), mcp.Description("DAO address")),
	mcp.WithString("proposalId", mcp.Required(), mcp.Description("Proposal ID")),
)

var ToolCastVote = mcp.NewTool("cast_dao_vote",
	mcp.WithDescription("Vote on an active proposal. Each address votes once."),
	mcp.WithString("daoAddress", mcp.Required(), mcp.Description("DAO address")),
	mcp.WithString("proposalId", mcp.Required(), mcp.Description("Proposal ID")),
	mcp.WithNumber("optionIndex", mcp.Required(), mcp.Description("Index of the chosen option")),
	mcp.WithString("reason", mcp.Description("Reason for the vote")),
)
