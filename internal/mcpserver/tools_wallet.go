package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tools that use the configured wallet. Transfers and deployments need a
// signer; get_address, list_balances and the balance reads work read-only
// when an address is passed.

var ToolGetAddress = mcp.NewTool("get_address",
	mcp.WithDescription("Get the wallet address and the network it is on."),
)

var ToolListBalances = mcp.NewTool("list_balances",
	mcp.WithDescription("List the wallet's ETH and USDC balances, plus any extra ERC-20 tokens."),
	mcp.WithArray("tokens",
		mcp.Description("Extra ERC-20 contract addresses to include"),
		mcp.Items(map[string]any{"type": "string"})),
)

var ToolGetTestnetETH = mcp.NewTool("get_testnet_eth",
	mcp.WithDescription("Show where to get Base Sepolia test ETH for the wallet. Only on Base Sepolia."),
)

var ToolTransferFunds = mcp.NewTool("transfer_funds",
	mcp.WithDescription("Send ETH, USDC or an ERC-20 token and wait for the transaction to be mined."),
	mcp.WithString("recipient", mcp.Required(), mcp.Description("Recipient address")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in whole units (e.g. 0.01)")),
	mcp.WithString("assetId", mcp.Required(), mcp.Description("eth, usdc, or a token contract address")),
)

var ToolERC20Balance = mcp.NewTool("erc20_balance",
	mcp.WithDescription("Get the ERC-20 balance of an address."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Token contract address")),
	mcp.WithString("address", mcp.Description("Holder (defaults to the wallet)")),
)

var ToolERC20Transfer = mcp.NewTool("erc20_transfer",
	mcp.WithDescription("Transfer ERC-20 tokens from the wallet."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Token contract address")),
	mcp.WithString("toAddress", mcp.Required(), mcp.Description("Recipient address")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in whole tokens (e.g. 1.5)")),
)

var ToolERC20BatchTransfer = mcp.NewTool("erc20_batch_transfer",
	mcp.WithDescription(
		"Send one ERC-20 token to many recipients. Every recipient is validated before "+
			"anything is sent."),
	mcp.WithString("tokenAddress", mcp.Required(), mcp.Description("Token contract address")),
	mcp.WithArray("recipients",
		mcp.Required(),
		mcp.Description("Recipients with amounts in base units (wei)"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"address": map[string]any{"type": "string"},
				"amount":  map[string]any{"type": "string"},
			},
			"required": []string{"address", "amount"},
		})),
)

var ToolERC721Balance = mcp.NewTool("erc721_balance",
	mcp.WithDescription("Get how many tokens of an ERC-721 collection an address holds."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Collection contract address")),
	mcp.WithString("address", mcp.Description("Holder (defaults to the wallet)")),
)

var ToolERC721Transfer = mcp.NewTool("erc721_transfer",
	mcp.WithDescription("Transfer an ERC-721 token from the wallet."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Collection contract address")),
	mcp.WithString("toAddress", mcp.Required(), mcp.Description("Recipient address")),
	mcp.WithString("tokenId", mcp.Required(), mcp.Description("Token ID")),
)

var ToolCallContract = mcp.NewTool("call_contract",
	mcp.WithDescription(
		"Call a contract function. View and pure functions return their decoded outputs; "+
			"other functions are sent as a transaction."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Contract address")),
	mcp.WithArray("abi", mcp.Required(), mcp.Description("Contract ABI"), mcp.Items(map[string]any{"type": "object"})),
	mcp.WithString("functionName", mcp.Required(), mcp.Description("Function to call")),
	mcp.WithArray("functionArgs", mcp.Description("Arguments in ABI order")),
	mcp.WithString("value", mcp.Description("ETH to send with the call (e.g. 0.01)")),
)

var ToolDeployContract = mcp.NewTool("deploy_contract",
	mcp.WithDescription("Deploy a contract from its ABI and creation bytecode."),
	mcp.WithArray("abi", mcp.Required(), mcp.Description("Contract ABI"), mcp.Items(map[string]any{"type": "object"})),
	mcp.WithString("bytecode", mcp.Required(), mcp.Description("0x-prefixed creation bytecode")),
	mcp.WithArray("constructorArgs", mcp.Description("Constructor arguments in ABI order")),
)

var ToolMintNFT = mcp.NewTool("mint_nft",
	mcp.WithDescription("Mint an NFT from the configured collection."),
	mcp.WithString("to", mcp.Description("Recipient (defaults to the wallet)")),
	mcp.WithString("tokenURI", mcp.Required(), mcp.Description("Token metadata URI")),
)

var ToolBuyHeuristCredits = mcp.NewTool("buy_heurist_credits",
	mcp.WithDescription("Buy Heurist AI credits on Base with USDC, HEU or WETH."),
	mcp.WithString("tokenSymbol", mcp.Required(), mcp.Description("Payment token"), mcp.Enum("USDC", "HEU", "WETH")),
	mcp.WithNumber("amount", mcp.Required(), mcp.Description("Amount of the payment token")),
)
