package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the read-only data tools.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssetPrice = mcp.NewTool("asset_price",
	mcp.WithDescription(
		"Get current prices for one or more cryptocurrencies. "+
			"Quotes come from Binance, with CoinGecko filling any symbol Binance does not list."),
	mcp.WithArray("assetSymbols",
		mcp.Required(),
		mcp.Description("Asset symbols to price (e.g. [\"BTC\", \"ETH\", \"USDC\"])"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("currency",
		mcp.Description("Quote currency (default USD)"),
		mcp.DefaultString("USD")),
	mcp.WithBoolean("includeMetadata",
		mcp.Description("Include 24h volume and price change"),
		mcp.DefaultBool(false)),
)

var ToolTokenPrice = mcp.NewTool("token_price",
	mcp.WithDescription("Get the USD price of a Base token from Dexscreener."),
	mcp.WithString("contractAddress",
		mcp.Required(),
		mcp.Description("Token contract address")),
)

var ToolTokenInfo = mcp.NewTool("token_info_query",
	mcp.WithDescription(
		"Get the main trading pair of a Base token from Dexscreener: DEX, price, "+
			"24h volume, market cap, pair age and social links."),
	mcp.WithString("contractAddress",
		mcp.Required(),
		mcp.Description("Token contract address")),
)

var ToolAddressTransactions = mcp.NewTool("etherscan_address_transactions",
	mcp.WithDescription(
		"List normal transactions of an address from Etherscan, with the ERC-20 "+
			"transfers each transaction made."),
	mcp.WithString("address", mcp.Required(), mcp.Description("Address to query")),
	mcp.WithNumber("chainId", mcp.Description("Chain ID (defaults to the configured chain)")),
	mcp.WithNumber("startblock", mcp.Description("First block (default 0)")),
	mcp.WithNumber("endblock", mcp.Description("Last block (default latest)")),
	mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
	mcp.WithNumber("offset", mcp.Description("Transactions per page, 1-1000 (default 5)")),
	mcp.WithString("sort", mcp.Description("Sort order"), mcp.Enum("asc", "desc")),
)

var ToolContractInfo = mcp.NewTool("etherscan_contract_info",
	mcp.WithDescription("Get verification details of a contract from Etherscan: name, compiler, license, proxy and ABI."),
	mcp.WithString("address", mcp.Required(), mcp.Description("Contract address")),
	mcp.WithNumber("chainId", mcp.Description("Chain ID (defaults to the configured chain)")),
)

var ToolRecentTransactions = mcp.NewTool("recent_transactions",
	mcp.WithDescription("Get the five most recent transactions of an address."),
	mcp.WithString("address", mcp.Required(), mcp.Description("Address to query")),
	mcp.WithNumber("chainId", mcp.Description("Chain ID (defaults to the configured chain)")),
)

var ToolListNFTs = mcp.NewTool("list_nfts",
	mcp.WithDescription("List the ERC-721 and ERC-1155 tokens an address holds."),
	mcp.WithString("address", mcp.Description("Owner address (defaults to the wallet)")),
	mcp.WithString("contractAddress", mcp.Description("Only list tokens of this collection")),
	mcp.WithNumber("chainId", mcp.Description("Chain ID (defaults to the configured chain)")),
)

var ToolTransactionStatus = mcp.NewTool("transaction_status",
	mcp.WithDescription("Check whether a transaction is pending, succeeded or failed, with gas used and confirmations."),
	mcp.WithString("txHash", mcp.Required(), mcp.Description("Transaction hash (0x + 64 hex characters)")),
	mcp.WithNumber("chainId", mcp.Description("Chain ID for the explorer link (defaults to the configured chain)")),
)

var ToolResolveENS = mcp.NewTool("resolve_ens_name",
	mcp.WithDescription("Resolve an ENS name (e.g. vitalik.eth) to an address."),
	mcp.WithString("name", mcp.Required(), mcp.Description("ENS name")),
	mcp.WithNumber("chainId", mcp.Description("1 (mainnet, default) or 11155111 (Sepolia)"), mcp.DefaultNumber(1)),
)

var ToolLookupENS = mcp.NewTool("lookup_ens_address",
	mcp.WithDescription("Find the primary ENS name of an address."),
	mcp.WithString("address", mcp.Required(), mcp.Description("Address to look up")),
	mcp.WithNumber("chainId", mcp.Description("1 (mainnet, default) or 11155111 (Sepolia)"), mcp.DefaultNumber(1)),
)

var ToolFarcasterUsername = mcp.NewTool("farcaster_username",
	mcp.WithDescription("Find the verified Ethereum address of a Farcaster user."),
	mcp.WithString("username", mcp.Required(), mcp.Description("Farcaster username")),
)

var ToolBuilderScore = mcp.NewTool("get_builder_score",
	mcp.WithDescription("Get the Talent Protocol builder score of an address with a summary of its profile."),
	mcp.WithString("builderAddress", mcp.Required(), mcp.Description("Builder wallet address")),
)

var ToolMorphoVaults = mcp.NewTool("get_morpho_vaults",
	mcp.WithDescription("List Morpho vaults on Base with their APY and deposits."),
	mcp.WithString("assetSymbol", mcp.Description("Only vaults of this asset (e.g. USDC)")),
)

var ToolValidateABI = mcp.NewTool("validate_abi",
	mcp.WithDescription("Check that a contract ABI is well formed before deploying or calling it."),
	mcp.WithArray("abi", mcp.Required(), mcp.Description("Contract ABI"), mcp.Items(map[string]any{"type": "object"})),
	mcp.WithString("bytecode", mcp.Description("Creation bytecode (optional)")),
	mcp.WithBoolean("validateConstructor", mcp.DefaultBool(true), mcp.Description("Check the constructor")),
	mcp.WithBoolean("validateFunctions", mcp.DefaultBool(true), mcp.Description("Check function definitions")),
	mcp.WithBoolean("validateEvents", mcp.DefaultBool(true), mcp.Description("Check event definitions")),
)

var ToolOptimizeGas = mcp.NewTool("optimize_gas",
	mcp.WithDescription("Recommend a gas price for the chosen speed and estimate the cost in ETH and USD."),
	mcp.WithString("strategy", mcp.Description("Speed"), mcp.Enum("fast", "medium", "slow"), mcp.DefaultString("medium")),
	mcp.WithString("maxGasPrice", mcp.Description("Upper bound in gwei (optional)")),
	mcp.WithNumber("gasLimit", mcp.Description("Gas units to price (default 21000)")),
)

var ToolContractEvents = mcp.NewTool("get_contract_events",
	mcp.WithDescription("Fetch logs of one event emitted by a contract over a block range (at most 5000 blocks)."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Contract address")),
	mcp.WithString("event", mcp.Required(), mcp.Description("Event signature, e.g. Transfer(address,address,uint256)")),
	mcp.WithNumber("fromBlock", mcp.Description("First block (default: 1000 blocks ago)")),
	mcp.WithNumber("toBlock", mcp.Description("Last block (default: latest)")),
)

var ToolAnalyzeNFTCollection = mcp.NewTool("analyze_nft_collection",
	mcp.WithDescription("Read the name, symbol and supply of an NFT collection on Base."),
	mcp.WithString("contractAddress", mcp.Required(), mcp.Description("Collection contract address")),
)

var ToolValidateClankerToken = mcp.NewTool("validate_clanker_token",
	mcp.WithDescription("Check a token name, symbol and image against Clanker's launch rules."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Token name (1-50 characters)")),
	mcp.WithString("symbol", mcp.Required(), mcp.Description("Token symbol (A-Z, 0-9, up to 10 characters)")),
	mcp.WithString("image", mcp.Required(), mcp.Description("Image URI starting with ipfs://")),
)
