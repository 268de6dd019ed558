package etherscan

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const notVerifiedABI = "Contract source code not verified"

type rawSource struct {
	SourceCode       string `json:"SourceCode"`
	ABI              string `json:"ABI"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
	EVMVersion       string `json:"EVMVersion"`
	LicenseType      string `json:"LicenseType"`
	Proxy            string `json:"Proxy"`
	Implementation   string `json:"Implementation"`
}

// ContractInfo is the etherscan_contract_info result.
type ContractInfo struct {
	Address          string `json:"address"`
	ContractName     string `json:"contractName"`
	CompilerVersion  string `json:"compilerVersion"`
	OptimizationUsed bool   `json:"optimizationUsed"`
	Runs             string `json:"runs"`
	EVMVersion       string `json:"evmVersion"`
	LicenseType      string `json:"licenseType"`
	Proxy            bool   `json:"proxy"`
	Implementation   string `json:"implementation,omitempty"`
	Verified         bool   `json:"verified"`
	ABI              string `json:"abi,omitempty"`
}

// ContractInfo returns verification metadata for a contract.
func (c *Client) ContractInfo(ctx context.Context, address string, chainID int64) (*ContractInfo, error) {
	var sources []rawSource
	err := c.call(ctx, chainID, url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
	}, &sources)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no contract information returned for %s", address)
	}

	src := sources[0]
	info := &ContractInfo{
		Address:          address,
		ContractName:     src.ContractName,
		CompilerVersion:  src.CompilerVersion,
		OptimizationUsed: src.OptimizationUsed == "1",
		Runs:             src.Runs,
		EVMVersion:       src.EVMVersion,
		LicenseType:      src.LicenseType,
		Proxy:            src.Proxy == "1",
		Implementation:   src.Implementation,
		Verified:         src.ABI != "" && !strings.HasPrefix(src.ABI, notVerifiedABI),
	}
	if info.Verified {
		info.ABI = src.ABI
	}
	return info, nil
}
