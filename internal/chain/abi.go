package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI descriptions for the external contracts this layer talks to. The
// contracts themselves are deployed and maintained elsewhere; only the call
// surface below is consumed.

const registryABIJSON = `[
  {"type":"function","name":"getNextId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getRecord","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"creator","type":"address"},
    {"name":"contentRef","type":"string"},
    {"name":"format","type":"uint8"},
    {"name":"category","type":"string"},
    {"name":"deadline","type":"uint256"},
    {"name":"lockTime","type":"uint256"},
    {"name":"status","type":"uint8"},
    {"name":"isActive","type":"bool"},
    {"name":"feeBps","type":"uint16"}
  ]},
  {"type":"function","name":"getCopyCount","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPool","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
    {"name":"forTotal","type":"uint256"},
    {"name":"againstTotal","type":"uint256"},
    {"name":"totalStaked","type":"uint256"},
    {"name":"feeBps","type":"uint16"}
  ]},
  {"type":"function","name":"getPosition","stateMutability":"view","inputs":[{"name":"id","type":"uint256"},{"name":"account","type":"address"}],"outputs":[
    {"name":"forAmount","type":"uint256"},
    {"name":"againstAmount","type":"uint256"}
  ]},
  {"type":"function","name":"stakeFor","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"stakeAgainst","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"copy","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"create","stateMutability":"nonpayable","inputs":[
    {"name":"contentRef","type":"string"},
    {"name":"format","type":"uint8"},
    {"name":"category","type":"string"},
    {"name":"deadline","type":"uint256"},
    {"name":"feeBps","type":"uint16"},
    {"name":"amount","type":"uint256"}
  ],"outputs":[]},
  {"type":"event","name":"RecordCreated","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"contentRef","type":"string","indexed":false}
  ],"anonymous":false},
  {"type":"event","name":"Staked","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"staker","type":"address","indexed":true},
    {"name":"forSide","type":"bool","indexed":false},
    {"name":"amount","type":"uint256","indexed":false}
  ],"anonymous":false},
  {"type":"event","name":"Copied","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"copier","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}
  ],"anonymous":false}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const multicallABIJSON = `[
  {"type":"function","name":"tryAggregate","stateMutability":"payable","inputs":[
    {"name":"requireSuccess","type":"bool"},
    {"name":"calls","type":"tuple[]","components":[
      {"name":"target","type":"address"},
      {"name":"callData","type":"bytes"}
    ]}
  ],"outputs":[
    {"name":"returnData","type":"tuple[]","components":[
      {"name":"success","type":"bool"},
      {"name":"returnData","type":"bytes"}
    ]}
  ]}
]`

var (
	registryABI  = mustABI(registryABIJSON)
	erc20ABI     = mustABI(erc20ABIJSON)
	multicallABI = mustABI(multicallABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
