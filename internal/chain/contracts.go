package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractKind selects one of the well-known contract ABIs.
type ContractKind string

const (
	KindFactory  ContractKind = "factory"
	KindProject  ContractKind = "project"
	KindPassport ContractKind = "passport"
)

// Factory method names.
const (
	MethodGetProjects   = "getProjects"
	MethodCreateProject = "createProject"
)

// Project method names.
const (
	MethodGetProjectInfo = "getProjectInfo"
	MethodGetAllPolls    = "getAllPolls"
	MethodGetPollInfo    = "getPollInfo"
	MethodCreatePoll     = "createPoll"
	MethodJoinProject    = "joinProject"
	MethodCastVote       = "castVote"
	MethodGetUserInfo    = "getUserInfo"
	MethodGetVoteInfo    = "getVoteInfo"
)

// MethodGetPassportScore is the only method used on the scoring contract.
const MethodGetPassportScore = "getPassportScore"

// FactoryABI is the subset of the project factory interface used by the gateway.
const FactoryABI = `[
  {"type":"function","name":"getProjects","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"createProject","stateMutability":"nonpayable","inputs":[
    {"name":"_name","type":"string"},
    {"name":"_description","type":"string"},
    {"name":"_ipfsHash","type":"string"},
    {"name":"_tokensPerUser","type":"uint256"},
    {"name":"_tokensPerVerifiedUser","type":"uint256"},
    {"name":"_minScoreToJoin","type":"uint256"},
    {"name":"_minScoreToVerify","type":"uint256"},
    {"name":"_endTime","type":"uint256"}
  ],"outputs":[]}
]`

// ProjectABI is the per-project quadratic voting interface. Tuple component
// order is significant and mirrors the deployed contract.
const ProjectABI = `[
  {"type":"function","name":"getProjectInfo","stateMutability":"view","inputs":[],"outputs":[
    {"name":"name","type":"string"},
    {"name":"description","type":"string"},
    {"name":"ipfsHash","type":"string"},
    {"name":"tokensPerUser","type":"uint256"},
    {"name":"tokensPerVerifiedUser","type":"uint256"},
    {"name":"minScoreToJoin","type":"uint256"},
    {"name":"minScoreToVerify","type":"uint256"},
    {"name":"endTime","type":"uint256"}
  ]},
  {"type":"function","name":"getAllPolls","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"tuple[]","components":[
      {"name":"name","type":"string"},
      {"name":"description","type":"string"},
      {"name":"ipfsHash","type":"string"},
      {"name":"creator","type":"address"},
      {"name":"isActive","type":"bool"},
      {"name":"totalParticipants","type":"uint256"},
      {"name":"totalVotes","type":"uint256"}
    ]}
  ]},
  {"type":"function","name":"getPollInfo","stateMutability":"view","inputs":[
    {"name":"_pollId","type":"uint256"}
  ],"outputs":[
    {"name":"name","type":"string"},
    {"name":"description","type":"string"},
    {"name":"ipfsHash","type":"string"},
    {"name":"creator","type":"address"},
    {"name":"isActive","type":"bool"},
    {"name":"totalParticipants","type":"uint256"},
    {"name":"totalVotes","type":"uint256"}
  ]},
  {"type":"function","name":"createPoll","stateMutability":"nonpayable","inputs":[
    {"name":"_name","type":"string"},
    {"name":"_description","type":"string"},
    {"name":"_ipfsHash","type":"string"}
  ],"outputs":[]},
  {"type":"function","name":"joinProject","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"castVote","stateMutability":"nonpayable","inputs":[
    {"name":"_pollId","type":"uint256"},
    {"name":"_votes","type":"int256"}
  ],"outputs":[]},
  {"type":"function","name":"getUserInfo","stateMutability":"view","inputs":[
    {"name":"_user","type":"address"}
  ],"outputs":[
    {"name":"isRegistered","type":"bool"},
    {"name":"isVerified","type":"bool"},
    {"name":"tokensLeft","type":"uint256"},
    {"name":"lastScoreCheck","type":"uint256"},
    {"name":"passportScore","type":"uint256"},
    {"name":"totalVotesCast","type":"uint256"}
  ]},
  {"type":"function","name":"getVoteInfo","stateMutability":"view","inputs":[
    {"name":"_pollId","type":"uint256"},
    {"name":"_voter","type":"address"}
  ],"outputs":[
    {"name":"votingPower","type":"int256"},
    {"name":"hasVoted","type":"bool"},
    {"name":"isVerified","type":"bool"},
    {"name":"timestamp","type":"uint256"}
  ]}
]`

// PassportABI is the read-only scoring contract interface.
const PassportABI = `[
  {"type":"function","name":"getPassportScore","stateMutability":"view","inputs":[
    {"name":"user","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	factoryABI  = mustParseABI(FactoryABI)
	projectABI  = mustParseABI(ProjectABI)
	passportABI = mustParseABI(PassportABI)
)

func mustParseABI(definition string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return &parsed
}

// ABIFor returns the parsed ABI for the contract kind.
func ABIFor(kind ContractKind) (*abi.ABI, error) {
	switch kind {
	case KindFactory:
		return factoryABI, nil
	case KindProject:
		return projectABI, nil
	case KindPassport:
		return passportABI, nil
	default:
		return nil, newError(CodeEncodingError, fmt.Sprintf("unknown contract kind %q", kind))
	}
}
