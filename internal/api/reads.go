package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/chain"
	xerrors "Parry-QV/internal/errors"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	projects, err := s.views.Projects(r.Context())
	if err != nil && !xerrors.HasCode(err, chain.CodeEmptyResult) {
		writeError(w, err)
		return
	}
	out := make([]projectDTO, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	address := r.PathValue("address")
	if _, err := chain.ParseAddress(address); err != nil {
		writeError(w, err)
		return
	}
	found, err := s.views.Project(r.Context(), address)
	if err != nil && !xerrors.HasCode(err, chain.CodeEmptyResult) {
		writeError(w, err)
		return
	}
	summary, takeErr := found.Take()
	if err != nil || takeErr != nil {
		writeError(w, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("project %s not found", address)))
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(summary))
}

func (s *Server) handlePolls(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	project, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	polls, err := s.views.Polls(r.Context(), project)
	if err != nil && !xerrors.HasCode(err, chain.CodeEmptyResult) {
		writeError(w, err)
		return
	}
	out := make([]pollDTO, 0, len(polls))
	for _, p := range polls {
		out = append(out, toPollDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	project, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	poll, err := s.views.Poll(r.Context(), project, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPollDTO(poll))
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	project, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	member, err := s.views.Membership(r.Context(), project, wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipDTO(project, wallet, member))
}

func (s *Server) handleVoteRecord(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	project, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	record, err := s.views.VoteRecord(r.Context(), project, index, wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoteRecordDTO(project, index, wallet, record))
}

func (s *Server) handlePassport(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		unavailable(w, "链上视图")
		return
	}
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	score, err := s.views.PassportScore(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, passportDTO{Wallet: wallet.Hex(), Raw: decimal(score.Raw), Display: score.Display})
}

// handleQuote 预估投票的二次方成本，不做任何链上校验。
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	votes, ok := new(big.Int).SetString(strings.TrimSpace(query.Get("votes")), 10)
	if !ok {
		badRequest(w, "votes must be an integer")
		return
	}
	var tokensLeft *big.Int
	if raw := strings.TrimSpace(query.Get("tokensLeft")); raw != "" {
		parsed, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			badRequest(w, "tokensLeft must be an integer")
			return
		}
		tokensLeft = parsed
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(chain.Quote(votes, tokensLeft)))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeJSON(w, http.StatusOK, sessionDTO{})
		return
	}
	s.writeSession(w, r)
}

// writeSession 输出当前会话，未连接时返回 connected=false。
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request) {
	address, err := s.session.ActiveAddress(r.Context())
	if err != nil {
		if xerrors.HasCode(err, chain.CodeSenderUnavailable) {
			writeJSON(w, http.StatusOK, sessionDTO{})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO{Connected: true, Address: address.Hex()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, xerrors.New(chain.CodeWalletUnavailable, ""))
		return
	}
	address, err := s.session.Connect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO{Connected: true, Address: address.Hex()})
}

// handleSelectAccount 切换钱包当前账户，账户变更会使相关视图失效。
func (s *Server) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, xerrors.New(chain.CodeWalletUnavailable, ""))
		return
	}
	var req selectAccountRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		badRequest(w, "请求体解析失败: "+err.Error())
		return
	}
	account, err := chain.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.SelectAccount(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, r)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, xerrors.New(chain.CodeWalletUnavailable, ""))
		return
	}
	if err := s.session.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO{})
}

func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.PathValue("hash"))
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		badRequest(w, "hash must be a 0x-prefixed 32-byte transaction hash")
		return
	}
	if s.explorerURL == "" {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "no block explorer is configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": hash,
		"url":  strings.TrimRight(s.explorerURL, "/") + "/" + hash,
	})
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	addr, err := chain.ParseAddress(r.PathValue(name))
	if err != nil {
		writeError(w, err)
		return common.Address{}, false
	}
	return addr, true
}

func pathIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		badRequest(w, "poll index must be a non-negative integer")
		return 0, false
	}
	return index, true
}
