package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	votinghttp "marketdao/contexts/governance/dao-voting/transport/http"
)

// handleCastVote godoc
// @Summary Cast or replace a vote
// @Tags dao-voting
// @Accept json
// @Produce json
// @Param request body votinghttp.CastVoteRequest true "Vote"
// @Success 200 {object} Envelope{data=votinghttp.CastVoteResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Failure 422 {object} Envelope
// @Router /vote/cast [post]
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CastVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.CastVoteHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, "cast_vote", err)
		return
	}
	message := "vote recorded"
	if resp.Replaced {
		message = "vote replaced"
	}
	writeOK(w, message, resp)
}

// handleAutoVote godoc
// @Summary Evaluate auto-vote for one account or every enabled account
// @Tags dao-voting
// @Accept json
// @Produce json
// @Param request body votinghttp.AutoVoteRequest true "Auto-vote target"
// @Success 200 {object} Envelope{data=votinghttp.AutoVoteResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /vote/auto-vote [post]
func (s *Server) handleAutoVote(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.AutoVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if req.All {
		resp, err := s.voting.Handler.AutoVoteAllHandler(r.Context(), req.ProposalID)
		if err != nil {
			s.writeDomainError(w, r, "auto_vote_all", err)
			return
		}
		writeOK(w, "auto-vote fan-out completed", resp)
		return
	}
	resp, err := s.voting.Handler.AutoVoteHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, "auto_vote", err)
		return
	}
	message := "auto-vote skipped"
	if resp.Vote != nil {
		message = "auto-vote recorded"
	}
	writeOK(w, message, resp)
}

// handleResults godoc
// @Summary Live results for a proposal
// @Tags dao-voting
// @Produce json
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} Envelope{data=votinghttp.ResultsResponse}
// @Failure 404 {object} Envelope
// @Router /vote/results/{proposal_id} [get]
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ResultsHandler(r.Context(), chi.URLParam(r, "proposal_id"))
	if err != nil {
		s.writeDomainError(w, r, "results", err)
		return
	}
	writeOK(w, "results", resp)
}

// handleCreateProposal godoc
// @Summary Create a draft proposal
// @Tags dao-voting
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body votinghttp.CreateProposalRequest true "Proposal"
// @Success 201 {object} Envelope{data=votinghttp.ProposalResponse}
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /proposals [post]
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CreateProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.CreateProposalHandler(r.Context(), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		s.writeDomainError(w, r, "create_proposal", err)
		return
	}
	if resp.Replayed {
		writeOK(w, "proposal already created", resp)
		return
	}
	writeCreated(w, "proposal created", resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetProposalHandler(r.Context(), chi.URLParam(r, "proposal_id"))
	if err != nil {
		s.writeDomainError(w, r, "get_proposal", err)
		return
	}
	writeOK(w, "proposal", resp)
}

func (s *Server) handleOpenVoting(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.OpenVotingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.OpenVotingHandler(r.Context(), chi.URLParam(r, "proposal_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "open_voting", err)
		return
	}
	writeOK(w, "voting opened", resp)
}

func (s *Server) handleFinalizeProposal(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.FinalizeProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.FinalizeProposalHandler(r.Context(), chi.URLParam(r, "proposal_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "finalize_proposal", err)
		return
	}
	writeOK(w, "proposal finalized", resp)
}

func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.ExecuteProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.ExecuteProposalHandler(r.Context(), chi.URLParam(r, "proposal_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "execute_proposal", err)
		return
	}
	writeOK(w, "proposal executed", resp)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetPreferencesHandler(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeDomainError(w, r, "get_preferences", err)
		return
	}
	writeOK(w, "preferences", resp)
}

// handleUpdatePreferences godoc
// @Summary Replace parts of a user's auto-vote preferences
// @Tags dao-voting
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param request body votinghttp.UpdatePreferencesRequest true "Preferences patch"
// @Success 200 {object} Envelope{data=votinghttp.PreferencesResponse}
// @Failure 400 {object} Envelope
// @Router /preferences/{user_id} [put]
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.UpdatePreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.UpdatePreferencesHandler(r.Context(), chi.URLParam(r, "user_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "update_preferences", err)
		return
	}
	writeOK(w, "preferences updated", resp)
}

func (s *Server) handleSetDelegation(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.SetDelegationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.SetDelegationHandler(r.Context(), chi.URLParam(r, "user_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "set_delegation", err)
		return
	}
	writeOK(w, "delegation updated", resp)
}
