package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/types"
)

// MomentsResponse lists the moments of a wallet
type MomentsResponse struct {
	Wallet  string         `json:"wallet"`
	Count   int            `json:"count"`
	Moments []types.Moment `json:"moments"`
}

// TransactionsResponse lists wallet-relative transactions
type TransactionsResponse struct {
	Wallet       string               `json:"wallet"`
	Count        int                  `json:"count"`
	Transactions []*types.Transaction `json:"transactions"`
}

// SnapshotsRequest names the moments to price
type SnapshotsRequest struct {
	MomentIDs []string `json:"momentIds"`
}

// SnapshotsResponse maps moment id to snapshot
type SnapshotsResponse struct {
	Snapshots map[string]*types.MarketSnapshot `json:"snapshots"`
}

// walletParam returns the canonical form of the {address} path variable.
// Invalid input is passed through for the service to reject.
func walletParam(r *http.Request) string {
	raw := mux.Vars(r)["address"]
	if wallet, err := chain.NormalizeAddress(raw); err == nil {
		return wallet
	}
	return raw
}

// handleGetMoments handles GET /api/wallets/{address}/moments
func (s *Server) handleGetMoments(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	moments, err := s.portfolioService.GetComprehensiveMoments(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MomentsResponse{Wallet: wallet, Count: len(moments), Moments: moments})
}

// handleGetAnalytics handles GET /api/wallets/{address}/analytics
func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.portfolioService.GetPortfolioReport(r.Context(), walletParam(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleGetTransactions handles GET /api/wallets/{address}/transactions
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	txs, err := s.portfolioService.GetAccountTransactionHistory(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TransactionsResponse{Wallet: wallet, Count: len(txs), Transactions: txs})
}

// handleGetEvents handles GET /api/wallets/{address}/events?types=A,B
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	var eventTypes []string
	for _, v := range r.URL.Query()["types"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				eventTypes = append(eventTypes, t)
			}
		}
	}

	txs, err := s.portfolioService.GetTopShotEvents(r.Context(), wallet, eventTypes)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TransactionsResponse{Wallet: wallet, Count: len(txs), Transactions: txs})
}

// handleGetSnapshots handles POST /api/market/snapshots
func (s *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	var req SnapshotsRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(req.MomentIDs) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "momentIds is required", nil)
		return
	}
	if len(req.MomentIDs) > s.config.MaxSnapshotIDs {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Too many moment ids", map[string]interface{}{
			"max": s.config.MaxSnapshotIDs,
		})
		return
	}

	snapshots, err := s.portfolioService.GetMarketDataForMoments(r.Context(), req.MomentIDs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SnapshotsResponse{Snapshots: snapshots})
}
