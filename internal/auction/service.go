package auction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
	"github.com/openlot/auction-engine/internal/store"
)

// Service provides the HTTP surface: auction creation for the listing
// workflow, snapshot reads for client views, and REST bid placement that
// shares the acceptance path with the WebSocket channel.
type Service struct {
	store  store.Store
	engine *Engine
}

// NewService creates the HTTP service.
func NewService(st store.Store, engine *Engine) *Service {
	return &Service{store: st, engine: engine}
}

// --- Request/Response types ---

// CreateAuctionRequest is the JSON body for auction creation.
type CreateAuctionRequest struct {
	ProductID     string          `json:"product_id"`
	SellerID      string          `json:"seller_id"`
	Currency      string          `json:"currency"`
	StartBidPrice decimal.Decimal `json:"start_bid_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	BuyNowPrice   decimal.Decimal `json:"buy_now_price"`
	Quantity      int             `json:"quantity"` // 0 → 1
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// PlaceBidRequest is the JSON body for POST /auctions/{auctionID}/bids.
type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// --- HTTP Handlers ---

// CreateAuction handles POST /api/v1/auctions
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ProductID == "" || req.SellerID == "" {
		writeError(w, "product_id and seller_id are required", http.StatusBadRequest)
		return
	}
	if req.StartBidPrice.IsNegative() {
		writeError(w, "start_bid_price must not be negative", http.StatusBadRequest)
		return
	}
	if !req.BidIncrement.IsPositive() {
		writeError(w, "bid_increment must be positive", http.StatusBadRequest)
		return
	}
	if !req.StartTime.Before(req.EndTime) {
		writeError(w, "start_time must be before end_time", http.StatusBadRequest)
		return
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	a := &model.Auction{
		ID:            uuid.New().String(),
		ProductID:     req.ProductID,
		SellerID:      req.SellerID,
		Currency:      currency,
		StartBidPrice: req.StartBidPrice,
		BidIncrement:  req.BidIncrement,
		ReservePrice:  req.ReservePrice,
		BuyNowPrice:   req.BuyNowPrice,
		Quantity:      quantity,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		State:         model.StateScheduled,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateAuction(r.Context(), a); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("auction created",
		"id", a.ID,
		"product", a.ProductID,
		"start", a.StartTime,
		"end", a.EndTime,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	a, err := s.store.GetAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

// ListAuctions handles GET /api/v1/auctions
// Accepts an optional ?state=<state> filter.
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	state := model.AuctionState(r.URL.Query().Get("state"))

	auctions, err := s.store.ListAuctions(r.Context(), state)
	if err != nil {
		writeError(w, "failed to list auctions", http.StatusInternalServerError)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(auctions)
}

// GetBidSnapshot handles GET /api/v1/auctions/{auctionID}/bids
// Returns the standing bid per bidder sorted by amount descending — the
// authoritative snapshot a client fetches on room join.
func (s *Service) GetBidSnapshot(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	if _, err := s.store.GetAuction(r.Context(), auctionID); err != nil {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	standing, err := s.store.GetStandingBids(r.Context(), auctionID)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}
	if standing == nil {
		standing = []model.StandingBid{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(standing)
}

// GetBidHistory handles GET /api/v1/auctions/{auctionID}/bids/history
// Returns the full append-only ledger in sequence order.
func (s *Service) GetBidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	bids, err := s.store.GetBidsByAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, "failed to load bid history", http.StatusInternalServerError)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

// PlaceBid handles POST /api/v1/auctions/{auctionID}/bids
// Same acceptance path as the WebSocket channel.
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acc, err := s.engine.PlaceBid(r.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		writeBidError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(acc)
}

// CancelAuction handles POST /api/v1/auctions/{auctionID}/cancel
func (s *Service) CancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	a, err := s.engine.Cancel(r.Context(), auctionID)
	if err != nil {
		writeBidError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

// writeBidError maps the engine's error taxonomy onto HTTP statuses. A
// too-low rejection carries the minimum acceptable amount so the client can
// resubmit with a corrected value; a busy rejection is retryable.
func writeBidError(w http.ResponseWriter, err error) {
	var tooLow *BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   err.Error(),
			"minimum": tooLow.Minimum.String(),
		})
	case errors.Is(err, ErrAuctionNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrAuctionNotActive):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrAuctionBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrInvalidBid):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, "bid could not be processed", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
