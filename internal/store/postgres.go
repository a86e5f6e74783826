package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The bids table has a UNIQUE (auction_id, sequence_number) constraint as a
// storage-level backstop for the gapless ledger invariant.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const auctionColumns = `id, product_id, seller_id, currency,
	        start_bid_price::TEXT, bid_increment::TEXT,
	        reserve_price::TEXT, buy_now_price::TEXT,
	        quantity, start_time, end_time, state,
	        COALESCE(winner_id, ''), COALESCE(final_amount, 0)::TEXT, created_at`

func (s *PostgresStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, product_id, seller_id, currency,
		     start_bid_price, bid_increment, reserve_price, buy_now_price,
		     quantity, start_time, end_time, state, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12, $13)`,
		a.ID, a.ProductID, a.SellerID, a.Currency,
		a.StartBidPrice.String(), a.BidIncrement.String(),
		a.ReservePrice.String(), a.BuyNowPrice.String(),
		a.Quantity, a.StartTime, a.EndTime, a.State, a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get auction %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := []interface{}{}
	if state != "" {
		query += ` WHERE state = $1`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuctions(rows)
}

func (s *PostgresStore) ListAuctionsDue(ctx context.Context, now time.Time) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE (state = 'scheduled' AND start_time <= $1)
		    OR (state = 'live' AND end_time <= $1)
		 ORDER BY end_time`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuctions(rows)
}

func (s *PostgresStore) TransitionAuction(ctx context.Context, id string, from, to model.AuctionState, winnerID string, finalAmount decimal.Decimal) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET state = $3, winner_id = NULLIF($4, ''), final_amount = $5::NUMERIC
		 WHERE id = $1 AND state = $2`,
		id, from, to, winnerID, finalAmount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("transition auction %s %s→%s: %w", id, from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) InsertBid(ctx context.Context, b *model.Bid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, sequence_number, accepted_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.SequenceNumber, b.AcceptedAt,
	)
	return err
}

func (s *PostgresStore) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, sequence_number, accepted_at
		 FROM bids WHERE auction_id = $1 ORDER BY sequence_number`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		var amountS string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amountS,
			&b.SequenceNumber, &b.AcceptedAt); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amountS)
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (s *PostgresStore) GetLatestBid(ctx context.Context, auctionID string) (*model.Bid, error) {
	var b model.Bid
	var amountS string

	err := s.pool.QueryRow(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, sequence_number, accepted_at
		 FROM bids WHERE auction_id = $1
		 ORDER BY sequence_number DESC LIMIT 1`, auctionID).
		Scan(&b.ID, &b.AuctionID, &b.BidderID, &amountS, &b.SequenceNumber, &b.AcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest bid for auction %s: %w", auctionID, err)
	}

	b.Amount, _ = decimal.NewFromString(amountS)
	return &b, nil
}

func (s *PostgresStore) GetStandingBids(ctx context.Context, auctionID string) ([]model.StandingBid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bidder_id, amount::TEXT, sequence_number, accepted_at
		 FROM (
		     SELECT DISTINCT ON (bidder_id)
		            bidder_id, amount, sequence_number, accepted_at
		     FROM bids WHERE auction_id = $1
		     ORDER BY bidder_id, sequence_number DESC
		 ) standing
		 ORDER BY amount DESC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var standing []model.StandingBid
	for rows.Next() {
		var sb model.StandingBid
		var amountS string
		if err := rows.Scan(&sb.BidderID, &amountS, &sb.SequenceNumber, &sb.CreatedAt); err != nil {
			return nil, err
		}
		sb.CurrentAmount, _ = decimal.NewFromString(amountS)
		standing = append(standing, sb)
	}
	if len(standing) > 0 {
		standing[0].IsWinning = true
	}
	return standing, rows.Err()
}

// scanAuction reads one auction row with NUMERIC columns as text.
func scanAuction(row pgx.Row) (*model.Auction, error) {
	var a model.Auction
	var startPrice, increment, reserve, buyNow, finalAmount string

	err := row.Scan(&a.ID, &a.ProductID, &a.SellerID, &a.Currency,
		&startPrice, &increment, &reserve, &buyNow,
		&a.Quantity, &a.StartTime, &a.EndTime, &a.State,
		&a.WinnerID, &finalAmount, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.StartBidPrice, _ = decimal.NewFromString(startPrice)
	a.BidIncrement, _ = decimal.NewFromString(increment)
	a.ReservePrice, _ = decimal.NewFromString(reserve)
	a.BuyNowPrice, _ = decimal.NewFromString(buyNow)
	a.FinalAmount, _ = decimal.NewFromString(finalAmount)

	return &a, nil
}

func scanAuctions(rows pgx.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}
