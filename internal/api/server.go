package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

type APIServer struct {
	mux     *http.ServeMux
	db      *pgxpool.Pool
	chainID int64
	logger  zerolog.Logger
}

func NewAPIServer(db *pgxpool.Pool, chainID int64, logger zerolog.Logger) *APIServer {
	s := &APIServer{
		mux:     http.NewServeMux(),
		db:      db,
		chainID: chainID,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *APIServer) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	server := &http.Server{
		Addr:    addr,
		Handler: s.logMiddleware(s.mux),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server...")
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes() {
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		}, nil)
	})
	s.mux.HandleFunc("/status", s.handleStatus)

	// Collections
	s.mux.HandleFunc("/tokens", s.handleTokens)
	s.mux.HandleFunc("/trades", s.handleTrades)
	s.mux.HandleFunc("/winners", s.handleWinners)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/comments", s.handleComments)
	s.mux.HandleFunc("/users", s.handleUsers)

	// Token-scoped prefix for detail and sub-collections
	s.mux.HandleFunc("/tokens/", s.handleTokenPrefix)
}

func (s *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("http")
	})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var height *uint64
	row := s.db.QueryRow(ctx,
		`SELECT last_block_number FROM indexer_state WHERE chain_id = $1`, s.chainID)
	var h uint64
	if err := row.Scan(&h); err == nil {
		height = &h
	}
	JSON(w, http.StatusOK, map[string]any{
		"chain_id":   s.chainID,
		"checkpoint": height,
		"time":       time.Now().UTC(),
	}, nil)
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, page, perPage := parsePagination(r)
	var search *string
	if v := r.URL.Query().Get("search"); v != "" {
		search = &v
	}
	items, err := database.ListTokens(ctx, s.db, limit, offset, search)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenPrefix(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tokens/")
	parts := strings.Split(path, "/")
	address := parts[0]
	if address == "" {
		Error(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		s.handleTokenDetail(w, r, address)
		return
	}

	switch parts[1] {
	case "trades":
		s.handleTokenTrades(w, r, address)
	case "comments":
		s.handleTokenComments(w, r, address)
	case "balances":
		s.handleTokenBalances(w, r, address)
	case "burns":
		s.handleTokenBurns(w, r, address)
	case "candles":
		s.handleTokenCandles(w, r, address)
	default:
		Error(w, http.StatusNotFound, "not found")
	}
}

func (s *APIServer) handleTokenDetail(w http.ResponseWriter, r *http.Request, address string) {
	token, err := database.GetTokenByAddress(r.Context(), s.db, address)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			Error(w, http.StatusNotFound, "token not found")
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, token, nil)
}

func (s *APIServer) handleTokenTrades(w http.ResponseWriter, r *http.Request, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListTradesByToken(r.Context(), s.db, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenComments(w http.ResponseWriter, r *http.Request, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListComments(r.Context(), s.db, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenBalances(w http.ResponseWriter, r *http.Request, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListTokenBalances(r.Context(), s.db, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenBurns(w http.ResponseWriter, r *http.Request, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListTokenBurns(r.Context(), s.db, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenCandles(w http.ResponseWriter, r *http.Request, address string) {
	interval := time.Hour
	switch r.URL.Query().Get("interval") {
	case "", "1h":
	case "1d":
		interval = 24 * time.Hour
	default:
		Error(w, http.StatusBadRequest, "interval must be 1h or 1d")
		return
	}
	limit, _, _, _ := parsePagination(r)
	items, err := database.ListCandles(r.Context(), s.db, address, interval, limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, items, nil)
}

func (s *APIServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, offset, page, perPage := parsePagination(r)
	var tradeType *string
	if v := r.URL.Query().Get("type"); v != "" {
		if v != "buy" && v != "sell" {
			Error(w, http.StatusBadRequest, "type must be buy or sell")
			return
		}
		tradeType = &v
	}
	items, err := database.ListTrades(r.Context(), s.db, limit, offset, tradeType)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleWinners(w http.ResponseWriter, r *http.Request) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListDailyWinners(r.Context(), s.db, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.GetStats(r.Context(), s.db)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, stats, nil)
}

type createCommentRequest struct {
	TokenAddress string `json:"token_address"`
	UserAddress  string `json:"user_address"`
	Text         string `json:"text"`
}

func (s *APIServer) handleComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TokenAddress == "" || req.UserAddress == "" || req.Text == "" {
		Error(w, http.StatusBadRequest, "token_address, user_address and text are required")
		return
	}
	comment, err := database.InsertComment(r.Context(), s.db, req.TokenAddress, req.UserAddress, req.Text)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			Error(w, http.StatusNotFound, "token not found")
			return
		}
		if errors.Is(err, database.ErrUnknownUser) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusCreated, comment, nil)
}

type createUserRequest struct {
	Address  string  `json:"address"`
	Username *string `json:"username"`
}

func (s *APIServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		Error(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := database.InsertUser(r.Context(), s.db, req.Address, req.Username); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusCreated, map[string]any{
		"address": database.NormalizeAddress(req.Address),
	}, nil)
}
