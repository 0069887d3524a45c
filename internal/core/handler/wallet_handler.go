package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/middleware"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/response"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type WalletHandler struct {
	wallets usecase.WalletUsecase
	savings usecase.SavingsUsecase
	cards   usecase.CardUsecase
	reader  usecase.SnapshotUsecase
	log     logger.Logger
}

type TransactionResponse struct {
	Success     bool                      `json:"success"`
	Transaction *models.TransactionResult `json:"transaction"`
}

type CardResponse struct {
	Success bool         `json:"success"`
	Card    *models.Card `json:"card"`
}

type WalletResponse struct {
	Success bool           `json:"success"`
	Wallet  *models.Wallet `json:"wallet"`
}

type InvitationResponse struct {
	Success    bool               `json:"success"`
	Invitation *models.Invitation `json:"invitation"`
}

type UserDataResponse struct {
	Success bool                 `json:"success"`
	Data    *models.UserSnapshot `json:"data"`
}

func NewWalletHandler(
	wallets usecase.WalletUsecase,
	savings usecase.SavingsUsecase,
	cards usecase.CardUsecase,
	reader usecase.SnapshotUsecase,
	log logger.Logger,
) *WalletHandler {
	return &WalletHandler{wallets: wallets, savings: savings, cards: cards, reader: reader, log: log}
}

// RegisterRoutes mounts the functions on router, which is expected to be
// the authenticated /functions/v1 subrouter.
func (h *WalletHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/wallet-deposit", h.Deposit).Methods(http.MethodPost)
	router.HandleFunc("/wallet-withdraw", h.Withdraw).Methods(http.MethodPost)
	router.HandleFunc("/wallet-send", h.Send).Methods(http.MethodPost)
	router.HandleFunc("/currency-exchange", h.Exchange).Methods(http.MethodPost)
	router.HandleFunc("/goals-contribute", h.ContributeToGoal).Methods(http.MethodPost)
	router.HandleFunc("/village-bank-contribute", h.ContributeToVillageBank).Methods(http.MethodPost)
	router.HandleFunc("/village-bank-invite", h.InviteToVillageBank).Methods(http.MethodPost)
	router.HandleFunc("/cards-create", h.CreateCard).Methods(http.MethodPost)
	router.HandleFunc("/wallet-create", h.CreateWallet).Methods(http.MethodPost)
	router.HandleFunc("/get-user-data", h.GetUserData).Methods(http.MethodGet, http.MethodPost)
}

func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	h.serve(w, r, "deposit", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.wallets.Deposit(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawRequest
	h.serve(w, r, "withdraw", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.wallets.Withdraw(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	h.serve(w, r, "send", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.wallets.Send(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req models.ExchangeRequest
	h.serve(w, r, "exchange", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.wallets.Exchange(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) ContributeToGoal(w http.ResponseWriter, r *http.Request) {
	var req models.GoalContributeRequest
	h.serve(w, r, "goal_contribute", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.savings.ContributeToGoal(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) ContributeToVillageBank(w http.ResponseWriter, r *http.Request) {
	var req models.VillageBankContributeRequest
	h.serve(w, r, "village_bank_contribute", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.savings.ContributeToVillageBank(ctx, s, req)
		return TransactionResponse{Success: true, Transaction: res}, err
	})
}

func (h *WalletHandler) InviteToVillageBank(w http.ResponseWriter, r *http.Request) {
	var req models.VillageBankInviteRequest
	h.serve(w, r, "village_bank_invite", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.savings.InviteToVillageBank(ctx, s, req)
		return InvitationResponse{Success: true, Invitation: res}, err
	})
}

func (h *WalletHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req models.CardCreateRequest
	h.serve(w, r, "card_create", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.cards.CreateCard(ctx, s, req)
		return CardResponse{Success: true, Card: res}, err
	})
}

func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req models.WalletCreateRequest
	h.serve(w, r, "wallet_create", &req, func(ctx context.Context, s models.Session) (interface{}, error) {
		res, err := h.wallets.CreateWallet(ctx, s, req)
		return WalletResponse{Success: true, Wallet: res}, err
	})
}

// GetUserData accepts GET and POST; the body is ignored.
func (h *WalletHandler) GetUserData(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "get_user_data", nil, func(ctx context.Context, s models.Session) (interface{}, error) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%w: limit must be a number", usecase.ErrValidation)
			}
			limit = n
		}
		res, err := h.reader.UserSnapshot(ctx, s, limit)
		return UserDataResponse{Success: true, Data: res}, err
	})
}

// serve decodes the body into req (when non-nil), runs fn with the caller's
// session and writes either fn's result or the mapped error.
func (h *WalletHandler) serve(w http.ResponseWriter, r *http.Request, op string, req interface{}, fn func(ctx context.Context, s models.Session) (interface{}, error)) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		h.handleError(w, op, usecase.ErrUnauthorized)
		return
	}

	if req != nil {
		if err := h.decodeRequest(w, r, req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error())
			return
		}
	}

	out, err := fn(r.Context(), s)
	if err != nil {
		h.handleError(w, op, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *WalletHandler) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		return errors.New("invalid request payload")
	}
	return nil
}

func (h *WalletHandler) handleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Unauthorized")
	case errors.Is(err, usecase.ErrInsufficientFunds):
		response.Error(w, http.StatusBadRequest, response.CodeInsufficient, err.Error())
	case errors.Is(err, usecase.ErrPermissionDenied):
		response.Error(w, http.StatusBadRequest, response.CodePermissionDenied, err.Error())
	case errors.Is(err, usecase.ErrNotFound):
		response.Error(w, http.StatusBadRequest, response.CodeNotFound, err.Error())
	case errors.Is(err, usecase.ErrValidation):
		response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error())
	default:
		h.log.Error("Failed to process operation",
			logger.StringField("operation", op),
			logger.ErrorField("error", err))
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to process operation")
	}
}
