package challenges

import (
	"net/http"
	"strings"

	"propdesk/internal/accounts"
	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/httputil"
	"propdesk/internal/plans"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	svc   *Service
	plans *plans.Catalog
	log   *zap.Logger
}

func NewHandler(svc *Service, catalog *plans.Catalog, log *zap.Logger) *Handler {
	return &Handler{svc: svc, plans: catalog, log: log}
}

type openTradeRequest struct {
	ChallengeID string           `json:"challengeId"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
}

type closeTradeRequest struct {
	TradeID   string           `json:"tradeId"`
	ExitPrice *decimal.Decimal `json:"exitPrice"`
}

type evaluateRequest struct {
	ChallengeID string `json:"challengeId"`
}

type resetResponse struct {
	Success bool `json:"success"`
	ResetSummary
}

func missing(fields ...string) error {
	return apperr.Validation("missing required fields: " + strings.Join(fields, ", "))
}

// fail writes err and logs anything the client is not meant to see.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	httputil.WriteRequestError(w, r, err)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
	}
	return p, ok
}

func (h *Handler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req openTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	var absent []string
	if strings.TrimSpace(req.ChallengeID) == "" {
		absent = append(absent, "challengeId")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		absent = append(absent, "symbol")
	}
	if strings.TrimSpace(req.Side) == "" {
		absent = append(absent, "side")
	}
	if req.Quantity == nil {
		absent = append(absent, "quantity")
	}
	if req.Price == nil {
		absent = append(absent, "price")
	}
	if len(absent) > 0 {
		h.fail(w, r, missing(absent...))
		return
	}
	res, err := h.svc.OpenTrade(r.Context(), p, OpenTradeInput{
		ChallengeID: strings.TrimSpace(req.ChallengeID),
		Symbol:      req.Symbol,
		Side:        types.TradeSide(req.Side),
		Quantity:    *req.Quantity,
		Price:       *req.Price,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req closeTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	var absent []string
	if strings.TrimSpace(req.TradeID) == "" {
		absent = append(absent, "tradeId")
	}
	if req.ExitPrice == nil {
		absent = append(absent, "exitPrice")
	}
	if len(absent) > 0 {
		h.fail(w, r, missing(absent...))
		return
	}
	res, err := h.svc.CloseTrade(r.Context(), p, strings.TrimSpace(req.TradeID), *req.ExitPrice)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	if strings.TrimSpace(req.ChallengeID) == "" {
		h.fail(w, r, apperr.Validation("challengeId is required"))
		return
	}
	res, err := h.svc.Evaluate(r.Context(), p, strings.TrimSpace(req.ChallengeID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.List(r.Context(), p, store.Filter{Status: types.ChallengeStatus(r.URL.Query().Get("status"))})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	trades, err := h.svc.ListTrades(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trades)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var u accounts.Update
	if err := httputil.ReadJSON(r, &u); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request: only displayName can be updated"})
		return
	}
	c, err := h.svc.Update(r.Context(), p, chi.URLParam(r, "id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.plans.List())
}

// Issue is called by the payment collaborator once a plan has been paid for.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httputil.ReadJSON(r, &in); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	c, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "challenge": c})
}

func (h *Handler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ResetAllDaily(r.Context())
	if err != nil {
		h.log.Error("daily reset incomplete", zap.Error(err))
		if sum.Reset == 0 && sum.Failed == 0 {
			h.fail(w, r, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resetResponse{Success: err == nil, ResetSummary: sum})
}
