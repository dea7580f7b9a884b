/*
handlers.go - HTTP handlers for the stock engine

PURPOSE:
  Exposes the ledger, adjustment workflow, job-work ledger and billing
  aggregator over REST. Handlers parse and validate the HTTP layer, then
  delegate to the domain services; all business rules live there.

ACTOR:
  The acting user comes from the X-Actor header (authentication is out of
  scope for the engine; upstream gateways own identity). Missing header
  defaults to "system".

ERROR HANDLING:
  Domain errors map to HTTP status via the engine sentinels:
  - 400: malformed payloads
  - 404: ledger.ErrNotFound
  - 409: ledger.ErrInvalidStateTransition, ledger.ErrDuplicatePosting
  - 422: ledger.ErrMissingRate
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/billing"
	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the engine services the HTTP surface delegates to.
type Handler struct {
	Ledger      *ledger.LedgerStore
	Adjustments *adjustment.Workflow
	JobWork     *jobwork.Ledger
	Billing     *billing.Aggregator
	Log         *logrus.Logger
}

func NewHandler(ls *ledger.LedgerStore, wf *adjustment.Workflow, jw *jobwork.Ledger, bl *billing.Aggregator, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{Ledger: ls, Adjustments: wf, JobWork: jw, Billing: bl, Log: log}
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "system"
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		status, kind = http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, ledger.ErrDuplicatePosting):
		status, kind = http.StatusConflict, "duplicate_posting"
	case errors.Is(err, ledger.ErrMissingRate):
		status, kind = http.StatusUnprocessableEntity, "missing_rate"
	}
	if status == http.StatusInternalServerError {
		h.Log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error(err.Error())
	} else {
		workflowRejections.WithLabelValues(kind).Inc()
	}
	h.respond(w, status, ErrorDTO{Error: err.Error(), Kind: kind})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.respond(w, http.StatusBadRequest, ErrorDTO{Error: msg, Kind: "bad_request"})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListLedger returns entries newest first, filtered by query params.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	f := ledger.Filter{
		Item:      q.Get("item"),
		LotShade:  q.Get("lot_shade"),
		Warehouse: q.Get("warehouse"),
		RefType:   ledger.RefType(q.Get("ref_type")),
		RefNo:     q.Get("ref_no"),
		Limit:     limit,
	}
	entries, err := h.Ledger.List(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	h.respond(w, http.StatusOK, dtos)
}

// GetBalance returns the balance for one stock key; zero for unseen keys.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := ledger.StockKey{
		Item:      q.Get("item"),
		LotShade:  q.Get("lot_shade"),
		Warehouse: q.Get("warehouse"),
	}
	if key.Item == "" || key.Warehouse == "" {
		h.badRequest(w, "item and warehouse are required")
		return
	}
	snap, err := h.Ledger.Balance(r.Context(), key)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBalanceDTO(snap))
}

// ListBalances returns every tracked balance snapshot.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Ledger.Balances(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]BalanceDTO, 0, len(snaps))
	for _, s := range snaps {
		dtos = append(dtos, toBalanceDTO(s))
	}
	h.respond(w, http.StatusOK, dtos)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	a, err := h.Adjustments.CreateDraft(r.Context(), adjustment.Payload{
		Warehouse:  req.Warehouse,
		Item:       req.Item,
		LotShade:   req.LotShade,
		UOM:        req.UOM,
		Qty:        req.Qty,
		ReasonCode: req.ReasonCode,
		Remarks:    req.Remarks,
		RefNo:      req.RefNo,
	}, actor(r))
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	h.respond(w, http.StatusCreated, toAdjustmentDTO(a))
}

func (h *Handler) transitionAdjustment(
	w http.ResponseWriter, r *http.Request,
	fn func(r *http.Request, id string) (*adjustment.Adjustment, error),
) {
	id := chi.URLParam(r, "id")
	a, err := fn(r, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toAdjustmentDTO(a))
}

func (h *Handler) SubmitAdjustment(w http.ResponseWriter, r *http.Request) {
	h.transitionAdjustment(w, r, func(r *http.Request, id string) (*adjustment.Adjustment, error) {
		return h.Adjustments.Submit(r.Context(), id, actor(r))
	})
}

func (h *Handler) ApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	h.transitionAdjustment(w, r, func(r *http.Request, id string) (*adjustment.Adjustment, error) {
		return h.Adjustments.Approve(r.Context(), id, actor(r))
	})
}

func (h *Handler) PostAdjustment(w http.ResponseWriter, r *http.Request) {
	h.transitionAdjustment(w, r, func(r *http.Request, id string) (*adjustment.Adjustment, error) {
		a, err := h.Adjustments.PostAndLock(r.Context(), id, actor(r))
		if err == nil {
			ledgerEntries.Inc()
		}
		return a, err
	})
}

func (h *Handler) ReverseAdjustment(w http.ResponseWriter, r *http.Request) {
	h.transitionAdjustment(w, r, func(r *http.Request, id string) (*adjustment.Adjustment, error) {
		return h.Adjustments.Reverse(r.Context(), id, actor(r))
	})
}

func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Adjustments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toAdjustmentDTO(a))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	var (
		list []*adjustment.Adjustment
		err  error
	)
	if refNo := r.URL.Query().Get("ref_no"); refNo != "" {
		list, err = h.Adjustments.FindByRef(r.Context(), refNo)
	} else {
		list, err = h.Adjustments.List(r.Context())
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]AdjustmentDTO, 0, len(list))
	for _, a := range list {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	h.respond(w, http.StatusOK, dtos)
}

// =============================================================================
// JOB WORK HANDLERS
// =============================================================================

func (h *Handler) CreateOutward(w http.ResponseWriter, r *http.Request) {
	var req CreateOutwardRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.badRequest(w, "invalid date")
		return
	}
	expected, err := parseDate(req.ExpectedReturn)
	if err != nil {
		h.badRequest(w, "invalid expected_return")
		return
	}
	items := make([]jobwork.OutwardItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, jobwork.OutwardItem{
			Material:    it.Material,
			LotShade:    it.LotShade,
			QtySent:     it.QtySent,
			ApprovedQty: it.ApprovedQty,
			Rate:        it.Rate,
		})
	}
	out, err := h.JobWork.CreateOutward(r.Context(), jobwork.OutwardHeader{
		Vendor:         req.Vendor,
		ProcessType:    req.ProcessType,
		Date:           date,
		ExpectedReturn: expected,
	}, items, actor(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toOutwardDTO(out))
}

func (h *Handler) SubmitInward(w http.ResponseWriter, r *http.Request) {
	var req SubmitInwardRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.badRequest(w, "invalid date")
		return
	}
	items := make([]jobwork.InwardItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, jobwork.InwardItem{
			Material:    it.Material,
			ReceivedQty: it.ReceivedQty,
			DamageQty:   it.DamageQty,
		})
	}
	in, err := h.JobWork.SubmitInward(r.Context(), jobwork.InwardHeader{
		Vendor:      req.Vendor,
		ChallanNo:   req.ChallanNo,
		ProcessType: req.ProcessType,
		Date:        date,
	}, items, actor(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toInwardDTO(in))
}

func (h *Handler) ReverseInward(w http.ResponseWriter, r *http.Request) {
	in, err := h.JobWork.ReverseInward(r.Context(), chi.URLParam(r, "inwardNo"), actor(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toInwardDTO(in))
}

func (h *Handler) SettleShortage(w http.ResponseWriter, r *http.Request) {
	var req SettleShortageRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	row, err := h.JobWork.SettleShortage(r.Context(), req.Vendor, req.ChallanNo,
		req.Material, req.Qty, jobwork.SettlementType(req.SettlementType), actor(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toRowDTO(row))
}

func (h *Handler) ListOutwards(w http.ResponseWriter, r *http.Request) {
	list, err := h.JobWork.ListOutwards(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]OutwardDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, toOutwardDTO(o))
	}
	h.respond(w, http.StatusOK, dtos)
}

func (h *Handler) ListInwards(w http.ResponseWriter, r *http.Request) {
	list, err := h.JobWork.ListInwards(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]InwardDTO, 0, len(list))
	for _, in := range list {
		dtos = append(dtos, toInwardDTO(in))
	}
	h.respond(w, http.StatusOK, dtos)
}

func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.JobWork.Rows(r.Context(), q.Get("vendor"), q.Get("material"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]RowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toRowDTO(row))
	}
	h.respond(w, http.StatusOK, dtos)
}

func (h *Handler) GetVendorBalance(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")
	material := r.URL.Query().Get("material")
	if material == "" {
		h.badRequest(w, "material is required")
		return
	}
	balance, err := h.JobWork.VendorBalance(r.Context(), vendor, material)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{
		"vendor":   vendor,
		"material": material,
		"balance":  balance.String(),
	})
}

func (h *Handler) GetSLA(w http.ResponseWriter, r *http.Request) {
	report, err := h.JobWork.ComputeSLA(r.Context(), chi.URLParam(r, "vendor"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, SLADTO{
		Vendor:    report.Vendor,
		Total:     report.Total,
		OnTime:    report.OnTime,
		OnTimePct: report.OnTimePct,
	})
}

func (h *Handler) GetAging(w http.ResponseWriter, r *http.Request) {
	report, err := h.JobWork.ComputeAging(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, AgingDTO{
		Days0to7:   report.Days0to7.String(),
		Days8to15:  report.Days8to15.String(),
		Days16to30: report.Days16to30.String(),
		DaysOver30: report.DaysOver30.String(),
	})
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	rates := make(map[string]decimal.Decimal, len(req.Rates))
	for material, s := range req.Rates {
		rate, err := decimal.NewFromString(s)
		if err != nil {
			h.badRequest(w, "invalid rate for "+material)
			return
		}
		rates[material] = rate
	}
	bill, err := h.Billing.CreateBill(r.Context(), req.Vendor, req.ChallanNos, rates, actor(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toBillDTO(bill))
}

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	list, err := h.Billing.ListBills(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dtos := make([]BillDTO, 0, len(list))
	for _, b := range list {
		dtos = append(dtos, toBillDTO(b))
	}
	h.respond(w, http.StatusOK, dtos)
}
