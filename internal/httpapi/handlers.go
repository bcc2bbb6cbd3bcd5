package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"restopos/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

// handleCreateOrder answers 400 when a client price or amount disagrees
// with the menu; the order is always priced from the catalog.
func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	customerID, err := parseOptionalID(query.Get("customer_id"), "customer_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := domain.OrderFilter{
		Status:     domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		CustomerID: customerID,
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("unknown order status"))
		return
	}

	orders, err := a.service.ListOrders(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.GetOrder(r.Context(), orderID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.OrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.TransitionOrder(r.Context(), orderID, req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderDeliveries(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	missions, err := a.service.ListOrderMissions(r.Context(), orderID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": missions})
}

func (a *API) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	var req domain.DeliveryAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mission, err := a.service.AssignDriver(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mission)
}

func (a *API) handleMissionStatus(w http.ResponseWriter, r *http.Request) {
	missionID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.DeliveryStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.UpdateMissionStatus(r.Context(), missionID, req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListInventory(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (a *API) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	productID, err := parseIDParam(r, "productID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.AdjustStock(r.Context(), productID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleStockSet(w http.ResponseWriter, r *http.Request) {
	productID, err := parseIDParam(r, "productID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.StockSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.SetStock(r.Context(), productID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleListLedger(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	relatedID, err := parseOptionalID(query.Get("related_id"), "related_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := domain.LedgerFilter{
		Type:           domain.LedgerType(strings.TrimSpace(query.Get("type"))),
		Classification: domain.LedgerClassification(strings.TrimSpace(query.Get("classification"))),
		RelatedID:      relatedID,
		Limit:          parsePositiveLimit(query.Get("limit"), 100, 1000),
	}

	entries, err := a.service.ListLedgerEntries(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) handleBookEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.LedgerEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.BookEntry(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.LedgerEntryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.UpdateEntry(r.Context(), entryID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := a.service.ListBanks(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": banks})
}

func (a *API) handleBankAdjust(w http.ResponseWriter, r *http.Request) {
	var req domain.BankAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bank, err := a.service.AdjustBankBalance(r.Context(), req.BankName, req.Delta)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var userID int64
	if id, err := parseOptionalID(query.Get("user_id"), "user_id"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if id != nil {
		userID = *id
	}

	notifications, err := a.service.ListNotifications(r.Context(), userID, parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": notifications})
}

func (a *API) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleSaveDailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.SaveDailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (a *API) handleGetDailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.GetDailySummary(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleEndOfDay(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ArchiveDay(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}
