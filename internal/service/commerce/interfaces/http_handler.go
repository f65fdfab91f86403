package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"atelier/internal/service/commerce/application"
	"atelier/internal/service/commerce/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// CommerceHandler 封装了商城服务的全部 HTTP 处理器。
type CommerceHandler struct {
	ledger *application.InventoryLedger
	carts  *application.CartService
	orders *application.OrderService
}

// NewCommerceHandler 创建一个新的 HTTP 处理器实例
func NewCommerceHandler(ledger *application.InventoryLedger, carts *application.CartService, orders *application.OrderService) *CommerceHandler {
	return &CommerceHandler{ledger: ledger, carts: carts, orders: orders}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CommerceHandler) RegisterRoutes(mux *http.ServeMux) {
	// 购物车
	mux.HandleFunc("GET /cart/{shopperID}", h.handleGetCart)
	mux.HandleFunc("DELETE /cart/{shopperID}", h.handleClearCart)
	mux.HandleFunc("POST /cart/{shopperID}/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/{shopperID}/items/{sku}", h.handleUpdateQuantity)
	mux.HandleFunc("DELETE /cart/{shopperID}/items/{sku}", h.handleRemoveItem)
	mux.HandleFunc("POST /cart/{shopperID}/promo", h.handleApplyPromo)

	// 订单与履约
	mux.HandleFunc("POST /orders", h.handleCreateOrder)
	mux.HandleFunc("GET /orders", h.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", h.handleGetOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.handleTransition)
	mux.HandleFunc("POST /orders/{id}/cancel", h.handleCancelOrder)
	mux.HandleFunc("GET /orders/{id}/tracking", h.handleGetTracking)
	mux.HandleFunc("POST /orders/{id}/return", h.handleRequestReturn)

	// 管理端：库存台账与退货审批
	mux.HandleFunc("POST /admin/inventory", h.handleCreateInventory)
	mux.HandleFunc("GET /admin/inventory/low-stock", h.handleLowStock)
	mux.HandleFunc("GET /admin/inventory/{sku}", h.handleGetInventory)
	mux.HandleFunc("POST /admin/inventory/{sku}/adjust", h.handleAdjustStock)
	mux.HandleFunc("PATCH /admin/inventory/{sku}/lifecycle", h.handleSetLifecycle)
	mux.HandleFunc("POST /admin/returns/{id}/resolve", h.handleResolveReturn)
}

// extract 从请求头里恢复上游链路上下文。
func extract(r *http.Request) *http.Request {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 把领域错误映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrStockUnderflow),
		errors.Is(err, domain.ErrSkuNotSellable),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidLifecycle),
		errors.Is(err, domain.ErrPromoRejected),
		errors.Is(err, domain.ErrInvalidRequest):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrSkuNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrReturnNotFound),
		errors.Is(err, domain.ErrItemNotInCart):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrSkuAlreadyExists),
		errors.Is(err, domain.ErrActiveHoldsRemain),
		errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrReservationMissing),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrReturnAlreadyRequested),
		errors.Is(err, domain.ErrReturnNotAllowed),
		errors.Is(err, domain.ErrVersionConflict):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrPaymentDeclined):
		statusCode = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrLockTimeout):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

// ---- 库存管理 ----

type createInventoryRequest struct {
	SKU               string `json:"sku"`
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	Size              string `json:"size"`
	Color             string `json:"color"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

func (h *CommerceHandler) handleCreateInventory(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req createInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record := &domain.InventoryRecord{
		SKU:               req.SKU,
		ProductID:         req.ProductID,
		ProductName:       req.ProductName,
		Size:              req.Size,
		Color:             req.Color,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
	}
	if err := h.ledger.CreateRecord(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.NewInventoryView(record))
}

func (h *CommerceHandler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	record, err := h.ledger.GetRecord(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewInventoryView(record))
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *CommerceHandler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.ledger.AdjustStock(r.Context(), r.PathValue("sku"), req.Delta, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewInventoryView(record))
}

type setLifecycleRequest struct {
	State string `json:"state"`
}

func (h *CommerceHandler) handleSetLifecycle(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req setLifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.ledger.SetLifecycle(r.Context(), r.PathValue("sku"), domain.Lifecycle(req.State))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewInventoryView(record))
}

func (h *CommerceHandler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	records, err := h.ledger.GetLowStock(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewInventoryViews(records))
}

// ---- 购物车 ----

type addItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

func (h *CommerceHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), r.PathValue("shopperID"), req.SKU, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewCartView(cart))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CommerceHandler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), r.PathValue("shopperID"), r.PathValue("sku"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewCartView(cart))
}

func (h *CommerceHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	cart, err := h.carts.RemoveItem(r.Context(), r.PathValue("shopperID"), r.PathValue("sku"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewCartView(cart))
}

func (h *CommerceHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	cart, err := h.carts.GetCart(r.Context(), r.PathValue("shopperID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewCartView(cart))
}

func (h *CommerceHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	if err := h.carts.ClearCart(r.Context(), r.PathValue("shopperID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyPromoRequest struct {
	Code string `json:"code"`
}

func (h *CommerceHandler) handleApplyPromo(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req applyPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.carts.ApplyPromo(r.Context(), r.PathValue("shopperID"), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewCartView(cart))
}

// ---- 订单与履约 ----

func (h *CommerceHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.NewOrderView(order))
}

func (h *CommerceHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewOrderView(order))
}

func (h *CommerceHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	query := domain.ListOrdersQuery{
		ShopperID: r.URL.Query().Get("shopper_id"),
		Status:    domain.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Limit = n
		}
	}

	orders, err := h.orders.ListOrders(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewOrderViews(orders))
}

type transitionRequest struct {
	Status             string `json:"status"`
	TrackingNumber     string `json:"trackingNumber"`
	Location           string `json:"location"`
	Notes              string `json:"notes"`
	Actor              string `json:"actor"`
	CancellationReason string `json:"cancellationReason"`
}

func (h *CommerceHandler) handleTransition(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	to, ok := domain.ParseStatus(req.Status)
	if !ok {
		http.Error(w, "Unknown status: "+req.Status, http.StatusBadRequest)
		return
	}

	order, err := h.orders.Transition(r.Context(), r.PathValue("id"), to, application.TransitionMeta{
		Actor:              req.Actor,
		Location:           req.Location,
		Notes:              req.Notes,
		TrackingNumber:     req.TrackingNumber,
		CancellationReason: req.CancellationReason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewOrderView(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *CommerceHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewOrderView(order))
}

func (h *CommerceHandler) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	entries, err := h.orders.GetTracking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewTrackingViews(entries))
}

type requestReturnRequest struct {
	Reason string `json:"reason"`
}

func (h *CommerceHandler) handleRequestReturn(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req requestReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ret, err := h.orders.RequestReturn(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.NewReturnView(ret))
}

type resolveReturnRequest struct {
	Approve bool   `json:"approve"`
	Actor   string `json:"actor"`
}

func (h *CommerceHandler) handleResolveReturn(w http.ResponseWriter, r *http.Request) {
	r = extract(r)

	var req resolveReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ret, err := h.orders.ResolveReturn(r.Context(), r.PathValue("id"), req.Approve, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewReturnView(ret))
}
