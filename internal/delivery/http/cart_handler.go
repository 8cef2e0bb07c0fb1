// Package http is the thin HTTP adapter: it decodes requests, calls the
// coordinator/use cases, and maps the error taxonomy onto status codes. No
// business logic lives here.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/egannguyen/cartsourcing/internal/coordinator"
	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

// CartHandler serves the cart HTTP surface (§6).
type CartHandler struct {
	carts       *usecase.CartUseCase
	cartRM      repository.CartReadModelRepository
	coordinator *coordinator.Coordinator
}

// NewCartHandler wires a CartHandler.
func NewCartHandler(carts *usecase.CartUseCase, cartRM repository.CartReadModelRepository, coord *coordinator.Coordinator) *CartHandler {
	return &CartHandler{carts: carts, cartRM: cartRM, coordinator: coord}
}

// RegisterRoutes adds the cart endpoints to mux.
func (h *CartHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/cart", h.handleCreateCart)
	mux.HandleFunc("POST /api/v1/cart/{id}/items", h.handleAddItem)
	mux.HandleFunc("DELETE /api/v1/cart/{id}/items", h.handleRemoveItem)
	mux.HandleFunc("POST /api/v1/cart/{id}/checkout", h.handleCheckout)
	mux.HandleFunc("GET /api/v1/cart/{id}", h.handleGetCart)
	mux.HandleFunc("GET /api/v1/cart/user/{uid}/carts", h.handleGetUserCarts)
}

type createCartRequest struct {
	UserID string `json:"user_id"`
}

func (h *CartHandler) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cartID := uuid.NewString()
	if _, err := h.carts.CreateCart(r.Context(), entity.CreateCart{CartID: cartID, UserID: req.UserID}); err != nil {
		slog.Error("create cart failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"cart_id": cartID})
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Quantity <= 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.coordinator.AddItemToCart(r.Context(), entity.AddItemToCart{
		CartID: cartID, ProductID: req.ProductID, Quantity: req.Quantity,
	})
	if err != nil {
		slog.Error("add item to cart failed", "cart_id", cartID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cartToResponse(cart))
}

type removeItemRequest struct {
	ProductID string `json:"product_id"`
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")

	var req removeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.coordinator.RemoveItemFromCart(r.Context(), entity.RemoveItemFromCart{
		CartID: cartID, ProductID: req.ProductID,
	})
	if err != nil {
		slog.Error("remove item from cart failed", "cart_id", cartID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cartToResponse(cart))
}

func (h *CartHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")
	orderID := uuid.NewString()

	cart, err := h.coordinator.CheckoutCart(r.Context(), entity.CheckoutCart{CartID: cartID, OrderID: orderID})
	if err != nil {
		slog.Error("checkout cart failed", "cart_id", cartID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":     orderID,
		"cart_id":      cartID,
		"total_amount": cart.TotalAmount(),
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")

	proj, err := h.cartRM.GetCart(r.Context(), cartID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (h *CartHandler) handleGetUserCarts(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	status := r.URL.Query().Get("status")

	carts, err := h.cartRM.GetUserCarts(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, carts)
}

type cartResponse struct {
	CartID      string  `json:"cart_id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
	ItemCount   int     `json:"item_count"`
	Version     int     `json:"version"`
}

func cartToResponse(cart *entity.CartAggregate) cartResponse {
	return cartResponse{
		CartID:      cart.AggregateID(),
		UserID:      cart.UserID(),
		Status:      string(cart.Status()),
		TotalAmount: cart.TotalAmount(),
		ItemCount:   cart.ItemCount(),
		Version:     cart.Version(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
