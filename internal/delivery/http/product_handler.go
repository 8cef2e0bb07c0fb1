package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

// ProductHandler serves the product HTTP surface (§6).
type ProductHandler struct {
	products *usecase.ProductUseCase
	productRM repository.ProductReadModelRepository
}

// NewProductHandler wires a ProductHandler.
func NewProductHandler(products *usecase.ProductUseCase, productRM repository.ProductReadModelRepository) *ProductHandler {
	return &ProductHandler{products: products, productRM: productRM}
}

// RegisterRoutes adds the product endpoints to mux.
func (h *ProductHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.handleListProducts)
	mux.HandleFunc("POST /api/v1/products", h.handleCreateProduct)
	mux.HandleFunc("POST /api/v1/products/{id}/restock", h.handleRestock)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.productRM.ListProducts(r.Context())
	if err != nil {
		slog.Error("list products failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type createProductRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	InitialStock int     `json:"initial_stock"`
}

func (h *ProductHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	productID := uuid.NewString()
	product, err := h.products.CreateProduct(r.Context(), entity.CreateProduct{
		ProductID:    productID,
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		InitialStock: req.InitialStock,
	})
	if err != nil {
		slog.Error("create product failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"product_id": product.AggregateID()})
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *ProductHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.products.IncreaseStock(r.Context(), entity.IncreaseStock{ProductID: productID, Quantity: req.Quantity})
	if err != nil {
		slog.Error("restock failed", "product_id", productID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":  product.AggregateID(),
		"total_stock": product.TotalStock(),
	})
}
