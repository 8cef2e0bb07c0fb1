package entity

// Commands are plain input value records for use cases (C1). They carry no
// behavior; validation happens inside the aggregate command methods they
// drive.

type CreateCart struct {
	CartID string
	UserID string
}

type AddItemToCart struct {
	CartID    string
	ProductID string
	Quantity  int
}

type RemoveItemFromCart struct {
	CartID    string
	ProductID string
}

type ChangeItemQuantity struct {
	CartID      string
	ProductID   string
	NewQuantity int
}

type CheckoutCart struct {
	CartID  string
	OrderID string
}

type ExpireCart struct {
	CartID string
	Reason string
}

type CreateProduct struct {
	ProductID    string
	Name         string
	Description  string
	Price        float64
	InitialStock int
}

type ReserveStock struct {
	ProductID string
	CartID    string
	Quantity  int
}

type ReleaseReservation struct {
	ProductID string
	CartID    string
	Reason    string
}

type CheckoutReservation struct {
	ProductID string
	CartID    string
	OrderID   string
}

type IncreaseStock struct {
	ProductID string
	Quantity  int
}

type ChangePrice struct {
	ProductID string
	NewPrice  float64
}

type UpdateProduct struct {
	ProductID   string
	Name        *string
	Description *string
}
