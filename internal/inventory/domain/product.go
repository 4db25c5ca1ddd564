package domain

// ProductStatus represents the catalog visibility state of a product
type ProductStatus string

const (
	ProductStatusDraft      ProductStatus = "draft"
	ProductStatusPublished  ProductStatus = "published"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// Product is a catalog item carrying its own stock when it has no variants.
// Prebuilt PCs are products flagged with Prebuilt; reaching zero stock
// deactivates them instead of flipping the status.
type Product struct {
	ID            string
	Name          string
	Status        ProductStatus
	Prebuilt      bool
	IsActive      bool
	Price         float64
	DiscountPrice float64
	TaxRate       float64
	StockQuantity int
}

// Variant is a sellable variation of a product with its own stock
type Variant struct {
	ID            string
	ProductID     string
	Attributes    map[string]string
	Price         float64
	DiscountPrice float64
	StockQuantity int
	IsActive      bool
}

// ReservationLine is one inventory decrement within a reservation
type ReservationLine struct {
	ProductID string
	VariantID string
	Prebuilt  bool
	Quantity  int
}
