package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"commerce-payments/internal/inventory/domain"
	apperrors "commerce-payments/pkg/errors"
)

// ProductModel is the GORM model for products (persistence layer)
type ProductModel struct {
	ID            string               `gorm:"primaryKey;size:40"`
	Name          string               `gorm:"size:255;not null"`
	Status        domain.ProductStatus `gorm:"size:20;not null;default:'draft'"`
	Prebuilt      bool                 `gorm:"not null;default:false"`
	IsActive      bool                 `gorm:"not null;default:true"`
	Price         float64              `gorm:"not null"`
	DiscountPrice float64
	TaxRate       float64
	StockQuantity int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// VariantModel is the GORM model for product variants
type VariantModel struct {
	ID            string `gorm:"primaryKey;size:40"`
	ProductID     string `gorm:"index;size:40;not null"`
	Attributes    string `gorm:"type:jsonb"`
	Price         float64
	DiscountPrice float64
	StockQuantity int       `gorm:"not null;default:0"`
	IsActive      bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (VariantModel) TableName() string {
	return "product_variants"
}

// CartItemModel is the GORM model for cart rows
type CartItemModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:40;not null"`
	ProductID string `gorm:"size:40;not null"`
	VariantID string `gorm:"size:40"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (CartItemModel) TableName() string {
	return "cart_items"
}

// PostgresInventoryRepository implements InventoryRepository using PostgreSQL
type PostgresInventoryRepository struct {
	db *gorm.DB
}

// NewPostgresInventoryRepository creates a new PostgreSQL inventory repository
func NewPostgresInventoryRepository(db *gorm.DB) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

// Migrate runs auto-migration for the inventory models
func (r *PostgresInventoryRepository) Migrate() error {
	return r.db.AutoMigrate(&ProductModel{}, &VariantModel{}, &CartItemModel{})
}

// Reserve atomically decrements stock for all lines inside one transaction.
// Any line with insufficient stock aborts and rolls back the whole pass.
func (r *PostgresInventoryRepository) Reserve(ctx context.Context, lines []domain.ReservationLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			if line.VariantID != "" {
				if err := reserveVariant(tx, line); err != nil {
					return err
				}
				continue
			}
			if err := reserveProduct(tx, line); err != nil {
				return err
			}
		}
		return nil
	})
}

func reserveProduct(tx *gorm.DB, line domain.ReservationLine) error {
	result := tx.Model(&ProductModel{}).
		Where("id = ? AND stock_quantity >= ?", line.ProductID, line.Quantity).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", line.Quantity))
	if result.Error != nil {
		return apperrors.NewInternal("failed to reserve product stock", result.Error)
	}
	if result.RowsAffected == 0 {
		var model ProductModel
		if err := tx.First(&model, "id = ?", line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("product", line.ProductID)
			}
			return apperrors.NewInternal("failed to load product", err)
		}
		return apperrors.NewInsufficientStock(
			fmt.Sprintf("insufficient stock for %s", model.Name),
			map[string]interface{}{
				"product_id": model.ID,
				"available":  model.StockQuantity,
				"requested":  line.Quantity,
			},
		)
	}

	// Reaching zero stock flips visibility: prebuilt PCs deactivate, plain
	// published products become out of stock.
	if line.Prebuilt {
		result = tx.Model(&ProductModel{}).
			Where("id = ? AND stock_quantity = 0", line.ProductID).
			Update("is_active", false)
	} else {
		result = tx.Model(&ProductModel{}).
			Where("id = ? AND stock_quantity = 0 AND status = ?", line.ProductID, domain.ProductStatusPublished).
			Update("status", domain.ProductStatusOutOfStock)
	}
	if result.Error != nil {
		return apperrors.NewInternal("failed to update product status", result.Error)
	}
	return nil
}

func reserveVariant(tx *gorm.DB, line domain.ReservationLine) error {
	result := tx.Model(&VariantModel{}).
		Where("id = ? AND product_id = ? AND stock_quantity >= ?", line.VariantID, line.ProductID, line.Quantity).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", line.Quantity))
	if result.Error != nil {
		return apperrors.NewInternal("failed to reserve variant stock", result.Error)
	}
	if result.RowsAffected == 0 {
		var model VariantModel
		if err := tx.First(&model, "id = ? AND product_id = ?", line.VariantID, line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("variant", line.VariantID)
			}
			return apperrors.NewInternal("failed to load variant", err)
		}
		return apperrors.NewInsufficientStock(
			fmt.Sprintf("insufficient stock for variant %s", model.ID),
			map[string]interface{}{
				"product_id": model.ProductID,
				"variant_id": model.ID,
				"available":  model.StockQuantity,
				"requested":  line.Quantity,
			},
		)
	}

	result = tx.Model(&VariantModel{}).
		Where("id = ? AND stock_quantity = 0", line.VariantID).
		Update("is_active", false)
	if result.Error != nil {
		return apperrors.NewInternal("failed to update variant status", result.Error)
	}
	return nil
}

// GetProduct retrieves a product by ID
func (r *PostgresInventoryRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel

	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("product", id)
		}
		return nil, apperrors.NewInternal("failed to get product", result.Error)
	}

	return productToDomain(&model), nil
}

// GetVariant retrieves a product variant
func (r *PostgresInventoryRepository) GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error) {
	var model VariantModel

	result := r.db.WithContext(ctx).First(&model, "id = ? AND product_id = ?", variantID, productID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("variant", variantID)
		}
		return nil, apperrors.NewInternal("failed to get variant", result.Error)
	}

	return variantToDomain(&model), nil
}

func productToDomain(model *ProductModel) *domain.Product {
	return &domain.Product{
		ID:            model.ID,
		Name:          model.Name,
		Status:        model.Status,
		Prebuilt:      model.Prebuilt,
		IsActive:      model.IsActive,
		Price:         model.Price,
		DiscountPrice: model.DiscountPrice,
		TaxRate:       model.TaxRate,
		StockQuantity: model.StockQuantity,
	}
}

func variantToDomain(model *VariantModel) *domain.Variant {
	attrs := map[string]string{}
	if model.Attributes != "" {
		_ = json.Unmarshal([]byte(model.Attributes), &attrs)
	}
	return &domain.Variant{
		ID:            model.ID,
		ProductID:     model.ProductID,
		Attributes:    attrs,
		Price:         model.Price,
		DiscountPrice: model.DiscountPrice,
		StockQuantity: model.StockQuantity,
		IsActive:      model.IsActive,
	}
}

// PostgresCartRepository implements CartService using PostgreSQL
type PostgresCartRepository struct {
	db *gorm.DB
}

// NewPostgresCartRepository creates a new PostgreSQL cart repository
func NewPostgresCartRepository(db *gorm.DB) *PostgresCartRepository {
	return &PostgresCartRepository{db: db}
}

// ClearCart removes all cart rows belonging to the user
func (r *PostgresCartRepository) ClearCart(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&CartItemModel{})
	if result.Error != nil {
		return apperrors.NewInternal("failed to clear cart", result.Error)
	}
	return nil
}
