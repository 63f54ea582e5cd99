package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
)

const maxItemQuantity = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// AddItemInput captures the payload for adding a product to the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// Service defines the cart operations exposed to controllers.
type Service interface {
	Fetch(ctx context.Context, actor access.Actor) (*models.CartRecord, error)
	AddItem(ctx context.Context, actor access.Actor, input AddItemInput) (*models.CartRecord, error)
	UpdateItemQuantity(ctx context.Context, actor access.Actor, itemID uuid.UUID, quantity int) (*models.CartRecord, error)
	RemoveItem(ctx context.Context, actor access.Actor, itemID uuid.UUID) (*models.CartRecord, error)
	Clear(ctx context.Context, actor access.Actor) (*models.CartRecord, error)
}

type service struct {
	repo     Repository
	products productLoader
	tx       txRunner
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, products productLoader, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, products: products, tx: tx}, nil
}

// Fetch returns the user's active cart, creating an empty one on first use.
func (s *service) Fetch(ctx context.Context, actor access.Actor) (*models.CartRecord, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.repo.FindActiveByUser(ctx, actor.UserID)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	created, err := s.repo.Create(ctx, &models.CartRecord{
		UserID:      actor.UserID,
		Status:      enums.CartStatusActive,
		Currency:    enums.CurrencyINR,
		TotalAmount: decimal.Zero,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

// AddItem snapshots the product into the cart, merging quantities when the
// product is already present.
func (s *service) AddItem(ctx context.Context, actor access.Actor, input AddItemInput) (*models.CartRecord, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 || input.Quantity > maxItemQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxItemQuantity))
	}

	cart, err := s.Fetch(ctx, actor)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindActiveByID(ctx, input.ProductID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindItem(ctx, cart.ID, product.ID)
		switch {
		case err == nil:
			quantity := existing.Quantity + input.Quantity
			if quantity > maxItemQuantity {
				quantity = maxItemQuantity
			}
			if err := repo.UpdateItemQuantity(ctx, existing.ID, quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		case err == gorm.ErrRecordNotFound:
			item := &models.CartItem{
				CartID:     cart.ID,
				ProductID:  product.ID,
				ShopID:     product.ShopID,
				Name:       product.Name,
				Price:      product.Price,
				FinalPrice: product.FinalPrice,
				ImageURL:   product.PrimaryImage(),
				Quantity:   input.Quantity,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		return s.recomputeTotals(ctx, repo, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, cart.ID)
}

// UpdateItemQuantity sets an item's quantity; zero removes the line.
func (s *service) UpdateItemQuantity(ctx context.Context, actor access.Actor, itemID uuid.UUID, quantity int) (*models.CartRecord, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if quantity < 0 || quantity > maxItemQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 0 and %d", maxItemQuantity))
	}

	cart, err := s.requireCart(ctx, actor)
	if err != nil {
		return nil, err
	}

	item, ok := findCartItem(cart, itemID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if quantity == 0 {
			if err := repo.DeleteItem(ctx, item.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
			}
		} else {
			if err := repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		}
		return s.recomputeTotals(ctx, repo, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, cart.ID)
}

// RemoveItem deletes one line from the cart.
func (s *service) RemoveItem(ctx context.Context, actor access.Actor, itemID uuid.UUID) (*models.CartRecord, error) {
	return s.UpdateItemQuantity(ctx, actor, itemID, 0)
}

// Clear removes every item but keeps the cart record.
func (s *service) Clear(ctx context.Context, actor access.Actor) (*models.CartRecord, error) {
	cart, err := s.requireCart(ctx, actor)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteItems(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return repo.UpdateTotals(ctx, cart.ID, 0, decimal.Zero)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, cart.ID)
}

func (s *service) requireCart(ctx context.Context, actor access.Actor) (*models.CartRecord, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.repo.FindActiveByUser(ctx, actor.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *service) reload(ctx context.Context, cartID uuid.UUID) (*models.CartRecord, error) {
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}

func (s *service) recomputeTotals(ctx context.Context, repo Repository, cartID uuid.UUID) error {
	cart, err := repo.FindByID(ctx, cartID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart items")
	}
	totalItems := 0
	totalAmount := decimal.Zero
	for _, item := range cart.Items {
		totalItems += item.Quantity
		totalAmount = totalAmount.Add(item.LineTotal())
	}
	if err := repo.UpdateTotals(ctx, cartID, totalItems, totalAmount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart totals")
	}
	return nil
}

func findCartItem(cart *models.CartRecord, itemID uuid.UUID) (models.CartItem, bool) {
	for _, item := range cart.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return models.CartItem{}, false
}
