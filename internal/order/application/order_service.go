package application

import (
	"context"
	"fmt"
	"log/slog"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/internal/payment"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
)

// OrderService exposes order builder operations
type OrderService struct {
	orders   domain.OrderRepository
	products catalog.ProductRepository
	gateway  payment.Gateway
	verifier payment.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders domain.OrderRepository,
	products catalog.ProductRepository,
	gateway payment.Gateway,
	verifier payment.Verifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		products: products,
		gateway:  gateway,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
	}
}

// CartItem is one requested line in a new order
type CartItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand holds the input for creating an order
type CreateOrderCommand struct {
	StoreID       string
	CustomerName  string
	CustomerPhone string
	Street        string
	City          string
	ZipCode       string
	AddressNotes  string
	Items         []CartItem
	DeliveryFee   int64
	Currency      string
	PaymentMethod domain.PaymentMethod
}

// CreateOrderResult is returned to the caller after order creation
type CreateOrderResult struct {
	OrderID     string `json:"orderId"`
	TotalAmount int64  `json:"totalAmount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	PaymentRef  string `json:"paymentRef,omitempty"`
}

// CreateOrder validates the cart against the catalog with a single batch
// read, snapshots current prices into immutable line items and creates
// the order in PENDING_PAYMENT. Any invalid item fails the whole order.
//
// The stock check here is advisory: stock can change between this read
// and the deduction that follows payment. The stock reducer's conditional
// debit is the binding decision.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	if len(cmd.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	productIDs := make([]string, len(cmd.Items))
	for i, item := range cmd.Items {
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		productIDs[i] = item.ProductID
	}

	found, err := s.products.GetProducts(ctx, cmd.StoreID, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*catalog.Product, len(found))
	for _, p := range found {
		byID[p.ProductID] = p
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, catalog.ErrProductNotFound)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, catalog.ErrProductInactive)
		}
		if !product.CanFulfill(line.Quantity) {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, catalog.ErrInsufficientStock)
		}

		lineTotal, err := product.Price.Multiply(line.Quantity)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
	}

	deliveryFee, err := catalog.NewMoney(cmd.DeliveryFee, cmd.Currency)
	if err != nil {
		return nil, err
	}

	orderID := "ORD-" + pkgmongo.GenerateIDString()
	address := domain.Address{
		Street:  cmd.Street,
		City:    cmd.City,
		ZipCode: cmd.ZipCode,
		Notes:   cmd.AddressNotes,
	}

	order, err := domain.NewOrder(orderID, cmd.StoreID, cmd.CustomerName, cmd.CustomerPhone, address, items, deliveryFee, cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}

	result := &CreateOrderResult{
		OrderID:     order.OrderID,
		TotalAmount: order.TotalAmount.Amount(),
		Currency:    order.TotalAmount.Currency(),
		Status:      string(order.Status),
	}

	// Online orders get a payable reference up front. COD orders are
	// confirmed by the store without a provider round trip.
	if cmd.PaymentMethod == domain.PaymentOnline && s.gateway != nil {
		ref, err := s.gateway.CreatePaymentReference(ctx, order.OrderID, order.TotalAmount.Amount(), order.TotalAmount.Currency())
		if err != nil {
			return nil, err
		}
		result.PaymentRef = ref
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(order.StoreID)
	}
	s.logger.Info("Order created",
		"orderId", order.OrderID,
		"storeId", order.StoreID,
		"items", len(order.Items),
		"totalAmount", order.TotalAmount.String(),
		"paymentMethod", order.PaymentMethod,
	)

	return result, nil
}

// PaymentCallback is the provider's signed payment confirmation
type PaymentCallback struct {
	OrderID    string
	PaymentRef string
	RawBody    []byte
	Signature  string
}

// ConfirmPayment verifies the callback signature, then transitions the
// order to CONFIRMED and stores the OrderPlaced event in the same
// transaction. A bad signature rejects the callback with no state change.
func (s *OrderService) ConfirmPayment(ctx context.Context, callback PaymentCallback) error {
	if err := s.verifier.Verify(callback.RawBody, callback.Signature); err != nil {
		s.logger.Warn("Payment callback rejected",
			"orderId", callback.OrderID,
			"error", err,
		)
		return err
	}

	order, err := s.orders.GetByOrderID(ctx, callback.OrderID)
	if err != nil {
		return err
	}

	if err := order.ConfirmPayment(callback.PaymentRef); err != nil {
		return err
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}

	s.logger.Info("Payment confirmed",
		"orderId", order.OrderID,
		"paymentRef", callback.PaymentRef,
	)

	return nil
}

// ConfirmCODOrder confirms a cash-on-delivery order without a provider
// callback; payment happens at the door and is reconciled later
func (s *OrderService) ConfirmCODOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.IsCOD() {
		return domain.ErrInvalidPayment
	}

	if err := order.ConfirmPayment("COD"); err != nil {
		return err
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}

	s.logger.Info("COD order confirmed", "orderId", order.OrderID)
	return nil
}

// CancelOrder cancels an order and emits OrderCancelled for stock restore
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) error {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	if err := order.Cancel(reason); err != nil {
		return err
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled(order.StoreID)
	}
	s.logger.Info("Order cancelled", "orderId", order.OrderID, "reason", reason)
	return nil
}

// GetOrder fetches an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetByOrderID(ctx, orderID)
}

// ListOrders lists orders for a store
func (s *OrderService) ListOrders(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Order, error) {
	return s.orders.ListByStore(ctx, storeID, opts)
}
