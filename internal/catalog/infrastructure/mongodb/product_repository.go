package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/internal/catalog/domain"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
)

// ProductRepository is the MongoDB implementation of domain.ProductRepository
type ProductRepository struct {
	collection *mongo.Collection
}

// NewProductRepository creates a product repository backed by the given database
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{
		collection: db.Collection("products"),
	}
}

// EnsureIndexes creates the indexes the repository depends on
func (r *ProductRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "storeId", Value: 1}, {Key: "productId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "storeId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "category", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if _, err := r.collection.InsertOne(ctx, product); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("product %s already exists in store %s: %w", product.ProductID, product.StoreID, err)
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// GetProduct fetches a single product by store and product ID
func (r *ProductRepository) GetProduct(ctx context.Context, storeID, productID string) (*domain.Product, error) {
	var product domain.Product
	err := r.collection.FindOne(ctx, bson.M{
		"storeId":   storeID,
		"productId": productID,
	}).Decode(&product)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", productID, err)
	}

	return &product, nil
}

// GetProducts fetches the requested products with one $in query
func (r *ProductRepository) GetProducts(ctx context.Context, storeID string, productIDs []string) ([]*domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"storeId":   storeID,
		"productId": bson.M{"$in": productIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	return products, nil
}

// ListProducts returns products for a store, newest first
func (r *ProductRepository) ListProducts(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Product, error) {
	filter := bson.M{"storeId": storeID}
	if opts.ActiveOnly {
		filter["isActive"] = true
	}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}

	page := pkgmongo.Pagination{Page: opts.Page, PageSize: opts.PageSize}
	if page.Page < 1 {
		page = pkgmongo.DefaultPagination()
	}

	findOpts := options.Find().
		SetSort(pkgmongo.SortDescending("createdAt")).
		SetSkip(page.Skip()).
		SetLimit(page.Limit())

	cursor, err := r.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	return products, nil
}

// AdjustStock applies a guarded stock delta in a single UpdateOne.
// The guard travels with the increment so two concurrent debits can
// never drive the quantity negative.
func (r *ProductRepository) AdjustStock(ctx context.Context, storeID, productID string, delta int) error {
	filter := bson.M{
		"storeId":   storeID,
		"productId": productID,
	}
	if delta < 0 {
		filter["stockQuantity"] = bson.M{"$gte": -delta}
	}

	result, err := r.collection.UpdateOne(ctx, filter,
		pkgmongo.BuildIncrementUpdate("stockQuantity", delta))
	if err != nil {
		return fmt.Errorf("failed to adjust stock for %s: %w", productID, err)
	}

	if result.MatchedCount == 0 {
		// Distinguish missing product from failed stock condition.
		exists, err := r.exists(ctx, storeID, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}

	return nil
}

// SetStock overwrites stock conditional on the expected current value
func (r *ProductRepository) SetStock(ctx context.Context, storeID, productID string, expected, value int) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"storeId":       storeID,
			"productId":     productID,
			"stockQuantity": expected,
		},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{"stockQuantity": value}),
	)
	if err != nil {
		return fmt.Errorf("failed to set stock for %s: %w", productID, err)
	}

	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, storeID, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrStockMismatch
	}

	return nil
}

// UpdatePrice updates the product price
func (r *ProductRepository) UpdatePrice(ctx context.Context, storeID, productID string, price domain.Money) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"storeId": storeID, "productId": productID},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{"price": price}),
	)
	if err != nil {
		return fmt.Errorf("failed to update price for %s: %w", productID, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

// Deactivate soft-deletes a product by flipping isActive
func (r *ProductRepository) Deactivate(ctx context.Context, storeID, productID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"storeId": storeID, "productId": productID},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{"isActive": false}),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate product %s: %w", productID, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *ProductRepository) exists(ctx context.Context, storeID, productID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"storeId":   storeID,
		"productId": productID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", err)
	}
	return count > 0, nil
}
