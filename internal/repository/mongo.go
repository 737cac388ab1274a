package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/domain"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
	usersCollection    = "users"
)

// Connect opens a client and pings the server
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		productsCollection: {
			{Keys: bson.D{{Key: "sku", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "subcategory", Value: 1}}},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "isFeatured", Value: 1}}},
			{Keys: bson.D{{Key: "price", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "payment.status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// MongoProducts implements ProductRepository
type MongoProducts struct{ coll *mongo.Collection }

func NewMongoProducts(db *mongo.Database) *MongoProducts {
	return &MongoProducts{coll: db.Collection(productsCollection)}
}

var _ ProductRepository = (*MongoProducts)(nil)

func (r *MongoProducts) Create(ctx context.Context, p *domain.Product) error {
	p.ID = primitive.NewObjectID()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return translateWriteErr(err, "sku")
	}
	return nil
}

func (r *MongoProducts) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoProducts) GetByLegacyID(ctx context.Context, legacyID int64) (*domain.Product, error) {
	return r.findOne(ctx, bson.M{"id": legacyID})
}

func (r *MongoProducts) findOne(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var p domain.Product
	if err := r.coll.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *MongoProducts) Update(ctx context.Context, p *domain.Product, fields []string) error {
	set, unset, err := productUpdate(*p, fields)
	if err != nil {
		return err
	}
	set["updatedAt"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	var out domain.Product
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return translateWriteErr(err, "sku")
	}
	*p = out
	return nil
}

// productUpdate builds $set/$unset for the named fields only, so a write never
// replaces a stock figure changed concurrently through $inc
func productUpdate(p domain.Product, fields []string) (bson.M, bson.M, error) {
	values := map[string]any{
		"sku":               p.SKU,
		"title":             p.Title,
		"description":       p.Description,
		"price":             p.Price,
		"image":             p.Image,
		"images":            p.Images,
		"category":          p.Category,
		"subcategory":       p.Subcategory,
		"brand":             p.Brand,
		"tags":              p.Tags,
		"stock":             p.Stock,
		"lowStockThreshold": p.LowStockThreshold,
		"rating":            p.Rating,
		"isActive":          p.IsActive,
		"isFeatured":        p.IsFeatured,
	}
	set, unset := bson.M{}, bson.M{}
	for _, f := range fields {
		v, ok := values[f]
		if !ok {
			return nil, nil, fmt.Errorf("unknown product field %q", f)
		}
		if f == "sku" && p.SKU == "" {
			// an empty string would collide in the sparse unique index
			unset["sku"] = ""
			continue
		}
		set[f] = v
	}
	return set, unset, nil
}

func (r *MongoProducts) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoProducts) List(ctx context.Context, q ProductQuery) ([]domain.Product, int64, error) {
	filter := productFilter(q)
	opts := options.Find().SetSort(productSort(q.SortBy, q.SortDesc))
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.Product, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *MongoProducts) Categories(ctx context.Context) ([]domain.Category, error) {
	raw, err := r.coll.Distinct(ctx, "category", bson.M{"isActive": true})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(raw))
	for _, v := range raw {
		if c, ok := v.(string); ok {
			out = append(out, domain.Category(c))
		}
	}
	return out, nil
}

func (r *MongoProducts) Count(ctx context.Context) (int64, error) {
	return r.coll.EstimatedDocumentCount(ctx)
}

func (r *MongoProducts) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	// either the product vanished or stock is short; tell them apart
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

func (r *MongoProducts) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"stock": qty}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func productFilter(q ProductQuery) bson.M {
	filter := bson.M{}
	if q.ActiveOnly {
		filter["isActive"] = true
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Subcategory != "" {
		filter["subcategory"] = q.Subcategory
	}
	if q.Brand != "" {
		filter["brand"] = containsRegex(q.Brand)
	}
	if q.Featured {
		filter["isFeatured"] = true
	}
	if q.InStock {
		filter["stock"] = bson.M{"$gt": 0}
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		price := bson.M{}
		if q.MinPrice != nil {
			price["$gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			price["$lte"] = *q.MaxPrice
		}
		filter["price"] = price
	}
	if q.Search != "" {
		re := containsRegex(q.Search)
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
			bson.M{"tags": re},
			bson.M{"brand": re},
		}
	}
	return filter
}

func productSort(by string, desc bool) bson.D {
	dir := 1
	if desc {
		dir = -1
	}
	field := "createdAt"
	switch by {
	case SortPrice, SortTitle, SortStock:
		field = by
	case SortRating:
		field = "rating.average"
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}

// containsRegex matches s literally, ignoring case
func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// MongoOrders implements OrderRepository
type MongoOrders struct{ coll *mongo.Collection }

func NewMongoOrders(db *mongo.Database) *MongoOrders {
	return &MongoOrders{coll: db.Collection(ordersCollection)}
}

var _ OrderRepository = (*MongoOrders)(nil)

func (r *MongoOrders) Create(ctx context.Context, o *domain.Order) error {
	o.ID = primitive.NewObjectID()
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	if _, err := r.coll.InsertOne(ctx, o); err != nil {
		return translateWriteErr(err, "orderNumber")
	}
	return nil
}

func (r *MongoOrders) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Order, error) {
	var o domain.Order
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *MongoOrders) AttachIntent(ctx context.Context, id primitive.ObjectID, intentID string) (*domain.Order, error) {
	return r.updateOne(ctx,
		bson.M{"_id": id, "payment.status": domain.PaymentStatusPending},
		bson.M{"payment.paymentIntentId": intentID},
	)
}

func (r *MongoOrders) UpdateFulfillment(ctx context.Context, id primitive.ObjectID, upd FulfillmentUpdate) (*domain.Order, error) {
	set := bson.M{}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.TrackingNumber != nil {
		set["trackingNumber"] = *upd.TrackingNumber
	}
	if upd.Notes != nil {
		set["notes"] = *upd.Notes
	}
	return r.updateOne(ctx, bson.M{"_id": id}, set)
}

func (r *MongoOrders) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Order, error) {
	return r.find(ctx, bson.M{"user": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *MongoOrders) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return r.find(ctx, bson.M{
		"status":         domain.OrderStatusPending,
		"payment.status": domain.PaymentStatusPending,
		"createdAt":      bson.M{"$lt": cutoff},
	}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *MongoOrders) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Order, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoOrders) TransitionPayment(ctx context.Context, id primitive.ObjectID, from, to domain.PaymentStatus, status domain.OrderStatus) (*domain.Order, error) {
	return r.updateOne(ctx,
		bson.M{"_id": id, "payment.status": from},
		bson.M{"payment.status": to, "status": status},
	)
}

// updateOne $sets fields on the order matching filter and returns the new document.
// A miss is ErrNotFound when the id is unknown, ErrStaleState otherwise.
func (r *MongoOrders) updateOne(ctx context.Context, filter, set bson.M) (*domain.Order, error) {
	set["updatedAt"] = time.Now().UTC()
	var o domain.Order
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&o)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, err := r.GetByID(ctx, filter["_id"].(primitive.ObjectID)); err != nil {
		return nil, err
	}
	return nil, ErrStaleState
}

// MongoUsers implements UserRepository
type MongoUsers struct{ coll *mongo.Collection }

func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{coll: db.Collection(usersCollection)}
}

var _ UserRepository = (*MongoUsers)(nil)

func (r *MongoUsers) Create(ctx context.Context, u *domain.User) error {
	u.ID = primitive.NewObjectID()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		return translateWriteErr(err, "")
	}
	return nil
}

func (r *MongoUsers) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *MongoUsers) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUsers) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return translateWriteErr(err, "")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// translateWriteErr maps E11000 to a DuplicateError. When field is empty the
// colliding key is read from the server message.
func translateWriteErr(err error, field string) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if field == "" {
		field = duplicateField(err.Error())
	}
	return &DuplicateError{Field: field}
}

var dupKeyRe = regexp.MustCompile(`dup key: \{ (\w+):`)

func duplicateField(msg string) string {
	if m := dupKeyRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return "key"
}
