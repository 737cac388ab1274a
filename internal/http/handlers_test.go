package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
)

type testEnv struct {
	srv      *Server
	store    *repository.MemoryStore
	accounts *service.AuthService
}

func setupServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	ordersRepo := repository.NewMemoryOrders(store)
	productsSvc := service.NewProductService(store)
	ordersSvc, err := service.NewOrderService(store, ordersRepo, payment.NewLocal(true), "usd")
	if err != nil {
		t.Fatal(err)
	}
	accounts := service.NewAuthService(
		repository.NewMemoryUsers(store),
		auth.NewJWTManager("test-secret", time.Hour),
		auth.NewPasswordHasherWithCost(4),
	)
	return &testEnv{
		srv:      NewServer(productsSvc, ordersSvc, accounts, opts),
		store:    store,
		accounts: accounts,
	}
}

func doJSON(t *testing.T, s *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Field   string          `json:"field"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) response {
	t.Helper()
	var r response
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	if data != nil {
		if err := json.Unmarshal(r.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", r.Data, err)
		}
	}
	return r
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	in := service.RegisterInput{Username: "admin", Email: "admin@example.com", Password: "secret123"}
	if _, err := e.accounts.EnsureAdmin(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	return e.login(t, in.Email, in.Password)
}

func (e *testEnv) customerToken(t *testing.T, username string) string {
	t.Helper()
	email := username + "@example.com"
	w := doJSON(t, e.srv, http.MethodPost, "/api/auth/register", map[string]any{
		"username": username, "email": email, "password": "secret123",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register code %v: %s", w.Code, w.Body)
	}
	var sess struct {
		Token string `json:"token"`
	}
	decode(t, w, &sess)
	return sess.Token
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	w := doJSON(t, e.srv, http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login code %v: %s", w.Code, w.Body)
	}
	var sess struct {
		Token string `json:"token"`
	}
	decode(t, w, &sess)
	return sess.Token
}

func (e *testEnv) product(t *testing.T, title string, price float64, stock int64) *domain.Product {
	t.Helper()
	p := service.NewProduct()
	p.Title, p.Price, p.Stock = title, price, stock
	p.Category = domain.CategoryElectronics
	if err := e.store.Create(context.Background(), &p); err != nil {
		t.Fatal(err)
	}
	return &p
}

func TestProductFlow(t *testing.T) {
	e := setupServer(t, Options{})
	admin := e.adminToken(t)

	// create
	w := doJSON(t, e.srv, http.MethodPost, "/api/products", map[string]any{
		"title": "Headphones", "price": 99.5, "stock": 5, "category": "electronics", "legacyId": 7,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create code %v: %s", w.Code, w.Body)
	}
	var p domain.Product
	decode(t, w, &p)
	if p.SKU != "PRD000001" || !p.IsActive || p.LegacyID != 7 {
		t.Fatalf("unexpected product: %+v", p)
	}

	// get by ObjectID and by legacy id
	for _, ref := range []string{p.ID.Hex(), "7"} {
		w = doJSON(t, e.srv, http.MethodGet, "/api/products/"+ref, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("get %s code %v", ref, w.Code)
		}
	}

	// update
	w = doJSON(t, e.srv, http.MethodPut, "/api/products/"+p.ID.Hex(), map[string]any{"price": 120}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v: %s", w.Code, w.Body)
	}
	decode(t, w, &p)
	if p.Price != 120 || p.Stock != 5 {
		t.Fatalf("partial update lost fields: %+v", p)
	}

	// list
	w = doJSON(t, e.srv, http.MethodGet, "/api/products?limit=10&sortBy=price&sortOrder=asc", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list code %v", w.Code)
	}
	var page service.ProductPage
	decode(t, w, &page)
	if len(page.Products) != 1 || page.Pagination == nil || page.Pagination.TotalProducts != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	// delete
	w = doJSON(t, e.srv, http.MethodDelete, "/api/products/"+p.ID.Hex(), nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("delete code %v", w.Code)
	}
	w = doJSON(t, e.srv, http.MethodGet, "/api/products/"+p.ID.Hex(), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete code %v", w.Code)
	}
	if r := decode(t, w, nil); r.Success || r.Message != "Product not found" {
		t.Fatalf("unexpected body: %+v", r)
	}
}

func TestProductAdminGuard(t *testing.T) {
	e := setupServer(t, Options{})
	body := map[string]any{"title": "X", "price": 1, "category": "books"}

	w := doJSON(t, e.srv, http.MethodPost, "/api/products", body, "")
	if w.Code != http.StatusUnauthorized || decode(t, w, nil).Message != "Access denied. No token provided." {
		t.Fatalf("no token: %v %s", w.Code, w.Body)
	}
	w = doJSON(t, e.srv, http.MethodPost, "/api/products", body, "not-a-jwt")
	if w.Code != http.StatusUnauthorized || decode(t, w, nil).Message != "Invalid token." {
		t.Fatalf("bad token: %v %s", w.Code, w.Body)
	}
	w = doJSON(t, e.srv, http.MethodPost, "/api/products", body, e.customerToken(t, "shopper"))
	if w.Code != http.StatusForbidden || decode(t, w, nil).Message != "Access denied. Admin privileges required." {
		t.Fatalf("customer: %v %s", w.Code, w.Body)
	}
}

func TestProductValidationErrors(t *testing.T) {
	e := setupServer(t, Options{})
	admin := e.adminToken(t)

	cases := []struct {
		method, path string
		body         any
		code         int
	}{
		{http.MethodGet, "/api/products?sortBy=__v", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/products?sortOrder=sideways", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/products?page=abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/products?minPrice=50&maxPrice=10", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/products/search?q=a", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/products/not-an-id", nil, http.StatusBadRequest},
		{http.MethodPut, "/api/products/123", map[string]any{"price": 1}, http.StatusBadRequest},
		{http.MethodPost, "/api/products", "{", http.StatusBadRequest},
		{http.MethodPost, "/api/products", map[string]any{"title": "", "category": "food"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := doJSON(t, e.srv, tc.method, tc.path, tc.body, admin)
		if w.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d: %s", tc.method, tc.path, tc.code, w.Code, w.Body)
		}
	}

	body := map[string]any{"title": "A", "price": 1, "category": "books", "sku": "dup-1"}
	if w := doJSON(t, e.srv, http.MethodPost, "/api/products", body, admin); w.Code != http.StatusCreated {
		t.Fatalf("create code %v", w.Code)
	}
	w := doJSON(t, e.srv, http.MethodPost, "/api/products", body, admin)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate sku code %v", w.Code)
	}
	if r := decode(t, w, nil); r.Field != "sku" || r.Message != "Sku already exists" {
		t.Fatalf("unexpected duplicate body: %+v", r)
	}
}

func orderBody(productRef any, qty int) map[string]any {
	return map[string]any{
		"customerInfo":    map[string]any{"firstName": "Jane", "lastName": "Doe", "email": "jane@example.com"},
		"shippingAddress": map[string]any{"street": "1 Main St", "city": "Springfield", "zipCode": "62701", "country": "US"},
		"items":           []any{map[string]any{"productId": productRef, "quantity": qty}},
		"pricing":         map[string]any{"shipping": 9.99, "tax": 1.6},
	}
}

func TestCheckoutFlow(t *testing.T) {
	e := setupServer(t, Options{})
	p := e.product(t, "Lamp", 10, 5)

	w := doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(p.ID.Hex(), 2), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create order code %v: %s", w.Code, w.Body)
	}
	var created struct {
		Order domain.Order `json:"order"`
	}
	decode(t, w, &created)
	o := created.Order
	if o.UserID != nil || o.Pricing.Subtotal != 20 || o.Pricing.Total != 31.59 {
		t.Fatalf("unexpected order: %+v", o)
	}

	w = doJSON(t, e.srv, http.MethodPost, "/api/orders/"+o.ID.Hex()+"/payment-intent", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("intent code %v: %s", w.Code, w.Body)
	}
	var intent service.IntentResult
	decode(t, w, &intent)
	intentID, _, _ := strings.Cut(intent.ClientSecret, "_secret_")

	confirm := map[string]any{"orderId": o.ID.Hex(), "paymentIntentId": intentID}
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders/confirm-payment", confirm, "")
	if w.Code != http.StatusOK {
		t.Fatalf("confirm code %v: %s", w.Code, w.Body)
	}
	decode(t, w, &created)
	if created.Order.Status != domain.OrderStatusProcessing || created.Order.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("order not transitioned: %+v", created.Order)
	}
	got, _ := e.store.GetByID(context.Background(), p.ID)
	if got.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", got.Stock)
	}

	// a second confirmation is a state conflict and takes no more stock
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders/confirm-payment", confirm, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("second confirm code %v", w.Code)
	}
	got, _ = e.store.GetByID(context.Background(), p.ID)
	if got.Stock != 3 {
		t.Fatalf("stock changed by second confirm: %d", got.Stock)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	e := setupServer(t, Options{})
	p := e.product(t, "Lamp", 10, 1)

	w := doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(p.ID.Hex(), 3), "")
	if w.Code != http.StatusBadRequest || !strings.Contains(decode(t, w, nil).Message, "Available: 1") {
		t.Fatalf("insufficient stock: %v %s", w.Code, w.Body)
	}
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(999, 1), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product code %v", w.Code)
	}
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(true, 1), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad product ref code %v", w.Code)
	}
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders/confirm-payment", map[string]any{"orderId": "x"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad order id code %v", w.Code)
	}
}

func TestOrderAccess(t *testing.T) {
	e := setupServer(t, Options{})
	p := e.product(t, "Lamp", 10, 10)
	alice := e.customerToken(t, "alice")
	bob := e.customerToken(t, "bob")
	admin := e.adminToken(t)

	w := doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(p.ID.Hex(), 1), alice)
	var created struct {
		Order domain.Order `json:"order"`
	}
	decode(t, w, &created)
	if created.Order.UserID == nil {
		t.Fatalf("order should be linked to the token's user")
	}
	path := "/api/orders/" + created.Order.ID.Hex()

	if w := doJSON(t, e.srv, http.MethodGet, path, nil, alice); w.Code != http.StatusOK {
		t.Fatalf("owner code %v", w.Code)
	}
	if w := doJSON(t, e.srv, http.MethodGet, path, nil, bob); w.Code != http.StatusForbidden {
		t.Fatalf("other user code %v", w.Code)
	}
	if w := doJSON(t, e.srv, http.MethodGet, path, nil, admin); w.Code != http.StatusOK {
		t.Fatalf("admin code %v", w.Code)
	}
	if w := doJSON(t, e.srv, http.MethodGet, path, nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous code %v", w.Code)
	}

	w = doJSON(t, e.srv, http.MethodGet, "/api/orders/my-orders", nil, alice)
	var mine struct {
		Orders []domain.Order `json:"orders"`
	}
	decode(t, w, &mine)
	if len(mine.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(mine.Orders))
	}
	w = doJSON(t, e.srv, http.MethodGet, "/api/orders/my-orders", nil, bob)
	decode(t, w, &mine)
	if len(mine.Orders) != 0 {
		t.Fatalf("bob should have no orders")
	}

	// an invalid token on the optional-auth route still places a guest order
	w = doJSON(t, e.srv, http.MethodPost, "/api/orders", orderBody(p.ID.Hex(), 1), "garbage")
	if w.Code != http.StatusCreated {
		t.Fatalf("guest with bad token code %v", w.Code)
	}

	status := map[string]any{"status": "shipped", "trackingNumber": "1Z999"}
	if w := doJSON(t, e.srv, http.MethodPut, path+"/status", status, alice); w.Code != http.StatusForbidden {
		t.Fatalf("customer status update code %v", w.Code)
	}
	w = doJSON(t, e.srv, http.MethodPut, path+"/status", status, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("admin status update code %v: %s", w.Code, w.Body)
	}
	decode(t, w, &created)
	if created.Order.Status != domain.OrderStatusShipped || created.Order.TrackingNumber != "1Z999" {
		t.Fatalf("status not applied: %+v", created.Order)
	}
}

func TestAuthEndpoints(t *testing.T) {
	e := setupServer(t, Options{})
	token := e.customerToken(t, "carol")

	w := doJSON(t, e.srv, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "carol2", "email": "carol@example.com", "password": "secret123",
	}, "")
	if w.Code != http.StatusConflict || decode(t, w, nil).Field != "email" {
		t.Fatalf("duplicate email: %v %s", w.Code, w.Body)
	}

	w = doJSON(t, e.srv, http.MethodPost, "/api/auth/login", map[string]any{"email": "carol@example.com", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized || decode(t, w, nil).Message != "Invalid credentials" {
		t.Fatalf("wrong password: %v %s", w.Code, w.Body)
	}

	w = doJSON(t, e.srv, http.MethodPut, "/api/auth/profile", map[string]any{"firstName": "Carol"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update profile code %v", w.Code)
	}
	w = doJSON(t, e.srv, http.MethodGet, "/api/auth/profile", nil, token)
	var prof struct {
		User domain.User `json:"user"`
	}
	decode(t, w, &prof)
	if prof.User.FirstName != "Carol" || prof.User.Email != "carol@example.com" {
		t.Fatalf("unexpected profile: %+v", prof.User)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", w.Body)
	}
}

func TestSystemRoutes(t *testing.T) {
	e := setupServer(t, Options{})
	w := doJSON(t, e.srv, http.MethodGet, "/api/health", nil, "")
	var health map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || health["status"] != "OK" || health["database"] != "Connected" {
		t.Fatalf("unexpected health: %v %v", w.Code, health)
	}
	if w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("request id header missing")
	}

	w = doJSON(t, e.srv, http.MethodGet, "/", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), Version) {
		t.Fatalf("banner: %v %s", w.Code, w.Body)
	}

	w = doJSON(t, e.srv, http.MethodGet, "/api/nope", nil, "")
	if w.Code != http.StatusNotFound || decode(t, w, nil).Message != "Route not found" {
		t.Fatalf("no route: %v %s", w.Code, w.Body)
	}
}

func TestHealthReportsCacheStats(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := cache.New(client, "test:", time.Minute)
	var miss struct{}
	if _, err := c.Get(context.Background(), "absent", &miss); err != nil {
		t.Fatal(err)
	}

	e := setupServer(t, Options{Cache: c})
	w := doJSON(t, e.srv, http.MethodGet, "/api/health", nil, "")
	var health struct {
		Cache      string      `json:"cache"`
		CacheStats cache.Stats `json:"cacheStats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Cache != "Connected" || health.CacheStats.Misses != 1 {
		t.Fatalf("unexpected cache health: %+v", health)
	}

	mr.Close()
	w = doJSON(t, e.srv, http.MethodGet, "/api/health", nil, "")
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Cache != "Disconnected" {
		t.Fatalf("expected disconnected cache, got %q", health.Cache)
	}
}

func TestErrorDetailOnlyOutsideProduction(t *testing.T) {
	dev := setupServer(t, Options{})
	w := doJSON(t, dev.srv, http.MethodGet, "/api/products/search?q=x", nil, "")
	if decode(t, w, nil).Error == "" {
		t.Fatalf("development responses carry the error detail")
	}

	prod := setupServer(t, Options{Production: true})
	w = doJSON(t, prod.srv, http.MethodGet, "/api/products/search?q=x", nil, "")
	if r := decode(t, w, nil); r.Error != "" || r.Message == "" {
		t.Fatalf("production leaked error detail: %+v", r)
	}
}
