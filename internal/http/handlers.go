package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/ratelimit"
	"storefront/internal/repository"
	"storefront/internal/service"
)

const Version = "1.0.0"

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// statsReporter is a cache that keeps hit and miss counters
type statsReporter interface {
	Stats() cache.Stats
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Options tune the HTTP layer; the zero value serves a development API with no rate limit
type Options struct {
	Production  bool
	FrontendURL string
	// DB is nil when the in-memory store is used
	DB    Pinger
	Cache Pinger

	Limiter         *ratelimit.Limiter
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type Server struct {
	engine     *gin.Engine
	products   *service.ProductService
	orders     *service.OrderService
	auth       *service.AuthService
	production bool
	db         Pinger
	cache      Pinger
	now        func() time.Time
}

func NewServer(products *service.ProductService, orders *service.OrderService, accounts *service.AuthService, opts Options) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), RequestID())
	if opts.FrontendURL != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{opts.FrontendURL},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", HeaderRequestID},
			ExposeHeaders:    []string{HeaderRequestID, ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	s := &Server{
		engine:     r,
		products:   products,
		orders:     orders,
		auth:       accounts,
		production: opts.Production,
		db:         opts.DB,
		cache:      opts.Cache,
		now:        time.Now,
	}
	s.registerRoutes(opts)
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes(opts Options) {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/", s.root)
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{Message: "Route not found"})
	})

	api := s.engine.Group("/api")
	if opts.Limiter != nil && opts.RateLimitMax > 0 {
		api.Use(ratelimit.Middleware(opts.Limiter, opts.RateLimitMax, opts.RateLimitWindow))
	}
	api.GET("/health", s.health)

	admin := []gin.HandlerFunc{s.Authenticate(), s.RequireRole(domain.RoleAdmin)}

	products := api.Group("/products")
	{
		products.GET("", s.listProducts)
		products.GET("/featured", s.featuredProducts)
		products.GET("/categories", s.categories)
		products.GET("/search", s.searchProducts)
		products.GET("/:id", s.getProduct)
		products.POST("", append(admin, s.createProduct)...)
		products.PUT("/:id", append(admin, s.updateProduct)...)
		products.DELETE("/:id", append(admin, s.deleteProduct)...)
	}

	orders := api.Group("/orders")
	{
		orders.POST("", s.OptionalAuth(), s.createOrder)
		orders.POST("/:orderId/payment-intent", s.createPaymentIntent)
		orders.POST("/confirm-payment", s.confirmPayment)
		orders.GET("/my-orders", s.Authenticate(), s.myOrders)
		orders.GET("/:orderId", s.Authenticate(), s.getOrder)
		orders.PUT("/:orderId/status", append(admin, s.updateOrderStatus)...)
	}

	accounts := api.Group("/auth")
	{
		accounts.POST("/register", s.register)
		accounts.POST("/login", s.login)
		accounts.GET("/profile", s.Authenticate(), s.profile)
		accounts.PUT("/profile", s.Authenticate(), s.updateProfile)
	}
}

// @Summary Service banner
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Storefront API is running!",
		"version":   Version,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{
		"status":    "OK",
		"database":  pingState(ctx, s.db),
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if s.cache != nil {
		body["cache"] = pingState(ctx, s.cache)
		if sr, ok := s.cache.(statsReporter); ok {
			body["cacheStats"] = sr.Stats()
		}
	}
	c.JSON(http.StatusOK, body)
}

func pingState(ctx context.Context, p Pinger) string {
	if p == nil {
		return "Connected"
	}
	if err := p.Ping(ctx); err != nil {
		return "Disconnected"
	}
	return "Connected"
}

// Product handlers

// @Summary List products
// @Tags products
// @Produce json
// @Param category query string false "Category"
// @Param subcategory query string false "Subcategory"
// @Param brand query string false "Brand contains"
// @Param search query string false "Title, description, brand or tag contains"
// @Param minPrice query number false "Min price"
// @Param maxPrice query number false "Max price"
// @Param featured query bool false "Featured only"
// @Param inStock query bool false "In stock only"
// @Param sortBy query string false "createdAt, price, title, stock or rating"
// @Param sortOrder query string false "asc or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size; omit for every product"
// @Param all query bool false "Skip pagination"
// @Success 200 {object} service.ProductPage
// @Failure 400 {object} envelope
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	lp, err := parseListParams(c)
	if err != nil {
		s.fail(c, err, "Product", "fetch products")
		return
	}
	page, err := s.products.List(c.Request.Context(), lp)
	if err != nil {
		s.fail(c, err, "Product", "fetch products")
		return
	}
	respond(c, http.StatusOK, page, "")
}

var sortable = map[string]bool{
	repository.SortCreatedAt: true,
	repository.SortPrice:     true,
	repository.SortTitle:     true,
	repository.SortStock:     true,
	repository.SortRating:    true,
}

func parseListParams(c *gin.Context) (service.ListParams, error) {
	var lp service.ListParams
	f := &lp.Filter
	f.Category = domain.Category(strings.ToLower(c.Query("category")))
	f.Subcategory = c.Query("subcategory")
	f.Brand = c.Query("brand")
	f.Search = strings.TrimSpace(c.Query("search"))
	f.Featured = c.Query("featured") == "true"
	f.InStock = c.Query("inStock") == "true"
	lp.All = c.Query("all") == "true"

	f.SortBy = c.DefaultQuery("sortBy", repository.SortCreatedAt)
	if !sortable[f.SortBy] {
		return lp, fmt.Errorf("%w: cannot sort by %q", service.ErrInvalidInput, f.SortBy)
	}
	switch order := c.DefaultQuery("sortOrder", "desc"); order {
	case "desc":
		f.SortDesc = true
	case "asc":
	default:
		return lp, fmt.Errorf("%w: sortOrder must be asc or desc", service.ErrInvalidInput)
	}

	var err error
	if f.MinPrice, err = queryFloat(c, "minPrice"); err != nil {
		return lp, err
	}
	if f.MaxPrice, err = queryFloat(c, "maxPrice"); err != nil {
		return lp, err
	}
	if lp.Page, err = queryInt(c, "page"); err != nil {
		return lp, err
	}
	if lp.Limit, err = queryInt(c, "limit"); err != nil {
		return lp, err
	}
	return lp, nil
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", service.ErrInvalidInput, name)
	}
	return &x, nil
}

func queryInt(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", service.ErrInvalidInput, name)
	}
	return n, nil
}

// @Summary Featured products
// @Tags products
// @Produce json
// @Param limit query int false "Max products"
// @Success 200 {array} domain.Product
// @Router /products/featured [get]
func (s *Server) featuredProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err, "Product", "fetch featured products")
		return
	}
	list, err := s.products.Featured(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, "Product", "fetch featured products")
		return
	}
	respond(c, http.StatusOK, list, "")
}

// @Summary Product categories
// @Tags products
// @Produce json
// @Success 200 {array} string
// @Router /products/categories [get]
func (s *Server) categories(c *gin.Context) {
	cats, err := s.products.Categories(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Category", "fetch categories")
		return
	}
	respond(c, http.StatusOK, cats, "")
}

// @Summary Search products
// @Tags products
// @Produce json
// @Param q query string true "At least 2 characters"
// @Param limit query int false "Max products"
// @Success 200 {array} domain.Product
// @Failure 400 {object} envelope
// @Router /products/search [get]
func (s *Server) searchProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err, "Product", "search products")
		return
	}
	list, err := s.products.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.fail(c, err, "Product", "search products")
		return
	}
	respond(c, http.StatusOK, list, "")
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path string true "ObjectID or legacy numeric id"
// @Success 200 {object} domain.Product
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	p, err := s.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Product", "fetch product")
		return
	}
	respond(c, http.StatusOK, p, "")
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body domain.Product true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} envelope
// @Failure 409 {object} envelope
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	p := service.NewProduct()
	if err := c.ShouldBindJSON(&p); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p.ID = primitive.NilObjectID
	created, err := s.products.Create(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err, "Product", "create product")
		return
	}
	respond(c, http.StatusCreated, created, "Product created successfully")
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param input body service.ProductPatch true "Fields to change"
// @Success 200 {object} domain.Product
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, valid := s.objectID(c, "id", "Invalid product ID format")
	if !valid {
		return
	}
	var patch service.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := s.products.Update(c.Request.Context(), id, patch)
	if err != nil {
		s.fail(c, err, "Product", "update product")
		return
	}
	respond(c, http.StatusOK, p, "Product updated successfully")
}

// @Summary Delete product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, valid := s.objectID(c, "id", "Invalid product ID format")
	if !valid {
		return
	}
	if err := s.products.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err, "Product", "delete product")
		return
	}
	respond(c, http.StatusOK, nil, "Product deleted successfully")
}

func (s *Server) objectID(c *gin.Context, param, message string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		s.reject(c, http.StatusBadRequest, message, err)
		return primitive.NilObjectID, false
	}
	return id, true
}
