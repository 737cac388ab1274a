package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// @Summary Place order
// @Description Guests may order without a token; a valid token links the order to the user.
// @Tags orders
// @Accept json
// @Produce json
// @Param input body service.PlaceOrderInput true "Order"
// @Success 201 {object} envelope
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var in service.PlaceOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	var userID *primitive.ObjectID
	if u := currentUser(c); u != nil {
		id := u.ID
		userID = &id
	}
	o, err := s.orders.PlaceOrder(c.Request.Context(), in, userID)
	if err != nil {
		s.fail(c, err, "Product", "create order")
		return
	}
	respond(c, http.StatusCreated, gin.H{"order": o}, "Order created successfully")
}

// @Summary Create payment intent
// @Tags orders
// @Produce json
// @Param orderId path string true "Order ID"
// @Success 200 {object} service.IntentResult
// @Failure 404 {object} envelope
// @Failure 409 {object} envelope
// @Router /orders/{orderId}/payment-intent [post]
func (s *Server) createPaymentIntent(c *gin.Context) {
	id, valid := s.objectID(c, "orderId", "Invalid order ID format")
	if !valid {
		return
	}
	res, err := s.orders.CreatePaymentIntent(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, "Order", "create payment intent")
		return
	}
	respond(c, http.StatusOK, res, "")
}

type confirmPaymentReq struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// @Summary Confirm payment
// @Description Verifies the intent with the gateway, takes stock and moves the order to processing.
// @Tags orders
// @Accept json
// @Produce json
// @Param input body confirmPaymentReq true "Order and intent"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Failure 409 {object} envelope
// @Router /orders/confirm-payment [post]
func (s *Server) confirmPayment(c *gin.Context) {
	var req confirmPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id, err := primitive.ObjectIDFromHex(req.OrderID)
	if err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid order ID format", err)
		return
	}
	o, err := s.orders.ConfirmPayment(c.Request.Context(), id, req.PaymentIntentID)
	if err != nil {
		s.fail(c, err, "Order", "confirm payment")
		return
	}
	respond(c, http.StatusOK, gin.H{"order": o}, "Payment confirmed successfully")
}

// @Summary Current user's orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Success 200 {object} envelope
// @Failure 401 {object} envelope
// @Router /orders/my-orders [get]
func (s *Server) myOrders(c *gin.Context) {
	u := currentUser(c)
	list, err := s.orders.ListMyOrders(c.Request.Context(), u.ID)
	if err != nil {
		s.fail(c, err, "Order", "get orders. Please try again later.")
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	respond(c, http.StatusOK, gin.H{"orders": list}, "")
}

// @Summary Get order
// @Description Owners see their own orders; admins see every order.
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} envelope
// @Failure 404 {object} envelope
// @Router /orders/{orderId} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, valid := s.objectID(c, "orderId", "Invalid order ID format")
	if !valid {
		return
	}
	u := currentUser(c)
	o, err := s.orders.GetOrder(c.Request.Context(), id, &service.Viewer{UserID: u.ID, Role: u.Role})
	if err != nil {
		s.fail(c, err, "Order", "get order")
		return
	}
	respond(c, http.StatusOK, o, "")
}

// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param input body service.StatusUpdate true "Fulfilment fields"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Router /orders/{orderId}/status [put]
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, valid := s.objectID(c, "orderId", "Invalid order ID format")
	if !valid {
		return
	}
	var upd service.StatusUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	o, err := s.orders.UpdateStatus(c.Request.Context(), id, upd)
	if err != nil {
		s.fail(c, err, "Order", "update order status")
		return
	}
	respond(c, http.StatusOK, gin.H{"order": o}, "Order status updated successfully")
}
