package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/service"
)

func TestClient_DecodesEnvelope(t *testing.T) {
	id := primitive.NewObjectID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/products/42":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"id": id.Hex(), "title": "Lamp", "price": 12.5, "stock": 3},
			})
		case "/api/orders/confirm-payment":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "pi_1", body["paymentIntentId"])
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Payment not completed"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithToken("tok"))
	p, err := c.Product(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Lamp", p.Title)

	_, err = c.ConfirmPayment(context.Background(), id.Hex(), "pi_1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Payment not completed", apiErr.Message)
}

func TestClient_PlaceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in service.PlaceOrderInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Len(t, in.Items, 1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"order": map[string]any{"orderNumber": "ORD-1-ABCDEF"}},
		})
	}))
	defer srv.Close()

	o, err := New(srv.URL).PlaceOrder(context.Background(), service.PlaceOrderInput{
		Items: []service.OrderItemInput{{ProductID: "abc", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1-ABCDEF", o.OrderNumber)
}

func TestIntentIDFromSecret(t *testing.T) {
	assert.Equal(t, "pi_123", IntentIDFromSecret("pi_123_secret_abc"))
	assert.Empty(t, IntentIDFromSecret("nonsense"))
}
