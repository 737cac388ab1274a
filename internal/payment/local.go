package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Local is an in-process Gateway for development and tests.
// With AutoCapture every new intent is created already succeeded.
type Local struct {
	mu          sync.Mutex
	intents     map[string]*Intent
	AutoCapture bool
}

func NewLocal(autoCapture bool) *Local {
	return &Local{intents: make(map[string]*Intent), AutoCapture: autoCapture}
}

var _ Gateway = (*Local)(nil)

func (l *Local) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("local gateway: amount must be positive, got %d", req.AmountMinor)
	}
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Status:       StatusRequiresPaymentMethod,
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
		Metadata:     copyMeta(req.Metadata),
	}
	if l.AutoCapture {
		in.Status = StatusSucceeded
	}
	l.mu.Lock()
	l.intents[id] = in
	l.mu.Unlock()
	cp := *in
	return &cp, nil
}

func (l *Local) GetIntent(ctx context.Context, id string) (*Intent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *in
	cp.Metadata = copyMeta(in.Metadata)
	return &cp, nil
}

func (l *Local) CancelIntent(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	if in.Status == StatusSucceeded {
		return fmt.Errorf("local gateway: intent %s already succeeded", id)
	}
	in.Status = StatusCanceled
	return nil
}

// SetStatus simulates the shopper completing (or failing) the payment
func (l *Local) SetStatus(id string, status IntentStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = status
	return nil
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
