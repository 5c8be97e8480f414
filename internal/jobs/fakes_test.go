package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"fulfillment-be/internal/order"
	"fulfillment-be/internal/reconcile"
	"fulfillment-be/internal/refund"
	"fulfillment-be/internal/settlement"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memOrders is an in-memory order.Repository. GetByID hands out copies so
// jobs work on a reloaded aggregate like they do against Postgres.
type memOrders struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*order.Order
	saves   int
	saveErr error
	findErr error
}

func newMemOrders(orders ...*order.Order) *memOrders {
	m := &memOrders{byID: map[uuid.UUID]*order.Order{}}
	for _, o := range orders {
		m.byID[o.ID] = o
	}
	return m
}

func (m *memOrders) get(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) Save(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if stored, ok := m.byID[o.ID]; ok && stored.Version != o.Version {
		return order.ErrStaleVersion
	}
	o.Version++
	cp := *o
	m.byID[o.ID] = &cp
	m.saves++
	return nil
}

func (m *memOrders) filter(keep func(*order.Order) bool, limit int) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*order.Order
	for _, o := range m.byID {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *order.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) FindByStatusCreatedBefore(_ context.Context, status order.Status, before time.Time, limit int) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool { return o.Status == status && o.CreatedAt.Before(before) }, limit)
}

func (m *memOrders) FindShippedBefore(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool {
		return o.Status == order.StatusShipped && o.ShippedAt != nil && o.ShippedAt.Before(before)
	}, limit)
}

func (m *memOrders) FindDeliveredBefore(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool {
		return o.Status == order.StatusDelivered && o.ActualDeliveryAt != nil && o.ActualDeliveryAt.Before(before)
	}, limit)
}

func (m *memOrders) FindTrackable(_ context.Context, statuses []order.Status, limit int) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool {
		return slices.Contains(statuses, o.Status) && o.TrackingCode != nil && *o.TrackingCode != ""
	}, limit)
}

type memRefunds struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*refund.RefundRequest
}

func newMemRefunds(refunds ...*refund.RefundRequest) *memRefunds {
	m := &memRefunds{byID: map[uuid.UUID]*refund.RefundRequest{}}
	for _, r := range refunds {
		m.byID[r.ID] = r
	}
	return m
}

func (m *memRefunds) Create(_ context.Context, r *refund.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.ID] = r
	return nil
}

func (m *memRefunds) GetByID(_ context.Context, id uuid.UUID) (*refund.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, refund.ErrRefundNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRefunds) Save(_ context.Context, r *refund.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Version++
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memRefunds) FindTrackable(_ context.Context, statuses []refund.Status, limit int) ([]*refund.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*refund.RefundRequest
	for _, r := range m.byID {
		if slices.Contains(statuses, r.Status) && r.TrackingCode != nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, o *order.Order) (settlement.Quote, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(settlement.Quote), args.Error(1)
}

func (m *MockSettler) RecordCompletion(ctx context.Context, o *order.Order) {
	m.Called(ctx, o)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileOrder(ctx context.Context, o *order.Order) (reconcile.Outcome, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(reconcile.Outcome), args.Error(1)
}

func (m *MockReconciler) ReconcileRefund(ctx context.Context, r *refund.RefundRequest) (reconcile.Outcome, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(reconcile.Outcome), args.Error(1)
}

type fakeScheduler struct {
	names []string
	specs []string
	runs  []func(context.Context)
}

func (f *fakeScheduler) Register(name, spec string, run func(ctx context.Context)) error {
	f.names = append(f.names, name)
	f.specs = append(f.specs, spec)
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeScheduler) Start() {}

func (f *fakeScheduler) Stop() context.Context {
	return context.Background()
}

// heldLocker refuses the listed keys.
type heldLocker struct {
	held map[string]bool
}

func (l heldLocker) Lock(_ context.Context, key string) (func(), error) {
	if l.held[key] {
		return nil, ErrLockHeld
	}
	return func() {}, nil
}
