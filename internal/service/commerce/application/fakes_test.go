package application

import (
	"context"
	"fmt"
	"sync"

	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// 出站端口的进程内替身，行为对齐 infrastructure/adapter 下的 HTTP 实现。

type fakeCatalog struct {
	products map[string]port.ProductInfo
}

func newFakeCatalog(products ...port.ProductInfo) *fakeCatalog {
	m := make(map[string]port.ProductInfo, len(products))
	for _, p := range products {
		m[p.SKU] = p
	}
	return &fakeCatalog{products: m}
}

func (f *fakeCatalog) GetProduct(ctx context.Context, sku string) (*port.ProductInfo, error) {
	p, ok := f.products[sku]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSkuNotFound, "catalog has no product %s", sku)
	}
	clone := p
	return &clone, nil
}

type promoUsage struct {
	Code    string
	OrderID string
}

type fakePromotions struct {
	mu     sync.Mutex
	codes  map[string]decimal.Decimal
	usages []promoUsage
}

func newFakePromotions() *fakePromotions {
	return &fakePromotions{codes: make(map[string]decimal.Decimal)}
}

func (f *fakePromotions) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*port.PromoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	discount, ok := f.codes[code]
	if !ok {
		return nil, errors.Wrapf(domain.ErrPromoRejected, "code %s", code)
	}
	return &port.PromoResult{Code: code, Discount: discount}, nil
}

func (f *fakePromotions) RecordUsage(ctx context.Context, code, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usages = append(f.usages, promoUsage{Code: code, OrderID: orderID})
	return nil
}

func (f *fakePromotions) recordedUsages() []promoUsage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]promoUsage(nil), f.usages...)
}

type fakePayment struct {
	mu        sync.Mutex
	decline   bool
	refundErr error
	captures  int
	refunds   []string
}

func (f *fakePayment) Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*port.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decline {
		return nil, errors.Wrapf(domain.ErrPaymentDeclined, "order %s", orderID)
	}
	f.captures++
	return &port.CaptureResult{TransactionID: fmt.Sprintf("txn-%d", f.captures)}, nil
}

func (f *fakePayment) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunds = append(f.refunds, transactionID)
	return nil
}

func (f *fakePayment) refunded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refunds...)
}

type statusChange struct {
	OrderID string
	From    domain.Status
	To      domain.Status
	Actor   string
}

type fakePublisher struct {
	mu      sync.Mutex
	placed  []string
	changes []statusChange
}

func (f *fakePublisher) OrderPlaced(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, order.ID)
	return nil
}

func (f *fakePublisher) OrderStatusChanged(ctx context.Context, order *domain.Order, from domain.Status, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, statusChange{OrderID: order.ID, From: from, To: order.Status, Actor: actor})
	return nil
}

func (f *fakePublisher) placedOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.placed...)
}

func (f *fakePublisher) statusChanges() []statusChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusChange(nil), f.changes...)
}

type fixedQuoter struct {
	cost decimal.Decimal
	err  error
}

func (q fixedQuoter) Quote(ctx context.Context, req port.QuoteRequest) (decimal.Decimal, error) {
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return q.cost, nil
}
