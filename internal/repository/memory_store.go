package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stanstork/bulkgen/internal/models"
)

// MemoryStore keeps orders and products in process memory. It backs local
// runs and tests; all methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	orders     map[int64]models.Order
	products   map[int64]models.Product
	categories []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[int64]models.Order),
		products: make(map[int64]models.Product),
	}
}

// RecordStore exposes the memory store through the repository interfaces.
func (s *MemoryStore) RecordStore() RecordStore {
	return RecordStore{Orders: &memoryOrders{s}, Products: &memoryProducts{s}}
}

func (s *MemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func page[T any](items []T, offset, limit int) []T {
	offset, limit = clampPage(offset, limit)
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memoryOrders struct{ s *MemoryStore }

func (r *memoryOrders) Ping(ctx context.Context) error { return ctx.Err() }

func (r *memoryOrders) Create(_ context.Context, order *models.Order) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order.ID = r.s.allocID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	r.s.orders[order.ID] = cloneOrder(*order)
	return order.ID, nil
}

func (r *memoryOrders) Get(_ context.Context, id int64) (models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *memoryOrders) matching(filter models.OrderFilter) []models.Order {
	var out []models.Order
	for _, id := range sortedIDs(r.s.orders) {
		if o := r.s.orders[id]; filter.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

func (r *memoryOrders) List(_ context.Context, filter models.OrderFilter, offset, limit int) ([]models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Order
	for _, o := range page(r.matching(filter), offset, limit) {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (r *memoryOrders) Count(_ context.Context, filter models.OrderFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.matching(filter)), nil
}

func (r *memoryOrders) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.orders, id)
	return nil
}

func (r *memoryOrders) ExistsByNumber(_ context.Context, number string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, o := range r.s.orders {
		if o.Number == number {
			return true, nil
		}
	}
	return false, nil
}

type memoryProducts struct{ s *MemoryStore }

func (r *memoryProducts) Ping(ctx context.Context) error { return ctx.Err() }

func (r *memoryProducts) Create(_ context.Context, product *models.Product) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if product.SKU != "" {
		for _, existing := range r.s.products {
			if existing.SKU == product.SKU {
				return 0, ErrDuplicateSKU
			}
		}
	}
	product.ID = r.s.allocID()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	r.s.products[product.ID] = cloneProduct(*product)
	return product.ID, nil
}

func (r *memoryProducts) Get(_ context.Context, id int64) (models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return models.Product{}, ErrNotFound
	}
	return r.withVariations(p), nil
}

func (r *memoryProducts) withVariations(p models.Product) models.Product {
	p = cloneProduct(p)
	if p.Type != models.ProductVariable {
		return p
	}
	p.VariationIDs = nil
	for _, id := range sortedIDs(r.s.products) {
		if r.s.products[id].ParentID == p.ID {
			p.VariationIDs = append(p.VariationIDs, id)
		}
	}
	return p
}

func (r *memoryProducts) matching(filter models.ProductFilter) []models.Product {
	var out []models.Product
	for _, id := range sortedIDs(r.s.products) {
		p := r.s.products[id]
		if p.ParentID == 0 && filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *memoryProducts) List(_ context.Context, filter models.ProductFilter, offset, limit int) ([]models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Product
	for _, p := range page(r.matching(filter), offset, limit) {
		out = append(out, r.withVariations(p))
	}
	return out, nil
}

func (r *memoryProducts) Count(_ context.Context, filter models.ProductFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.matching(filter)), nil
}

func (r *memoryProducts) Variations(_ context.Context, parentID int64) ([]models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Product
	for _, id := range sortedIDs(r.s.products) {
		if p := r.s.products[id]; p.ParentID == parentID {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *memoryProducts) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r *memoryProducts) SKUExists(_ context.Context, sku string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.products {
		if p.SKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryProducts) ExistsByMeta(_ context.Context, key, value string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.products {
		if v, ok := p.Meta[key]; ok && v == value {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryProducts) Purchasable(_ context.Context) ([]models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Product
	for _, id := range sortedIDs(r.s.products) {
		p := r.s.products[id]
		if purchasable(p) {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func purchasable(p models.Product) bool {
	if !p.Published() || p.Price() <= 0 {
		return false
	}
	return p.Type == models.ProductSimple || p.Type == models.ProductVariation
}

func (r *memoryProducts) Categories(_ context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]string(nil), r.s.categories...), nil
}

func (r *memoryProducts) EnsureCategories(_ context.Context, names []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || containsFold(r.s.categories, name) {
			continue
		}
		r.s.categories = append(r.s.categories, name)
	}
	return nil
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func cloneOrder(o models.Order) models.Order {
	o.LineItems = append([]models.LineItem(nil), o.LineItems...)
	o.ShippingLines = append([]models.ShippingLine(nil), o.ShippingLines...)
	o.Meta = cloneMeta(o.Meta)
	return o
}

func cloneProduct(p models.Product) models.Product {
	p.Categories = append([]string(nil), p.Categories...)
	p.Tags = append([]string(nil), p.Tags...)
	p.Images = append([]string(nil), p.Images...)
	p.Attributes = append([]models.Attribute(nil), p.Attributes...)
	p.Meta = cloneMeta(p.Meta)
	return p
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
