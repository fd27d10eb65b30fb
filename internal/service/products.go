package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/money"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

const priceHistoryLimit = 30

func decorateProduct(p domain.Product) domain.Product {
	p.LowStock = p.Stock <= p.MinStock
	p.MarginPercent = money.MarginPercent(p.CostPriceCents, p.SalePriceCents)
	return p
}

func decorateProducts(products []domain.Product) []domain.Product {
	for i := range products {
		products[i] = decorateProduct(products[i])
	}
	return products
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	return decorateProducts(products), nil
}

// SearchProducts matches an all-digit query against barcodes first, then any
// query against product names.
func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if strings.TrimSpace(query) == "" {
		return s.ListProducts(ctx)
	}
	products, err := s.repo.SearchProducts(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return decorateProducts(products), nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	return decorateProduct(*product), nil
}

// CreateProduct registers a product. Initial stock is not backed by a cost
// lot and is costed at the reference cost when consumed.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return domain.Product{}, invalidInput("name", fmt.Errorf("required"))
	}
	if req.CostPriceCents < 0 || req.SalePriceCents < 0 {
		return domain.Product{}, ErrInvalidAmount
	}
	if req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, ErrInvalidQuantity
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:             xid.New("prod"),
		Name:           req.Name,
		Barcode:        req.Barcode,
		Category:       req.Category,
		CostPriceCents: req.CostPriceCents,
		SalePriceCents: req.SalePriceCents,
		Stock:          req.Stock,
		MinStock:       req.MinStock,
		Active:         true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("barcode %s already registered: %w", req.Barcode, store.ErrConflict)
		}
		return domain.Product{}, err
	}

	s.recordPriceHistory(ctx, *created, actor)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,cost=%d,price=%d,stock=%d",
		created.Name, created.CostPriceCents, created.SalePriceCents, created.Stock))
	return decorateProduct(*created), nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalidInput("name", fmt.Errorf("required"))
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Product{}, ErrInvalidCost
		}
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.SalePriceCents != nil {
		if *req.SalePriceCents < 0 {
			return domain.Product{}, ErrInvalidAmount
		}
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, ErrInvalidQuantity
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, ErrInvalidQuantity
		}
		updated.MinStock = *req.MinStock
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("barcode %s already registered: %w", updated.Barcode, store.ErrConflict)
		}
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}

	if saved.CostPriceCents != existing.CostPriceCents || saved.SalePriceCents != existing.SalePriceCents {
		s.recordPriceHistory(ctx, *saved, actor)
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,cost=%d,price=%d,stock=%d",
		saved.Name, saved.CostPriceCents, saved.SalePriceCents, saved.Stock))
	return decorateProduct(*saved), nil
}

// DeleteProduct hides a product from the catalog. Its history stays.
func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return notFoundAs(err, ErrProductNotFound)
	}
	if !existing.Active {
		return nil
	}
	existing.Active = false
	if _, err := s.repo.UpdateProduct(ctx, *existing); err != nil {
		return notFoundAs(err, ErrProductNotFound)
	}
	s.logAudit(ctx, "product_delete", "product", existing.ID, existing.Name)
	return nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	if limit < 1 || limit > priceHistoryLimit {
		limit = priceHistoryLimit
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) recordPriceHistory(ctx context.Context, product domain.Product, actor domain.Actor) {
	if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
		ID:             xid.New("ph"),
		ProductID:      product.ID,
		CostPriceCents: product.CostPriceCents,
		SalePriceCents: product.SalePriceCents,
		ChangedBy:      actor.Username,
		ChangedAt:      time.Now().UTC(),
	}); err != nil {
		s.logger.WithField("product_id", product.ID).WithError(err).Warn("failed to record price history")
	}
}

// AddProductBatch receives stock as a new cost lot. Any signed-in operator
// may receive goods. The lot's unit cost becomes the product's reference cost.
func (s *Service) AddProductBatch(ctx context.Context, productID string, req domain.BatchCreateRequest) (domain.CostLot, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CostLot{}, err
	}
	if req.Quantity < 1 {
		return domain.CostLot{}, ErrInvalidQuantity
	}
	if req.CostPriceCents < 0 {
		return domain.CostLot{}, ErrInvalidCost
	}

	lot, err := s.repo.AddCostLot(ctx, domain.CostLot{
		ID:              xid.New("lot"),
		ProductID:       productID,
		InitialQuantity: req.Quantity,
		CurrentQuantity: req.Quantity,
		UnitCostCents:   req.CostPriceCents,
		Provider:        strings.TrimSpace(req.Provider),
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.CostLot{}, notFoundAs(err, ErrProductNotFound)
	}

	if product, err := s.repo.GetProduct(ctx, productID); err == nil {
		s.recordPriceHistory(ctx, *product, actor)
	}
	s.logAudit(ctx, "product_batch_add", "product", productID, fmt.Sprintf("lot=%s,qty=%d,unit_cost=%d,provider=%s",
		lot.ID, lot.InitialQuantity, lot.UnitCostCents, lot.Provider))
	return *lot, nil
}

func (s *Service) ListCostLots(ctx context.Context, productID string) ([]domain.CostLot, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	return s.repo.ListCostLots(ctx, productID)
}

// ConsumeFIFO drains qty units from the product's lots oldest first without
// touching aggregate stock. Units beyond the lots are costed at the
// reference cost.
//
// Stock and lots drift apart afterwards: the drained units stay counted in
// stock but no lot backs them, so later sales cost them at the reference
// price.
func (s *Service) ConsumeFIFO(ctx context.Context, productID string, qty int) (domain.Allocation, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Allocation{}, err
	}
	if qty < 1 {
		return domain.Allocation{}, ErrInvalidQuantity
	}
	alloc, err := s.repo.ConsumeLots(ctx, productID, qty)
	if err != nil {
		return domain.Allocation{}, notFoundAs(err, ErrProductNotFound)
	}
	s.logAudit(ctx, "lots_consume", "product", productID, fmt.Sprintf("qty=%d,cost=%d,fallback_qty=%d",
		qty, alloc.TotalCostCents(), alloc.FallbackQuantity))
	return alloc, nil
}

// ReportProductLoss writes off stock at its FIFO cost.
func (s *Service) ReportProductLoss(ctx context.Context, productID string, req domain.LossReportRequest) (domain.ProductLoss, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductLoss{}, err
	}
	if req.Quantity < 1 {
		return domain.ProductLoss{}, ErrInvalidQuantity
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ProductLoss{}, ErrMissingReason
	}

	loss, err := s.repo.RecordLoss(ctx, domain.ProductLoss{
		ID:         xid.New("loss"),
		ProductID:  productID,
		Quantity:   req.Quantity,
		Reason:     reason,
		RecordedBy: actor.Username,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.ProductLoss{}, notFoundAs(err, ErrProductNotFound)
	}

	s.logAudit(ctx, "product_loss", "product", productID, fmt.Sprintf("qty=%d,cogs=%d,reason=%s", loss.Quantity, loss.COGSCents, loss.Reason))
	return *loss, nil
}

// ListProductLosses returns losses recorded between two dates, both
// inclusive. Empty bounds are open.
func (s *Service) ListProductLosses(ctx context.Context, from string, to string) ([]domain.ProductLoss, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	fromAt, toAt, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLosses(ctx, fromAt, toAt)
}

// LookupBarcode resolves a barcode against the local catalog and then the
// external catalog. External failures degrade to not found.
func (s *Service) LookupBarcode(ctx context.Context, code string) (domain.BarcodeLookup, error) {
	code = strings.TrimSpace(code)
	if !isBarcode(code) {
		return domain.BarcodeLookup{}, ErrInvalidBarcode
	}

	if product, err := s.repo.GetProductByBarcode(ctx, code); err == nil {
		local := decorateProduct(*product)
		return domain.BarcodeLookup{Barcode: code, Found: true, Source: "local", Name: local.Name, Product: &local}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.BarcodeLookup{}, err
	}

	if cached, ok, err := s.barcodeCache.Get(ctx, code); err != nil {
		s.logger.WithField("barcode", code).WithError(err).Warn("barcode cache read failed")
	} else if ok {
		return *cached, nil
	}

	result := domain.BarcodeLookup{Barcode: code}
	if s.barcodes == nil {
		return result, nil
	}
	found, err := s.barcodes.Lookup(ctx, code)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"barcode": code,
			"error":   err.Error(),
		}).Warn("external barcode lookup failed")
		return result, nil
	}
	result = domain.BarcodeLookup{
		Barcode: code,
		Found:   found.Found,
		Source:  found.Source,
		Name:    found.Name,
		Brand:   found.Brand,
	}
	if err := s.barcodeCache.Set(ctx, code, &result, s.barcodeCacheTTL); err != nil {
		s.logger.WithField("barcode", code).WithError(err).Warn("barcode cache write failed")
	}
	return result, nil
}

func isBarcode(code string) bool {
	switch len(code) {
	case 8, 13, 14:
	default:
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
