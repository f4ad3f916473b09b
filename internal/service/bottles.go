package service

import (
	"context"
	"fmt"
	"strings"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

func (s *Service) ReturnBottles(ctx context.Context, req domain.BottleReturnRequest) (domain.BottleReturnResponse, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.BottleReturnResponse{}, fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.BottleReturnResponse{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.BottleReturnResponse{}, fmt.Errorf("product %s: %w", productID, err)
	}
	if !product.IsBottled {
		return domain.BottleReturnResponse{}, fmt.Errorf("%w: %s is not a bottled product", store.ErrValidation, product.Name)
	}

	ret := domain.BottleReturn{
		ID:           xid.New("bret"),
		ProductID:    product.ID,
		ProductName:  product.Name,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Quantity:     req.Quantity,
		CreatedAt:    s.now().UTC(),
	}
	updated, err := s.repo.ReturnBottles(ctx, ret)
	if err != nil {
		return domain.BottleReturnResponse{}, fmt.Errorf("%s: %w", product.Name, err)
	}

	s.metrics.ObserveBottleReturn(ret.Quantity)
	s.forgetBarcodes(ctx, updated.Barcode)
	s.logAudit(ctx, "bottle_return", "product", product.ID, fmt.Sprintf("quantity=%d,customer=%s", ret.Quantity, ret.CustomerName))

	return domain.BottleReturnResponse{Return: ret, Product: *updated}, nil
}

func (s *Service) BottleStatus(ctx context.Context) ([]domain.BottleStatus, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	status := make([]domain.BottleStatus, 0, len(products))
	for _, p := range products {
		if !p.IsBottled {
			continue
		}
		status = append(status, domain.BottleStatus{
			ProductID:   p.ID,
			ProductName: p.Name,
			Taken:       p.BottlesTaken,
			Returned:    p.BottlesReturned,
			Outstanding: p.OutstandingBottles,
		})
	}
	return status, nil
}
