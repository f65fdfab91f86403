package persistence

import (
	"atelier/internal/service/commerce/domain"
)

// ToDomainInventory 将数据库模型转换为领域模型
func ToDomainInventory(model *InventoryItemModel) *domain.InventoryRecord {
	if model == nil {
		return nil
	}
	return &domain.InventoryRecord{
		SKU:               model.SKU,
		ProductID:         model.ProductID,
		ProductName:       model.ProductName,
		Size:              model.Size,
		Color:             model.Color,
		Quantity:          model.Quantity,
		ReservedQuantity:  model.ReservedQuantity,
		LowStockThreshold: model.LowStockThreshold,
		Lifecycle:         domain.Lifecycle(model.Lifecycle),
		Version:           model.Version,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

// FromDomainInventory 将领域模型转换为数据库模型
func FromDomainInventory(record *domain.InventoryRecord) *InventoryItemModel {
	if record == nil {
		return nil
	}
	return &InventoryItemModel{
		SKU:               record.SKU,
		ProductID:         record.ProductID,
		ProductName:       record.ProductName,
		Size:              record.Size,
		Color:             record.Color,
		Quantity:          record.Quantity,
		ReservedQuantity:  record.ReservedQuantity,
		LowStockThreshold: record.LowStockThreshold,
		Lifecycle:         string(record.Lifecycle),
		Version:           record.Version,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

// ToDomainOrder 将数据库模型（含商品行）转换为领域模型
func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	items := make([]domain.OrderItem, 0, len(model.Items))
	for _, it := range model.Items {
		items = append(items, domain.OrderItem{
			SKU:         it.SKU,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			Color:       it.Color,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}
	return &domain.Order{
		ID:                 model.ID,
		ShopperID:          model.ShopperID,
		Status:             domain.Status(model.Status),
		Items:              items,
		Subtotal:           model.Subtotal,
		Discount:           model.Discount,
		ShippingCost:       model.ShippingCost,
		Total:              model.Total,
		PromoCode:          model.PromoCode,
		ShippingAddress:    model.ShippingAddress,
		Notes:              model.Notes,
		TransactionID:      model.TransactionID,
		TrackingNumber:     model.TrackingNumber,
		CancellationReason: model.CancellationReason,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
		ShippedAt:          model.ShippedAt,
		DeliveredAt:        model.DeliveredAt,
		CancelledAt:        model.CancelledAt,
		Version:            model.Version,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型（用于插入，含商品行）
func FromDomainOrder(order *domain.Order) *OrderModel {
	if order == nil {
		return nil
	}
	items := make([]OrderItemModel, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, OrderItemModel{
			OrderID:     order.ID,
			SKU:         it.SKU,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			Color:       it.Color,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}
	return &OrderModel{
		ID:                 order.ID,
		ShopperID:          order.ShopperID,
		Status:             string(order.Status),
		Subtotal:           order.Subtotal,
		Discount:           order.Discount,
		ShippingCost:       order.ShippingCost,
		Total:              order.Total,
		PromoCode:          order.PromoCode,
		ShippingAddress:    order.ShippingAddress,
		Notes:              order.Notes,
		TransactionID:      order.TransactionID,
		TrackingNumber:     order.TrackingNumber,
		CancellationReason: order.CancellationReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
		Version:            order.Version,
		Items:              items,
	}
}

// ToDomainTracking 将数据库模型转换为领域模型
func ToDomainTracking(model *OrderTrackingModel) *domain.TrackingEntry {
	if model == nil {
		return nil
	}
	return &domain.TrackingEntry{
		ID:        model.ID,
		OrderID:   model.OrderID,
		Status:    domain.Status(model.Status),
		Location:  model.Location,
		Notes:     model.Notes,
		UpdatedBy: model.UpdatedBy,
		CreatedAt: model.CreatedAt,
	}
}

// FromDomainTracking 将领域模型转换为数据库模型
func FromDomainTracking(entry *domain.TrackingEntry) *OrderTrackingModel {
	if entry == nil {
		return nil
	}
	return &OrderTrackingModel{
		ID:        entry.ID,
		OrderID:   entry.OrderID,
		Status:    string(entry.Status),
		Location:  entry.Location,
		Notes:     entry.Notes,
		UpdatedBy: entry.UpdatedBy,
		CreatedAt: entry.CreatedAt,
	}
}

// ToDomainReturn 将数据库模型转换为领域模型
func ToDomainReturn(model *ReturnRequestModel) *domain.ReturnRequest {
	if model == nil {
		return nil
	}
	return &domain.ReturnRequest{
		ID:         model.ID,
		OrderID:    model.OrderID,
		Reason:     model.Reason,
		Status:     domain.ReturnStatus(model.Status),
		ResolvedBy: model.ResolvedBy,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
		ResolvedAt: model.ResolvedAt,
	}
}

// FromDomainReturn 将领域模型转换为数据库模型
func FromDomainReturn(req *domain.ReturnRequest) *ReturnRequestModel {
	if req == nil {
		return nil
	}
	return &ReturnRequestModel{
		ID:         req.ID,
		OrderID:    req.OrderID,
		Reason:     req.Reason,
		Status:     string(req.Status),
		ResolvedBy: req.ResolvedBy,
		CreatedAt:  req.CreatedAt,
		UpdatedAt:  req.UpdatedAt,
		ResolvedAt: req.ResolvedAt,
	}
}
