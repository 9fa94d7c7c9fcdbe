package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/slipper"
)

// CartItem 下单入参里的一个条目
type CartItem struct {
	SlipperID int64
	Quantity  int64
}

// reserveStock 在调用方事务内逐件条件扣减库存：
//
//	UPDATE slippers SET stock = stock - n WHERE id = ? AND stock >= n
//
// 影响行数为 0 说明库存不够，整个事务回滚，绝不留下半单扣减。
func reserveStock(tx *gorm.DB, items []CartItem) error {
	for _, it := range items {
		res := tx.Model(&slipper.Slipper{}).
			Where("id = ? AND stock >= ?", it.SlipperID, it.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var s slipper.Slipper
			if err := tx.First(&s, it.SlipperID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: slipper %d not found", ErrValidation, it.SlipperID)
				}
				return err
			}
			return &order.InsufficientStockError{
				SlipperID: s.ID,
				Name:      s.Name,
				Requested: it.Quantity,
				Available: s.Stock,
			}
		}
	}
	return nil
}

// releaseStock 无条件回补库存，只回补之前扣掉的量，不会把计数推成负数
func releaseStock(tx *gorm.DB, items []CartItem) error {
	for _, it := range items {
		if err := tx.Model(&slipper.Slipper{}).
			Where("id = ?", it.SlipperID).
			UpdateColumn("stock", gorm.Expr("stock + ?", it.Quantity)).Error; err != nil {
			return err
		}
	}
	return nil
}

// itemsFromOrder 把订单明细转回库存操作条目
func itemsFromOrder(o *order.Order) []CartItem {
	items := make([]CartItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, CartItem{SlipperID: it.SlipperID, Quantity: it.Quantity})
	}
	return items
}
