package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert so rows get ids on every dialect.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (s *Sku) BeforeCreate(*gorm.DB) error { assignID(&s.ID); return nil }
func (u *StockUnit) BeforeCreate(*gorm.DB) error { assignID(&u.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error { assignID(&o.ID); return nil }
func (l *OrderLine) BeforeCreate(*gorm.DB) error { assignID(&l.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error { assignID(&p.ID); return nil }
func (d *DiscountCode) BeforeCreate(*gorm.DB) error { assignID(&d.ID); return nil }
func (c *Coupon) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (i *Invoice) BeforeCreate(*gorm.DB) error { assignID(&i.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error { assignID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error { assignID(&d.ID); return nil }

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Sku{},
		&StockUnit{},
		&Order{},
		&OrderLine{},
		&Payment{},
		&DiscountCode{},
		&Coupon{},
		&Invoice{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
