package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identifiers are assigned in Go so inserts behave the same on Postgres and sqlite.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error            { ensureID(&p.ID); return nil }
func (m *InventoryMovement) BeforeCreate(*gorm.DB) error  { ensureID(&m.ID); return nil }
func (r *DiscountRedemption) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error              { ensureID(&o.ID); return nil }
func (l *OrderLineItem) BeforeCreate(*gorm.DB) error      { ensureID(&l.ID); return nil }
func (e *OrderTrackingEntry) BeforeCreate(*gorm.DB) error { ensureID(&e.ID); return nil }
func (s *PaymentSession) BeforeCreate(*gorm.DB) error     { ensureID(&s.ID); return nil }
func (r *RefundRequest) BeforeCreate(*gorm.DB) error      { ensureID(&r.ID); return nil }
func (r *ReturnRequest) BeforeCreate(*gorm.DB) error      { ensureID(&r.ID); return nil }
func (i *ReturnRequestItem) BeforeCreate(*gorm.DB) error  { ensureID(&i.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error        { ensureID(&e.ID); return nil }
