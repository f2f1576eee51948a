package main

import (
	"context"
	"fmt"

	cmdbind "github.com/nlstn/go-cmdbind"
	"github.com/shopspring/decimal"
)

// OrderCommand groups the commands accepted by the /orders endpoint.
type OrderCommand interface {
	isOrderCommand()
}

// PingCommand is a connectivity check anyone may issue.
type PingCommand struct {
	Message string `json:"message"`
}

func (PingCommand) CommandName() string { return "ping" }

func (PingCommand) AllowAnonymous() bool { return true }

// CreateOrderCommand places an order. Restricted to the admin and sales
// roles.
type CreateOrderCommand struct {
	SKU      string          `json:"sku" cmdbind:"required"`
	Quantity int             `json:"quantity" cmdbind:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
}

func (CreateOrderCommand) CommandName() string { return "orders.create" }

func (CreateOrderCommand) RequiredRoles() []string { return []string{"admin", "sales"} }

func (CreateOrderCommand) isOrderCommand() {}

// BeforeAuthorize rejects orders with non-positive amounts before the
// authorization chain runs.
func (c *CreateOrderCommand) BeforeAuthorize(_ context.Context, _ cmdbind.Identity) error {
	if c.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", c.Quantity)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative, got %s", c.Amount)
	}
	return nil
}

// CancelOrderCommand cancels an order. Requires the orders.cancel scope.
type CancelOrderCommand struct {
	OrderID string `json:"orderId" cmdbind:"required"`
	Reason  string `json:"reason"`
}

func (CancelOrderCommand) CommandName() string { return "orders.cancel" }

func (CancelOrderCommand) RequiredClaim() (string, string) { return "scope", "orders.cancel" }

func (CancelOrderCommand) isOrderCommand() {}
