package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_AddItemSumsQuantities(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart.ID, f.product.ID, 2)
	require.NoError(t, err)
	line, err := svc.AddItem(ctx, cart.ID, f.product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)

	detail, err := svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, 3, detail.Items[0].Quantity)
	assert.True(t, detail.TotalPrice.Equal(decimal.RequireFromString("30.00")))
}

func TestCartService_AddItemRejectsOverInventory(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart.ID, f.product.ID, 6)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "quantity")

	// summed quantity is checked too
	_, err = svc.AddItem(ctx, cart.ID, f.product.ID, 4)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, cart.ID, f.product.ID, 2)
	require.ErrorAs(t, err, &verr)

	items, err := svc.ListItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
}

func TestCartService_AddItemUnknownProduct(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart.ID, 9999, 1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "product_id")
}

func TestCartService_AddItemInvalidQuantity(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart.ID, f.product.ID, 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "quantity")
}

func TestCartService_UpdateItemChecksInventory(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	line, err := svc.AddItem(ctx, cart.ID, f.product.ID, 1)
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, cart.ID, line.ID, 50)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := svc.GetItem(ctx, cart.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)

	updated, err := svc.UpdateItem(ctx, cart.ID, line.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
}

func TestCartService_UnknownCart(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetCart(ctx, "0b1f3c4e-9f3a-4c55-8e0f-5c1b2a3d4e5f")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AddItem(ctx, "0b1f3c4e-9f3a-4c55-8e0f-5c1b2a3d4e5f", f.product.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCartService_RemoveItemAndDeleteCart(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	line, err := svc.AddItem(ctx, cart.ID, f.product.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, cart.ID, line.ID))
	assert.ErrorIs(t, svc.RemoveItem(ctx, cart.ID, line.ID), ErrNotFound)

	require.NoError(t, svc.DeleteCart(ctx, cart.ID))
	_, err = svc.GetCart(ctx, cart.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCartService_InventoryNeverNegative(t *testing.T) {
	f := newFixture()
	svc := NewCartService(f.repo)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, _ = svc.AddItem(ctx, cart.ID, f.product.ID, 1)
	}

	p, err := f.repo.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Inventory, 0)

	items, err := svc.ListItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.LessOrEqual(t, items[0].Quantity, p.Inventory)
}
