package usecase

import (
	"context"
	"errors"
	"testing"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	repo "delivery/internal/repository"
	"delivery/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store  *repotest.Store
	orders *OrderUsecase
	admin  *AdminOrderUsecase
	prods  *ProductUsecase

	alice, bob, root model.User
	pizza, cola      model.Product
	hidden           model.Product
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := repotest.NewStore()
	e := &env{
		store:  s,
		orders: NewOrderUsecase(s, s),
		admin:  NewAdminOrderUsecase(s),
		prods:  NewProductUsecase(s, s.Products()),
	}
	e.alice = s.SeedUser(model.User{Name: "alice", Email: "alice@example.com", Role: model.RoleUser, IsActive: true})
	e.bob = s.SeedUser(model.User{Name: "bob", Email: "bob@example.com", Role: model.RoleUser, IsActive: true})
	e.root = s.SeedUser(model.User{Name: "root", Email: "root@example.com", Role: model.RoleAdmin, IsActive: true})
	e.pizza = s.SeedProduct(model.Product{Name: "Margherita", Size: "L", Price: 10, IsActive: true})
	e.cola = s.SeedProduct(model.Product{Name: "Cola", Size: "500ml", Price: 5, IsActive: true})
	e.hidden = s.SeedProduct(model.Product{Name: "Secret menu", Price: 99, IsActive: false})
	return e
}

func (e *env) placeOrder(t *testing.T, owner model.User) OrderOutput {
	t.Helper()
	out, err := e.orders.CreateOrder(context.Background(), &owner, CreateOrderInput{Items: []OrderItemInput{
		{ProductID: e.pizza.ID, Quantity: 3},
		{ProductID: e.cola.ID, Quantity: 1},
	}})
	require.NoError(t, err)
	return out
}

func TestCreateOrder_TotalAndSnapshots(t *testing.T) {
	e := newEnv(t)
	out := e.placeOrder(t, e.alice)

	assert.NotZero(t, out.ID)
	assert.Equal(t, e.alice.ID, out.UserID)
	assert.Equal(t, "PENDING", out.Status)
	assert.Equal(t, int64(35), out.TotalPrice)
	assert.Equal(t, 2, out.ItemCount)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Margherita", out.Items[0].ProductName)
	assert.Equal(t, "L", out.Items[0].Size)
	assert.Equal(t, int64(30), out.Items[0].Subtotal)
	assert.NotZero(t, out.Items[0].ID)
}

func TestCreateOrder_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := map[string][]OrderItemInput{
		"no items":         nil,
		"zero quantity":    {{ProductID: e.pizza.ID, Quantity: 0}},
		"huge quantity":    {{ProductID: e.pizza.ID, Quantity: 1001}},
		"unknown product":  {{ProductID: 424242, Quantity: 1}},
		"inactive product": {{ProductID: e.hidden.ID, Quantity: 1}},
	}
	for name, items := range cases {
		_, err := e.orders.CreateOrder(ctx, &e.alice, CreateOrderInput{Items: items})
		assert.ErrorIs(t, err, apperr.ErrValidation, name)
	}
	assert.Equal(t, 0, e.store.OrderCount())
}

func TestCreateOrder_IsAtomic(t *testing.T) {
	e := newEnv(t)
	e.store.FailOn("order_items.create_bulk", errors.New("connection reset by peer"))

	_, err := e.orders.CreateOrder(context.Background(), &e.alice, CreateOrderInput{Items: []OrderItemInput{
		{ProductID: e.pizza.ID, Quantity: 1},
	}})
	assert.ErrorIs(t, err, apperr.ErrInternal)
	// 注文行も残らない
	assert.Equal(t, 0, e.store.OrderCount())
	assert.Equal(t, 0, e.store.ItemCount())

	e.store.FailOn("order_items.create_bulk", nil)
	e.placeOrder(t, e.alice)
	assert.Equal(t, 1, e.store.OrderCount())
	assert.Equal(t, 2, e.store.ItemCount())
}

func TestNonOwnerIsAlwaysForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.alice)

	_, err := e.orders.GetOrder(ctx, &e.bob, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// 不正なステータスでも先に403
	_, err = e.orders.UpdateOrderStatus(ctx, &e.bob, o.ID, "not-a-status")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = e.orders.UpdateOrderStatus(ctx, &e.bob, o.ID, "PENDING")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.ErrorIs(t, e.orders.DeleteOrder(ctx, &e.bob, o.ID), apperr.ErrForbidden)

	_, err = e.orders.AddItem(ctx, &e.bob, o.ID, OrderItemInput{ProductID: -1, Quantity: 0})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = e.orders.RemoveItem(ctx, &e.bob, o.ID, o.Items[0].ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.orders.ListUserOrders(ctx, &e.bob, e.alice.ID, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// 削除されていない
	got, err := e.orders.GetOrder(ctx, &e.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.Status)
}

func TestGetOrder_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders.GetOrder(context.Background(), &e.alice, 987654)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateOrderStatus_Transitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.alice)

	out, err := e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", out.Status)

	_, err = e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "PENDING")
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "CONFIRMED -> PENDING")

	_, err = e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "shipped")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	out, err = e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", out.Status)

	// 終端
	_, err = e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "CANCELED")
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)

	// 本人の操作は監査ログに残さない
	assert.Empty(t, e.store.AuditEntries())
}

func TestUpdateOrderStatus_ConcurrentChangeIsConflict(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, e.alice)
	e.store.FailOn("orders.update_status", repo.ErrConflict)

	_, err := e.orders.UpdateOrderStatus(context.Background(), &e.alice, o.ID, "CONFIRMED")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateOrderStatus_AdminIsAudited(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, e.alice)

	_, err := e.orders.UpdateOrderStatus(context.Background(), &e.root, o.ID, "CANCELED")
	require.NoError(t, err)

	logs := e.store.AuditEntries()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, logs[0].Action)
	assert.Equal(t, e.root.ID, logs[0].ActorUserID)
	assert.JSONEq(t, `{"status":"PENDING"}`, logs[0].BeforeJSON)
	assert.JSONEq(t, `{"status":"CANCELED"}`, logs[0].AfterJSON)
}

func TestDeleteOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pending := e.placeOrder(t, e.alice)
	require.NoError(t, e.orders.DeleteOrder(ctx, &e.alice, pending.ID))
	assert.Equal(t, 0, e.store.OrderCount())
	assert.Equal(t, 0, e.store.ItemCount())

	confirmed := e.placeOrder(t, e.alice)
	_, err := e.orders.UpdateOrderStatus(ctx, &e.alice, confirmed.ID, "CONFIRMED")
	require.NoError(t, err)
	err = e.orders.DeleteOrder(ctx, &e.alice, confirmed.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 2, e.store.ItemCount())

	_, err = e.orders.UpdateOrderStatus(ctx, &e.alice, confirmed.ID, "CANCELED")
	require.NoError(t, err)
	assert.NoError(t, e.orders.DeleteOrder(ctx, &e.alice, confirmed.ID))

	assert.ErrorIs(t, e.orders.DeleteOrder(ctx, &e.alice, confirmed.ID), apperr.ErrNotFound)
}

func TestDeleteOrder_RollsBackOnFailure(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, e.alice)
	e.store.FailOn("orders.delete", errors.New("deadlock detected"))

	err := e.orders.DeleteOrder(context.Background(), &e.alice, o.ID)
	assert.ErrorIs(t, err, apperr.ErrInternal)
	// 明細も残っている
	assert.Equal(t, 2, e.store.ItemCount())
}

func TestAddAndRemoveItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.alice)

	out, err := e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: e.cola.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(45), out.TotalPrice)
	assert.Equal(t, 3, out.ItemCount)

	_, err = e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: e.cola.ID, Quantity: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	out, err = e.orders.RemoveItem(ctx, &e.alice, o.ID, o.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), out.TotalPrice)

	other := e.placeOrder(t, e.alice)
	_, err = e.orders.RemoveItem(ctx, &e.alice, o.ID, other.Items[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.orders.UpdateOrderStatus(ctx, &e.alice, o.ID, "CONFIRMED")
	require.NoError(t, err)
	_, err = e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: e.cola.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateOrder_TotalOverflow(t *testing.T) {
	e := newEnv(t)
	// 上限導入前に入った高額商品
	legacy := e.store.SeedProduct(model.Product{Name: "Gold plate", Price: 1 << 62, IsActive: true})

	_, err := e.orders.CreateOrder(context.Background(), &e.alice, CreateOrderInput{Items: []OrderItemInput{
		{ProductID: legacy.ID, Quantity: 4},
	}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, e.store.OrderCount())
	assert.Equal(t, 0, e.store.ItemCount())
}

func TestAddItem_TotalOverflowRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	legacy := e.store.SeedProduct(model.Product{Name: "Gold plate", Price: 1 << 61, IsActive: true})

	o, err := e.orders.CreateOrder(ctx, &e.alice, CreateOrderInput{Items: []OrderItemInput{{ProductID: legacy.ID, Quantity: 3}}})
	require.NoError(t, err)

	_, err = e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: legacy.ID, Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := e.orders.GetOrder(ctx, &e.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalPrice, got.TotalPrice)
	assert.Equal(t, 1, got.ItemCount)
}

func TestAddItem_RespectsItemLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	items := make([]OrderItemInput, maxItemsPerOrder)
	for i := range items {
		items[i] = OrderItemInput{ProductID: e.cola.ID, Quantity: 1}
	}
	o, err := e.orders.CreateOrder(ctx, &e.alice, CreateOrderInput{Items: items})
	require.NoError(t, err)

	_, err = e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: e.pizza.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, maxItemsPerOrder, e.store.ItemCount())

	// 1件消せばまた追加できる
	_, err = e.orders.RemoveItem(ctx, &e.alice, o.ID, o.Items[0].ID)
	require.NoError(t, err)
	out, err := e.orders.AddItem(ctx, &e.alice, o.ID, OrderItemInput{ProductID: e.pizza.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, maxItemsPerOrder, out.ItemCount)
}

func TestRemoveItem_KeepsLastItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.orders.CreateOrder(ctx, &e.alice, CreateOrderInput{Items: []OrderItemInput{{ProductID: e.pizza.ID, Quantity: 1}}})
	require.NoError(t, err)

	_, err = e.orders.RemoveItem(ctx, &e.alice, o.ID, o.Items[0].ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPriceChangeKeepsSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.placeOrder(t, e.alice)

	price := int64(12)
	_, err := e.prods.AdminUpdateProduct(ctx, &e.root, e.pizza.ID, AdminUpdateProductInput{Price: &price})
	require.NoError(t, err)

	got, err := e.orders.GetOrder(ctx, &e.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Items[0].UnitPrice)
	assert.Equal(t, int64(35), got.TotalPrice)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.placeOrder(t, e.alice)
	e.placeOrder(t, e.alice)
	e.placeOrder(t, e.bob)

	mine, err := e.orders.ListMyOrders(ctx, &e.alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)
	assert.Equal(t, 1, mine.Page)
	assert.Equal(t, 20, mine.Limit)

	byAdmin, err := e.orders.ListUserOrders(ctx, &e.root, e.bob.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), byAdmin.Total)

	_, err = e.orders.ListMyOrders(ctx, &e.alice, 1, 1000)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdminOrderList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.placeOrder(t, e.alice)
	e.placeOrder(t, e.bob)
	_, err := e.orders.UpdateOrderStatus(ctx, &e.alice, a.ID, "CONFIRMED")
	require.NoError(t, err)

	_, err = e.admin.List(ctx, &e.alice, AdminOrderListInput{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	all, err := e.admin.List(ctx, &e.root, AdminOrderListInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	confirmed, err := e.admin.List(ctx, &e.root, AdminOrderListInput{Status: "confirmed"})
	require.NoError(t, err)
	require.Len(t, confirmed.Items, 1)
	assert.Equal(t, a.ID, confirmed.Items[0].ID)

	_, err = e.admin.List(ctx, &e.root, AdminOrderListInput{From: "yesterday"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProducts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	list, err := e.prods.ListPublicProducts(ctx, ListProductsInput{Sort: "price_asc"})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Cola", list.Items[0].Name)

	_, err = e.prods.GetProductDetail(ctx, e.hidden.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.prods.ListPublicProducts(ctx, ListProductsInput{Sort: "random"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.prods.AdminCreateProduct(ctx, &e.alice, AdminCreateProductInput{Name: "x", Price: 1})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	p, err := e.prods.AdminCreateProduct(ctx, &e.root, AdminCreateProductInput{Name: "  Pepperoni ", Size: "M", Price: 12, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Pepperoni", p.Name)

	_, err = e.prods.AdminCreateProduct(ctx, &e.root, AdminCreateProductInput{Name: "Free", Price: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.prods.AdminCreateProduct(ctx, &e.root, AdminCreateProductInput{Name: "Gold plate", Price: 1 << 62})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	huge := int64(maxProductPrice + 1)
	_, err = e.prods.AdminUpdateProduct(ctx, &e.root, p.ID, AdminUpdateProductInput{Price: &huge})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	logs := e.store.AuditEntries()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionCreateProduct, logs[0].Action)

	audit, err := e.admin.ListAuditLogs(ctx, &e.root, AuditLogListInput{ResourceType: "PRODUCT"})
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}
