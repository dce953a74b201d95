package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/auth"
)

type fakeGateway struct {
	link  string
	err   error
	calls int

	gotOrderID string
	gotTotal   int
	gotItems   []PaymentItem
	gotBuyer   Buyer
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, orderID string, totalCents int, items []PaymentItem, buyer Buyer) (string, error) {
	g.calls++
	g.gotOrderID = orderID
	g.gotTotal = totalCents
	g.gotItems = items
	g.gotBuyer = buyer
	return g.link, g.err
}

type capturedEvent struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct{ events []capturedEvent }

func (p *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	p.events = append(p.events, capturedEvent{topic: topic, key: key, value: value})
}

func seedStore(t *testing.T) *MemStore {
	t.Helper()
	st := NewMemStore()
	st.AddCanteen("canteen-1", "owner-1")
	st.AddCanteen("canteen-2", "owner-2")
	st.AddMenu(Menu{ID: "menu-nasi", CanteenID: "canteen-1", Name: "Nasi Goreng", PriceCents: 15000, Stock: 5})
	st.AddMenu(Menu{ID: "menu-teh", CanteenID: "canteen-1", Name: "Es Teh", PriceCents: 5000, Stock: 20})
	st.AddMenu(Menu{ID: "menu-bakso", CanteenID: "canteen-2", Name: "Bakso", PriceCents: 12000, Stock: 10})
	return st
}

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}

func user(id string) auth.Identity {
	return auth.Identity{UserID: id, Name: "Budi", Email: "budi@test.com", Phone: "0812", Role: auth.RoleUser}
}

func owner(id string) auth.Identity {
	return auth.Identity{UserID: id, Role: auth.RoleCanteenOwner}
}

func newService(st *MemStore, gw PaymentGateway) (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	return &Service{
		Store:   st,
		Gateway: gw,
		Events:  pub,
		Log:     zap.NewNop(),
		Name:    "test-api",
	}, pub
}

func TestCreateOrderReservesStock(t *testing.T) {
	st := seedStore(t)
	svc, pub := newService(st, &fakeGateway{link: "https://pay.example/abc"})

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 3}})
	require.NoError(t, err)

	assert.Equal(t, PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, StatusWaiting, order.OrderStatus)
	assert.Equal(t, "canteen-1", order.CanteenID)
	assert.Equal(t, 2, st.Stock("menu-nasi"))
	assert.Equal(t, 45000, order.TotalCents())
	require.Len(t, order.Items, 1)
	assert.Equal(t, 15000, order.Items[0].PriceCents)
	assert.Equal(t, "https://pay.example/abc", order.PaymentLink)

	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicOrderCreated, pub.events[0].topic)
	assert.Equal(t, order.ID, string(pub.events[0].key))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 10}})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.Contains(t, err.Error(), "Nasi Goreng")
	assert.Contains(t, err.Error(), "available 5")
	assert.Equal(t, 5, st.Stock("menu-nasi"), "failed order must not touch stock")
}

func TestCreateOrderMultiItemAllOrNothing(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{
		{MenuID: "menu-teh", Qty: 2},
		{MenuID: "menu-nasi", Qty: 6}, // exceeds stock 5
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.Equal(t, 20, st.Stock("menu-teh"), "no partial reservation")
	assert.Equal(t, 5, st.Stock("menu-nasi"))

	list, err := st.ListOrders(context.Background(), OrderQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, list, "no order row persisted")
}

func TestCreateOrderCrossCanteenRejected(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{
		{MenuID: "menu-nasi", Qty: 1},
		{MenuID: "menu-bakso", Qty: 1},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
	assert.Equal(t, 5, st.Stock("menu-nasi"))
	assert.Equal(t, 10, st.Stock("menu-bakso"))
}

func TestCreateOrderMissingMenusListed(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{
		{MenuID: "menu-nasi", Qty: 1},
		{MenuID: "menu-ghost", Qty: 1},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
	assert.Contains(t, err.Error(), "menu-ghost")
}

func TestCreateOrderSoftDeletedMenuIsMissing(t *testing.T) {
	st := seedStore(t)
	now := nowPtr()
	st.AddMenu(Menu{ID: "menu-gone", CanteenID: "canteen-1", Name: "Gone", PriceCents: 1000, Stock: 9, DeletedAt: now})
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-gone", Qty: 1}})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestCreateOrderValidationAggregatesProblems(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	_, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{
		{MenuID: "", Qty: 1},
		{MenuID: "menu-nasi", Qty: 0},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
	assert.Contains(t, err.Error(), "items[0].menu_id")
	assert.Contains(t, err.Error(), "items[1].quantity")

	_, err = svc.CreateOrder(context.Background(), user("user-1"), nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{
		{MenuID: "menu-teh", Qty: 2},
		{MenuID: "menu-teh", Qty: 3},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Qty)
	assert.Equal(t, 15, st.Stock("menu-teh"))
}

func TestCreateOrderGatewayFailureIsNonFatal(t *testing.T) {
	st := seedStore(t)
	gw := &fakeGateway{err: errors.New("gateway timeout")}
	svc, _ := newService(st, gw)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err, "payment link failure must not fail the order")
	assert.Empty(t, order.PaymentLink)
	assert.Equal(t, 4, st.Stock("menu-nasi"), "reservation survives the gateway failure")
	assert.Equal(t, 1, gw.calls)
}

func TestCreateOrderNoGatewayConfigured(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)
	assert.Empty(t, order.PaymentLink)
}

func TestCreateOrderGatewayReceivesSnapshotPricing(t *testing.T) {
	st := seedStore(t)
	gw := &fakeGateway{link: "https://pay.example/x"}
	svc, _ := newService(st, gw)

	ident := user("user-1")
	order, err := svc.CreateOrder(context.Background(), ident, []Line{
		{MenuID: "menu-nasi", Qty: 2},
		{MenuID: "menu-teh", Qty: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, order.ID, gw.gotOrderID)
	assert.Equal(t, 35000, gw.gotTotal)
	require.Len(t, gw.gotItems, 2)
	assert.Equal(t, ident.Email, gw.gotBuyer.Email)
	assert.Equal(t, ident.Name, gw.gotBuyer.Name)

	persisted, err := st.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/x", persisted.PaymentLink)
}

func TestAdvanceRequiresPaid(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)

	err = svc.Advance(context.Background(), owner("owner-1"), order.ID, StatusCooking)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidState))

	got, err := st.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.OrderStatus, "status must not change")
}

func TestAdvanceAfterPayment(t *testing.T) {
	st := seedStore(t)
	svc, pub := newService(st, nil)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)
	_, err = st.ApplyPaymentStatus(context.Background(), order.ID, PaymentPaid)
	require.NoError(t, err)

	require.NoError(t, svc.Advance(context.Background(), owner("owner-1"), order.ID, StatusCooking))
	// Sequencing among preparation states is deliberately permissive.
	require.NoError(t, svc.Advance(context.Background(), owner("owner-1"), order.ID, StatusCompleted))
	require.NoError(t, svc.Advance(context.Background(), owner("owner-1"), order.ID, StatusReady))

	got, err := st.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.OrderStatus)

	var progress int
	for _, ev := range pub.events {
		if ev.topic == TopicOrderProgress {
			progress++
		}
	}
	assert.Equal(t, 3, progress)
}

func TestAdvanceScopedToOwnCanteen(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	order, err := svc.CreateOrder(context.Background(), user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)
	_, err = st.ApplyPaymentStatus(context.Background(), order.ID, PaymentPaid)
	require.NoError(t, err)

	err = svc.Advance(context.Background(), owner("owner-2"), order.ID, StatusCooking)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestAdvanceRejectsNonPreparationStatus(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)

	err := svc.Advance(context.Background(), owner("owner-1"), "whatever", StatusWaiting)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
}

func TestListScoping(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)
	ctx := context.Background()

	o1, err := svc.CreateOrder(ctx, user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, user("user-2"), []Line{{MenuID: "menu-bakso", Qty: 1}})
	require.NoError(t, err)

	mine, err := svc.List(ctx, user("user-1"), ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.ID, mine[0].ID)
	assert.Equal(t, 15000, mine[0].TotalCents)

	canteen1, err := svc.List(ctx, owner("owner-1"), ListFilter{})
	require.NoError(t, err)
	require.Len(t, canteen1, 1)
	assert.Equal(t, o1.ID, canteen1[0].ID)

	_, err = svc.List(ctx, auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}, ListFilter{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeForbidden))
}

func TestListFiltersByStatus(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)
	ctx := context.Background()

	o1, err := svc.CreateOrder(ctx, user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)
	o2, err := svc.CreateOrder(ctx, user("user-1"), []Line{{MenuID: "menu-teh", Qty: 1}})
	require.NoError(t, err)
	_, err = st.ApplyPaymentStatus(ctx, o2.ID, PaymentPaid)
	require.NoError(t, err)

	paid, err := svc.List(ctx, user("user-1"), ListFilter{PaymentStatus: PaymentPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, o2.ID, paid[0].ID)

	unpaid, err := svc.List(ctx, user("user-1"), ListFilter{PaymentStatus: PaymentUnpaid})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, o1.ID, unpaid[0].ID)
}

func TestDetailScopedToCaller(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 2}})
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, user("user-1"), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nasi Goreng", detail.Menus["menu-nasi"].Name)
	assert.Equal(t, 30000, detail.Order.TotalCents())

	_, err = svc.Detail(ctx, user("user-2"), order.ID)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound), "foreign order must read as not found")

	_, err = svc.Detail(ctx, owner("owner-2"), order.ID)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestFeedbackLifecycle(t *testing.T) {
	st := seedStore(t)
	svc, _ := newService(st, nil)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, user("user-1"), []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)

	// Not completed yet.
	_, err = svc.SubmitFeedback(ctx, user("user-1"), order.ID, 5, "mantap")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidState))

	_, err = st.ApplyPaymentStatus(ctx, order.ID, PaymentPaid)
	require.NoError(t, err)
	require.NoError(t, st.AdvanceOrderStatus(ctx, "canteen-1", order.ID, StatusCompleted))

	fb, err := svc.SubmitFeedback(ctx, user("user-1"), order.ID, 5, "mantap")
	require.NoError(t, err)
	assert.Equal(t, "canteen-1", fb.CanteenID)

	// Duplicate.
	_, err = svc.SubmitFeedback(ctx, user("user-1"), order.ID, 4, "")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeConflict))

	// Someone else's order reads as not found.
	_, err = svc.SubmitFeedback(ctx, user("user-2"), order.ID, 3, "")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))

	// Rating bounds.
	_, err = svc.SubmitFeedback(ctx, user("user-1"), order.ID, 6, "")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))

	list, err := svc.CanteenFeedback(ctx, owner("owner-1"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Rating)
}
