package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Forty buyers race for five portions: exactly five orders may win and
// stock must end at zero, never below.
func TestConcurrentOrdersNeverOversell(t *testing.T) {
	st := NewMemStore()
	st.AddMenu(Menu{ID: "menu-hot", CanteenID: "canteen-1", Name: "Hot Item", PriceCents: 10000, Stock: 5})

	var g errgroup.Group
	var mu sync.Mutex
	var won int
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			_, err := st.CreateOrder(context.Background(), "user", []Line{{MenuID: "menu-hot", Qty: 1}})
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
				return nil
			}
			if IsCode(err, CodeInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 5, won)
	assert.Equal(t, 0, st.Stock("menu-hot"))
}

// Interleaved creations and cancellations must keep the ledger
// balanced: total reserved by live orders + remaining stock == initial.
func TestConcurrentCreateAndCancelKeepsLedgerBalanced(t *testing.T) {
	const initial = 30
	st := NewMemStore()
	st.AddMenu(Menu{ID: "menu-hot", CanteenID: "canteen-1", Name: "Hot Item", PriceCents: 10000, Stock: initial})
	ctx := context.Background()

	var g errgroup.Group
	orderCh := make(chan string, 64)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			o, err := st.CreateOrder(ctx, "user", []Line{{MenuID: "menu-hot", Qty: 2}})
			if err != nil {
				if IsCode(err, CodeInsufficientStock) {
					return nil
				}
				return err
			}
			orderCh <- o.ID
			return nil
		})
	}
	// Cancel half of whatever got created, concurrently.
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			select {
			case id := <-orderCh:
				_, err := st.ApplyPaymentStatus(ctx, id, PaymentCancelled)
				return err
			default:
				return nil
			}
		})
	}
	require.NoError(t, g.Wait())

	list, err := st.ListOrders(ctx, OrderQuery{UserID: "user"})
	require.NoError(t, err)

	reserved := 0
	for _, o := range list {
		if o.PaymentStatus != PaymentCancelled {
			reserved += o.TotalCents / 10000 // qty 2 per order at 10000 each
		}
	}
	stock := st.Stock("menu-hot")
	assert.GreaterOrEqual(t, stock, 0)
	assert.Equal(t, initial, reserved+stock, "reserved + remaining must equal initial stock")
}

// Two concurrent redeliveries of the same cancellation must release
// stock once.
func TestConcurrentCancelReleasesOnce(t *testing.T) {
	st := NewMemStore()
	st.AddMenu(Menu{ID: "menu-hot", CanteenID: "canteen-1", Name: "Hot Item", PriceCents: 10000, Stock: 5})
	ctx := context.Background()

	order, err := st.CreateOrder(ctx, "user", []Line{{MenuID: "menu-hot", Qty: 3}})
	require.NoError(t, err)

	var g errgroup.Group
	var mu sync.Mutex
	changes := 0
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			changed, err := st.ApplyPaymentStatus(ctx, order.ID, PaymentCancelled)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, changes, "only one delivery may observe the transition")
	assert.Equal(t, 5, st.Stock("menu-hot"))
}

func TestApplyPaymentStatusUnknownOrder(t *testing.T) {
	st := NewMemStore()
	_, err := st.ApplyPaymentStatus(context.Background(), "ghost", PaymentPaid)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestSetPaymentLink(t *testing.T) {
	st := seedStore(t)
	order, err := st.CreateOrder(context.Background(), "user-1", []Line{{MenuID: "menu-teh", Qty: 1}})
	require.NoError(t, err)

	require.NoError(t, st.SetPaymentLink(context.Background(), order.ID, "https://pay.example/1"))
	got, err := st.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/1", got.PaymentLink)

	err = st.SetPaymentLink(context.Background(), "ghost", "x")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestOrderSnapshotIsImmutableToPriceChanges(t *testing.T) {
	st := seedStore(t)
	ctx := context.Background()
	order, err := st.CreateOrder(ctx, "user-1", []Line{{MenuID: "menu-nasi", Qty: 1}})
	require.NoError(t, err)

	// Reprice the menu after the order exists.
	st.AddMenu(Menu{ID: "menu-nasi", CanteenID: "canteen-1", Name: "Nasi Goreng", PriceCents: 99999, Stock: 4})

	got, err := st.OrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 15000, got.Items[0].PriceCents, "snapshot price survives menu repricing")
}
