package cart

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
)

var (
	soapA = domain.Product{ID: "a", Price: 10}
	soapB = domain.Product{ID: "b", Price: 25}
	soapC = domain.Product{ID: "c", Price: 7}
)

func TestAddOneMergesAndKeepsOrder(t *testing.T) {
	c := Cart{}.AddOne(soapA).AddOne(soapB).AddOne(soapA)

	lines := c.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, "a", lines[0].Product.ID)
	require.Equal(t, 2, lines[0].Quantity)
	require.Equal(t, "b", lines[1].Product.ID)
	require.Equal(t, 1, lines[1].Quantity)
}

func TestTotal(t *testing.T) {
	c := Cart{}.AddOne(soapA).AddOne(soapA).AddOne(soapB)
	require.Equal(t, int64(45), c.Total())
	require.Equal(t, 2, c.Count())
	require.Equal(t, 3, c.TotalQuantity())
}

func TestRemoveOneDropsLineAtZero(t *testing.T) {
	c := Cart{}.AddOne(soapA).AddOne(soapB)

	c = c.RemoveOne("a")
	require.Equal(t, 0, c.Quantity("a"))
	require.Len(t, c.Lines(), 1)
	require.Equal(t, "b", c.Lines()[0].Product.ID)
}

func TestRemoveOneAbsentIsNoop(t *testing.T) {
	c := Cart{}.AddOne(soapA)
	require.Equal(t, c.Lines(), c.RemoveOne("zzz").Lines())
	require.Equal(t, c.Lines(), c.RemoveAll("zzz").Lines())
}

func TestRemoveAllPreservesOrder(t *testing.T) {
	c := Cart{}.AddOne(soapA).AddOne(soapB).AddOne(soapC).AddOne(soapB)
	c = c.RemoveAll("b")

	lines := c.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, "a", lines[0].Product.ID)
	require.Equal(t, "c", lines[1].Product.ID)
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	base := Cart{}.AddOne(soapA).AddOne(soapB)

	_ = base.AddOne(soapA)
	_ = base.RemoveOne("b")
	_ = base.RemoveAll("a")
	_ = base.Clear()

	require.Equal(t, 1, base.Quantity("a"))
	require.Equal(t, 1, base.Quantity("b"))

	lines := base.Lines()
	lines[0].Quantity = 100
	require.Equal(t, 1, base.Quantity("a"))
}

func TestClear(t *testing.T) {
	c := Cart{}.AddOne(soapA).Clear()
	require.True(t, c.IsEmpty())
	require.Equal(t, int64(0), c.Total())
	require.Equal(t, 0, c.Count())
}

func TestOrderItems(t *testing.T) {
	c := Cart{}.AddOne(soapB).AddOne(soapA).AddOne(soapB)
	require.Equal(t, []domain.OrderItem{
		{ProductID: "b", Quantity: 2},
		{ProductID: "a", Quantity: 1},
	}, c.OrderItems())

	lines := c.NotificationLines()
	require.Len(t, lines, 2)
	require.Equal(t, int64(50), lines[0].Subtotal())
}

func TestRandomSequenceKeepsInvariants(t *testing.T) {
	products := []domain.Product{soapA, soapB, soapC}
	rng := rand.New(rand.NewSource(42))

	var c Cart
	for i := 0; i < 2000; i++ {
		p := products[rng.Intn(len(products))]
		switch rng.Intn(4) {
		case 0, 1:
			c = c.AddOne(p)
		case 2:
			c = c.RemoveOne(p.ID)
		case 3:
			c = c.RemoveAll(p.ID)
		}

		seen := map[string]bool{}
		var total int64
		for _, l := range c.Lines() {
			require.Greater(t, l.Quantity, 0)
			require.False(t, seen[l.Product.ID], "duplicate line %s", l.Product.ID)
			seen[l.Product.ID] = true
			total += l.Product.Price * int64(l.Quantity)
		}
		require.Equal(t, total, c.Total())
	}
}

func TestStoreConcurrentAdds(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddOne(soapA)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, s.Snapshot().Quantity("a"))
	require.Equal(t, 49, s.RemoveOne("a").Quantity("a"))
	require.True(t, s.Clear().IsEmpty())
	require.True(t, s.RemoveAll("a").IsEmpty())
}
