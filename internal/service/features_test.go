package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/stock"
	"github.com/fjod/storefront-cart/internal/storage"
)

type cartTestContext struct {
	store   *storage.MemoryStore
	stock   *stock.MemoryStore
	engine  *Engine
	session string

	cart          domain.Cart
	err           error
	signals       int
	signalsBefore int
	unsubscribe   func()
}

func (c *cartTestContext) reset() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.store = storage.NewMemoryStore()
	c.stock = stock.NewMemoryStore()
	c.engine = NewEngine(c.store, notify.NewHub(), nil, c.stock, zap.NewNop())
	c.session = ""
	c.cart = domain.Cart{}
	c.err = nil
	c.signals = 0
	c.signalsBefore = 0
}

func (c *cartTestContext) anEmptyCartForSession(session string) error {
	c.session = session
	c.unsubscribe = c.engine.Hub().Subscribe(session, func(notify.Event) { c.signals++ })
	return nil
}

func (c *cartTestContext) theCartHolds(productID, size, color string, qty int, price float64) error {
	_, err := c.engine.Add(context.Background(), c.session, AddRequest{
		ProductID: productID, UnitPrice: price, Size: size, Color: color, Quantity: qty,
	})
	return err
}

func (c *cartTestContext) thePersistedCartIs(blob string) error {
	return c.store.Set(context.Background(), c.session, blob)
}

func (c *cartTestContext) productHasUnitsInStock(productID string, units int) error {
	return c.stock.SetStock(productID, units)
}

func (c *cartTestContext) act(fn func() (domain.Cart, error)) {
	c.signalsBefore = c.signals
	c.cart, c.err = fn()
}

func (c *cartTestContext) tryAdd(productID, size, color string, qty int, price float64, sizeRequired bool) {
	c.act(func() (domain.Cart, error) {
		return c.engine.Add(context.Background(), c.session, AddRequest{
			ProductID: productID, UnitPrice: price, Size: size, Color: color, Quantity: qty,
			SizeRequired: sizeRequired,
		})
	})
}

func (c *cartTestContext) iAdd(productID, size, color string, qty int, price float64) error {
	c.tryAdd(productID, size, color, qty, price, false)
	return c.err
}

func (c *cartTestContext) iTryToAdd(productID, size, color string, qty int, price float64) error {
	c.tryAdd(productID, size, color, qty, price, false)
	return nil
}

func (c *cartTestContext) iTryToAddRequiringASize(productID, size, color string, qty int, price float64) error {
	c.tryAdd(productID, size, color, qty, price, true)
	return nil
}

func (c *cartTestContext) iSetTheQuantity(productID, size, color string, qty int) error {
	c.act(func() (domain.Cart, error) {
		return c.engine.SetQuantity(context.Background(), c.session, productID, size, color, qty)
	})
	return c.err
}

func (c *cartTestContext) iRemove(productID, size, color string) error {
	c.act(func() (domain.Cart, error) {
		return c.engine.Remove(context.Background(), c.session, productID, size, color)
	})
	return c.err
}

func (c *cartTestContext) iLoadTheCart() error {
	c.act(func() (domain.Cart, error) {
		return c.engine.Load(context.Background(), c.session), nil
	})
	return nil
}

func (c *cartTestContext) current() domain.Cart {
	return c.engine.Load(context.Background(), c.session)
}

func (c *cartTestContext) theCartHasLines(n int) error {
	if got := len(c.current().Lines); got != n {
		return fmt.Errorf("expected %d lines, got %d", n, got)
	}
	return nil
}

func (c *cartTestContext) theCartIsEmpty() error {
	if !c.cart.IsEmpty() || !c.current().IsEmpty() {
		return errors.New("expected an empty cart")
	}
	return nil
}

func (c *cartTestContext) lineHasQuantity(productID, size, color string, qty int) error {
	line, ok := c.current().Find(domain.MergeKey(productID, size, color))
	if !ok {
		return fmt.Errorf("no line for %s/%s/%s", productID, size, color)
	}
	if line.Quantity != qty {
		return fmt.Errorf("expected quantity %d, got %d", qty, line.Quantity)
	}
	return nil
}

func (c *cartTestContext) theSubtotalIs(subtotal float64) error {
	totals := c.engine.Totals(context.Background(), c.session)
	if totals != c.current().Totals() {
		return errors.New("totals are not deterministic")
	}
	if totals.Subtotal != subtotal {
		return fmt.Errorf("expected subtotal %v, got %v", subtotal, totals.Subtotal)
	}
	return nil
}

func (c *cartTestContext) theItemCountIs(n int) error {
	if got := c.engine.Totals(context.Background(), c.session).ItemCount; got != n {
		return fmt.Errorf("expected item count %d, got %d", n, got)
	}
	return nil
}

func (c *cartTestContext) theActionSentSignals(n int) error {
	if got := c.signals - c.signalsBefore; got != n {
		return fmt.Errorf("expected %d change signals, got %d", n, got)
	}
	return nil
}

func (c *cartTestContext) theActionFailsWithCode(code string) error {
	var vErr *domain.ValidationError
	if !errors.As(c.err, &vErr) {
		return fmt.Errorf("expected a validation error, got %v", c.err)
	}
	if vErr.Code.String() != code {
		return fmt.Errorf("expected code %s, got %s", code, vErr.Code)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	const selection = `product "([^"]*)" size "([^"]*)" color "([^"]*)"`

	// Given steps
	ctx.Step(`^an empty cart for session "([^"]*)"$`, tc.anEmptyCartForSession)
	ctx.Step(`^the cart holds `+selection+` quantity (\d+) at price (\d+(?:\.\d+)?)$`, tc.theCartHolds)
	ctx.Step(`^the persisted cart is "((?:[^"\\]|\\.)*)"$`, func(blob string) error {
		return tc.thePersistedCartIs(unescape(blob))
	})
	ctx.Step(`^product "([^"]*)" has (\d+) units in stock$`, tc.productHasUnitsInStock)

	// When steps
	ctx.Step(`^I add `+selection+` quantity (\d+) at price (\d+(?:\.\d+)?)$`, tc.iAdd)
	ctx.Step(`^I try to add `+selection+` quantity (\d+) at price (\d+(?:\.\d+)?)$`, tc.iTryToAdd)
	ctx.Step(`^I try to add `+selection+` quantity (\d+) at price (\d+(?:\.\d+)?) requiring a size$`, tc.iTryToAddRequiringASize)
	ctx.Step(`^I set the quantity of `+selection+` to (-?\d+)$`, tc.iSetTheQuantity)
	ctx.Step(`^I remove `+selection+`$`, tc.iRemove)
	ctx.Step(`^I load the cart$`, tc.iLoadTheCart)

	// Then steps
	ctx.Step(`^the cart has (\d+) lines?$`, tc.theCartHasLines)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^line "([^"]*)" size "([^"]*)" color "([^"]*)" has quantity (\d+)$`, tc.lineHasQuantity)
	ctx.Step(`^the subtotal is (\d+(?:\.\d+)?)$`, tc.theSubtotalIs)
	ctx.Step(`^the item count is (\d+)$`, tc.theItemCountIs)
	ctx.Step(`^the action sent exactly (\d+) change signals?$`, tc.theActionSentSignals)
	ctx.Step(`^the action fails with code "([^"]*)"$`, tc.theActionFailsWithCode)
}

// unescape undoes the \" escaping used to embed JSON in a step.
func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		out = append(out, s[i])
	}
	return string(out)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/cart.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
