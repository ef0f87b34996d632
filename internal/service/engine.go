package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/stock"
	"github.com/fjod/storefront-cart/internal/storage"
)

var ErrSessionRequired = errors.New("session id is required")

const (
	feedPublishTimeout = 2 * time.Second
	sharedLoadTimeout  = 5 * time.Second
)

// AddRequest describes a product selection being added to a cart.
type AddRequest struct {
	ProductID string
	Name      string
	UnitPrice float64
	ImageRef  string
	Slug      string
	Size      string
	Color     string
	Quantity  int

	// Set when the product page offers sizes or colors and one must be chosen.
	SizeRequired  bool
	ColorRequired bool
}

// Engine owns the persisted carts. Every mutation runs load, mutate, save, notify under
// the session's lock; other processes sharing the store are last-writer-wins.
type Engine struct {
	store  storage.BlobStore
	hub    *notify.Hub
	feed   notify.Feed
	stock  stock.Source
	logger *zap.Logger

	origin string
	locks  *sessionLocks
	sfg    singleflight.Group // coalesces concurrent loads of one session
	now    func() time.Time
}

// NewEngine wires an engine. feed and stockSource may be nil.
func NewEngine(store storage.BlobStore, hub *notify.Hub, feed notify.Feed, stockSource stock.Source, logger *zap.Logger) *Engine {
	if feed == nil {
		feed = notify.NopFeed{}
	}
	return &Engine{
		store:  store,
		hub:    hub,
		feed:   feed,
		stock:  stockSource,
		logger: logger,
		origin: uuid.NewString(),
		locks:  newSessionLocks(),
		now:    time.Now,
	}
}

// Origin identifies this engine on the feed.
func (e *Engine) Origin() string {
	return e.origin
}

func (e *Engine) Hub() *notify.Hub {
	return e.hub
}

// Load returns the session's cart. Absent, corrupt or unreadable carts load as empty;
// failures are logged, never returned.
//
// Concurrent loads of one session share a read. A write forgets the shared read before it
// signals, so a load started after a mutation returned never sees the older cart.
func (e *Engine) Load(ctx context.Context, session string) domain.Cart {
	v, _, _ := e.sfg.Do(session, func() (interface{}, error) {
		// The read is shared, so one caller giving up must not empty the others' carts.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		blob, err := e.store.Get(readCtx, session)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				e.logger.Warn("cart read failed, serving empty cart",
					zap.String("session_id", session),
					zap.Error(err),
				)
			}
			return domain.Cart{}, nil
		}
		return e.decode(session, blob), nil
	})

	return v.(domain.Cart).Clone()
}

func (e *Engine) Totals(ctx context.Context, session string) domain.Totals {
	return e.Load(ctx, session).Totals()
}

// Save replaces the session's cart entirely. Lines are validated and duplicate
// identities merged first, so what Save writes is what Load returns.
func (e *Engine) Save(ctx context.Context, session string, cart domain.Cart) error {
	if session == "" {
		return ErrSessionRequired
	}
	cart, err := normalize(cart)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(session)
	defer unlock()

	if err := e.persist(ctx, session, cart); err != nil {
		return err
	}
	e.signal(ctx, session, notify.OpSave)
	return nil
}

func (e *Engine) Add(ctx context.Context, session string, req AddRequest) (domain.Cart, error) {
	if session == "" {
		return domain.Cart{}, ErrSessionRequired
	}
	if req.Quantity < 1 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	if req.SizeRequired && strings.TrimSpace(req.Size) == "" {
		return domain.Cart{}, domain.ErrSizeRequired
	}
	if req.ColorRequired && strings.TrimSpace(req.Color) == "" {
		return domain.Cart{}, domain.ErrColorRequired
	}

	line, err := domain.NewCartLine(domain.CartLine{
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		ImageRef:  req.ImageRef,
		Slug:      req.Slug,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return domain.Cart{}, err
	}

	if e.stock != nil {
		line.Quantity, err = domain.ClampQuantity(line.Quantity, e.available(ctx, line.ProductID))
		if err != nil {
			return domain.Cart{}, err
		}
	}

	return e.mutate(ctx, session, notify.OpAdd, func(c *domain.Cart) error {
		return c.Add(line)
	})
}

// SetQuantity overwrites a line's quantity. A quantity below 1, or a line that is not in
// the cart, leaves the cart as it was; the call still saves and signals.
func (e *Engine) SetQuantity(ctx context.Context, session, productID, size, color string, qty int) (domain.Cart, error) {
	if session == "" {
		return domain.Cart{}, ErrSessionRequired
	}
	if qty > domain.MaxQuantity {
		return domain.Cart{}, domain.ErrQuantityTooLarge
	}
	key := domain.MergeKey(strings.TrimSpace(productID), size, color)
	return e.mutate(ctx, session, notify.OpSetQuantity, func(c *domain.Cart) error {
		c.SetQuantity(key, qty)
		return nil
	})
}

// Remove deletes a line. Removing an absent line still signals.
func (e *Engine) Remove(ctx context.Context, session, productID, size, color string) (domain.Cart, error) {
	if session == "" {
		return domain.Cart{}, ErrSessionRequired
	}
	key := domain.MergeKey(strings.TrimSpace(productID), size, color)
	return e.mutate(ctx, session, notify.OpRemove, func(c *domain.Cart) error {
		c.Remove(key)
		return nil
	})
}

// Clear deletes the persisted cart.
func (e *Engine) Clear(ctx context.Context, session string) error {
	if session == "" {
		return ErrSessionRequired
	}
	unlock := e.locks.lock(session)
	defer unlock()

	if err := e.store.Delete(ctx, session); err != nil {
		e.logger.Error("cart delete failed",
			zap.String("session_id", session),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)
	}
	e.sfg.Forget(session)
	e.signal(ctx, session, notify.OpClear)
	return nil
}

// Watch relays events from other processes to the hub until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	return e.feed.Run(ctx, e.relay)
}

func (e *Engine) relay(ev notify.Event) {
	if ev.Origin == e.origin {
		return
	}
	ev.Remote = true
	e.sfg.Forget(ev.Session)
	e.logger.Debug("remote cart change",
		zap.String("session_id", ev.Session),
		zap.String("op", string(ev.Op)),
		zap.String("origin", ev.Origin),
	)
	e.hub.Publish(ev)
}

func (e *Engine) mutate(ctx context.Context, session string, op notify.Op, apply func(*domain.Cart) error) (domain.Cart, error) {
	unlock := e.locks.lock(session)
	defer unlock()

	cart, err := e.loadForUpdate(ctx, session)
	if err != nil {
		return domain.Cart{}, err
	}

	if err := apply(&cart); err != nil {
		return domain.Cart{}, err
	}

	if err := e.persist(ctx, session, cart); err != nil {
		return domain.Cart{}, err
	}
	e.signal(ctx, session, op)
	return cart.Clone(), nil
}

// loadForUpdate reads past singleflight so a mutation always starts from the latest
// write. Unlike Load it fails when the backend itself fails, so an outage cannot
// overwrite a healthy cart with an empty one.
func (e *Engine) loadForUpdate(ctx context.Context, session string) (domain.Cart, error) {
	blob, err := e.store.Get(ctx, session)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Cart{}, nil
	}
	if err != nil {
		e.logger.Error("cart read failed, mutation aborted",
			zap.String("session_id", session),
			zap.Error(err),
		)
		return domain.Cart{}, fmt.Errorf("%w: %w", domain.ErrPersistenceRead, err)
	}
	return e.decode(session, blob), nil
}

func (e *Engine) decode(session, blob string) domain.Cart {
	cart, err := domain.DecodeCart(blob)
	if err != nil {
		e.logger.Warn("discarding unreadable cart",
			zap.String("session_id", session),
			zap.Error(err),
		)
	}
	return cart
}

func (e *Engine) persist(ctx context.Context, session string, cart domain.Cart) error {
	blob, err := domain.EncodeCart(cart)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)
	}
	if err := e.store.Set(ctx, session, blob); err != nil {
		e.logger.Error("cart write failed",
			zap.String("session_id", session),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)
	}
	e.sfg.Forget(session)
	return nil
}

// normalize rebuilds cart through the same validation the decoder applies.
func normalize(cart domain.Cart) (domain.Cart, error) {
	var out domain.Cart
	for _, l := range cart.Lines {
		line, err := domain.NewCartLine(l)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("line %q: %w", l.ProductID, err)
		}
		if err := out.Add(line); err != nil {
			return domain.Cart{}, fmt.Errorf("line %q: %w", line.ProductID, err)
		}
	}
	return out, nil
}

func (e *Engine) signal(ctx context.Context, session string, op notify.Op) {
	ev := notify.Event{Session: session, Op: op, Origin: e.origin, At: e.now()}
	e.hub.Publish(ev)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedPublishTimeout)
	defer cancel()
	if err := e.feed.Publish(pubCtx, ev); err != nil {
		e.logger.Warn("failed to publish cart event",
			zap.String("session_id", session),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
}

// available asks the stock source, treating any failure as unknown stock.
func (e *Engine) available(ctx context.Context, productID string) int {
	qty, err := e.stock.Available(ctx, productID)
	if err == nil {
		return qty
	}
	if !errors.Is(err, stock.ErrProductNotFound) {
		e.logger.Warn("stock lookup failed",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
	return domain.UnknownStock
}
