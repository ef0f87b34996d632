package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fjod/storefront-cart/internal/config"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/service"
	"github.com/fjod/storefront-cart/internal/stock"
	"github.com/fjod/storefront-cart/internal/storage"
	"github.com/fjod/storefront-cart/pkg/logger"
)

type rootOptions struct {
	configPath string
	dir        string
	session    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect and edit carts kept in a cart directory",
		Long: `cartctl works directly on a file-backed cart directory, the same one a cartd
started with CART_STORE=file uses. Several cartctl and cartd processes can share the
directory; "cartctl watch" shows changes made by any of them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CART_CONFIG"), "YAML config file (for stock levels and cart dir)")
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", "", "cart directory (overrides config)")
	cmd.PersistentFlags().StringVarP(&opts.session, "session", "s", os.Getenv("CART_SESSION"), "cart session id")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(
		newShowCmd(opts),
		newAddCmd(opts),
		newSetCmd(opts),
		newRemoveCmd(opts),
		newClearCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// open builds an engine over the cart directory. Its feed is the directory watcher, so
// watch sees writes from every process sharing the directory.
func (o *rootOptions) open() (*service.Engine, error) {
	if o.session == "" {
		return nil, fmt.Errorf("a session is required (--session or CART_SESSION)")
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	dir := cfg.Store.Dir
	if o.dir != "" {
		dir = o.dir
	}

	zl, err := logger.New(logger.Options{Service: "cartctl", Env: "dev", Level: o.logLevel})
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	stockSource, err := stock.NewMemoryStoreFrom(cfg.Stock)
	if err != nil {
		return nil, err
	}

	feed := notify.NewFileWatchFeed(store.Dir(), zl)
	return service.NewEngine(store, notify.NewHub(), feed, stockSource, zl), nil
}
