package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"backoffice-inventory/internal/config"
	"backoffice-inventory/internal/core"
	"backoffice-inventory/internal/db"
	"backoffice-inventory/internal/logger"
	"backoffice-inventory/internal/metrics"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/app.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		// Fine to run without a config file as long as the DSN comes from
		// the environment.
		cfg.App.Env = "dev"
		cfg.Postgres.LockTimeoutMS = 3000
	}
	if cfg.Postgres.DSN == "" {
		cfg.Postgres.DSN = os.Getenv("DATABASE_URL")
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN,
		time.Duration(cfg.Postgres.LockTimeoutMS)*time.Millisecond)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	warehouseSvc := core.NewWarehouseService(pool)
	if err := warehouseSvc.EnsureOperational(ctx); err != nil {
		log.Fatal().Err(err).Msg("warehouse provisioning failed")
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := metricsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
	}

	app := &app{
		log:        log,
		items:      core.NewItemService(pool),
		warehouses: warehouseSvc,
		stock:      core.NewStockService(pool),
		movements:  core.NewMovementService(pool),
		inbound:    core.NewInboundService(pool),
		outbound:   core.NewOutboundService(pool),
		purchases:  core.NewPurchaseService(pool),
		stats:      core.NewStatsService(pool),
	}

	runErr := app.run(ctx, os.Args[1], os.Args[2:])

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown failed")
		}
		cancel()
	}

	if runErr != nil {
		log.Fatal().Err(runErr).Str("code", core.ErrorCode(runErr)).Msg("command failed")
	}
}

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()
	return goose.Up(sqlDB, "migrations")
}

type app struct {
	log        zerolog.Logger
	items      core.ItemService
	warehouses core.WarehouseService
	stock      core.StockService
	movements  core.MovementService
	inbound    core.InboundService
	outbound   core.OutboundService
	purchases  core.PurchaseService
	stats      core.StatsService
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "items":
		items, err := a.items.List(ctx, false)
		if err != nil {
			return err
		}
		return printJSON(items)

	case "item-create":
		var input core.ItemInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		item, err := a.items.Create(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(item)

	case "item-delete":
		id, err := intArg(args, 0, "item id")
		if err != nil {
			return err
		}
		return a.items.Delete(ctx, id)

	case "warehouses":
		whs, err := a.warehouses.List(ctx, false)
		if err != nil {
			return err
		}
		return printJSON(whs)

	case "stock":
		itemID, err := intArg(args, 0, "item id")
		if err != nil {
			return err
		}
		warehouseID, err := intArg(args, 1, "warehouse id")
		if err != nil {
			return err
		}
		snap, err := a.stock.Get(ctx, itemID, warehouseID)
		if err != nil {
			return err
		}
		fmt.Printf("quantity=%s reserved=%s available=%s\n",
			snap.Quantity, snap.Reserved, snap.Available())
		return nil

	case "levels":
		levels, err := a.stock.Levels(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-24s %-8s %12s %12s %12s\n",
			"SKU", "ITEM", "WH", "QTY", "RESERVED", "AVAILABLE")
		fmt.Println(strings.Repeat("-", 84))
		for _, l := range levels {
			fmt.Printf("%-12s %-24s %-8s %12s %12s %12s\n",
				l.SKU, l.ItemName, l.WarehouseCode,
				l.Quantity.StringFixed(2), l.Reserved.StringFixed(2), l.Available.StringFixed(2))
		}
		return nil

	case "reserve", "release":
		itemID, err := intArg(args, 0, "item id")
		if err != nil {
			return err
		}
		warehouseID, err := intArg(args, 1, "warehouse id")
		if err != nil {
			return err
		}
		qty, err := decimalArg(args, 2, "quantity")
		if err != nil {
			return err
		}
		if cmd == "reserve" {
			return a.stock.Reserve(ctx, itemID, warehouseID, qty)
		}
		return a.stock.Release(ctx, itemID, warehouseID, qty)

	case "receive":
		var input core.InboundInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		m, err := a.inbound.Create(ctx, input)
		if err != nil {
			return err
		}
		a.log.Info().Int("movement_id", m.ID).Str("type", string(m.Type)).Msg("inbound committed")
		return printJSON(m)

	case "issue":
		var input core.OutboundInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		m, err := a.outbound.Create(ctx, input)
		if err != nil {
			return err
		}
		a.log.Info().Int("movement_id", m.ID).Str("type", string(m.Type)).Msg("outbound committed")
		return printJSON(m)

	case "revert":
		id, err := intArg(args, 0, "movement id")
		if err != nil {
			return err
		}
		if err := a.outbound.Revert(ctx, id); err != nil {
			return err
		}
		fmt.Println("Movement reverted.")
		return nil

	case "movements":
		var filter core.MovementFilter
		if stdinHasData() {
			if err := json.NewDecoder(os.Stdin).Decode(&filter); err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}
		}
		ms, err := a.movements.Query(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(ms)

	case "purchase-create":
		itemID, err := intArg(args, 0, "item id")
		if err != nil {
			return err
		}
		qty, err := decimalArg(args, 1, "quantity")
		if err != nil {
			return err
		}
		p, err := a.purchases.Create(ctx, itemID, qty)
		if err != nil {
			return err
		}
		return printJSON(p)

	case "stats":
		s, err := a.stats.GetStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Items:           %d\n", s.ItemCount)
		fmt.Printf("Warehouses:      %d\n", s.WarehouseCount)
		fmt.Printf("Total available: %s\n", s.TotalAvailable.StringFixed(2))
		fmt.Printf("Today inbound:   %s\n", s.TodayInbound.StringFixed(2))
		fmt.Printf("Today outbound:  %s\n", s.TodayOutbound.StringFixed(2))
		if len(s.LowStock) > 0 {
			fmt.Println("\n--- LOW STOCK ---")
			for _, ls := range s.LowStock {
				fmt.Printf("%-12s %-24s available %s / safety %s\n",
					ls.SKU, ls.Name, ls.Available.StringFixed(2), ls.SafetyStock.StringFixed(2))
			}
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: app <command> [args]

Catalog:
  items                              list active items
  item-create                        create item from JSON on stdin
  item-delete <id>                   soft-delete an unused item
  warehouses                         list active warehouses

Stock:
  stock <item> <warehouse>           show one snapshot
  levels                             show all non-zero stock levels
  reserve <item> <warehouse> <qty>   earmark available stock
  release <item> <warehouse> <qty>   release an earmark

Movements:
  receive                            record inbound from JSON on stdin
  issue                              record outbound from JSON on stdin
  revert <movement-id>               undo an outbound movement
  movements                          query ledger (JSON filter on stdin)

Purchasing:
  purchase-create <item> <qty>       open a purchase order

  stats                              dashboard summary`)
}

func intArg(args []string, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument: %s", name)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, args[i])
	}
	return n, nil
}

func decimalArg(args []string, i int, name string) (decimal.Decimal, error) {
	if i >= len(args) {
		return decimal.Zero, fmt.Errorf("missing argument: %s", name)
	}
	d, err := decimal.NewFromString(args[i])
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", name, args[i])
	}
	return d, nil
}

func stdinHasData() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
