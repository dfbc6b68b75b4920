// Command taker is a demonstration counterparty: it scans the order book for
// open orders and fills each one through the settlement contract. Run it
// against the same data directory as the server.
package main

import (
	"context"
	"errors"

	"zenmode/internal/clients/chain"
	"zenmode/internal/config"
	"zenmode/internal/database"
	"zenmode/internal/domain"
	"zenmode/internal/events"
	"zenmode/internal/fulfillment"
	"zenmode/internal/locking"
	"zenmode/internal/modules/orders"
	"zenmode/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	if cfg.RPCURL == "" || cfg.TakerKey == "" {
		log.Fatal().Msg("RPC_URL and TAKER_KEY are required to take orders")
	}

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	orderRepo := orders.NewRepository(db.Conn(), log)

	venue, err := chain.NewVenue(cfg.RPCURL, cfg.ChainID, cfg.ProtocolAddress, cfg.TakerKey, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to settlement chain")
	}
	defer venue.Close()

	executor := fulfillment.NewExecutor(orderRepo, venue, locking.NewManager(), events.NewManager(log), cfg.SubmitTimeout, log)

	open, err := orderRepo.ListOpen()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list open orders")
	}
	if len(open) == 0 {
		log.Info().Msg("No open orders to fill")
		return
	}
	log.Info().Int("count", len(open)).Msg("Filling open orders")

	filled, skipped := 0, 0
	for _, order := range open {
		result, err := executor.Fulfill(context.Background(), order.ID)
		switch {
		case err == nil:
			log.Info().
				Str("order_id", result.OrderID).
				Str("status", string(result.Status)).
				Str("tx_hash", result.TxHash).
				Msg("Order settled")
			if result.Status == domain.OrderStatusFilled {
				filled++
			}
		case errors.Is(err, domain.ErrExpired):
			log.Info().Str("order_id", order.ID).Msg("Order expired, skipping")
			skipped++
		case domain.IsTransient(err):
			log.Warn().Err(err).Str("order_id", order.ID).Msg("Outcome unknown, leaving order open")
			skipped++
		default:
			log.Error().Err(err).Str("order_id", order.ID).Msg("Fulfillment failed")
			skipped++
		}
	}

	log.Info().Int("filled", filled).Int("skipped", skipped).Msg("Taker run complete")
}
