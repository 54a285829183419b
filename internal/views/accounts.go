package views

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/chain"
)

// Invalidator accepts invalidations.
type Invalidator interface {
	Invalidate(ctx context.Context, inv Invalidation) error
}

// WatchAccounts turns wallet account changes into invalidations for the
// previous and the newly selected address. It returns when ctx ends or the
// subscription fails.
func WatchAccounts(ctx context.Context, wallet chain.Wallet, target Invalidator) error {
	events := make(chan chain.AccountsChanged, 8)
	sub := wallet.SubscribeAccountsChanged(events)
	defer sub.Unsubscribe()

	log := loggerFor("accounts")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Err():
			if !ok {
				return nil
			}
			return err
		case ev := <-events:
			for _, addr := range []common.Address{ev.Previous, ev.Current()} {
				if addr == (common.Address{}) {
					continue
				}
				if err := target.Invalidate(ctx, Invalidation{Address: addr.Hex()}); err != nil {
					log.Warn("invalidate account views failed",
						slog.String("address", addr.Hex()), slog.Any("error", err))
				}
			}
			log.Info("wallet account changed",
				slog.String("previous", ev.Previous.Hex()),
				slog.String("current", ev.Current().Hex()))
		}
	}
}
