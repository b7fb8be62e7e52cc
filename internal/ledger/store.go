package ledger

import (
	"context"

	"perp_bot/internal/models"
	"perp_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store is the durable projection of the book: one row per open instrument.
// A zero-size write is equivalent to a delete.
type Store interface {
	Save(ctx context.Context, e models.LedgerEntry) error
	Delete(ctx context.Context, inst models.Instrument) error
	LoadAll(ctx context.Context) ([]models.LedgerEntry, error)
}

type PgStore struct {
	db db.TxManager
}

func NewPgStore(db db.TxManager) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Save(ctx context.Context, e models.LedgerEntry) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "PgStore.Save")
		}
	}()
	if e.SignedSize == 0 {
		return s.Delete(ctx, e.Instrument)
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO paper_positions (instrument, signed_size, entry_price, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (instrument) DO UPDATE
			SET signed_size = EXCLUDED.signed_size,
			    entry_price = EXCLUDED.entry_price,
			    updated_at  = EXCLUDED.updated_at
		`, string(e.Instrument), e.SignedSize, e.EntryPrice, e.UpdatedAt)
		return err
	})
}

func (s *PgStore) Delete(ctx context.Context, inst models.Instrument) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "PgStore.Delete")
		}
	}()
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `DELETE FROM paper_positions WHERE instrument = $1`, string(inst))
		return err
	})
}

func (s *PgStore) LoadAll(ctx context.Context) (entries []models.LedgerEntry, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "PgStore.LoadAll")
		}
	}()
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `
			SELECT instrument, signed_size, entry_price, updated_at
			FROM paper_positions
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e models.LedgerEntry
			var inst string
			if err := rows.Scan(&inst, &e.SignedSize, &e.EntryPrice, &e.UpdatedAt); err != nil {
				return err
			}
			e.Instrument = models.Instrument(inst)
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}
