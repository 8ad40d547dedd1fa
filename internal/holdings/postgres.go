package holdings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/jmoiron/sqlx"
)

const (
	_schema = `CREATE TABLE IF NOT EXISTS holdings (
					id                  TEXT PRIMARY KEY,
					account_id          TEXT NOT NULL,
					asset_class         TEXT NOT NULL,
					name                TEXT NOT NULL DEFAULT '',
					symbol              TEXT NOT NULL DEFAULT '',
					quantity            DOUBLE PRECISION NOT NULL,
					purchase_price      DOUBLE PRECISION NOT NULL,
					purchase_date       TEXT NOT NULL DEFAULT '',
					current_price       DOUBLE PRECISION,
					current_value       DOUBLE PRECISION,
					profit_loss         DOUBLE PRECISION,
					profit_loss_percent DOUBLE PRECISION,
					position            SERIAL
				);`

	_selectHoldings = `SELECT id, asset_class, name, symbol, quantity, purchase_price, purchase_date,
							current_price, current_value, profit_loss, profit_loss_percent
						FROM holdings WHERE account_id = $1 ORDER BY position`
	_selectHolding = `SELECT id, asset_class, name, symbol, quantity, purchase_price, purchase_date,
							current_price, current_value, profit_loss, profit_loss_percent
						FROM holdings WHERE account_id = $1 AND id = $2`
	_upsertHolding = `INSERT INTO holdings (
							id,
							account_id,
							asset_class,
							name,
							symbol,
							quantity,
							purchase_price,
							purchase_date,
							current_price,
							current_value,
							profit_loss,
							profit_loss_percent
						) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
						ON CONFLICT (id)
						DO UPDATE SET
							asset_class = EXCLUDED.asset_class,
							name = EXCLUDED.name,
							symbol = EXCLUDED.symbol,
							quantity = EXCLUDED.quantity,
							purchase_price = EXCLUDED.purchase_price,
							purchase_date = EXCLUDED.purchase_date,
							current_price = EXCLUDED.current_price,
							current_value = EXCLUDED.current_value,
							profit_loss = EXCLUDED.profit_loss,
							profit_loss_percent = EXCLUDED.profit_loss_percent
						WHERE holdings.account_id = EXCLUDED.account_id;`
	_deleteHolding = "DELETE FROM holdings WHERE account_id = $1 AND id = $2"
)

type holdingRow struct {
	ID                string          `db:"id"`
	AssetClass        string          `db:"asset_class"`
	Name              string          `db:"name"`
	Symbol            string          `db:"symbol"`
	Quantity          float64         `db:"quantity"`
	PurchasePrice     float64         `db:"purchase_price"`
	PurchaseDate      string          `db:"purchase_date"`
	CurrentPrice      sql.NullFloat64 `db:"current_price"`
	CurrentValue      sql.NullFloat64 `db:"current_value"`
	ProfitLoss        sql.NullFloat64 `db:"profit_loss"`
	ProfitLossPercent sql.NullFloat64 `db:"profit_loss_percent"`
}

func (r holdingRow) toModel() model.Holding {
	h := model.Holding{
		ID:            r.ID,
		AssetClass:    model.AssetClass(r.AssetClass),
		Name:          r.Name,
		Symbol:        r.Symbol,
		Quantity:      r.Quantity,
		PurchasePrice: r.PurchasePrice,
		PurchaseDate:  r.PurchaseDate,
	}
	if r.CurrentPrice.Valid {
		h.Valuation = &model.Valuation{
			CurrentPrice: r.CurrentPrice.Float64,
			CurrentValue: r.CurrentValue.Float64,
			ProfitLoss:   r.ProfitLoss.Float64,
		}
		if r.ProfitLossPercent.Valid {
			p := r.ProfitLossPercent.Float64
			h.Valuation.ProfitLossPercent = &p
		}
	}
	return h
}

func valuationArgs(v *model.Valuation) (price, value, pl, plPercent sql.NullFloat64) {
	if v == nil {
		return
	}
	price = sql.NullFloat64{Float64: v.CurrentPrice, Valid: true}
	value = sql.NullFloat64{Float64: v.CurrentValue, Valid: true}
	pl = sql.NullFloat64{Float64: v.ProfitLoss, Valid: true}
	if v.ProfitLossPercent != nil {
		plPercent = sql.NullFloat64{Float64: *v.ProfitLossPercent, Valid: true}
	}
	return
}

// PostgresStore keeps the holdings of one account in the holdings table.
type PostgresStore struct {
	db     *sqlx.DB
	logger logger.Logger

	accountID string
}

func NewPostgresStore(db *sqlx.DB, accountID string, logger logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:        db,
		logger:    logger,
		accountID: accountID,
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, _schema); err != nil {
		return fmt.Errorf("%w: can't create holdings table", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Holding, error) {
	var rows []holdingRow
	if err := s.db.SelectContext(ctx, &rows, _selectHoldings, s.accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query holdings", err)
	}

	hs := make([]model.Holding, 0, len(rows))
	for _, r := range rows {
		hs = append(hs, r.toModel())
	}
	return hs, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Holding, error) {
	var r holdingRow
	if err := s.db.GetContext(ctx, &r, _selectHolding, s.accountID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Holding{}, ErrHoldingNotFound
		}
		return model.Holding{}, fmt.Errorf("%w: can't query holding", err)
	}
	return r.toModel(), nil
}

func (s *PostgresStore) Create(ctx context.Context, h model.Holding) (model.Holding, error) {
	if err := s.upsert(ctx, s.db, h); err != nil {
		return model.Holding{}, err
	}
	return h, nil
}

func (s *PostgresStore) Update(ctx context.Context, h model.Holding) (model.Holding, error) {
	if _, err := s.Get(ctx, h.ID); err != nil {
		return model.Holding{}, err
	}
	if err := s.upsert(ctx, s.db, h); err != nil {
		return model.Holding{}, err
	}
	return h, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, _deleteHolding, s.accountID, id)
	if err != nil {
		return fmt.Errorf("%w: can't delete holding", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrHoldingNotFound
	}
	return nil
}

// SaveAll writes the list in one transaction.
func (s *PostgresStore) SaveAll(ctx context.Context, hs []model.Holding) error {
	if len(hs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: can't begin tx", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Errorf("%s: can't rollback holdings tx", err)
		}
	}()

	for _, h := range hs {
		if err := s.upsert(ctx, tx, h); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: can't commit holdings", err)
	}
	return nil
}

func (s *PostgresStore) upsert(ctx context.Context, ex sqlx.ExecerContext, h model.Holding) error {
	price, value, pl, plPercent := valuationArgs(h.Valuation)
	if _, err := ex.ExecContext(ctx, _upsertHolding,
		h.ID,
		s.accountID,
		string(h.AssetClass),
		h.Name,
		h.Symbol,
		h.Quantity,
		h.PurchasePrice,
		h.PurchaseDate,
		price,
		value,
		pl,
		plPercent,
	); err != nil {
		return fmt.Errorf("%w: can't upsert holding %s", err, h.ID)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
