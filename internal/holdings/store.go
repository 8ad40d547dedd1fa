package holdings

import (
	"context"
	"errors"

	"github.com/STTM-NSU/investracker/internal/model"
)

var ErrHoldingNotFound = errors.New("holding not found")

// Store persists holdings. SaveAll replaces the stored state of every
// holding in the list, derived fields included.
type Store interface {
	List(ctx context.Context) ([]model.Holding, error)
	Get(ctx context.Context, id string) (model.Holding, error)
	Create(ctx context.Context, h model.Holding) (model.Holding, error)
	Update(ctx context.Context, h model.Holding) (model.Holding, error)
	Delete(ctx context.Context, id string) error
	SaveAll(ctx context.Context, hs []model.Holding) error
}
