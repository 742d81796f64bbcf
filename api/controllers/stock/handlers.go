package stock

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotedesk-backend/api/middleware"
	"github.com/angelmondragon/quotedesk-backend/api/responses"
	"github.com/angelmondragon/quotedesk-backend/api/validators"
	internalstock "github.com/angelmondragon/quotedesk-backend/internal/stock"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

// Ledger is the subset of the stock ledger the HTTP layer reaches.
type Ledger interface {
	CheckAvailability(ctx context.Context, items []internalstock.LineRequest) (*internalstock.Availability, error)
	Restock(ctx context.Context, input internalstock.RestockInput) (*models.Product, error)
	Movements(ctx context.Context, productID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error)
}

type availabilityItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

type availabilityRequest struct {
	Items []availabilityItem `json:"items" validate:"required,min=1,max=100,dive"`
}

type restockRequest struct {
	Quantity int    `json:"quantity" validate:"min=1"`
	Reason   string `json:"reason" validate:"max=500"`
}

// Availability reports whether the requested lines can be covered right now.
// The answer is advisory; nothing is reserved.
func Availability(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		var req availabilityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := make([]internalstock.LineRequest, 0, len(req.Items))
		for _, item := range req.Items {
			lines = append(lines, internalstock.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		result, err := ledger.CheckAvailability(r.Context(), lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Restock(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.UUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := ledger.Restock(r.Context(), internalstock.RestockInput{
			ProductID: productID,
			Quantity:  req.Quantity,
			Reason:    validators.CleanText(req.Reason, 500),
			ActorID:   middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toProductResponse(product))
	}
}

// Movements pages through one product's ledger entries, newest first.
func Movements(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.UUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := ledger.Movements(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Page[movementResponse]{
			Items:      toMovementResponses(page.Items),
			NextCursor: page.NextCursor,
		})
	}
}
