package quotes

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotedesk-backend/api/middleware"
	"github.com/angelmondragon/quotedesk-backend/api/responses"
	"github.com/angelmondragon/quotedesk-backend/api/validators"
	internalquotes "github.com/angelmondragon/quotedesk-backend/internal/quotes"
	pkgauth "github.com/angelmondragon/quotedesk-backend/pkg/auth"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

const quoteIDParam = "quoteId"

// Create prices and persists a new pending quote for the caller.
func Create(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		var req createQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, quote)
	}
}

// Get returns one quote. Customers only see quotes they created.
func Get(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quote, ok := loadVisibleQuote(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// History returns the status audit trail of a quote.
func History(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quote, ok := loadVisibleQuote(w, r, svc, logg)
		if !ok {
			return
		}
		history, err := svc.History(r.Context(), quote.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// Document returns the printable snapshot of a quote.
func Document(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quote, ok := loadVisibleQuote(w, r, svc, logg)
		if !ok {
			return
		}
		doc, err := svc.Document(r.Context(), quote.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// List pages through quotes for staff, optionally filtered by status or creator.
func List(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := internalquotes.ListFilters{
			CreatedBy: validators.QueryText(r, "createdBy", 128),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseQuoteStatusLabel(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		page, err := svc.List(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetByNumber looks a quote up by its sequential number.
func GetByNumber(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := validators.PositiveIntParam(r, "quoteNumber")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.GetByNumber(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func Approve(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, func(r *http.Request, actor pkgauth.Identity, id uuid.UUID) (*internalquotes.QuoteDTO, error) {
		return svc.Approve(r.Context(), actor, id)
	})
}

func MarkSent(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, func(r *http.Request, actor pkgauth.Identity, id uuid.UUID) (*internalquotes.QuoteDTO, error) {
		return svc.MarkSent(r.Context(), actor, id)
	})
}

func Complete(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, func(r *http.Request, actor pkgauth.Identity, id uuid.UUID) (*internalquotes.QuoteDTO, error) {
		return svc.Complete(r.Context(), actor, id)
	})
}

// Reject closes a quote with a mandatory reason.
func Reject(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, func(r *http.Request, actor pkgauth.Identity, id uuid.UUID) (*internalquotes.QuoteDTO, error) {
		var req rejectQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Reject(r.Context(), actor, id, req.Reason)
	})
}

// Authorize commits the stock decrement and records who signed off.
func Authorize(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, func(r *http.Request, actor pkgauth.Identity, id uuid.UUID) (*internalquotes.QuoteDTO, error) {
		var req authorizeQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Authorize(r.Context(), actor, id, req.ClientEmail)
	})
}

type transitionFunc func(r *http.Request, actor pkgauth.Identity, quoteID uuid.UUID) (*internalquotes.QuoteDTO, error)

func transitionHandler(logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID, err := validators.UUIDParam(r, quoteIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.IdentityFromContext(r.Context())
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithQuoteID(ctx, quoteID.String())
		}
		quote, err := fn(r.WithContext(ctx), actor, quoteID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func loadVisibleQuote(w http.ResponseWriter, r *http.Request, svc internalquotes.Service, logg *logger.Logger) (*internalquotes.QuoteDTO, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
		return nil, false
	}
	quoteID, err := validators.UUIDParam(r, quoteIDParam)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	quote, err := svc.Get(r.Context(), quoteID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	identity := middleware.IdentityFromContext(r.Context())
	if !identity.IsStaff() && quote.CreatedBy != identity.ActorID {
		// hide existence from other customers
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found"))
		return nil, false
	}
	return quote, true
}
