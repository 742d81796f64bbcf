package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/internal/stock"
	"github.com/angelmondragon/quotedesk-backend/pkg/auth"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

const (
	maxRejectionReasonLength = 500
	defaultCurrency          = "USD"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type numberAllocator interface {
	NextQuoteNumber(ctx context.Context) (int64, error)
}

type stockDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, quoteID uuid.UUID, actorID string, items []stock.LineRequest) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Service drives the quote lifecycle. Every mutation commits the status
// change, its audit row and its outbox event in one transaction.
type Service interface {
	Create(ctx context.Context, actor auth.Identity, input CreateQuoteInput) (*QuoteDTO, error)
	Authorize(ctx context.Context, actor auth.Identity, quoteID uuid.UUID, clientEmail string) (*QuoteDTO, error)
	Reject(ctx context.Context, actor auth.Identity, quoteID uuid.UUID, reason string) (*QuoteDTO, error)
	Approve(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error)
	MarkSent(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error)
	Complete(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error)
	Get(ctx context.Context, quoteID uuid.UUID) (*QuoteDTO, error)
	GetByNumber(ctx context.Context, number int64) (*QuoteDTO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[QuoteDTO], error)
	History(ctx context.Context, quoteID uuid.UUID) ([]TransitionDTO, error)
	Document(ctx context.Context, quoteID uuid.UUID) (*QuoteDocument, error)
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Numbers   numberAllocator
	Stock     stockDecrementer
	Outbox    outboxPublisher
	Metrics   *metrics.QuoteMetrics
	Logger    *logger.Logger
	Currency  string
	Validator *validator.Validate
}

type service struct {
	repo     *Repository
	tx       txRunner
	numbers  numberAllocator
	stock    stockDecrementer
	outbox   outboxPublisher
	metrics  *metrics.QuoteMetrics
	logg     *logger.Logger
	currency string
	validate *validator.Validate
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("sequence allocator required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "quotes", Output: io.Discard})
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		numbers:  params.Numbers,
		stock:    params.Stock,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     logg,
		currency: currency,
		validate: validate,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Identity, input CreateQuoteInput) (*QuoteDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Customer.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	email, err := s.normalizeEmail("customer.email", input.Customer.Email, false)
	if err != nil {
		return nil, err
	}
	if len(input.LineItems) == 0 && len(input.UnmatchedItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote must contain at least one item")
	}
	for i, item := range input.LineItems {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"lineItem": i})
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"lineItem": i, "quantity": item.Quantity})
		}
	}
	for i, item := range input.UnmatchedItems {
		if strings.TrimSpace(item.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unmatched item name required").
				WithDetails(map[string]any{"unmatchedItem": i})
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"unmatchedItem": i, "quantity": item.Quantity})
		}
	}

	lineItems, total, err := s.priceLineItems(ctx, input.LineItems)
	if err != nil {
		return nil, err
	}
	unmatched := make([]models.QuoteUnmatchedItem, 0, len(input.UnmatchedItems))
	for i, item := range input.UnmatchedItems {
		unmatched = append(unmatched, models.QuoteUnmatchedItem{
			Name:        strings.TrimSpace(item.Name),
			Description: optionalString(item.Description),
			Quantity:    item.Quantity,
			Position:    i,
		})
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	number, err := s.numbers.NextQuoteNumber(ctx)
	if err != nil {
		return nil, err
	}

	quote := &models.Quote{
		QuoteNumber:     number,
		CustomerName:    name,
		CustomerEmail:   optionalString(email),
		CustomerPhone:   optionalString(input.Customer.Phone),
		Total:           total,
		Currency:        currency,
		Status:          enums.QuoteStatusPending,
		CreatedBy:       actor.ActorID,
		CreatedByRole:   actor.Role,
		SuppressWebhook: actor.IsStaff(),
		LineItems:       lineItems,
		UnmatchedItems:  unmatched,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, quote); err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist quote")
		}
		if err := repo.AppendTransition(ctx, &models.QuoteStatusTransition{
			QuoteID:   quote.ID,
			ToStatus:  enums.QuoteStatusPending,
			ActorID:   actor.ActorID,
			ActorRole: actor.Role,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record quote transition")
		}
		return s.emit(ctx, tx, actor, quote.ID, enums.EventQuoteCreated, payloads.QuoteCreatedEvent{
			Quote:           summaryOf(quote),
			SuppressWebhook: quote.SuppressWebhook,
		})
	})
	if err != nil {
		return nil, storageError(err, "create quote")
	}

	s.metrics.IncTransition("", string(enums.QuoteStatusPending))
	logCtx := s.logg.WithQuoteID(ctx, quote.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"quote_number":     quote.QuoteNumber,
		"total":            quote.Total.StringFixed(2),
		"suppress_webhook": quote.SuppressWebhook,
	})
	s.logg.Info(logCtx, "quote created")
	return toDTO(quote), nil
}

// Authorize decrements stock for every matched line and moves the quote to
// authorized in one transaction. Losing a race on the same quote yields
// ALREADY_PROCESSED and the loser's decrement rolls back with it.
func (s *service) Authorize(ctx context.Context, actor auth.Identity, quoteID uuid.UUID, clientEmail string) (*QuoteDTO, error) {
	quote, err := s.authorize(ctx, actor, quoteID, clientEmail)
	s.metrics.IncAuthorization(authorizationOutcome(err))
	if err != nil {
		return nil, err
	}
	return toDTO(quote), nil
}

func (s *service) authorize(ctx context.Context, actor auth.Identity, quoteID uuid.UUID, clientEmail string) (*models.Quote, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	email, err := s.normalizeEmail("clientEmail", clientEmail, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return s.transition(ctx, transitionRequest{
		actor:   actor,
		quoteID: quoteID,
		to:      enums.QuoteStatusAuthorized,
		updates: map[string]any{
			"authorized_by": actor.ActorID,
			"authorized_at": now,
			"client_email":  email,
		},
		beforeUpdate: func(tx *gorm.DB, q *models.Quote) error {
			items := matchedStockRequests(q.LineItems)
			if len(items) == 0 {
				return nil
			}
			return s.stock.Decrement(ctx, tx, q.ID, actor.ActorID, items)
		},
		apply: func(q *models.Quote) {
			q.AuthorizedBy = &actor.ActorID
			q.AuthorizedAt = &now
			q.ClientEmail = &email
		},
		event: func(q *models.Quote) (enums.OutboxEventType, any) {
			return enums.EventQuoteAuthorized, payloads.QuoteAuthorizedEvent{
				Quote:        summaryOf(q),
				ClientEmail:  email,
				AuthorizedBy: actor.ActorID,
				AuthorizedAt: now,
			}
		},
	})
}

func (s *service) Reject(ctx context.Context, actor auth.Identity, quoteID uuid.UUID, reason string) (*QuoteDTO, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin, enums.ActorRoleQuoter); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	if len([]rune(reason)) > maxRejectionReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason too long").
			WithDetails(map[string]any{"max": maxRejectionReasonLength})
	}

	quote, err := s.transition(ctx, transitionRequest{
		actor:   actor,
		quoteID: quoteID,
		to:      enums.QuoteStatusRejected,
		reason:  &reason,
		updates: map[string]any{"rejection_reason": reason},
		apply: func(q *models.Quote) {
			q.RejectionReason = &reason
		},
		event: func(q *models.Quote) (enums.OutboxEventType, any) {
			return enums.EventQuoteRejected, payloads.QuoteRejectedEvent{
				Quote:      summaryOf(q),
				Reason:     reason,
				RejectedBy: actor.ActorID,
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return toDTO(quote), nil
}

func (s *service) Approve(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin, enums.ActorRoleQuoter); err != nil {
		return nil, err
	}
	quote, err := s.transition(ctx, transitionRequest{actor: actor, quoteID: quoteID, to: enums.QuoteStatusApproved})
	if err != nil {
		return nil, err
	}
	return toDTO(quote), nil
}

func (s *service) MarkSent(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin, enums.ActorRoleQuoter); err != nil {
		return nil, err
	}
	quote, err := s.transition(ctx, transitionRequest{actor: actor, quoteID: quoteID, to: enums.QuoteStatusSent})
	if err != nil {
		return nil, err
	}
	return toDTO(quote), nil
}

// Complete records that an authorized quote has been dispatched.
func (s *service) Complete(ctx context.Context, actor auth.Identity, quoteID uuid.UUID) (*QuoteDTO, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	quote, err := s.transition(ctx, transitionRequest{
		actor:   actor,
		quoteID: quoteID,
		to:      enums.QuoteStatusCompleted,
		updates: map[string]any{"completed_at": now},
		apply: func(q *models.Quote) {
			q.CompletedAt = &now
		},
		event: func(q *models.Quote) (enums.OutboxEventType, any) {
			return enums.EventQuoteCompleted, payloads.QuoteCompletedEvent{
				Quote:       summaryOf(q),
				ClientEmail: deref(q.ClientEmail),
				CompletedAt: now,
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return toDTO(quote), nil
}

func (s *service) Get(ctx context.Context, quoteID uuid.UUID) (*QuoteDTO, error) {
	quote, err := s.repo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, storageError(err, "load quote")
	}
	return toDTO(quote), nil
}

func (s *service) GetByNumber(ctx context.Context, number int64) (*QuoteDTO, error) {
	if number <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote number must be positive")
	}
	quote, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, storageError(err, "load quote")
	}
	return toDTO(quote), nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[QuoteDTO], error) {
	page, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return pagination.Page[QuoteDTO]{}, storageError(err, "list quotes")
	}
	items := make([]QuoteDTO, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, *toDTO(&page.Items[i]))
	}
	return pagination.Page[QuoteDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

func (s *service) History(ctx context.Context, quoteID uuid.UUID) ([]TransitionDTO, error) {
	if _, err := s.repo.FindByID(ctx, quoteID); err != nil {
		return nil, storageError(err, "load quote")
	}
	rows, err := s.repo.ListTransitions(ctx, quoteID)
	if err != nil {
		return nil, storageError(err, "load quote history")
	}
	return toTransitionDTOs(rows), nil
}

func (s *service) Document(ctx context.Context, quoteID uuid.UUID) (*QuoteDocument, error) {
	quote, err := s.repo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, storageError(err, "load quote")
	}
	return toDocument(quote), nil
}

type transitionRequest struct {
	actor        auth.Identity
	quoteID      uuid.UUID
	to           enums.QuoteStatus
	reason       *string
	updates      map[string]any
	beforeUpdate func(tx *gorm.DB, q *models.Quote) error
	apply        func(q *models.Quote)
	event        func(q *models.Quote) (enums.OutboxEventType, any)
}

// transition locks the quote, validates the move against the transition
// table, then applies it with a compare-and-swap on the status column.
func (s *service) transition(ctx context.Context, req transitionRequest) (*models.Quote, error) {
	if req.quoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}

	var (
		quote *models.Quote
		from  enums.QuoteStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, req.quoteID)
		if err != nil {
			return storageError(err, "load quote")
		}
		from = locked.Status
		if err := checkTransition(from, req.to); err != nil {
			return err
		}

		if req.beforeUpdate != nil {
			if err := req.beforeUpdate(tx, locked); err != nil {
				return err
			}
		}

		changed, err := repo.TransitionStatus(ctx, locked.ID, []enums.QuoteStatus{from}, req.to, req.updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeProcessed, "quote was modified concurrently").
				WithDetails(map[string]any{"quoteId": locked.ID, "to": req.to})
		}

		prev := from
		if err := repo.AppendTransition(ctx, &models.QuoteStatusTransition{
			QuoteID:    locked.ID,
			FromStatus: &prev,
			ToStatus:   req.to,
			ActorID:    req.actor.ActorID,
			ActorRole:  req.actor.Role,
			Reason:     req.reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record quote transition")
		}

		locked.Status = req.to
		if req.apply != nil {
			req.apply(locked)
		}
		if req.event != nil {
			eventType, data := req.event(locked)
			if err := s.emit(ctx, tx, req.actor, locked.ID, eventType, data); err != nil {
				return err
			}
		}
		quote = locked
		return nil
	})
	if err != nil {
		logCtx := s.logg.WithQuoteID(ctx, req.quoteID.String())
		logCtx = s.logg.WithField(logCtx, "to", req.to)
		if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeDependency && typed.Code() != pkgerrors.CodeInternal {
			s.logg.Warn(s.logg.WithField(logCtx, "code", typed.Code()), "quote transition refused")
		} else {
			s.logg.Error(logCtx, "quote transition failed", err)
		}
		return nil, storageError(err, "transition quote")
	}

	s.metrics.IncTransition(string(from), string(req.to))
	logCtx := s.logg.WithQuoteID(ctx, quote.ID.String())
	logCtx = s.logg.WithActor(logCtx, req.actor.ActorID, string(req.actor.Role))
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": req.to})
	s.logg.Info(logCtx, "quote transitioned")
	return quote, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Identity, quoteID uuid.UUID, eventType enums.OutboxEventType, data any) error {
	_, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quoteID,
		Actor:         &outbox.ActorRef{ActorID: actor.ActorID, Role: string(actor.Role)},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue quote event")
	}
	return nil
}

// priceLineItems snapshots current catalog prices into immutable line items.
func (s *service) priceLineItems(ctx context.Context, inputs []LineItemInput) ([]models.QuoteLineItem, decimal.Decimal, error) {
	total := decimal.Zero
	if len(inputs) == 0 {
		return nil, total, nil
	}

	ids := make([]uuid.UUID, 0, len(inputs))
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	for _, item := range inputs {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.LoadProducts(ctx, ids)
	if err != nil {
		return nil, total, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	missing := make([]uuid.UUID, 0)
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, total, pkgerrors.New(pkgerrors.CodeValidation, "unknown or deleted products").
			WithDetails(map[string]any{"productIds": missing})
	}

	items := make([]models.QuoteLineItem, 0, len(inputs))
	for i, input := range inputs {
		product := byID[input.ProductID]
		productID := product.ID
		lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(input.Quantity))).Round(2)
		total = total.Add(lineTotal)
		items = append(items, models.QuoteLineItem{
			ProductID:            &productID,
			SKU:                  product.SKU,
			Name:                 product.Name,
			Quantity:             input.Quantity,
			UnitPriceAtQuoteTime: product.UnitPrice,
			LineTotal:            lineTotal,
			Position:             i,
		})
	}
	return items, total.Round(2), nil
}

// normalizeEmail trims and checks an address. field names the input in the
// error details.
func (s *service) normalizeEmail(field, value string, required bool) (string, error) {
	email := strings.TrimSpace(value)
	if email == "" {
		if required {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "client email required").
				WithDetails(map[string]string{field: "is required"})
		}
		return "", nil
	}
	if s.validate.Var(email, "email") != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid email address").
			WithDetails(map[string]string{field: "must be a valid email"})
	}
	return email, nil
}

// checkTransition classifies an illegal move. Repeating a move that already
// happened is ALREADY_PROCESSED; anything else off the table is a conflict
// that names the states the move is allowed from.
func checkTransition(from, to enums.QuoteStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	if from == to || (to == enums.QuoteStatusAuthorized && from == enums.QuoteStatusCompleted) {
		return pkgerrors.New(pkgerrors.CodeProcessed, "quote already processed").
			WithDetails(map[string]any{"status": from})
	}
	details := map[string]any{"from": from, "to": to, "allowedFrom": enums.SourcesFor(to)}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quote is closed").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal quote transition").WithDetails(details)
}

func matchedStockRequests(items []models.QuoteLineItem) []stock.LineRequest {
	requests := make([]stock.LineRequest, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		requests = append(requests, stock.LineRequest{ProductID: *item.ProductID, Quantity: item.Quantity})
	}
	return requests
}

func requireActor(actor auth.Identity) error {
	if strings.TrimSpace(actor.ActorID) == "" || !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity required")
	}
	return nil
}

func requireRole(actor auth.Identity, allowed ...enums.ActorRole) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	for _, role := range allowed {
		if actor.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
		WithDetails(map[string]any{"role": actor.Role})
}

func authorizationOutcome(err error) string {
	if err == nil {
		return "authorized"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeProcessed:
		return "already_processed"
	case pkgerrors.CodeInsufficient:
		return "insufficient_stock"
	case pkgerrors.CodeStateConflict:
		return "state_conflict"
	case pkgerrors.CodeValidation:
		return "invalid"
	case pkgerrors.CodeForbidden, pkgerrors.CodeUnauthorized:
		return "forbidden"
	case pkgerrors.CodeNotFound:
		return "not_found"
	}
	return "error"
}

func storageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
