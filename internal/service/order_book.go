package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// BookBroadcaster is the minimal interface OrderBookService needs from the
// WS hub to push an order-book-updated event. Declared here, implemented by
// internal/ws, to avoid an import cycle.
type BookBroadcaster interface {
	BroadcastBookUpdate(marketID uuid.UUID, book *domain.BookView)
}

// PlaceOrderResult is the response shape for place_order (spec.md §6).
type PlaceOrderResult struct {
	OrderID        uuid.UUID          `json:"order_id"`
	Status         domain.OrderStatus `json:"status"`
	FilledQuantity decimal.Decimal    `json:"filled_quantity"`
	Remaining      decimal.Decimal    `json:"remaining"`
	FillsCount     int                `json:"fills_count"`
}

// CancelOrderResult is the response shape for cancel_order.
type CancelOrderResult struct {
	OrderID           uuid.UUID       `json:"order_id"`
	CancelledQuantity decimal.Decimal `json:"cancelled_quantity"`
}

// OrderBookService accepts order intents, translates them to book orders,
// matches with strict price-time priority, settles fills in three modes,
// manages collateral reservations, and cancels orders.
type OrderBookService struct {
	db           *sqlx.DB
	userRepo     *repository.UserRepository
	marketRepo   *repository.MarketRepository
	orderRepo    *repository.OrderRepository
	positionRepo *repository.PositionRepository
	fillRepo     *repository.FillRepository
	txnRepo      *repository.TransactionRepository
	cfg          *config.Config
	broadcaster  BookBroadcaster

	// 1-second order-book read-model cache, keyed by market id. Adapted from
	// the teacher's price-service TTL-cache shape (see DESIGN.md).
	bookMu    sync.RWMutex
	bookCache map[uuid.UUID]cachedBook
}

type cachedBook struct {
	view      *domain.BookView
	cachedAt  time.Time
}

// NewOrderBookService creates an OrderBookService.
func NewOrderBookService(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	marketRepo *repository.MarketRepository,
	orderRepo *repository.OrderRepository,
	positionRepo *repository.PositionRepository,
	fillRepo *repository.FillRepository,
	txnRepo *repository.TransactionRepository,
	cfg *config.Config,
) *OrderBookService {
	return &OrderBookService{
		db:           db,
		userRepo:     userRepo,
		marketRepo:   marketRepo,
		orderRepo:    orderRepo,
		positionRepo: positionRepo,
		fillRepo:     fillRepo,
		txnRepo:      txnRepo,
		cfg:          cfg,
		bookCache:    make(map[uuid.UUID]cachedBook),
	}
}

// SetBroadcaster injects the WS hub after construction.
func (s *OrderBookService) SetBroadcaster(b BookBroadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceOrder
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrder locks user and market, reserves collateral, creates the order,
// then runs matching against the resting book.
func (s *OrderBookService) PlaceOrder(
	ctx context.Context,
	userID, marketID uuid.UUID,
	intent domain.Intent,
	priceYes, quantity decimal.Decimal,
) (*PlaceOrderResult, error) {
	if !intent.IsValid() {
		return nil, domain.ErrInvalidIntent
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidQuantity
	}

	side, bookPrice := domain.TranslateIntent(intent, priceYes)
	if bookPrice.LessThan(domain.MinBookPrice) || bookPrice.GreaterThan(domain.MaxBookPrice) {
		return nil, domain.ErrInvalidPrice
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	user, err := s.userRepo.Lock(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: lock user: %w", err)
	}
	market, err := s.marketRepo.Lock(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: lock market: %w", err)
	}
	if !market.IsOpen() {
		return nil, domain.ErrMarketNotOpen
	}
	if market.Mechanism != domain.MechanismCLOB {
		return nil, domain.ErrWrongMechanism
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:             uuid.New(),
		UserID:         userID,
		MarketID:       marketID,
		Side:           side,
		Price:          bookPrice,
		Quantity:       quantity,
		FilledQuantity: decimal.Zero,
		Status:         domain.OrderOpen,
		OriginalIntent: intent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// ── Reserve collateral ──
	if order.ReservesBalance() {
		required := order.ReservationPrice().Mul(quantity)
		if user.Available().LessThan(required) {
			return nil, domain.ErrInsufficientBalance
		}
		if err := s.userRepo.ReserveBalance(ctx, tx, userID, required); err != nil {
			return nil, fmt.Errorf("order_book.PlaceOrder: reserve balance: %w", err)
		}
	} else {
		pos, _, err := s.positionRepo.GetOrCreate(ctx, tx, userID, marketID, order.ReservedOutcome())
		if err != nil {
			return nil, fmt.Errorf("order_book.PlaceOrder: get position: %w", err)
		}
		if pos.AvailableShares().LessThan(quantity) {
			return nil, domain.ErrInsufficientShares
		}
		if err := s.positionRepo.ReserveShares(ctx, tx, pos.ID, quantity); err != nil {
			return nil, fmt.Errorf("order_book.PlaceOrder: reserve shares: %w", err)
		}
	}

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: create order: %w", err)
	}

	// ── Run matching ──
	fillsCount, err := s.match(ctx, tx, market, order)
	if err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("order_book.PlaceOrder: commit: %w", err)
	}
	committed = true

	s.invalidateBookCache(marketID)
	go s.postFillAsync(marketID)

	return &PlaceOrderResult{
		OrderID:        order.ID,
		Status:         order.Status,
		FilledQuantity: order.FilledQuantity,
		Remaining:      order.Remaining(),
		FillsCount:     fillsCount,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────────────────────────

// match locates compatible counter-orders in price-time priority and settles
// fills until the incoming order is exhausted or no more candidates remain.
// incoming is mutated in place to reflect filled_quantity/status.
func (s *OrderBookService) match(ctx context.Context, tx *sqlx.Tx, market *domain.Market, incoming *domain.Order) (int, error) {
	feeRate := decimal.NewFromFloat(s.cfg.Trade.FeeRate)
	fillsCount := 0

	candidates, err := s.orderRepo.MatchCandidates(ctx, tx, market.ID, incoming.Side, incoming.Price)
	if err != nil {
		return 0, fmt.Errorf("match: candidates: %w", err)
	}

	for _, resting := range candidates {
		if incoming.Remaining().LessThanOrEqual(decimal.Zero) {
			break
		}
		if resting.UserID == incoming.UserID {
			continue // self-trade prevention
		}

		fillQty := decimal.Min(incoming.Remaining(), resting.Remaining())
		if fillQty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		price := resting.Price // maker-takes-price

		var buyOrder, sellOrder *domain.Order
		if incoming.Side == domain.SideBuy {
			buyOrder, sellOrder = incoming, resting
		} else {
			buyOrder, sellOrder = resting, incoming
		}

		fee, settlementType, err := s.settleFill(ctx, tx, market.ID, buyOrder, sellOrder, price, fillQty, feeRate)
		if err != nil {
			return fillsCount, fmt.Errorf("match: settle: %w", err)
		}

		if err := s.orderRepo.ApplyFill(ctx, tx, incoming.ID, fillQty); err != nil {
			return fillsCount, fmt.Errorf("match: apply fill incoming: %w", err)
		}
		if err := s.orderRepo.ApplyFill(ctx, tx, resting.ID, fillQty); err != nil {
			return fillsCount, fmt.Errorf("match: apply fill resting: %w", err)
		}
		incoming.FilledQuantity = incoming.FilledQuantity.Add(fillQty)
		if incoming.FilledQuantity.GreaterThanOrEqual(incoming.Quantity) {
			incoming.Status = domain.OrderFilled
		} else {
			incoming.Status = domain.OrderPartiallyFilled
		}
		resting.FilledQuantity = resting.FilledQuantity.Add(fillQty)

		fill := &domain.TradeFill{
			ID: uuid.New(), MarketID: market.ID,
			BuyOrderID: buyOrder.ID, SellOrderID: sellOrder.ID,
			BuyerID: buyOrder.UserID, SellerID: sellOrder.UserID,
			Price: price, Quantity: fillQty, Fee: fee, SettlementType: settlementType,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.fillRepo.Create(ctx, tx, fill); err != nil {
			return fillsCount, fmt.Errorf("match: create fill: %w", err)
		}

		if err := s.marketRepo.UpdateLastTradePrice(ctx, tx, market.ID, price); err != nil {
			return fillsCount, fmt.Errorf("match: update last price: %w", err)
		}
		if err := s.marketRepo.RecordTrade(ctx, tx, market.ID, fillQty, false); err != nil {
			return fillsCount, fmt.Errorf("match: record trade: %w", err)
		}

		now := time.Now().UTC()
		buyTxn := &domain.Transaction{
			ID: uuid.New(), UserID: buyOrder.UserID, MarketID: &market.ID, Type: domain.TxOrderFill,
			Amount: decimal.Zero, Shares: &fillQty, PriceAtTrade: &price,
			Description: fmt.Sprintf("order fill (%s)", settlementType), CreatedAt: now,
		}
		sellTxn := &domain.Transaction{
			ID: uuid.New(), UserID: sellOrder.UserID, MarketID: &market.ID, Type: domain.TxOrderFill,
			Amount: decimal.Zero, Shares: &fillQty, PriceAtTrade: &price,
			Description: fmt.Sprintf("order fill (%s)", settlementType), CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, buyTxn); err != nil {
			return fillsCount, fmt.Errorf("match: buy txn: %w", err)
		}
		if err := s.txnRepo.Create(ctx, tx, sellTxn); err != nil {
			return fillsCount, fmt.Errorf("match: sell txn: %w", err)
		}
		if err := s.userRepo.IncrementTotalTrades(ctx, tx, buyOrder.UserID); err != nil {
			return fillsCount, fmt.Errorf("match: increment buyer total trades: %w", err)
		}
		if err := s.userRepo.IncrementTotalTrades(ctx, tx, sellOrder.UserID); err != nil {
			return fillsCount, fmt.Errorf("match: increment seller total trades: %w", err)
		}

		fillsCount++
	}

	return fillsCount, nil
}

// settleFill applies the balance/position/reservation changes for one fill,
// branching on the pair of original intents per spec.md §4.3's settlement table.
func (s *OrderBookService) settleFill(
	ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID,
	buyOrder, sellOrder *domain.Order,
	price, qty, feeRate decimal.Decimal,
) (decimal.Decimal, domain.SettlementType, error) {
	bi, si := buyOrder.OriginalIntent, sellOrder.OriginalIntent

	switch {
	case bi == domain.IntentBuyYes && si == domain.IntentSellYes:
		return s.settleTransfer(ctx, tx, marketID, buyOrder, sellOrder, domain.OutcomeYes, price, qty, feeRate)

	case bi == domain.IntentSellNo && si == domain.IntentBuyNo:
		// NO shares move seller(buyOrder, holds sell_no)->buyer(sellOrder, holds buy_no) at NO-price (1-price).
		return s.settleTransfer(ctx, tx, marketID, sellOrder, buyOrder, domain.OutcomeNo, decimal.NewFromInt(1).Sub(price), qty, feeRate)

	case bi == domain.IntentBuyYes && si == domain.IntentBuyNo:
		return s.settleMint(ctx, tx, marketID, buyOrder, sellOrder, price, qty, feeRate)

	case bi == domain.IntentSellNo && si == domain.IntentSellYes:
		return s.settleBurn(ctx, tx, marketID, buyOrder, sellOrder, price, qty, feeRate)
	}

	return decimal.Zero, "", fmt.Errorf("settleFill: unrecognised intent pair %s/%s", bi, si)
}

// settleTransfer handles the TRANSFER mode: shares move from seller to
// buyer at price, buyer pays price*qty, seller receives price*qty - fee.
func (s *OrderBookService) settleTransfer(
	ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID,
	buyerOrder, sellerOrder *domain.Order, outcome domain.Outcome,
	price, qty, feeRate decimal.Decimal,
) (decimal.Decimal, domain.SettlementType, error) {
	totalValue := price.Mul(qty)
	fee := totalValue.Mul(feeRate).Round(2)
	sellerReceive := totalValue.Sub(fee)

	releaseBuyer := buyerOrder.ReservationPrice().Mul(qty)
	if err := s.userRepo.ReleaseBalance(ctx, tx, buyerOrder.UserID, releaseBuyer); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.DebitBalance(ctx, tx, buyerOrder.UserID, totalValue); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.CreditBalance(ctx, tx, sellerOrder.UserID, sellerReceive); err != nil {
		return decimal.Zero, "", err
	}

	sellerPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, sellerOrder.UserID, marketID, outcome)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.ReleaseShares(ctx, tx, sellerPos.ID, qty); err != nil {
		return decimal.Zero, "", err
	}
	costRemoved := decimal.Zero
	if sellerPos.Shares.GreaterThan(decimal.Zero) {
		costRemoved = sellerPos.TotalCost.Mul(qty.Div(sellerPos.Shares))
	}
	if err := s.positionRepo.RemoveShares(ctx, tx, sellerPos.ID, qty, costRemoved); err != nil {
		return decimal.Zero, "", err
	}

	buyerPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, buyerOrder.UserID, marketID, outcome)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.AddShares(ctx, tx, buyerPos.ID, qty, totalValue); err != nil {
		return decimal.Zero, "", err
	}

	return fee, domain.SettlementTransfer, nil
}

// settleMint handles the MINT mode: a new YES+NO share-pair is created;
// buy_yes pays price, buy_no pays 1-price; each gets qty shares of their own outcome.
func (s *OrderBookService) settleMint(
	ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID,
	buyYesOrder, buyNoOrder *domain.Order,
	price, qty, feeRate decimal.Decimal,
) (decimal.Decimal, domain.SettlementType, error) {
	totalValue := qty // price*qty + (1-price)*qty == qty
	fee := totalValue.Mul(feeRate).Round(2)
	half, other := splitFee(fee)

	yesCost := price.Mul(qty)
	noCost := decimal.NewFromInt(1).Sub(price).Mul(qty)

	if err := s.userRepo.ReleaseBalance(ctx, tx, buyYesOrder.UserID, buyYesOrder.ReservationPrice().Mul(qty)); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.DebitBalance(ctx, tx, buyYesOrder.UserID, yesCost.Add(half)); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.ReleaseBalance(ctx, tx, buyNoOrder.UserID, buyNoOrder.ReservationPrice().Mul(qty)); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.DebitBalance(ctx, tx, buyNoOrder.UserID, noCost.Add(other)); err != nil {
		return decimal.Zero, "", err
	}

	yesPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, buyYesOrder.UserID, marketID, domain.OutcomeYes)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.AddShares(ctx, tx, yesPos.ID, qty, yesCost.Add(half)); err != nil {
		return decimal.Zero, "", err
	}
	noPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, buyNoOrder.UserID, marketID, domain.OutcomeNo)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.AddShares(ctx, tx, noPos.ID, qty, noCost.Add(other)); err != nil {
		return decimal.Zero, "", err
	}

	return fee, domain.SettlementMint, nil
}

// settleBurn handles the BURN mode: a YES+NO share-pair is destroyed;
// sell_yes receives price*qty, sell_no receives (1-price)*qty, minus fee shares.
func (s *OrderBookService) settleBurn(
	ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID,
	sellNoOrder, sellYesOrder *domain.Order,
	price, qty, feeRate decimal.Decimal,
) (decimal.Decimal, domain.SettlementType, error) {
	totalValue := qty
	fee := totalValue.Mul(feeRate).Round(2)
	half, other := splitFee(fee)

	noProceeds := decimal.NewFromInt(1).Sub(price).Mul(qty).Sub(half)
	yesProceeds := price.Mul(qty).Sub(other)

	if err := s.userRepo.CreditBalance(ctx, tx, sellNoOrder.UserID, noProceeds); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.userRepo.CreditBalance(ctx, tx, sellYesOrder.UserID, yesProceeds); err != nil {
		return decimal.Zero, "", err
	}

	noPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, sellNoOrder.UserID, marketID, domain.OutcomeNo)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.ReleaseShares(ctx, tx, noPos.ID, qty); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.RemoveShares(ctx, tx, noPos.ID, qty, decimal.Zero); err != nil {
		return decimal.Zero, "", err
	}

	yesPos, _, err := s.positionRepo.GetOrCreate(ctx, tx, sellYesOrder.UserID, marketID, domain.OutcomeYes)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.ReleaseShares(ctx, tx, yesPos.ID, qty); err != nil {
		return decimal.Zero, "", err
	}
	if err := s.positionRepo.RemoveShares(ctx, tx, yesPos.ID, qty, decimal.Zero); err != nil {
		return decimal.Zero, "", err
	}

	return fee, domain.SettlementBurn, nil
}

// splitFee implements the binding half = round(fee/2, 2), other = fee - half
// rule so the two halves always sum to the exact total fee (SPEC_FULL.md §9
// Open Question 2 decision).
func splitFee(fee decimal.Decimal) (half, other decimal.Decimal) {
	half = fee.Div(decimal.NewFromInt(2)).Round(2)
	other = fee.Sub(half)
	return half, other
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelOrder
// ──────────────────────────────────────────────────────────────────────────────

// CancelOrder cancels a single resting order, releasing its reservation at
// the intent price.
func (s *OrderBookService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*CancelOrderResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := s.orderRepo.Lock(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: lock order: %w", err)
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if order.IsTerminal() {
		return nil, domain.ErrOrderTerminal
	}

	remaining := order.Remaining()
	if err := s.releaseOrderReservation(ctx, tx, order, remaining); err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: release: %w", err)
	}
	if err := s.orderRepo.Cancel(ctx, tx, orderID); err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: cancel: %w", err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID: uuid.New(), UserID: userID, MarketID: &order.MarketID, Type: domain.TxOrderCancel,
		Amount: decimal.Zero, Description: "order cancelled", CreatedAt: now,
	}
	if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: txn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("order_book.CancelOrder: commit: %w", err)
	}
	committed = true

	s.invalidateBookCache(order.MarketID)
	go s.postFillAsync(order.MarketID)

	return &CancelOrderResult{OrderID: orderID, CancelledQuantity: remaining}, nil
}

// releaseOrderReservation releases the remaining collateral reservation for
// a single order, using the intent price (order.ReservationPrice for
// balance-reserving intents, qty of reserved_shares for share-reserving ones).
func (s *OrderBookService) releaseOrderReservation(ctx context.Context, tx *sqlx.Tx, order *domain.Order, qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if order.ReservesBalance() {
		amount := order.ReservationPrice().Mul(qty)
		return s.userRepo.ReleaseBalance(ctx, tx, order.UserID, amount)
	}
	pos, _, err := s.positionRepo.GetOrCreate(ctx, tx, order.UserID, order.MarketID, order.ReservedOutcome())
	if err != nil {
		return err
	}
	return s.positionRepo.ReleaseShares(ctx, tx, pos.ID, qty)
}

// CancelAllForMarket cancels every resting order in a market, releasing
// reservations — used by market resolution (spec.md §4.4 step 3).
func (s *OrderBookService) CancelAllForMarket(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) error {
	orders, err := s.orderRepo.CancelAllOpenForMarket(ctx, tx, marketID)
	if err != nil {
		return fmt.Errorf("order_book.CancelAllForMarket: %w", err)
	}
	for _, o := range orders {
		if err := s.releaseOrderReservation(ctx, tx, o, o.Remaining()); err != nil {
			return fmt.Errorf("order_book.CancelAllForMarket: release %s: %w", o.ID, err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Book view (1-second cache)
// ──────────────────────────────────────────────────────────────────────────────

const bookCacheTTL = 1 * time.Second

// Book returns the aggregated order-book view for a market, cached for 1
// second keyed by market id (spec.md §4.3 order-book view requirement).
func (s *OrderBookService) Book(ctx context.Context, marketID uuid.UUID) (*domain.BookView, error) {
	s.bookMu.RLock()
	if c, ok := s.bookCache[marketID]; ok && time.Since(c.cachedAt) < bookCacheTTL {
		view := c.view
		s.bookMu.RUnlock()
		return view, nil
	}
	s.bookMu.RUnlock()

	market, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("order_book.Book: get market: %w", err)
	}
	orders, err := s.orderRepo.ListOpenByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("order_book.Book: list orders: %w", err)
	}

	view := aggregateBook(marketID, market.LastTradePriceYes, orders)

	s.bookMu.Lock()
	s.bookCache[marketID] = cachedBook{view: view, cachedAt: time.Now()}
	s.bookMu.Unlock()

	return view, nil
}

// aggregateBook groups non-terminal orders by (side, price), summing
// remaining quantity, and sorts bids descending / asks ascending by price.
func aggregateBook(marketID uuid.UUID, lastPrice decimal.Decimal, orders []*domain.Order) *domain.BookView {
	bidLevels := map[string]decimal.Decimal{}
	askLevels := map[string]decimal.Decimal{}
	bidPrices := map[string]decimal.Decimal{}
	askPrices := map[string]decimal.Decimal{}

	for _, o := range orders {
		key := o.Price.String()
		if o.Side == domain.SideBuy {
			bidLevels[key] = bidLevels[key].Add(o.Remaining())
			bidPrices[key] = o.Price
		} else {
			askLevels[key] = askLevels[key].Add(o.Remaining())
			askPrices[key] = o.Price
		}
	}

	bids := make([]domain.BookLevel, 0, len(bidLevels))
	for k, qty := range bidLevels {
		bids = append(bids, domain.BookLevel{Price: bidPrices[k], Quantity: qty})
	}
	asks := make([]domain.BookLevel, 0, len(askLevels))
	for k, qty := range askLevels {
		asks = append(asks, domain.BookLevel{Price: askPrices[k], Quantity: qty})
	}

	sortLevelsDesc(bids)
	sortLevelsAsc(asks)

	return &domain.BookView{
		MarketID:          marketID,
		Bids:              bids,
		Asks:              asks,
		LastTradePriceYes: lastPrice,
		CachedAt:          time.Now().UTC(),
	}
}

func sortLevelsDesc(levels []domain.BookLevel) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price.GreaterThan(levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

func sortLevelsAsc(levels []domain.BookLevel) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price.LessThan(levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

func (s *OrderBookService) invalidateBookCache(marketID uuid.UUID) {
	s.bookMu.Lock()
	delete(s.bookCache, marketID)
	s.bookMu.Unlock()
}

// ──────────────────────────────────────────────────────────────────────────────
// Read paths
// ──────────────────────────────────────────────────────────────────────────────

// UserOrders returns a user's orders, paginated.
func (s *OrderBookService) UserOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order_book.UserOrders: %w", err)
	}
	return orders, nil
}

// MarketTrades returns a market's trade tape, paginated.
func (s *OrderBookService) MarketTrades(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]*domain.TradeFill, error) {
	fills, err := s.fillRepo.ListByMarket(ctx, marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order_book.MarketTrades: %w", err)
	}
	return fills, nil
}

func (s *OrderBookService) postFillAsync(marketID uuid.UUID) {
	if s.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	view, err := s.Book(ctx, marketID)
	if err != nil {
		return
	}
	s.broadcaster.BroadcastBookUpdate(marketID, view)
}
