package linker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradecore/src/connectors"
	"tradecore/src/database"
	"tradecore/src/events"
	"tradecore/src/model"
	"tradecore/src/repository"
)

type capturePublisher struct {
	published []string
}

func (c *capturePublisher) Publish(eventType string, _ interface{}) {
	c.published = append(c.published, eventType)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestLinker(t *testing.T) (*Linker, *gorm.DB, *model.ExchangeAccount, *capturePublisher) {
	t.Helper()

	db := newTestDB(t)
	account := &model.ExchangeAccount{
		Name:                  "linker-" + t.Name(),
		Exchange:              "phemex",
		TradeMode:             model.TradeModeReal,
		GroupingWindowMinutes: 30,
		Enabled:               true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	publisher := &capturePublisher{}
	lnk := &Linker{db: db, events: publisher}
	return lnk, db, account, publisher
}

func buyFill(orderID, qty, price string) connectors.Fill {
	return connectors.Fill{
		ExchangeOrderID: orderID,
		Symbol:          "BTCUSDT",
		Side:            model.SideBuy,
		ExecutedQty:     decimal.RequireFromString(qty),
		AvgPrice:        decimal.RequireFromString(price),
		Status:          "FILLED",
	}
}

func sellFill(orderID, qty, price string) connectors.Fill {
	f := buyFill(orderID, qty, price)
	f.Side = model.SideSell
	return f
}

func TestApplyFillBuyOpensPosition(t *testing.T) {
	lnk, _, account, publisher := newTestLinker(t)
	ctx := context.Background()

	result, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Position == nil || result.Position.Status != model.PositionStatusOpen {
		t.Fatalf("expected an open position, got %+v", result.Position)
	}
	if result.Execution.PositionID == nil || *result.Execution.PositionID != result.Position.ID {
		t.Fatalf("expected execution linked to position %d", result.Position.ID)
	}
	if len(publisher.published) != 2 ||
		publisher.published[0] != events.EventOrderFilled ||
		publisher.published[1] != events.EventPositionUpdated {
		t.Fatalf("unexpected events: %v", publisher.published)
	}
}

func TestApplyFillBuyGroupsWithinWindow(t *testing.T) {
	lnk, _, account, _ := newTestLinker(t)
	ctx := context.Background()

	first, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := lnk.ApplyFill(ctx, account, buyFill("buy-2", "1", "110"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Position.ID != first.Position.ID {
		t.Fatalf("expected grouping into position %d", first.Position.ID)
	}
	if !second.Position.PriceOpen.Equal(dec(t, "105")) {
		t.Fatalf("expected weighted price 105, got %s", second.Position.PriceOpen)
	}
}

func TestApplyFillSellDecrementsAndCloses(t *testing.T) {
	lnk, _, account, publisher := newTestLinker(t)
	ctx := context.Background()

	opened, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "2", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positionID := opened.Position.ID

	partial, err := lnk.ApplyFill(ctx, account, sellFill("sell-1", "1", "110"), nil, &positionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partial.Position.Status != model.PositionStatusOpen {
		t.Fatalf("expected position still open")
	}
	if !partial.Execution.RealizedPnl.Equal(dec(t, "10")) {
		t.Fatalf("expected realized pnl 10, got %s", partial.Execution.RealizedPnl)
	}

	publisher.published = nil
	closing, err := lnk.ApplyFill(ctx, account, sellFill("sell-2", "1", "120"), nil, &positionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closing.Position.Status != model.PositionStatusClosed {
		t.Fatalf("expected position closed, got %s", closing.Position.Status)
	}
	if len(publisher.published) != 2 || publisher.published[1] != events.EventPositionClosed {
		t.Fatalf("expected position.closed event, got %v", publisher.published)
	}
}

func TestApplyFillSellOrphanReasons(t *testing.T) {
	lnk, _, account, _ := newTestLinker(t)
	ctx := context.Background()

	opened, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positionID := opened.Position.ID

	t.Run("no target position", func(t *testing.T) {
		result, err := lnk.ApplyFill(ctx, account, sellFill("sell-no-target", "1", "100"), nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Execution.UnlinkReason != model.UnlinkReasonNoPositionID {
			t.Fatalf("expected NO_POSITION_ID, got %q", result.Execution.UnlinkReason)
		}
		if result.Execution.PositionID != nil {
			t.Fatalf("expected no link")
		}
	})

	t.Run("qty exceeds remaining", func(t *testing.T) {
		result, err := lnk.ApplyFill(ctx, account, sellFill("sell-too-big", "5", "100"), nil, &positionID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Execution.UnlinkReason != model.UnlinkReasonQtyExceedsRemaining {
			t.Fatalf("expected QTY_EXCEEDS_REMAINING, got %q", result.Execution.UnlinkReason)
		}
	})

	t.Run("position already closed", func(t *testing.T) {
		if _, err := lnk.ApplyFill(ctx, account, sellFill("sell-close", "1", "100"), nil, &positionID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result, err := lnk.ApplyFill(ctx, account, sellFill("sell-after-close", "1", "100"), nil, &positionID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Execution.UnlinkReason != model.UnlinkReasonPositionClosed {
			t.Fatalf("expected POSITION_ALREADY_CLOSED, got %q", result.Execution.UnlinkReason)
		}
	})
}

func TestApplyFillDuplicateIsNoOp(t *testing.T) {
	lnk, db, account, publisher := newTestLinker(t)
	ctx := context.Background()

	first, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	publisher.published = nil
	replay, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay.Duplicate {
		t.Fatalf("expected duplicate flag")
	}
	if replay.Execution.ID != first.Execution.ID {
		t.Fatalf("expected the stored execution back")
	}
	if len(publisher.published) != 0 {
		t.Fatalf("expected no events for a duplicate, got %v", publisher.published)
	}

	position, err := repository.NewPositionRepository().WithDB(db).FindByID(ctx, first.Position.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !position.QtyTotal.Equal(dec(t, "1")) {
		t.Fatalf("expected untouched quantity 1, got %s", position.QtyTotal)
	}
}

// A replay can pass the fast-path existence check before the first apply
// commits. The transaction must then collide on the unique index and roll the
// position mutation back instead of doubling it.
func TestApplyFillConcurrentReplayRollsBack(t *testing.T) {
	lnk, db, account, _ := newTestLinker(t)
	ctx := context.Background()

	first, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Drive the transaction body directly, the state a loser is in once its
	// stale existence check has already passed.
	var result Result
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return lnk.applyFillTx(ctx, tx, account, buyFill("buy-1", "1", "100"), nil, nil, &result, logger.WithField("test", t.Name()))
	})
	if !errors.Is(err, model.ErrDuplicateExchangeOrder) {
		t.Fatalf("expected ErrDuplicateExchangeOrder, got %v", err)
	}

	position, err := repository.NewPositionRepository().WithDB(db).FindByID(ctx, first.Position.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !position.QtyTotal.Equal(dec(t, "1")) || !position.QtyRemaining.Equal(dec(t, "1")) {
		t.Fatalf("position mutation not rolled back: total %s remaining %s",
			position.QtyTotal, position.QtyRemaining)
	}

	var recorded int64
	if err := db.Model(&model.Execution{}).Count(&recorded).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected a single execution row, got %d", recorded)
	}

	// The public path resolves the collision to a duplicate result.
	replay, err := lnk.ApplyFill(ctx, account, buyFill("buy-1", "1", "100"), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay.Duplicate || replay.Execution.ID != first.Execution.ID {
		t.Fatalf("expected duplicate of execution %d, got %+v", first.Execution.ID, replay)
	}
}

func TestRealizedPnlAgainst(t *testing.T) {
	execution := &model.Execution{
		AvgPrice:    dec(t, "110"),
		ExecutedQty: dec(t, "2"),
	}

	pnl := RealizedPnlAgainst(execution, dec(t, "100"))
	if !pnl.Equal(dec(t, "20")) {
		t.Fatalf("expected pnl 20, got %s", pnl)
	}

	loss := RealizedPnlAgainst(execution, dec(t, "120"))
	if !loss.Equal(dec(t, "-20")) {
		t.Fatalf("expected pnl -20, got %s", loss)
	}
}
