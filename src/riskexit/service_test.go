package riskexit

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradecore/src/connectors"
	"tradecore/src/database"
	"tradecore/src/model"
	"tradecore/src/repository"
)

type recordingSubmitter struct {
	triggers map[uint][]string
	err      error
}

func (r *recordingSubmitter) SubmitRiskExit(_ context.Context, position *model.Position, trigger string) error {
	if r.triggers == nil {
		r.triggers = map[uint][]string{}
	}
	r.triggers[position.ID] = append(r.triggers[position.ID], trigger)
	return r.err
}

func newServiceFixture(t *testing.T) (*Service, *gorm.DB, *model.ExchangeAccount, *connectors.StaticPriceFeed, *recordingSubmitter) {
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

	account := &model.ExchangeAccount{
		Name:      "riskexit-" + t.Name(),
		Exchange:  "phemex",
		TradeMode: model.TradeModeReal,
		Enabled:   true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	feed := connectors.NewStaticPriceFeed()
	submitter := &recordingSubmitter{}
	positions := repository.NewPositionRepository().WithDB(db)
	service := NewService(positions, feed, feed, submitter)

	return service, db, account, feed, submitter
}

func openPositionWithExit(t *testing.T, db *gorm.DB, account *model.ExchangeAccount, state model.RiskExitState) *model.Position {
	t.Helper()
	p := &model.Position{
		ExchangeAccountID: account.ID,
		Symbol:            "BTCUSDT",
		TradeMode:         account.TradeMode,
		PriceOpen:         dec("100"),
		QtyTotal:          dec("2"),
		QtyRemaining:      dec("2"),
		Status:            model.PositionStatusOpen,
		RiskExit:          state,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
	return p
}

func TestTickTriggersStopLossOnce(t *testing.T) {
	service, db, account, feed, submitter := newServiceFixture(t)
	ctx := context.Background()

	position := openPositionWithExit(t, db, account, model.RiskExitState{
		SLEnabled: true,
		SLPct:     dec("2"),
	})
	feed.Set("BTCUSDT", dec("97"))

	if err := service.Tick(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := submitter.triggers[position.ID]; len(got) != 1 || got[0] != string(TriggerSL) {
		t.Fatalf("expected one SL trigger, got %v", got)
	}

	// The triggered flag persisted before the handoff: the next tick is silent
	// even though the submitter left the position open.
	if err := service.Tick(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := submitter.triggers[position.ID]; len(got) != 1 {
		t.Fatalf("expected no re-fire, got %v", got)
	}

	var stored model.Position
	if err := db.First(&stored, position.ID).Error; err != nil {
		t.Fatalf("failed to load position: %v", err)
	}
	if !stored.RiskExit.SLTriggered {
		t.Fatalf("expected persisted SL trigger")
	}
}

func TestTickPersistsTrailingBookkeeping(t *testing.T) {
	service, db, account, feed, _ := newServiceFixture(t)
	ctx := context.Background()

	position := openPositionWithExit(t, db, account, model.RiskExitState{
		TSGEnabled:       true,
		TSGActivationPct: dec("2"),
		TSGDropPct:       dec("1"),
	})

	feed.Set("BTCUSDT", dec("103"))
	if err := service.Tick(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored model.Position
	if err := db.First(&stored, position.ID).Error; err != nil {
		t.Fatalf("failed to load position: %v", err)
	}
	if !stored.RiskExit.TSGActivated {
		t.Fatalf("expected trailing activation persisted")
	}
	if !stored.RiskExit.PeakPrice.Equal(dec("103")) {
		t.Fatalf("expected peak 103, got %s", stored.RiskExit.PeakPrice)
	}

	// Next tick evaluates from the stored peak.
	feed.Set("BTCUSDT", dec("101.9"))
	submitter := service.submitter.(*recordingSubmitter)
	if err := service.Tick(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := submitter.triggers[position.ID]; len(got) != 1 || got[0] != string(TriggerTSG) {
		t.Fatalf("expected TSG trigger, got %v", got)
	}
}

func TestTickIsolatesFeedFailures(t *testing.T) {
	service, db, account, feed, submitter := newServiceFixture(t)
	ctx := context.Background()

	// BTC has no price in the feed; ETH does and must still be evaluated.
	openPositionWithExit(t, db, account, model.RiskExitState{
		SLEnabled: true,
		SLPct:     dec("2"),
	})

	eth := &model.Position{
		ExchangeAccountID: account.ID,
		Symbol:            "ETHUSDT",
		TradeMode:         account.TradeMode,
		PriceOpen:         dec("2000"),
		QtyTotal:          dec("1"),
		QtyRemaining:      dec("1"),
		Status:            model.PositionStatusOpen,
		RiskExit: model.RiskExitState{
			SLEnabled: true,
			SLPct:     dec("2"),
		},
	}
	if err := db.Create(eth).Error; err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
	feed.Set("ETHUSDT", dec("1900"))

	err := service.Tick(ctx)
	if err == nil {
		t.Fatalf("expected the missing-price error to surface")
	}
	if got := submitter.triggers[eth.ID]; len(got) != 1 || got[0] != string(TriggerSL) {
		t.Fatalf("expected ETH still evaluated, got %v", got)
	}
}
