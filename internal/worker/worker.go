package worker

import (
	"context"

	"bip-service/internal/broker"
	"bip-service/internal/service"
	"bip-service/internal/util"
)

// BipEventWorker reconciles freshly created bips against unlinked sales.
type BipEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewBipEventWorker creates a new bip event worker
func NewBipEventWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *BipEventWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnBipCreated(reconciler.HandleBipCreated)

	return &BipEventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *BipEventWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting bip event worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BipEventWorker) Stop() error {
	util.GetLogger().Info("Stopping bip event worker...")
	return w.consumer.Close()
}

// SaleWorker ingests ERP sales and cancellations.
type SaleWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewSaleWorker creates a new sale worker
func NewSaleWorker(
	consumer *broker.Consumer,
	sellService *service.SellService,
	reconciler *service.Reconciler,
) *SaleWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleRecorded(sellService.HandleSaleRecorded)
	eventHandler.OnSaleCancelled(reconciler.HandleSaleCancelled)

	return &SaleWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the sale worker
func (w *SaleWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting sale worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the sale worker
func (w *SaleWorker) Stop() error {
	util.GetLogger().Info("Stopping sale worker...")
	return w.consumer.Close()
}
