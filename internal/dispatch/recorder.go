package dispatch

import (
	"context"

	"reminderd/internal/delivery"
	"reminderd/internal/domain"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// record writes the terminal status and the event aggregate.
// It runs even if ctx was canceled mid-dispatch, so a claimed obligation
// never stays in sending because of a client disconnect.
func (o *Orchestrator) record(ctx context.Context, ob domain.Obligation, out obligationOutcome) (domain.Status, error) {
	ctx = context.WithoutCancel(ctx)
	status := out.status()
	err := o.store.Finish(ctx, ob.ID, storage.Outcome{
		Status:          status,
		RecipientsCount: out.Recipients,
		SentCount:       out.Sent,
		FailedCount:     out.Failed,
		ErrorDetails:    out.Details,
	}, o.now().UTC())
	if err != nil {
		o.log.Error("obligation finish failed", logx.Obligation(ob.ID), logx.Err(err))
		return status, err
	}
	if out.Sent > 0 {
		if err := o.store.IncrementNotificationsSent(ctx, ob.EventID, out.Sent); err != nil {
			o.log.Warn("event counter update failed", logx.Event(ob.EventID), logx.Err(err))
		}
	}
	o.metrics.Obligation(string(status))
	return status, nil
}

// recordUsage appends one usage log for a successful integration batch.
// Batches with no delivered message are not logged.
func (o *Orchestrator) recordUsage(ctx context.Context, rt route, op string, res delivery.Result) {
	if rt.integ == nil || res.Success <= 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := o.store.RecordIntegrationUsage(ctx, domain.UsageLog{
		ID:              o.newID(),
		IntegrationID:   rt.integ.ID,
		Operation:       op,
		RecipientsCount: res.Success + res.Failure,
		SuccessCount:    res.Success,
		FailureCount:    res.Failure,
		EstimatedCost:   res.EstimatedCost,
		CreatedAt:       o.now().UTC(),
	})
	if err != nil {
		o.log.Warn("integration usage not recorded",
			logx.String("integration", rt.integ.ID),
			logx.String("op", op),
			logx.Err(err),
		)
		return
	}
	o.metrics.IntegrationBatch(string(rt.integ.ServiceType))
}
