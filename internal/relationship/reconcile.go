package relationship

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/models"
)

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	Scanned    int
	Approved   int
	Downgraded int
	Removed    int
	Matched    int
}

// Repaired is the number of repairs made by the pass
func (r ReconcileReport) Repaired() int {
	return r.Approved + r.Downgraded + r.Removed + r.Matched
}

// Reconciler repairs friendships left asymmetric by interrupted or racing
// writes. For every approved friend edge A→B it checks B→A:
//   - pending: B→A is approved, both sides asked for the friendship
//   - missing: A→B goes back to pending so B can accept again
//   - a block: A→B is removed
//
// Pending requests crossing each other (A→B and B→A both pending) become a
// friendship. Every repair re-reads both edges inside a transaction and only
// writes through conditional updates, so a block set meanwhile is never
// overwritten.
type Reconciler struct {
	store     Store
	logger    *zap.Logger
	batchSize int
	now       func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store, batchSize int, logger *zap.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Reconciler{
		store:     store,
		logger:    logger,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run scans every approved friend edge, then every pending one, once
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if err := r.scan(ctx, models.RelStatusApproved, &report, r.repairApproved); err != nil {
		return report, err
	}
	if err := r.scan(ctx, models.RelStatusPending, &report, r.repairPending); err != nil {
		return report, err
	}

	r.logger.Info("Reconciliation finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("approved", report.Approved),
		zap.Int("downgraded", report.Downgraded),
		zap.Int("removed", report.Removed),
		zap.Int("matched", report.Matched))

	return report, nil
}

type repairFunc func(ctx context.Context, edge *models.Relationship, report *ReconcileReport) error

func (r *Reconciler) scan(ctx context.Context, status int16, report *ReconcileReport, repair repairFunc) error {
	var afterFrom, afterTo int64

	for {
		edges, err := r.store.ScanFriends(ctx, status, afterFrom, afterTo, r.batchSize)
		if err != nil {
			return fmt.Errorf("failed to scan friend edges: %w", err)
		}

		for _, edge := range edges {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Scanned++
			if err := repair(ctx, edge, report); err != nil {
				return err
			}
		}

		if len(edges) < r.batchSize {
			return nil
		}
		last := edges[len(edges)-1]
		afterFrom, afterTo = last.FromUserID, last.ToUserID
	}
}

type repairAction int

const (
	repairNone repairAction = iota
	repairApprove
	repairDowngrade
	repairRemove
	repairMatch
)

func (r *Reconciler) repairApproved(ctx context.Context, edge *models.Relationship, report *ReconcileReport) error {
	from, to := edge.FromUserID, edge.ToUserID
	action := repairNone

	err := r.store.Tx(ctx, func(tx Store) error {
		forward, err := tx.Get(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to load friend edge: %w", err)
		}
		if !forward.IsFriend() || !forward.IsApproved() {
			// changed since the scan
			return nil
		}
		reverse, err := tx.Get(ctx, to, from)
		if err != nil {
			return fmt.Errorf("failed to load reverse edge: %w", err)
		}

		var ok bool
		switch {
		case reverse == nil:
			ok, err = tx.Downgrade(ctx, from, to)
			action = repairDowngrade
		case reverse.IsBlock():
			err = tx.Delete(ctx, from, to, models.RelTypeFriend)
			ok, action = err == nil, repairRemove
		case !reverse.IsApproved():
			ok, err = tx.Approve(ctx, to, from, r.now())
			action = repairApprove
		}
		if err != nil {
			return fmt.Errorf("failed to repair friend edge: %w", err)
		}
		if !ok {
			action = repairNone
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.record(action, from, to, report)
	return nil
}

func (r *Reconciler) repairPending(ctx context.Context, edge *models.Relationship, report *ReconcileReport) error {
	from, to := edge.FromUserID, edge.ToUserID
	action := repairNone

	err := r.store.Tx(ctx, func(tx Store) error {
		matched, err := matchRequests(ctx, tx, from, to, r.now())
		if matched {
			action = repairMatch
		}
		return err
	})
	if err != nil {
		return err
	}

	r.record(action, from, to, report)
	return nil
}

func (r *Reconciler) record(action repairAction, from, to int64, report *ReconcileReport) {
	fields := []zap.Field{
		zap.Int64("from", from),
		zap.Int64("to", to),
	}

	switch action {
	case repairApprove:
		report.Approved++
		r.logger.Warn("Approved pending reverse edge", fields...)
	case repairDowngrade:
		report.Downgraded++
		r.logger.Warn("Downgraded orphan friend edge", fields...)
	case repairRemove:
		report.Removed++
		r.logger.Warn("Removed friend edge facing a block", fields...)
	case repairMatch:
		report.Matched++
		r.logger.Warn("Matched crossed friend requests", fields...)
	}
}
