package controllers

import (
	"sync/atomic"
	"time"

	"traceback/models"
	"traceback/utils/logging"
)

const (
	// retentionWindow is how long an unresolved install record may live.
	retentionWindow = 30 * time.Minute

	// sweepBatchLimit caps one sweep's deletions. Keep well below bulk-delete
	// limits of the backing store.
	sweepBatchLimit = 100

	// sweepEvery throttles on-write sweeps to every Nth accepted write.
	sweepEvery = 10
)

// cleanupCount is process-wide and only approximately accurate under
// concurrency: two racing writes may both (or neither) trigger a sweep. An
// occasional double or skipped sweep is harmless, so no stronger coordination
// is used.
var cleanupCount atomic.Uint64

// maybeSweepOldInstalls runs an actual sweep on every Nth accepted
// pre-install write, so cleanup cost stays bounded under high write volume.
// Never blocks or fails the write that triggered it.
func (s *Server) maybeSweepOldInstalls() {
	if cleanupCount.Add(1)%sweepEvery != 0 {
		return
	}
	s.SweepOldInstalls()
}

// SweepOldInstalls deletes a capped batch of install records older than the
// retention window. Failures are logged and otherwise ignored.
func (s *Server) SweepOldInstalls() {
	if err := s.deleteOldInstalls(retentionWindow); err != nil {
		logging.Default().Error("failed to delete old installs during this sweep", "error", err)
	}
}

func (s *Server) deleteOldInstalls(age time.Duration) error {
	cutoff := time.Now().Add(-age)

	ids, err := (&models.InstallRecord{}).FindStaleInstallIDs(s.DB, cutoff, sweepBatchLimit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	deleted, err := (&models.InstallRecord{}).DeleteInstallRecords(s.DB, ids)
	if err != nil {
		return err
	}

	retentionSweeps.Inc()
	retentionSweptRecords.Add(float64(deleted))
	logging.Default().Info("retention sweep removed stale install records", "deleted", deleted)
	return nil
}
