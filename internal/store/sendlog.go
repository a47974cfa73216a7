package store

import (
	"database/sql"
	"time"
)

// InsertSendLog records an accepted send job.
func (db *DB) InsertSendLog(jobID, convKey string, ref uint64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO send_log (job_id, conv_key, ref, outcome, created_at)
		VALUES (?, ?, ?, 'accepted', ?)`,
		jobID, convKey, ref, now)
	return err
}

// FinishSendLog records a job's final outcome.
func (db *DB) FinishSendLog(jobID, outcome, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE send_log SET outcome = ?, error = ?, finished_at = ?
		WHERE job_id = ?`,
		outcome, errMsg, now, jobID)
	return err
}

// SendLogForJob returns the log entry for one job, or nil if absent.
func (db *DB) SendLogForJob(jobID string) (*SendLogEntry, error) {
	var e SendLogEntry
	err := db.QueryRow(`
		SELECT id, job_id, conv_key, ref, outcome, error, created_at, finished_at
		FROM send_log WHERE job_id = ?`, jobID).
		Scan(&e.ID, &e.JobID, &e.ConvKey, &e.Ref, &e.Outcome, &e.Error, &e.CreatedAt, &e.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
