package queue

import (
	"database/sql"
)

// JobScanArgs holds the nullable columns needed when scanning a job row.
type JobScanArgs struct {
	Payload   sql.NullString
	LastError sql.NullString
}

// GetJobScanArgs returns a JobScanArgs struct ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns scan destinations for the job and scan args,
// in the order produced by StandardJobSelectColumns.
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.Type,
		&args.Payload,
		&job.Status,
		&job.ScheduledFor,
		&job.Attempts,
		&job.MaxAttempts,
		&args.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs copies the scanned nullable columns into the job struct.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) {
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.LastError.Valid {
		job.LastError = args.LastError.String
	}
}

// ScanJobFromRow scans a single job from a sql.Row
func ScanJobFromRow(row *sql.Row, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	ProcessJobScanArgs(job, args)
	return nil
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	ProcessJobScanArgs(job, args)
	return nil
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, type, payload, status, scheduled_for,
		attempts, max_attempts, last_error,
		created_at, updated_at`
}
