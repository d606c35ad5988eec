package model

import "time"

// Filing records one archived receipt, the durable trace of a
// completed workflow run.
type Filing struct {
	ID           string    `db:"id"`
	UID          uint32    `db:"uid"`
	Folder       string    `db:"folder"`
	MessageID    string    `db:"message_id"`
	Vendor       string    `db:"vendor"`
	Date         string    `db:"date"`
	Currency     string    `db:"currency"`
	Amount       string    `db:"amount"`
	Category     string    `db:"category"`
	ArchivedPath string    `db:"archived_path"`
	FiledAt      time.Time `db:"filed_at"`
}
