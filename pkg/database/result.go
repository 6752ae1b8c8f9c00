package database

import "database/sql"

// RowsAffected returns the affected row count, treating a driver that cannot report it as zero.
func RowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
