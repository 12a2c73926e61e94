// Package repository holds the MySQL-backed stores. Errors shared by the
// stores are defined here so services can tell failure scenarios apart.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no row matches the lookup in the requested
// scope, or when a mutation affected no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update hits the unique
// index on users.email.
var ErrEmailExists = errors.New("email already exists")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
