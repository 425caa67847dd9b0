package sqlite_test

import (
	"testing"

	"github.com/habitkeep/habitkeep/internal/db/testdb"
	"github.com/habitkeep/habitkeep/internal/store/sqlite"
	"github.com/habitkeep/habitkeep/internal/store/storetest"
)

func Test_Store_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return sqlite.New(testdb.RunWhile(t, true))
	})
}
