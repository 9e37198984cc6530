// Package inmemdb provides in-memory repository implementations used by
// tests and local development.
package inmemdb

import (
	"sync"

	"github.com/makena/hesabu/core/activity"
	"github.com/makena/hesabu/core/payment"
	"github.com/makena/hesabu/core/progress"
	"github.com/makena/hesabu/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	paymentTable struct {
		mutex sync.RWMutex
		table map[string]*payment.Payment
	}

	progressTable struct {
		mutex sync.RWMutex
		table map[string]*progress.Progress
	}

	activityTable struct {
		mutex sync.RWMutex
		table []activity.Entry
	}

	DB struct {
		user     *userTable
		payment  *paymentTable
		progress *progressTable
		activity *activityTable
	}
)

func NewDB() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		payment:  &paymentTable{table: make(map[string]*payment.Payment)},
		progress: &progressTable{table: make(map[string]*progress.Progress)},
		activity: &activityTable{},
	}
}
