// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libsalespilot.so (Android) / salespilot.framework (iOS)
package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	gosync "sync"

	"github.com/salespilot/core/internal/db"
	"github.com/salespilot/core/internal/logging"
	"github.com/salespilot/core/internal/remote"
	syncengine "github.com/salespilot/core/internal/sync"
)

var (
	once     gosync.Once
	database *db.DB
	engine   *syncengine.Engine
	lastErr  string
	lastMu   gosync.RWMutex
)

//export Init
// Init initializes the SalesPilot sync core. The host app passes the data
// directory and remote API coordinates it resolved natively.
func Init(dataDir, remoteURL, apiKey *C.char) {
	once.Do(func() {
		logging.Init(os.Stdout, logging.LevelInfo)

		var err error
		database, err = db.Open(C.GoString(dataDir))
		if err != nil {
			setLastError(fmt.Sprintf("Failed to open database: %v", err))
			return
		}

		store := db.NewStore(database)
		if err := store.Init(); err != nil {
			setLastError(fmt.Sprintf("Failed to initialize storage: %v", err))
			return
		}

		client := remote.NewClient(&remote.Config{
			BaseURL: C.GoString(remoteURL),
			APIKey:  C.GoString(apiKey),
		})

		engine = syncengine.New(syncengine.Config{
			Storage:   store,
			Handlers:  syncengine.DefaultHandlers(client),
			Conflicts: store,
		})
	})
}

//export Cleanup
// Cleanup tears down background sync and closes the database.
func Cleanup() {
	if engine != nil {
		engine.StopPeriodicSync()
	}
	if database != nil {
		database.Close()
	}
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
