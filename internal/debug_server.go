package internal

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectPrefix = "user:"

type InspectRow struct {
	Key       string          `json:"key"`
	Namespace string          `json:"namespace"`
	Size      int             `json:"size"`
	Value     json.RawMessage `json:"value,omitempty"`
}

type StatsProvider func() map[string]any

type PageData struct {
	Prefix string         `json:"prefix"`
	Items  []InspectRow   `json:"items"`
	Stats  map[string]any `json:"stats"`
}

// NewDebugHandler serves the badger entries under ?prefix= as JSON on /inspect.
// Values that are not JSON are only reported by size.
func NewDebugHandler(db *badger.DB, stats StatsProvider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultInspectPrefix
		}

		data := PageData{Prefix: prefix, Items: []InspectRow{}, Stats: map[string]any{}}
		if stats != nil {
			data.Stats = stats()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, toInspectRow(string(item.Key()), val))
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(data)
	})
	return mux
}

func toInspectRow(key string, val []byte) InspectRow {
	namespace, _, _ := strings.Cut(key, ":")
	row := InspectRow{Key: key, Namespace: namespace, Size: len(val)}
	if json.Valid(val) {
		row.Value = append(json.RawMessage(nil), val...)
	}
	return row
}

// StartDebugServer listens on port until ctx is done. A zero port disables it.
func StartDebugServer(ctx context.Context, log *slog.Logger, db *badger.DB, port int, stats StatsProvider) {
	if port == 0 {
		return
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", port),
		Handler:           NewDebugHandler(db, stats),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Debug server started", "url", fmt.Sprintf("http://%s/inspect?prefix=%s", server.Addr, defaultInspectPrefix))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
