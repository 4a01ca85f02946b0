// Package backend resolves the storage engine the Kore node runs on. The engines themselves live inside the node;
// the gateway only decides, once per process, which one the node is expected to use and refuses to start on an
// ambiguous selection. The dispatch path never branches on the resolved engine.
package backend

import (
	"github.com/pkg/errors"

	"github.com/kore-ledger/kore-gateway/lib/config"
)

// Engine identifies one of the mutually exclusive node storage engines.
type Engine string

// Supported engines.
const (
	LevelDB Engine = "leveldb"
	Sqlite  Engine = "sqlite"
	RocksDB Engine = "rocksdb"
)

// Selection is the resolved storage engine plus its options, fixed for the lifetime of the process.
type Selection struct {
	Engine Engine
	Path   string
}

// Errors returned by Resolve.
var (
	ErrNoEngine       = errors.New("no storage engine configured: exactly one of leveldb, sqlite or rocksdb is required")
	ErrMultipleEngine = errors.New("multiple storage engines configured: engines are mutually exclusive")
)

// Resolve validates the storage section of the configuration and returns the single selected engine. It is called
// once at startup, before any listener binds; a selection error is fatal to the process.
func Resolve(sc config.StorageConfig) (Selection, error) {
	var sel []Selection

	if sc.LevelDB != nil {
		sel = append(sel, Selection{Engine: LevelDB, Path: sc.LevelDB.Path})
	}
	if sc.Sqlite != nil {
		sel = append(sel, Selection{Engine: Sqlite, Path: sc.Sqlite.Path})
	}
	if sc.RocksDB != nil {
		sel = append(sel, Selection{Engine: RocksDB, Path: sc.RocksDB.Path})
	}

	switch len(sel) {
	case 0:
		return Selection{}, ErrNoEngine
	case 1:
		return sel[0], nil
	default:
		return Selection{}, ErrMultipleEngine
	}
}
