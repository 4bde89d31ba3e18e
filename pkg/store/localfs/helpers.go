package localfs

import (
	"fmt"

	"github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// mapError translates badger errors into the status taxonomy
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return status.ErrNotFound.Wrapf("%s", what)
	case errors.Is(err, badger.ErrConflict):
		return status.ErrConflict.Wrap(err)
	default:
		return status.ErrEngine.Wrap(err)
	}
}

func refValue(txn *badger.Txn, key []byte, what string) (model.SnapshotID, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", mapError(err, what)
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", mapError(err, what)
	}
	return model.SnapshotID(v), nil
}

func snapshotValue(txn *badger.Txn, id model.SnapshotID) (*model.Snapshot, error) {
	what := fmt.Sprintf("snapshot %q", id)
	item, err := txn.Get(snapshotKey(id))
	if err != nil {
		return nil, mapError(err, what)
	}

	var result model.Snapshot
	err = item.Value(func(data []byte) error {
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, status.ErrEngine.Wrapf("json unmarshal failed for %s: %w", what, err)
	}
	return &result, nil
}

// badgerLogger routes badger logs to zap
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(f string, args ...interface{})   { b.l.Errorf(f, args...) }
func (b badgerLogger) Warningf(f string, args ...interface{}) { b.l.Warnf(f, args...) }
func (b badgerLogger) Infof(f string, args ...interface{})    { b.l.Debugf(f, args...) }
func (b badgerLogger) Debugf(f string, args ...interface{})   { b.l.Debugf(f, args...) }
