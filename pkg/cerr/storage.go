package cerr

import (
	"errors"

	"github.com/agentdeck/agentdeck/pkg/storage"
)

// storageError maps a storage failure onto the transport taxonomy: a
// missing key is the client's NotFound, anything else stays internal.
func storageError(op, target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, target+" not found", err)
	}
	return Newf(Internal, "server error", "failed to %s %s: %w", op, target, err)
}

func WrapStorageReadError(target string, err error) error {
	return storageError("read", target, err)
}

// WrapStorageWriteError never maps to NotFound: a failed write is the
// server's problem whatever the cause.
func WrapStorageWriteError(target string, err error) error {
	return Newf(Internal, "server error", "failed to write %s: %w", target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return storageError("delete", target, err)
}
