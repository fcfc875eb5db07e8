package repositoryimpl

import (
	"context"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/agentdeck/agentdeck/internal/pushsubscription"
	"github.com/agentdeck/agentdeck/pkg/cerr"
	"github.com/agentdeck/agentdeck/pkg/storage"
)

const keyPrefix = "push_subscriptions"

// YAMLRepository stores one YAML document per subscription under
// push_subscriptions/<id>.yaml on the configured backend.
type YAMLRepository struct {
	store storage.Storage
}

func NewYAMLRepository(store storage.Storage) *YAMLRepository {
	return &YAMLRepository{store: store}
}

func key(id string) string {
	return keyPrefix + "/" + id + ".yaml"
}

func (r *YAMLRepository) Create(ctx context.Context, s *pushsubscription.Subscription) error {
	exists, err := r.store.Exists(ctx, key(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("push_subscription", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "push subscription already exists", nil)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.Newf(cerr.Internal, "server error", "failed to marshal push subscription: %w", err)
	}
	if err := r.store.Write(ctx, key(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("push_subscription", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*pushsubscription.Subscription, error) {
	data, err := r.store.Read(ctx, key(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("push_subscription", err)
	}
	return decode(data)
}

// List returns every readable subscription, oldest first.
func (r *YAMLRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	var subs []*pushsubscription.Subscription
	err := r.scan(ctx, func(s *pushsubscription.Subscription) bool {
		subs = append(subs, s)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, key(id)); err != nil {
		return cerr.WrapStorageDeleteError("push_subscription", err)
	}
	return nil
}

func (r *YAMLRepository) FindByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	var found *pushsubscription.Subscription
	err := r.scan(ctx, func(s *pushsubscription.Subscription) bool {
		if s.Endpoint == endpoint {
			found = s
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return found, nil
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	s, err := r.FindByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	return r.Delete(ctx, s.ID)
}

// scan walks the stored documents in key order, calling visit for each
// one that decodes. Unreadable or malformed entries are skipped rather
// than failing the whole walk. visit returning false stops the scan.
func (r *YAMLRepository) scan(ctx context.Context, visit func(*pushsubscription.Subscription) bool) error {
	keys, err := r.store.List(ctx, keyPrefix)
	if err != nil {
		return cerr.WrapStorageReadError("push_subscriptions", err)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data, err := r.store.Read(ctx, k)
		if err != nil {
			continue
		}
		s, err := decode(data)
		if err != nil {
			continue
		}
		if !visit(s) {
			return nil
		}
	}
	return nil
}

func decode(data []byte) (*pushsubscription.Subscription, error) {
	var s pushsubscription.Subscription
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.Newf(cerr.Internal, "server error", "failed to decode push subscription: %w", err)
	}
	return &s, nil
}
