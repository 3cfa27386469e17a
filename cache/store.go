package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/callummance/koala/guildmodels"
	"github.com/callummance/koala/rfr"
	"github.com/sirupsen/logrus"
)

//DefaultTTL bounds how long an entry can outlive a write made by another process
const DefaultTTL = 10 * time.Minute

const keyPrefix string = "koala:rfr:"

//Store is a read-through cache in front of another store. Reads of managed messages, bindings and
//required roles are served from the backend when possible; every write goes to the underlying store
//and then invalidates the affected keys. A failing backend only costs a trip to the store.
type Store struct {
	next    rfr.Store
	backend Backend
	ttl     time.Duration
}

//New wraps next with a cache kept in backend
func New(next rfr.Store, backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{next: next, backend: backend, ttl: ttl}
}

func messageKey(guildID, channelID, messageID string) string {
	return fmt.Sprintf("%vmsg:%v:%v:%v", keyPrefix, guildID, channelID, messageID)
}

func bindingsKey(groupID string) string {
	return keyPrefix + "bindings:" + groupID
}

func requiredKey(guildID string) string {
	return keyPrefix + "required:" + guildID
}

func boundKey(guildID string) string {
	return keyPrefix + "bound:" + guildID
}

//readThrough serves key from the backend, or loads it from the store and remembers the result.
//The key's generation is read before loading so that a write which invalidates the key mid-load
//keeps the loaded value out of the cache.
func readThrough[T any](ctx context.Context, s *Store, key string, load func() (T, error)) (T, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		logrus.Warnf("Cache read of %v failed, falling back to the store: %v", key, err)
	} else if ok {
		var cached T
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		logrus.Warnf("Discarding undecodable cache entry %v", key)
	}

	gen, genErr := s.backend.Generation(ctx, key)
	val, err := load()
	if err != nil {
		return val, err
	}
	if genErr != nil {
		logrus.Warnf("Not caching %v as its generation could not be read: %v", key, genErr)
		return val, nil
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		logrus.Warnf("Failed to encode %v for the cache: %v", key, err)
		return val, nil
	}
	stored, err := s.backend.SetIfGeneration(ctx, key, string(encoded), gen, s.ttl)
	if err != nil {
		logrus.Warnf("Cache write of %v failed: %v", key, err)
	} else if !stored {
		logrus.Debugf("Dropped stale load of %v", key)
	}
	return val, nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if err := s.backend.Invalidate(ctx, keys...); err != nil {
		logrus.Errorf("Failed to invalidate cache keys %v: %v", keys, err)
	}
}

//CreateManagedMessage stores msg and drops any cached "not managed" answer for it
func (s *Store) CreateManagedMessage(ctx context.Context, msg guildmodels.ManagedMessage) (*guildmodels.ManagedMessage, error) {
	res, err := s.next.CreateManagedMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, messageKey(res.GuildID, res.ChannelID, res.MessageID))
	return res, nil
}

//GetManagedMessage is cached, including the nil result for messages which are not managed
func (s *Store) GetManagedMessage(ctx context.Context, guildID, channelID, messageID string) (*guildmodels.ManagedMessage, error) {
	return readThrough(ctx, s, messageKey(guildID, channelID, messageID), func() (*guildmodels.ManagedMessage, error) {
		return s.next.GetManagedMessage(ctx, guildID, channelID, messageID)
	})
}

//GetManagedMessageByGroup is not cached
func (s *Store) GetManagedMessageByGroup(ctx context.Context, groupID string) (*guildmodels.ManagedMessage, error) {
	return s.next.GetManagedMessageByGroup(ctx, groupID)
}

//ListManagedMessages is not cached
func (s *Store) ListManagedMessages(ctx context.Context, guildID string) ([]guildmodels.ManagedMessage, error) {
	return s.next.ListManagedMessages(ctx, guildID)
}

func (s *Store) UpdateManagedMessage(ctx context.Context, groupID, title, description string) error {
	if err := s.next.UpdateManagedMessage(ctx, groupID, title, description); err != nil {
		return err
	}
	msg, err := s.next.GetManagedMessageByGroup(ctx, groupID)
	if err != nil || msg == nil {
		logrus.Warnf("Could not look up group %v to invalidate its cache entry: %v", groupID, err)
		return nil
	}
	s.invalidate(ctx, messageKey(msg.GuildID, msg.ChannelID, msg.MessageID))
	return nil
}

func (s *Store) DeleteManagedMessage(ctx context.Context, guildID, channelID, messageID string) error {
	msg, err := s.next.GetManagedMessage(ctx, guildID, channelID, messageID)
	if err != nil {
		return err
	}
	if err := s.next.DeleteManagedMessage(ctx, guildID, channelID, messageID); err != nil {
		return err
	}
	keys := []string{messageKey(guildID, channelID, messageID), boundKey(guildID)}
	if msg != nil {
		keys = append(keys, bindingsKey(msg.GroupID))
	}
	s.invalidate(ctx, keys...)
	return nil
}

func (s *Store) AddBinding(ctx context.Context, groupID, emojiKey, roleID string) error {
	if err := s.next.AddBinding(ctx, groupID, emojiKey, roleID); err != nil {
		return err
	}
	s.invalidateGroup(ctx, groupID)
	return nil
}

func (s *Store) RemoveBinding(ctx context.Context, groupID, emojiKey, roleID string) (int64, error) {
	n, err := s.next.RemoveBinding(ctx, groupID, emojiKey, roleID)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.invalidateGroup(ctx, groupID)
	}
	return n, nil
}

func (s *Store) invalidateGroup(ctx context.Context, groupID string) {
	keys := []string{bindingsKey(groupID)}
	msg, err := s.next.GetManagedMessageByGroup(ctx, groupID)
	if err != nil {
		logrus.Warnf("Could not look up group %v to invalidate its guild: %v", groupID, err)
	} else if msg != nil {
		keys = append(keys, boundKey(msg.GuildID))
	}
	s.invalidate(ctx, keys...)
}

func (s *Store) GetBindings(ctx context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error) {
	return readThrough(ctx, s, bindingsKey(groupID), func() ([]guildmodels.EmojiRoleBinding, error) {
		return s.next.GetBindings(ctx, groupID)
	})
}

func (s *Store) ListGuildRolesBound(ctx context.Context, guildID string) ([]string, error) {
	return readThrough(ctx, s, boundKey(guildID), func() ([]string, error) {
		return s.next.ListGuildRolesBound(ctx, guildID)
	})
}

func (s *Store) AddRequiredRole(ctx context.Context, guildID, roleID string) error {
	if err := s.next.AddRequiredRole(ctx, guildID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, requiredKey(guildID))
	return nil
}

func (s *Store) RemoveRequiredRole(ctx context.Context, guildID, roleID string) error {
	if err := s.next.RemoveRequiredRole(ctx, guildID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, requiredKey(guildID))
	return nil
}

func (s *Store) ListRequiredRoles(ctx context.Context, guildID string) ([]string, error) {
	return readThrough(ctx, s, requiredKey(guildID), func() ([]string, error) {
		return s.next.ListRequiredRoles(ctx, guildID)
	})
}

func (s *Store) SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error {
	if err := s.next.SetRequiredRoles(ctx, guildID, roleIDs); err != nil {
		return err
	}
	s.invalidate(ctx, requiredKey(guildID))
	return nil
}
