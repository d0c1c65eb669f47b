package protection

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/apiguard/pkg/constants"
	"github.com/turtacn/apiguard/pkg/errors"
	"github.com/turtacn/apiguard/pkg/logger"
)

// Blocklist holds explicitly blocked IPs and users. Entries may carry a TTL
// after which they expire on their own; blocking an already-blocked identifier
// with a new TTL replaces the old expiry rather than stacking. Backed by a
// TTL cache per set, so expiry needs no per-entry timers and unblocking an
// entry simply deletes it.
type Blocklist struct {
	ips    *gocache.Cache
	users  *gocache.Cache
	logger logger.Logger
}

// blocklistSweepInterval is how often expired entries are physically removed.
// Expiry itself is enforced on every lookup, so this only bounds memory.
const blocklistSweepInterval = time.Minute

// NewBlocklist creates an empty blocklist registry.
func NewBlocklist(log logger.Logger) *Blocklist {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	return &Blocklist{
		ips:    gocache.New(gocache.NoExpiration, blocklistSweepInterval),
		users:  gocache.New(gocache.NoExpiration, blocklistSweepInterval),
		logger: log.WithComponent("blocklist"),
	}
}

// Block adds the identifier to the selected set. A positive ttl makes the entry
// self-remove after it elapses; zero or negative ttl blocks permanently.
func (b *Blocklist) Block(blockType constants.BlockType, identifier string, ttl time.Duration) error {
	if identifier == "" {
		return errors.ErrEmptyIdentifier()
	}
	set, err := b.set(blockType)
	if err != nil {
		return err
	}

	expiry := gocache.NoExpiration
	if ttl > 0 {
		expiry = ttl
	}
	set.Set(identifier, time.Now(), expiry)

	b.logger.Info(context.Background(), "Identifier blocked",
		logger.String("block_type", string(blockType)),
		logger.String("identifier", identifier),
		logger.Bool("permanent", ttl <= 0),
	)
	return nil
}

// Unblock removes the identifier immediately, cancelling any pending expiry.
// No-op if the identifier is not blocked.
func (b *Blocklist) Unblock(blockType constants.BlockType, identifier string) error {
	if identifier == "" {
		return errors.ErrEmptyIdentifier()
	}
	set, err := b.set(blockType)
	if err != nil {
		return err
	}

	set.Delete(identifier)

	b.logger.Info(context.Background(), "Identifier unblocked",
		logger.String("block_type", string(blockType)),
		logger.String("identifier", identifier),
	)
	return nil
}

// IsBlocked reports whether the identifier is currently blocked. Expired
// entries report false even before the sweeper removes them.
func (b *Blocklist) IsBlocked(blockType constants.BlockType, identifier string) bool {
	set, err := b.set(blockType)
	if err != nil || identifier == "" {
		return false
	}

	_, found := set.Get(identifier)
	return found
}

// Count returns the number of unexpired entries in the selected set.
func (b *Blocklist) Count(blockType constants.BlockType) int {
	set, err := b.set(blockType)
	if err != nil {
		return 0
	}
	// Items filters expired entries; ItemCount would overcount between sweeps.
	return len(set.Items())
}

// Clear empties both sets.
func (b *Blocklist) Clear() {
	b.ips.Flush()
	b.users.Flush()
}

func (b *Blocklist) set(blockType constants.BlockType) (*gocache.Cache, error) {
	switch blockType {
	case constants.BlockTypeIP:
		return b.ips, nil
	case constants.BlockTypeUser:
		return b.users, nil
	default:
		return nil, errors.ErrUnknownBlockType(string(blockType))
	}
}
