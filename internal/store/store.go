package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/blktag/internal/blkid"
)

// timeFormat is a fixed-width RFC 3339 layout, so stored timestamps sort
// as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists a blkid cache in SQLite so that lookups after a restart
// can be answered before the first probe.
type Store struct {
	db *sql.DB
}

// New creates a store on an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save replaces the stored cache with c in a single transaction. Device
// and tag order are preserved. Nothing is written when c has no unsaved
// changes; on success the changed flag is cleared.
func (s *Store) Save(ctx context.Context, c *blkid.Cache) error {
	if c == nil {
		return blkid.ErrInvalidParam
	}
	if !c.Changed() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM block_devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	devStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO block_devices (name, priority, probed_at, position, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing device insert: %w", err)
	}
	defer devStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO block_device_tags (device_name, position, name, value, alias)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing tag insert: %w", err)
	}
	defer tagStmt.Close()

	now := time.Now().UTC().Format(timeFormat)
	for i, d := range c.Snapshot() {
		var probedAt sql.NullString
		if !d.ProbedAt.IsZero() {
			probedAt = sql.NullString{String: d.ProbedAt.UTC().Format(timeFormat), Valid: true}
		}
		if _, err := devStmt.ExecContext(ctx, d.Name, d.Priority, probedAt, i, now); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.Name, err)
		}
		for j, t := range d.Tags {
			if _, err := tagStmt.ExecContext(ctx, d.Name, j, t.Name, t.Value, t.Alias); err != nil {
				return fmt.Errorf("inserting tag %s on %s: %w", t.Name, d.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache: %w", err)
	}
	c.ClearChanged()
	return nil
}

// Load builds a new cache from the stored devices. Tags are restored row
// for row, duplicates and alias targets included, so a loaded device
// matches the one that was saved. The cache is neither marked changed nor
// probed.
func (s *Store) Load(ctx context.Context, opts ...blkid.Option) (*blkid.Cache, error) {
	devices, err := s.loadDevices(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, devices); err != nil {
		return nil, err
	}

	c := blkid.NewCache(opts...)
	for _, d := range devices.order {
		if err := c.AddDevice(d); err != nil {
			return nil, fmt.Errorf("restoring device %s: %w", d.Name(), err)
		}
	}
	c.ClearChanged()
	return c, nil
}

type deviceSet struct {
	order  []*blkid.Device
	byName map[string]*blkid.Device
}

func (s *Store) loadDevices(ctx context.Context) (*deviceSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, priority, probed_at
		FROM block_devices
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	set := &deviceSet{byName: make(map[string]*blkid.Device)}
	for rows.Next() {
		var (
			name     string
			priority int
			probedAt sql.NullString
		)
		if err := rows.Scan(&name, &priority, &probedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}

		d := blkid.NewDevice(name)
		d.SetPriority(priority)
		if probedAt.Valid {
			at, err := time.Parse(timeFormat, probedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing probed_at of %s: %w", name, err)
			}
			d.SetProbedAt(at)
		}
		set.order = append(set.order, d)
		set.byName[name] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return set, nil
}

func (s *Store) loadTags(ctx context.Context, set *deviceSet) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_name, name, value, alias
		FROM block_device_tags
		ORDER BY device_name, position`)
	if err != nil {
		return fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			devname, name, value string
			alias                bool
		)
		if err := rows.Scan(&devname, &name, &value, &alias); err != nil {
			return fmt.Errorf("scanning tag: %w", err)
		}
		d := set.byName[devname]
		if d == nil {
			continue
		}
		if err := d.RestoreTag(name, value, alias); err != nil {
			return fmt.Errorf("restoring tag %s on %s: %w", name, devname, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating tags: %w", err)
	}
	return nil
}

// ListDevicesByTag returns the names of stored devices carrying name=value,
// highest priority first.
func (s *Store) ListDevicesByTag(ctx context.Context, name, value string) ([]string, error) {
	if name == "" {
		return nil, blkid.ErrInvalidParam
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT d.name, d.priority, d.position
		FROM block_device_tags t
		JOIN block_devices d ON d.name = t.device_name
		WHERE t.name = ? AND t.value = ?
		ORDER BY d.priority DESC, d.position`, name, value)
	if err != nil {
		return nil, fmt.Errorf("querying devices by tag: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			devname       string
			pri, position int
		)
		if err := rows.Scan(&devname, &pri, &position); err != nil {
			return nil, fmt.Errorf("scanning device name: %w", err)
		}
		names = append(names, devname)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device names: %w", err)
	}
	return names, nil
}
