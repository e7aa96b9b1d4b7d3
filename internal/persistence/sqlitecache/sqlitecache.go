// Package sqlitecache is the append-only sensor sample cache: one SQLite
// file per session with three tables (gps/accel/gyro), written in periodic
// since-last-save slices so the in-memory sample buffers can be cleared
// without losing data, and read back in full for the final session save.
package sqlitecache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/motiontrack/internal/sensor"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Cache wraps a per-session SQLite file holding the append-only sample
// tables.
type Cache struct {
	db *sql.DB
}

// Open creates (or reopens) the SQLite cache at path, applying pragmas and
// running embedded migrations to the latest version.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitecache: open %s: %w", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// applyPragmas sets the WAL/concurrency pragmas every session cache needs,
// regardless of whether the file already existed.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlitecache: pragma %q: %w", p, err)
		}
	}
	return nil
}

func (c *Cache) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlitecache: migrations sub-fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("sqlitecache: iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlitecache: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("sqlitecache: migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlitecache: migrate up: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[migrate] "+format, v...) }
func (l *migrateLogger) Verbose() bool                          { return false }

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// AppendGPS inserts the given GPS samples in one transaction.
func (c *Cache) AppendGPS(samples []sensor.GpsSample) error {
	if len(samples) == 0 {
		return nil
	}
	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO gps_samples (t, lat_deg, lon_deg, accuracy_m, speed_ms, provider) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range samples {
			if _, err := stmt.Exec(s.T, s.Lat, s.Lon, s.AccuracyM, s.SpeedMS, s.Provider); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendAccel inserts the given accel samples in one transaction.
func (c *Cache) AppendAccel(samples []sensor.AccelSample) error {
	if len(samples) == 0 {
		return nil
	}
	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO accel_samples (t, magnitude_ms2) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range samples {
			if _, err := stmt.Exec(s.T, s.MagnitudeMS2); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendGyro inserts the given gyro samples in one transaction.
func (c *Cache) AppendGyro(samples []sensor.GyroSample) error {
	if len(samples) == 0 {
		return nil
	}
	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO gyro_samples (t, wx, wy, wz, magnitude) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range samples {
			if _, err := stmt.Exec(s.T, s.Wx, s.Wy, s.Wz, s.Magnitude); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Cache) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitecache: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AllGPS returns every cached GPS row in insertion order, for the final
// session reconstruction.
func (c *Cache) AllGPS() ([]sensor.GpsSample, error) {
	rows, err := c.db.Query(`SELECT t, lat_deg, lon_deg, accuracy_m, speed_ms, provider FROM gps_samples ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sensor.GpsSample
	for rows.Next() {
		var s sensor.GpsSample
		if err := rows.Scan(&s.T, &s.Lat, &s.Lon, &s.AccuracyM, &s.SpeedMS, &s.Provider); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllAccel returns every cached accel row in insertion order.
func (c *Cache) AllAccel() ([]sensor.AccelSample, error) {
	rows, err := c.db.Query(`SELECT t, magnitude_ms2 FROM accel_samples ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sensor.AccelSample
	for rows.Next() {
		var s sensor.AccelSample
		if err := rows.Scan(&s.T, &s.MagnitudeMS2); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllGyro returns every cached gyro row in insertion order.
func (c *Cache) AllGyro() ([]sensor.GyroSample, error) {
	rows, err := c.db.Query(`SELECT t, wx, wy, wz, magnitude FROM gyro_samples ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sensor.GyroSample
	for rows.Next() {
		var s sensor.GyroSample
		if err := rows.Scan(&s.T, &s.Wx, &s.Wy, &s.Wz, &s.Magnitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
