// Package review loads conflation output into a PostGIS table so it can be
// inspected in a GIS client before editing
package review

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/wegman-software/osmconflate/internal/proj"
)

// Settings describe the review database
type Settings struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Schema   string
	SRID     int
}

// DefaultSettings returns settings for a local PostGIS
func DefaultSettings() Settings {
	return Settings{
		Host:     "localhost",
		Port:     5432,
		Database: "osm",
		User:     "postgres",
		Schema:   "public",
		SRID:     proj.SRID4326,
	}
}

// SettingsFromEnv overlays PG* variables on the defaults. The env file is
// loaded first when present; variables already set win over the file.
func SettingsFromEnv(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	s := DefaultSettings()
	setString(&s.Host, "PGHOST")
	setString(&s.Database, "PGDATABASE")
	setString(&s.User, "PGUSER")
	setString(&s.Password, "PGPASSWORD")
	setString(&s.Schema, "REVIEW_SCHEMA")

	if v := os.Getenv("PGPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return Settings{}, fmt.Errorf("invalid PGPORT %q", v)
		}
		s.Port = port
	}
	if v := os.Getenv("REVIEW_SRID"); v != "" {
		srid, err := proj.ParseSRID(v)
		if err != nil {
			return Settings{}, err
		}
		s.SRID = srid
	}
	return s, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ConnectionString returns a PostgreSQL connection string
func (s Settings) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		s.Host, s.Port, s.Database, s.User,
	)
	if s.Password != "" {
		connStr += fmt.Sprintf(" password=%s", s.Password)
	}
	return connStr
}
