package scanner

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type ChannelMapRow struct {
	ChannelID int    `db:"ChannelID"`
	Type      string `db:"Type"`
	Subtype   string `db:"Subtype"`
	Location  int    `db:"Location"`
	Args      string `db:"Args"` // space separated
	IsStart   bool   `db:"IsStart"`
}

// LoadChannelMapFromDB reads the channel map valid for a run.
func LoadChannelMapFromDB(db *sqlx.DB, runNumber int) (*ChannelMap, error) {
	query := "SELECT ChannelID, Type, Subtype, Location, Args, IsStart FROM ChannelMap WHERE MinRun <= %d and MaxRun >= %d ORDER BY ChannelID"
	query = fmt.Sprintf(query, runNumber, runNumber)

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading channel map for run %d from database", runNumber)
		logger.Info(message, "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, &ConfigError{Resource: "channel map", Err: errMessage}
	}
	defer rows.Close()

	entries := make([]MapEntry, 0)
	for rows.Next() {
		result := ChannelMapRow{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, &ConfigError{Resource: "channel map", Err: errMessage}
		}
		args, _, err := parseArgs(strings.Fields(result.Args))
		if err != nil {
			errMessage := fmt.Errorf("channel %d: %w", result.ChannelID, err)
			return nil, &ConfigError{Resource: "channel map", Err: errMessage}
		}
		entries = append(entries, MapEntry{
			ID:       ChannelID(result.ChannelID),
			Type:     result.Type,
			Subtype:  result.Subtype,
			Location: result.Location,
			Args:     args,
			IsStart:  result.IsStart,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &ConfigError{Resource: "channel map", Err: err}
	}
	if len(entries) == 0 {
		errMessage := fmt.Errorf("no channels defined for run %d", runNumber)
		return nil, &ConfigError{Resource: "channel map", Err: errMessage}
	}

	chMap, err := NewChannelMap(entries)
	if err != nil {
		return nil, &ConfigError{Resource: "channel map", Err: err}
	}
	return chMap, nil
}

// formatArgs is the inverse of the Args column parsing.
func formatArgs(args []float64) string {
	fields := make([]string, len(args))
	for i, arg := range args {
		fields[i] = strconv.FormatFloat(arg, 'g', -1, 64)
	}
	return strings.Join(fields, " ")
}

// StoreChannelMap writes a channel map valid for runs [minRun, maxRun].
// The table must exist.
func StoreChannelMap(db *sqlx.DB, chMap *ChannelMap, minRun int, maxRun int) error {
	query := db.Rebind("INSERT INTO ChannelMap (ChannelID, Type, Subtype, Location, Args, IsStart, MinRun, MaxRun) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	for _, entry := range chMap.Entries() {
		_, err := tx.Exec(query, int(entry.ID), entry.Type, entry.Subtype, entry.Location,
			formatArgs(entry.Args), entry.IsStart, minRun, maxRun)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting channel %d: %w", entry.ID, err)
		}
	}
	return tx.Commit()
}
