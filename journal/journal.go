// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// This is the job journal, which logs every transcode job run. The journal is
// a SQLite table of job records (one per run).

// job statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// a record storing all information relevant to a job run
type Record struct {
	// UUID associated with the run
	Id uuid.UUID `json:"id"`
	// the dataset processed by the run
	DataName   string `json:"data_name"`
	RawDataDir string `json:"raw_data_dir"`
	// where the run wrote its output
	Destination string `json:"destination"`
	// stages completed by the run, in order
	Stages []string `json:"stages"`
	// times at which the run started and finished
	StartTime time.Time `json:"start_time"`
	StopTime  time.Time `json:"stop_time"`
	// status of the run ("succeeded", "failed", or "canceled")
	Status string `json:"status"`
	// error message for runs that didn't succeed
	Message string `json:"message,omitempty"`
	// manifest of uploaded auxiliary files, if any (stored separate from record)
	Manifest *datapackage.Package `json:"-"`
}

// opens (creating if needed) the job journal at the given path
func Init(path string) error {
	if IsOpen() {
		return nil
	}
	openChannels()
	started := make(chan error)
	go jobJournalProcess(path, started)
	if err := <-started; err != nil {
		closeChannels()
		return err
	}
	return nil
}

// closes the job journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		err := <-channels_.Output.Error
		closeChannels()
		return err
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records a finished job run
func RecordJob(record Record) error {
	switch record.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		// pass-through (see below)
	default:
		return &NewRecordError{
			Id:      record.Id,
			Message: fmt.Sprintf("Invalid status: %s", record.Status),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// retrieves the record for the job run with the given ID
func JobRecord(id uuid.UUID) (Record, error) {
	if !IsOpen() {
		return Record{}, &NotOpenError{}
	}
	channels_.Input.FetchRecord <- id
	select {
	case records := <-channels_.Output.Records:
		return records[0], nil
	case err := <-channels_.Output.Error:
		return Record{}, err
	}
}

// retrieves records for runs that started and finished within the time range
// with the given (inclusive) bounds
func Records(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

// The journal gets its own goroutine, which owns the database connection.
// "Input" channels carry requests to the goroutine and "output" channels carry
// its responses back.

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record    // for creating new records
		CheckIfOpen  chan struct{}  // for checking to see whether the database is open
		FetchRecord  chan uuid.UUID // for fetching a single record
		FetchRecords chan TimeRange // for fetching records within a time range
		Shutdown     chan struct{}  // for shutting down the database
	}

	Output struct {
		Records chan []Record // for returning records
		Error   chan error    // for returning errors
		IsOpen  chan bool     // for answering queries about whether the database is open
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id           TEXT PRIMARY KEY,
  data_name    TEXT NOT NULL,
  raw_data_dir TEXT NOT NULL,
  destination  TEXT NOT NULL,
  stages       TEXT NOT NULL,
  start_time   INTEGER NOT NULL,
  stop_time    INTEGER NOT NULL,
  status       TEXT NOT NULL,
  message      TEXT NOT NULL,
  manifest     TEXT
);
CREATE INDEX IF NOT EXISTS jobs_by_start_time ON jobs (start_time);
`

const recordColumns = `id, data_name, raw_data_dir, destination, stages,
  start_time, stop_time, status, message, manifest`

func jobJournalProcess(path string, started chan<- error) {
	// open the database, creating the schema if necessary
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err == nil {
		err = sqlitex.ExecuteScript(conn, schema, nil)
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		started <- &CantOpenError{Path: path, Message: err.Error()}
		return
	}
	slog.Debug(fmt.Sprintf("Opened job journal at %s", path))
	started <- nil

	// handle requests
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			channels_.Output.Error <- createRecord(conn, record)

		case id := <-channels_.Input.FetchRecord:
			records, err := fetchRecords(conn, "WHERE id = ?", id.String())
			if err == nil && len(records) == 0 {
				err = &RecordNotFoundError{Id: id}
			}
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(conn,
				"WHERE start_time >= ? AND stop_time <= ? ORDER BY start_time",
				timeRange.Start.UnixNano(), timeRange.Stop.UnixNano())
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			err := conn.Close()
			if err != nil {
				err = &CantCloseError{
					Message: err.Error(),
				}
			}
			channels_.Output.Error <- err
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecord = make(chan uuid.UUID)
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecord)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func createRecord(conn *sqlite.Conn, record Record) error {
	stages, err := json.Marshal(record.Stages)
	if err != nil {
		return &NewRecordError{Id: record.Id, Message: err.Error()}
	}

	// store the manifest for runs that uploaded files
	var manifest any
	if record.Manifest != nil {
		jsonManifest, err := json.Marshal(record.Manifest.Descriptor())
		if err != nil {
			return &NewRecordError{
				Id:      record.Id,
				Message: err.Error(),
			}
		}
		manifest = string(jsonManifest)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO jobs (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.Id.String(),
				record.DataName,
				record.RawDataDir,
				record.Destination,
				string(stages),
				record.StartTime.UnixNano(),
				record.StopTime.UnixNano(),
				record.Status,
				record.Message,
				manifest,
			},
		})
	if err != nil {
		return &NewRecordError{Id: record.Id, Message: err.Error()}
	}
	return nil
}

func fetchRecords(conn *sqlite.Conn, where string, args ...any) ([]Record, error) {
	records := make([]Record, 0)
	err := sqlitex.Execute(conn, `SELECT `+recordColumns+` FROM jobs `+where,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			},
		})
	return records, err
}

func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	id, err := uuid.Parse(stmt.ColumnText(0))
	if err != nil {
		return Record{}, err
	}
	record := Record{
		Id:          id,
		DataName:    stmt.ColumnText(1),
		RawDataDir:  stmt.ColumnText(2),
		Destination: stmt.ColumnText(3),
		StartTime:   time.Unix(0, stmt.ColumnInt64(5)).UTC(),
		StopTime:    time.Unix(0, stmt.ColumnInt64(6)).UTC(),
		Status:      stmt.ColumnText(7),
		Message:     stmt.ColumnText(8),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &record.Stages); err != nil {
		return Record{}, &InvalidRecordError{Id: id, Message: err.Error()}
	}
	if m := stmt.ColumnText(9); strings.TrimSpace(m) != "" {
		record.Manifest, err = datapackage.FromString(m, "manifest.json", validator.InMemoryLoader())
		if err != nil {
			return Record{}, &InvalidRecordError{
				Id:      id,
				Message: "unable to retrieve manifest for job",
			}
		}
	}
	return record, nil
}
