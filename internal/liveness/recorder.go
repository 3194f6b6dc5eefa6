// Package liveness maintains one plain-text status file per worker slot so
// external health probes can see what each slot is doing. Writes are best
// effort: failures are logged and never surface to the caller.
package liveness

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/seantiz/inductor/internal/model"
)

const (
	filePrefix = "state-"
	idleMarker = "idle"
)

// Recorder writes per-slot liveness records under a data directory.
type Recorder struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder writing to dir on fs.
func NewRecorder(fs afero.Fs, dir string, logger *slog.Logger) *Recorder {
	return &Recorder{
		fs:     fs,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the liveness file for a slot.
func (r *Recorder) Path(slot string) string {
	return filepath.Join(r.dir, filePrefix+slot)
}

// MarkBusy records that slot is processing req:
// "<epoch-ms> <class>::<action> <nsPath>".
func (r *Recorder) MarkBusy(slot string, req model.Request) {
	r.write(slot, BusyRecord(r.now(), req))
}

// MarkIdle records that slot is not processing anything: "idle\n<epoch-ms>".
func (r *Recorder) MarkIdle(slot string) {
	r.write(slot, IdleRecord(r.now()))
}

// BusyRecord formats the busy record for req at t.
func BusyRecord(t time.Time, req model.Request) string {
	return fmt.Sprintf("%d %s::%s %s", t.UnixMilli(), req.ClassName(), req.Action(), req.NsPath())
}

// IdleRecord formats the idle record at t.
func IdleRecord(t time.Time) string {
	return idleMarker + "\n" + strconv.FormatInt(t.UnixMilli(), 10)
}

// write replaces the slot file atomically: content goes to a temp file in the
// same directory which is then renamed over the record.
func (r *Recorder) write(slot, content string) {
	path := r.Path(slot)
	if err := r.replace(path, content); err != nil {
		r.logger.Error("could not write liveness file", "path", path, "slot", slot, "error", err)
		return
	}
	r.logger.Debug("liveness file written", "path", path, "slot", slot)
}

func (r *Recorder) replace(path, content string) error {
	tmp, err := afero.TempFile(r.fs, r.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", model.ErrLivenessWrite, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		r.fs.Remove(tmpName)
		return fmt.Errorf("%w: write: %v", model.ErrLivenessWrite, err)
	}
	if err := tmp.Close(); err != nil {
		r.fs.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", model.ErrLivenessWrite, err)
	}
	if err := r.fs.Rename(tmpName, path); err != nil {
		r.fs.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", model.ErrLivenessWrite, err)
	}
	return nil
}
