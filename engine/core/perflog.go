package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const perfLogHeader = "sep=,\ntotal,fps\n"

// PerfLog writes one "microseconds,fps" line per frame.
type PerfLog struct {
	RunID uuid.UUID

	w      *bufio.Writer
	closer io.Closer
}

// OpenPerfLog truncates path and writes the header.
func OpenPerfLog(path string) (*PerfLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating perf log %s", path)
	}
	p, err := NewPerfLog(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	p.closer = f
	LogInfo("perf log %s opened for run %s", path, p.RunID)
	return p, nil
}

func NewPerfLog(w io.Writer) (*PerfLog, error) {
	p := &PerfLog{
		RunID: uuid.New(),
		w:     bufio.NewWriter(w),
	}
	if _, err := p.w.WriteString(perfLogHeader); err != nil {
		return nil, errors.Wrap(err, "writing perf log header")
	}
	return p, nil
}

// Record appends the frame time. A zero duration is logged with 0 fps.
func (p *PerfLog) Record(frame time.Duration) error {
	us := frame.Microseconds()
	var fps float64
	if us > 0 {
		fps = 1e6 / float64(us)
	}
	if _, err := fmt.Fprintf(p.w, "%d,%.2f\n", us, fps); err != nil {
		return errors.Wrap(err, "writing perf log")
	}
	return nil
}

func (p *PerfLog) Flush() error {
	return p.w.Flush()
}

func (p *PerfLog) Close() error {
	if err := p.w.Flush(); err != nil {
		return err
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
