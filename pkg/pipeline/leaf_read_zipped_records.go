package pipeline

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// zippedRecordsEntry is the name of the single archive member
// ReadZippedRecords expects to find inside the zip file: a sequence of
// (uint32 length, tape-encoded record) pairs, the minimal self-describing
// framing needed for a genuinely restartable, byte-offset checkpointed
// leaf.
const zippedRecordsEntry = "records.bin"

// ReadZippedRecords streams records out of the records.bin member of a zip
// archive. Its checkpoint is the byte offset of the next record.
func ReadZippedRecords(path string) Builder {
	return newRootBuilder("read_zipped_records", model.RootStepType, func(env *buildEnv, info *model.StepInfo) (Source, error) {
		data, err := loadZippedRecords(path)
		if err != nil {
			return nil, err
		}
		return &readZippedRecordsSource{
			opBase: opBase{env: env, info: info},
			data:   data,
		}, nil
	})
}

func loadZippedRecords(path string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read_zipped_records: unable to open %s", path)
	}
	defer zr.Close()

	f, err := zr.Open(zippedRecordsEntry)
	if err != nil {
		return nil, errors.Wrapf(err, "read_zipped_records: missing %s entry", zippedRecordsEntry)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read_zipped_records: unable to read %s", zippedRecordsEntry)
	}
	return data, nil
}

// WriteZippedRecords writes a records.bin-framed zip archive at path,
// suitable for ReadZippedRecords to consume. It exists so callers (and this
// module's tests) can produce fixtures without depending on an external
// tokenisation tool, which is out of scope for this module.
func WriteZippedRecords(path string, values []record.Value) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "write_zipped_records: unable to create %s", path)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(zippedRecordsEntry)
	if err != nil {
		return errors.Wrap(err, "write_zipped_records: unable to create archive member")
	}

	for _, v := range values {
		tp := tape.New()
		tp.WriteRecord(v)
		body := tp.Bytes()

		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return errors.Wrap(err, "write_zipped_records: unable to write length prefix")
		}
		if _, err := w.Write(body); err != nil {
			return errors.Wrap(err, "write_zipped_records: unable to write record body")
		}
	}

	return zw.Close()
}

type readZippedRecordsSource struct {
	opBase
	data   []byte
	offset int
}

func (s *readZippedRecordsSource) Next(_ context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.offset >= len(s.data) {
			return record.Value{}, false, nil
		}
		if s.offset+4 > len(s.data) {
			return record.Value{}, false, wrapStageErr("read_zipped_records", errors.New("truncated length prefix"))
		}
		n := binary.BigEndian.Uint32(s.data[s.offset : s.offset+4])
		start := s.offset + 4
		end := start + int(n)
		if end > len(s.data) {
			return record.Value{}, false, wrapStageErr("read_zipped_records", errors.New("truncated record body"))
		}

		tp := tape.FromBytes(s.data[start:end])
		v, err := tp.ReadRecord()
		if err != nil {
			return record.Value{}, false, wrapStageErr("read_zipped_records", err)
		}
		s.offset = end
		return v, true, nil
	})
}

func (s *readZippedRecordsSource) Reset() error {
	s.offset = 0
	return nil
}

func (s *readZippedRecordsSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagReadZippedRecords)
	tape.WritePrimitive[int64](t, int64(s.offset))
	return nil
}

func (s *readZippedRecordsSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagReadZippedRecords); err != nil {
		return err
	}
	offset, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if offset < 0 || int(offset) > len(s.data) {
		return ErrCorruptedCheckpoint
	}
	s.offset = int(offset)
	return nil
}
