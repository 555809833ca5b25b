package writer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pwriter "github.com/xitongsys/parquet-go/writer"

	"quoteflow/models"
)

// PullRecord is the parquet row layout of the pull log archive.
type PullRecord struct {
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Provider  string  `parquet:"name=provider, type=BYTE_ARRAY, convertedtype=UTF8"`
	OK        bool    `parquet:"name=ok, type=BOOLEAN"`
	LatencyMS float64 `parquet:"name=latency_ms, type=DOUBLE"`
	Note      string  `parquet:"name=note, type=BYTE_ARRAY, convertedtype=UTF8"`
	WrittenAt int64   `parquet:"name=written_at, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory
// writing, so the encoded bytes can go to a local file or straight to S3.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; report the current end of buffer.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// EncodePullsParquet serializes the pull log into a Parquet byte buffer with
// snappy compression.
func EncodePullsParquet(entries []models.PullLogEntry) ([]byte, error) {
	mf := newMemoryFileWriter()
	pw, err := pwriter.NewParquetWriter(mf, new(PullRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	now := time.Now().UnixMilli()
	for _, e := range entries {
		rec := PullRecord{
			Symbol:    e.Symbol,
			Provider:  e.Provider,
			OK:        e.OK,
			LatencyMS: float64(e.Latency.Nanoseconds()) / 1e6,
			Note:      e.Note,
			WrittenAt: now,
		}
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mf.Bytes(), nil
}

// WritePullsParquet writes the Parquet archive to a local file.
func WritePullsParquet(path string, entries []models.PullLogEntry) error {
	data, err := EncodePullsParquet(entries)
	if err != nil {
		return err
	}
	f, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	return nil
}
