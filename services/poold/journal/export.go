package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pool       string `parquet:"name=pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	PrevHash   string `parquet:"name=prev_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Hash       string `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Export writes every entry after afterSeq to a Snappy-compressed Parquet
// file under dir and returns its path and the number of rows written.
func (j *Journal) Export(ctx context.Context, dir string, afterSeq uint64) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("journal: create export dir: %w", err)
	}
	head, _ := j.Head()
	path := filepath.Join(dir, fmt.Sprintf("journal-%020d-%020d.parquet", afterSeq+1, head))
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return "", 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	cursor := afterSeq
	for cursor < head {
		page, err := j.List(ctx, Query{AfterSeq: cursor, Limit: maxPageSize})
		if err != nil {
			pw.WriteStop()
			file.Close()
			return "", 0, err
		}
		progressed := false
		for _, entry := range page {
			if entry.Seq > head {
				break
			}
			row := &parquetRow{
				ID:         entry.ID.String(),
				Seq:        int64(entry.Seq),
				Type:       entry.Type,
				Pool:       entry.Pool,
				Attributes: entry.Attributes,
				PrevHash:   entry.PrevHash,
				Hash:       entry.Hash,
				CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return "", 0, fmt.Errorf("journal: parquet write: %w", err)
			}
			written++
			cursor = entry.Seq
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return "", 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", 0, fmt.Errorf("journal: close parquet file: %w", err)
	}
	j.logger.Info("journal exported", "path", path, "rows", written)
	return path, written, nil
}
