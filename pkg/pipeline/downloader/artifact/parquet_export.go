package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	storageAdapter "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// parquetRecord is the flat schema used for exported artifacts. The payload
// columns vary per data type, so they travel as one JSON column.
type parquetRecord struct {
	StoreCode string `parquet:"name=store_code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SKU       string `parquet:"name=sku, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	PeriodTag string `parquet:"name=period, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Payload   string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetExporter publishes final artifacts as Parquet files to a configured
// storage destination.
type ParquetExporter struct {
	storage storageAdapter.Adapter
}

// NewParquetExporter wraps the storage destination for parquet uploads.
func NewParquetExporter(storage storageAdapter.Adapter) *ParquetExporter {
	return &ParquetExporter{storage: storage}
}

// Export encodes the dataset as a Parquet file in memory and uploads it to
// <periodLabel>/<type>.parquet in the destination's default bucket. Empty
// datasets are skipped.
func (e *ParquetExporter) Export(ctx context.Context, periodLabel string, dataset *record.Dataset) (err error) {
	if dataset == nil || dataset.Len() == 0 {
		return nil
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(parquetRecord), 1)
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to create parquet writer", err, false, false)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range dataset.Rows {
		payload, marshalErr := json.Marshal(row.Values)
		if marshalErr != nil {
			return exception.NewPipelineError(componentName, "failed to encode parquet payload", marshalErr, false, false)
		}
		if writeErr := pw.Write(parquetRecord{
			StoreCode: row.StoreCode,
			SKU:       row.SKU,
			PeriodTag: row.PeriodTag,
			Payload:   string(payload),
		}); writeErr != nil {
			return exception.NewPipelineError(componentName, "failed to write parquet row", writeErr, false, false)
		}
	}

	// The parquet library panics on some malformed schema conditions; convert
	// that to an error instead of taking down the run.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = exception.Errorf(componentName, "parquet writer panicked during finalize: %v", r)
			}
		}()
		if stopErr := pw.WriteStop(); stopErr != nil {
			err = exception.NewPipelineError(componentName, "failed to finalize parquet file", stopErr, false, false)
		}
	}()
	if err != nil {
		return err
	}

	objectName := fmt.Sprintf("%s/%s.parquet", periodLabel, dataset.Type)
	if uploadErr := e.storage.Upload(ctx, "", objectName, buf, "application/octet-stream"); uploadErr != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to upload parquet artifact %q", objectName), uploadErr, true, false)
	}
	logger.Infof("Exported %s parquet artifact for period '%s' (%d row(s)).", dataset.Type, periodLabel, dataset.Len())
	return nil
}
