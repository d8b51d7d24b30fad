package table

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/offlinefirst/mousedynamics/pkg/features"
)

// Record is the Parquet schema of one feature row.
type Record struct {
	TypeOfAction string  `parquet:"name=Type_of_action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Distance     float64 `parquet:"name=Travelled_distance_in_pixels, type=DOUBLE"`
	ElapsedTime  float64 `parquet:"name=Elapsed_time, type=DOUBLE"`
	Direction    float64 `parquet:"name=Direction_of_movement, type=DOUBLE"`
	Straightness float64 `parquet:"name=Straightness, type=DOUBLE"`
	NumPoints    int64   `parquet:"name=Num_points, type=INT64"`
	SumOfAngles  float64 `parquet:"name=Sum_of_angles, type=DOUBLE"`
	MeanCurv     float64 `parquet:"name=Mean_curv, type=DOUBLE"`
	SdCurv       float64 `parquet:"name=Sd_curv, type=DOUBLE"`
	MaxCurv      float64 `parquet:"name=Max_curv, type=DOUBLE"`
	MinCurv      float64 `parquet:"name=Min_curv, type=DOUBLE"`
	MeanOmega    float64 `parquet:"name=Mean_omega, type=DOUBLE"`
	SdOmega      float64 `parquet:"name=Sd_omega, type=DOUBLE"`
	MaxOmega     float64 `parquet:"name=Max_omega, type=DOUBLE"`
	MinOmega     float64 `parquet:"name=Min_omega, type=DOUBLE"`
	Label        *int32  `parquet:"name=label, type=INT32, repetitiontype=OPTIONAL"`
}

// NewRecord flattens a row. label is dropped unless withLabel is set.
func NewRecord(row features.Row, label *int) Record {
	rec := Record{
		TypeOfAction: string(row.Type),
		Distance:     row.Distance,
		ElapsedTime:  row.ElapsedTime,
		Direction:    row.Direction,
		Straightness: row.Straightness,
		NumPoints:    int64(row.NumPoints),
		SumOfAngles:  row.SumOfAngles,
		MeanCurv:     row.Curvature.Mean,
		SdCurv:       row.Curvature.SD,
		MaxCurv:      row.Curvature.Max,
		MinCurv:      row.Curvature.Min,
		MeanOmega:    row.Omega.Mean,
		SdOmega:      row.Omega.SD,
		MaxOmega:     row.Omega.Max,
		MinOmega:     row.Omega.Min,
	}
	if label != nil {
		v := int32(*label)
		rec.Label = &v
	}
	return rec
}

// ParquetWriter buffers rows into row groups of a local Parquet file.
type ParquetWriter struct {
	file      source.ParquetFile
	pw        *writer.ParquetWriter
	withLabel bool
}

// CreateParquet truncates path and prepares a writer.
func CreateParquet(path string, withLabel bool) (*ParquetWriter, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create feature table: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Record), 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	return &ParquetWriter{file: fw, pw: pw, withLabel: withLabel}, nil
}

// Write appends one row.
func (w *ParquetWriter) Write(row features.Row, label *int) error {
	if !w.withLabel {
		label = nil
	}
	if err := w.pw.Write(NewRecord(row, label)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Close writes the footer and closes the file.
func (w *ParquetWriter) Close() error {
	err := w.pw.WriteStop()
	if err != nil {
		err = fmt.Errorf("finish parquet file: %w", err)
	}
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close feature table: %w", cerr)
	}
	return err
}
