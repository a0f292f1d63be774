package heartbeat

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/hbsc/internal/errors"
)

var (
	baseColumns = []string{
		"HB", "Tag", "Work", "Start_Time", "End_Time",
		"Global_Perf", "Window_Perf", "Instant_Perf",
	}
	accuracyColumns = []string{
		"Accuracy", "Global_Accuracy_Rate", "Window_Accuracy_Rate", "Instant_Accuracy_Rate",
	}
	powerColumns = []string{
		"Start_Energy", "End_Energy", "Global_Power", "Window_Power", "Instant_Power",
	}
)

// Columns returns the log columns written for kind.
func Columns(kind Kind) []string {
	cols := append([]string(nil), baseColumns...)
	if kind.TracksAccuracy() {
		cols = append(cols, accuracyColumns...)
	}
	if kind.TracksEnergy() {
		cols = append(cols, powerColumns...)
	}
	return cols
}

// WriteHeader writes the tab separated column header for kind.
func WriteHeader(w io.Writer, kind Kind) error {
	errFactory := errors.New()

	if w == nil {
		return errFactory.New(ErrNoLog)
	}
	if _, err := io.WriteString(w, strings.Join(Columns(kind), "\t")+"\n"); err != nil {
		return errFactory.Wrap(ErrLogWrite, err)
	}
	return nil
}

func writeRecords(w io.Writer, kind Kind, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	for i := range records {
		formatRecord(bw, kind, &records[i])
	}
	if err := bw.Flush(); err != nil {
		return errors.New().Wrap(ErrLogWrite, err)
	}
	return nil
}

func formatRecord(w *bufio.Writer, kind Kind, r *Record) {
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.6f\t%.6f\t%.6f",
		r.ID, r.UserTag, r.Work, r.StartTime, r.EndTime,
		r.Perf.Global, r.Perf.Window, r.Perf.Instant)

	if kind.TracksAccuracy() {
		fmt.Fprintf(w, "\t%d\t%.6f\t%.6f\t%.6f",
			r.Accuracy, r.AccuracyRate.Global, r.AccuracyRate.Window, r.AccuracyRate.Instant)
	}
	if kind.TracksEnergy() {
		fmt.Fprintf(w, "\t%d\t%d\t%.6f\t%.6f\t%.6f",
			r.StartEnergy, r.EndEnergy, r.Power.Global, r.Power.Window, r.Power.Instant)
	}

	w.WriteByte('\n')
}
