package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/warp/routine-tracker/routine"
)

// ToCSV writes one row per reported day of snap.
func ToCSV(w io.Writer, snap routine.ProgressSnapshot) error {
	cw := csv.NewWriter(w)

	// Header
	if err := cw.Write([]string{"Day", "Weekday", "Due", "Status", "Completion", "Period"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, d := range snap.Days {
		period := ""
		if d.Period != nil {
			period = strconv.FormatInt(int64(*d.Period), 10)
		}
		row := []string{
			d.Day.String(),
			d.Day.Weekday().String()[:3],
			strconv.FormatBool(d.Due),
			string(d.Status),
			string(d.Completion),
			period,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
