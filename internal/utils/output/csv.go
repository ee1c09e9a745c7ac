package output

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/law-makers/linkmeta/pkg/models"
)

var reportHeader = []string{"url", "rule", "tag", "title", "properties", "tag_id", "duration_ms", "error"}

// SaveCSV writes a batch report to a CSV file, one row per input URL
func SaveCSV(results []models.BatchResult, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(reportHeader); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{r.URL, "", "", "", "0", "", "0", r.Error}
		if x := r.Extraction; x != nil {
			row[1] = x.Rule
			row[2] = x.Tag
			row[3] = models.Summarize(x.Properties).Title
			row[4] = strconv.Itoa(len(x.Properties))
			row[5] = x.TagID
			row[6] = strconv.FormatInt(x.DurationMs, 10)
			if row[7] == "" {
				row[7] = x.ScriptError
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
