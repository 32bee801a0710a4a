// Package report writes the outputs of a pipeline run: a text summary,
// CSV series for the ranking and the spectrum, the full JSON report and an
// XLSX workbook with the same tables.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"rfpca/internal/ml"
	"rfpca/internal/pipeline"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Output file names inside the report directory.
const (
	SummaryFile  = "summary.txt"
	RankingCSV   = "ranking.csv"
	RankingJSON  = "ranking.json"
	SpectrumCSV  = "spectrum.csv"
	ReportJSON   = "report.json"
	WorkbookFile = "report.xlsx"
)

// Reporter generates run reports
type Reporter struct {
	result     *pipeline.Result
	outputPath string
	topN       int
}

// NewReporter creates a reporter writing into outputPath. topN bounds the
// ranking shown in the text summary; the CSV, JSON and XLSX outputs carry
// the full ranking.
func NewReporter(result *pipeline.Result, outputPath string, topN int) *Reporter {
	return &Reporter{
		result:     result,
		outputPath: outputPath,
		topN:       topN,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []func() error{
		r.generateSummary,
		r.generateRanking,
		r.generateSpectrum,
		r.generateJSONReport,
		r.generateWorkbook,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// JSON returns the indented JSON report, as stored with each run.
func JSON(result *pipeline.Result) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.WriteSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// WriteSummary writes the human-readable summary to w.
func (r *Reporter) WriteSummary(w io.Writer) {
	res := r.result

	fmt.Fprintf(w, "FEATURE SIGNIFICANCE SUMMARY\n")
	fmt.Fprintf(w, "============================\n\n")
	fmt.Fprintf(w, "Run: %s\n", res.RunID)
	fmt.Fprintf(w, "Started: %s\n", res.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Seed: %d\n", res.Seed)
	fmt.Fprintf(w, "Input: %d rows x %d features\n", res.Rows, res.Features)
	fmt.Fprintf(w, "Partition: %d train / %d test real rows\n", res.TrainRows, res.TestRows)
	if len(res.Dropped) > 0 {
		fmt.Fprintf(w, "Dropped columns: %v\n", res.Dropped)
	}

	fmt.Fprintf(w, "\nFOREST\n")
	fmt.Fprintf(w, "------\n")
	if res.Evaluation.OOBDefined() {
		fmt.Fprintf(w, "OOB accuracy: %.4f\n", res.Evaluation.OOBAccuracy)
	} else {
		fmt.Fprintf(w, "OOB accuracy: undefined\n")
	}
	fmt.Fprintf(w, "Test AUC: %.4f\n", res.Evaluation.TestAUC)

	top := ml.TopN(res.Ranking, r.topN)
	fmt.Fprintf(w, "\nTOP %d FEATURES (%s importance)\n", len(top), res.Strategy)
	fmt.Fprintf(w, "--------------------------------\n")
	for i, f := range top {
		fmt.Fprintf(w, "%3d. %-40s %10.6f +/- %.6f\n", i+1, f.Name, f.Mean, f.Std)
	}

	if p := res.Profile; p != nil {
		fmt.Fprintf(w, "\nSPECTRUM (%s solver, %d features)\n", p.Solver, len(p.Features))
		fmt.Fprintf(w, "--------------------------------\n")
		fmt.Fprintf(w, "%4s %12s %10s %10s %12s\n", "rank", "eigenvalue", "ratio", "cumulative", "broken_stick")
		for i := range p.Eigenvalues {
			fmt.Fprintf(w, "%4d %12.6f %10.6f %10.6f %12.6f\n",
				i+1, p.Eigenvalues[i], p.Ratios[i], p.Cumulative[i], p.BrokenStick[i])
		}
	}

	th := res.Thresholds
	fmt.Fprintf(w, "\nSIGNIFICANT COMPONENTS\n")
	fmt.Fprintf(w, "----------------------\n")
	if th.TargetReached {
		fmt.Fprintf(w, "Cumulative variance >= %.2f: %d components\n", th.VarianceTarget, th.CumulativeCount)
	} else {
		fmt.Fprintf(w, "Cumulative variance >= %.2f: not reached, capped at %d components\n", th.VarianceTarget, th.CumulativeCount)
	}
	if th.FirstBelowNull > 0 {
		fmt.Fprintf(w, "Below broken-stick null at ranks: %v (first: %d)\n", th.BelowNull, th.FirstBelowNull)
	} else {
		fmt.Fprintf(w, "Below broken-stick null at ranks: none\n")
	}
}

func (r *Reporter) generateRanking() error {
	csvPath := filepath.Join(r.outputPath, RankingCSV)
	if err := writeCSV(csvPath, r.rankingRows()); err != nil {
		return fmt.Errorf("failed to write ranking: %w", err)
	}
	if err := ml.SaveRanking(filepath.Join(r.outputPath, RankingJSON), r.result.Ranking); err != nil {
		return fmt.Errorf("failed to write ranking: %w", err)
	}

	log.Info().Str("file", csvPath).Int("features", len(r.result.Ranking)).Msg("Ranking report generated")
	return nil
}

func (r *Reporter) generateSpectrum() error {
	csvPath := filepath.Join(r.outputPath, SpectrumCSV)
	if err := writeCSV(csvPath, r.spectrumRows()); err != nil {
		return fmt.Errorf("failed to write spectrum: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Spectrum report generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, ReportJSON)

	data, err := JSON(r.result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) generateWorkbook() error {
	xlsxPath := filepath.Join(r.outputPath, WorkbookFile)

	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name string
		rows [][]string
	}{
		{"Ranking", r.rankingRows()},
		{"Spectrum", r.spectrumRows()},
		{"Thresholds", r.thresholdRows()},
	}
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet.name, err)
		}
		for j, row := range sheet.rows {
			cell, err := excelize.CoordinatesToCellName(1, j+1)
			if err != nil {
				return err
			}
			values := make([]interface{}, len(row))
			for k, v := range row {
				values[k] = cellValue(v, j == 0)
			}
			if err := f.SetSheetRow(sheet.name, cell, &values); err != nil {
				return fmt.Errorf("failed to write sheet %s: %w", sheet.name, err)
			}
		}
	}

	if err := f.SaveAs(xlsxPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	log.Info().Str("file", xlsxPath).Msg("Workbook generated")
	return nil
}

// cellValue stores numeric text as a number so spreadsheets can plot it.
func cellValue(s string, header bool) interface{} {
	if header {
		return s
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func (r *Reporter) rankingRows() [][]string {
	rows := [][]string{{"rank", "feature", "mean", "std"}}
	for i, f := range r.result.Ranking {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			f.Name,
			formatFloat(f.Mean),
			formatFloat(f.Std),
		})
	}
	return rows
}

func (r *Reporter) spectrumRows() [][]string {
	rows := [][]string{{"rank", "eigenvalue", "ratio", "cumulative", "broken_stick"}}
	p := r.result.Profile
	if p == nil {
		return rows
	}
	for i := range p.Eigenvalues {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			formatFloat(p.Eigenvalues[i]),
			formatFloat(p.Ratios[i]),
			formatFloat(p.Cumulative[i]),
			formatFloat(p.BrokenStick[i]),
		})
	}
	return rows
}

func (r *Reporter) thresholdRows() [][]string {
	th := r.result.Thresholds
	rows := [][]string{
		{"threshold", "value"},
		{"variance_target", formatFloat(th.VarianceTarget)},
		{"cumulative_count", strconv.Itoa(th.CumulativeCount)},
		{"target_reached", strconv.FormatBool(th.TargetReached)},
		{"first_below_null", strconv.Itoa(th.FirstBelowNull)},
	}
	for _, rank := range th.BelowNull {
		rows = append(rows, []string{"below_null_rank", strconv.Itoa(rank)})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}
