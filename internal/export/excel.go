package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	reservationsSheet = "Reservations"
	summarySheet      = "Summary"
	cellTimeLayout    = "2006-01-02 15:04"
)

var columns = []string{"ID", "Facility", "Owner", "Owner ID", "Start", "End", "Hours", "Status", "Cost", "Purpose"}

var statusColors = map[models.Status]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusConfirmed: "#E2EFDA",
	models.StatusCancelled: "#F8CBAD",
	models.StatusCompleted: "#DDEBF7",
}

// ReservationLister is the read side the exporter needs.
type ReservationLister interface {
	ListInRange(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)
}

type Exporter struct {
	lister ReservationLister
	dir    string
	logger *zerolog.Logger
}

func NewExporter(lister ReservationLister, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{lister: lister, dir: dir, logger: logger}
}

// Export writes reservations fully inside [from, to] to an xlsx file and
// returns its path.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	reservations, err := e.lister.ListInRange(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list reservations: %w", err)
	}

	f, err := Build(reservations, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("reservations_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(reservations)).Msg("Excel file created")
	return filePath, nil
}

// Build renders the workbook in memory.
func Build(reservations []*models.Reservation, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := writeReservations(f, reservations, from, to); err != nil {
		return nil, err
	}
	if err := writeSummary(f, reservations); err != nil {
		return nil, err
	}
	return f, nil
}

func writeReservations(f *excelize.File, reservations []*models.Reservation, from, to time.Time) error {
	_ = f.SetCellValue(reservationsSheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("2006-01-02"), to.Format("2006-01-02")))
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.MergeCell(reservationsSheet, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(reservationsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err := f.SetSheetRow(reservationsSheet, "A2", &columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_ = f.SetCellStyle(reservationsSheet, "A2", lastCol+"2", headerStyle)

	statusStyles := make(map[models.Status]int, len(statusColors))
	for status, color := range statusColors {
		id, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		statusStyles[status] = id
	}

	for i, r := range reservations {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		cost, _ := r.TotalCost.Float64()
		values := []any{
			r.ID,
			r.FacilityName,
			r.OwnerName,
			r.OwnerID,
			r.StartTime.Format(cellTimeLayout),
			r.EndTime.Format(cellTimeLayout),
			r.Duration().Hours(),
			r.Status.String(),
			cost,
			r.Purpose,
		}
		if err := f.SetSheetRow(reservationsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}

		statusCell, _ := excelize.CoordinatesToCellName(8, row)
		if style, ok := statusStyles[r.Status]; ok {
			_ = f.SetCellStyle(reservationsSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "A", 8)
	_ = f.SetColWidth(reservationsSheet, "B", "D", 22)
	_ = f.SetColWidth(reservationsSheet, "E", "F", 18)
	_ = f.SetColWidth(reservationsSheet, "J", "J", 40)
	return nil
}

type facilitySummary struct {
	name    string
	count   int
	hours   float64
	revenue decimal.Decimal
}

// writeSummary totals reservations per facility; cancelled ones add no revenue.
func writeSummary(f *excelize.File, reservations []*models.Reservation) error {
	byFacility := make(map[int64]*facilitySummary)
	for _, r := range reservations {
		s, ok := byFacility[r.FacilityID]
		if !ok {
			s = &facilitySummary{name: r.FacilityName}
			byFacility[r.FacilityID] = s
		}
		s.count++
		if r.Status == models.StatusCancelled {
			continue
		}
		s.hours += r.Duration().Hours()
		s.revenue = s.revenue.Add(r.TotalCost)
	}

	ids := make([]int64, 0, len(byFacility))
	for id := range byFacility {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	header := []any{"Facility", "Reservations", "Booked hours", "Revenue"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	for i, id := range ids {
		s := byFacility[id]
		revenue, _ := s.revenue.Float64()
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{s.name, s.count, s.hours, revenue}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 25)
	return nil
}
