package document

import (
	"fmt"
	"io"
	"time"

	"itinera/internal/models"

	"github.com/xuri/excelize/v2"
)

const dashboardSheet = "Itineraries"

var dashboardHeaders = []string{
	"Title", "Destination", "Start", "End", "Duration", "Travelers",
	"Budget", "Theme", "Status", "Pending comments", "Created", "Share token",
}

// statusFills цвета статусов в выгрузке
var statusFills = map[string]string{
	models.StatusDraft:     "#F2F2F2",
	models.StatusShared:    "#DDEBF7",
	models.StatusFeedback:  "#FFEB9C",
	models.StatusApproved:  "#E2EFDA",
	models.StatusCompleted: "#C6EFCE",
}

// WriteDashboardXLSX exports the dashboard list with its counters.
func WriteDashboardXLSX(w io.Writer, items []*models.Itinerary, stats models.DashboardStats, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", dashboardSheet); err != nil {
		return fmt.Errorf("error renaming sheet: %w", err)
	}

	_ = f.SetCellValue(dashboardSheet, "A1", fmt.Sprintf("Itineraries export %s", now.Format("02.01.2006 15:04")))
	_ = f.SetCellValue(dashboardSheet, "A2", fmt.Sprintf("Total: %d  Active: %d  Feedback: %d  Completed: %d",
		stats.Total, stats.Active, stats.Feedback, stats.Completed))

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	_ = f.SetCellStyle(dashboardSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range dashboardHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(dashboardSheet, cell, h)
		_ = f.SetCellStyle(dashboardSheet, cell, cell, headerStyle)
	}

	styles := make(map[string]int, len(statusFills))
	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[status] = id
	}

	for i, it := range items {
		row := i + 5
		values := []interface{}{
			it.Title, it.Destination, it.StartDate, it.EndDate, it.Duration, it.Travelers,
			it.Budget, it.Theme, it.Status, it.PendingComments(), it.CreatedAt.Format("02.01.2006"), it.ShareToken,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(dashboardSheet, cell, v)
		}
		if id, ok := styles[it.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(dashboardSheet, cell, cell, id)
		}
	}

	_ = f.SetColWidth(dashboardSheet, "A", "A", 35)
	_ = f.SetColWidth(dashboardSheet, "B", "B", 20)
	_ = f.SetColWidth(dashboardSheet, "C", "L", 14)
	_ = f.SetPanes(dashboardSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      4,
		TopLeftCell: "A5",
		ActivePane:  "bottomLeft",
	})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing xlsx: %w", err)
	}
	return nil
}
