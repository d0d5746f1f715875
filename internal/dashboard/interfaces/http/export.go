package dashhttp

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"citysense-cloud/internal/dashboard/domain"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ReadingsReport is the material for one tenant fleet report.
type ReadingsReport struct {
	Overview domain.TenantOverview
	Sensors  []domain.SensorHealth
}

func formatLastSeen(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(exportTimeLayout)
}

// BuildReadingsCSV renders the fleet report as CSV.
func BuildReadingsCSV(report ReadingsReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{
		"sensor_id",
		"external_id",
		"protocol",
		"status",
		"last_seen",
		"readings_24h",
		"avg_quality",
	})
	for _, sensor := range report.Sensors {
		_ = writer.Write([]string{
			sensor.SensorID,
			sensor.ExternalID,
			sensor.Protocol,
			string(sensor.Status),
			formatLastSeen(sensor.LastSeenAt),
			fmt.Sprintf("%d", sensor.ReadingsLast24h),
			fmt.Sprintf("%.4f", sensor.AvgQuality),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsXLSX renders the fleet report as XLSX.
func BuildReadingsXLSX(report ReadingsReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	sensorsSheet := "sensors"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(sensorsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Sensor Fleet Report")
	_ = f.SetCellValue(summarySheet, "A3", "Tenant")
	_ = f.SetCellValue(summarySheet, "B3", report.Overview.TenantID)
	_ = f.SetCellValue(summarySheet, "A4", "Sensors")
	_ = f.SetCellValue(summarySheet, "B4", report.Overview.SensorCount)
	_ = f.SetCellValue(summarySheet, "A5", "Active Sensors")
	_ = f.SetCellValue(summarySheet, "B5", report.Overview.ActiveSensors)
	_ = f.SetCellValue(summarySheet, "A6", "Readings (24h)")
	_ = f.SetCellValue(summarySheet, "B6", report.Overview.ReadingsLast24h)
	_ = f.SetCellValue(summarySheet, "A7", "Avg Quality")
	_ = f.SetCellValue(summarySheet, "B7", report.Overview.AvgQuality)
	_ = f.SetCellValue(summarySheet, "A8", "Generated")
	_ = f.SetCellValue(summarySheet, "B8", report.Overview.GeneratedAt.Format(exportTimeLayout))

	_ = f.SetCellValue(sensorsSheet, "A1", "Sensor ID")
	_ = f.SetCellValue(sensorsSheet, "B1", "External ID")
	_ = f.SetCellValue(sensorsSheet, "C1", "Protocol")
	_ = f.SetCellValue(sensorsSheet, "D1", "Status")
	_ = f.SetCellValue(sensorsSheet, "E1", "Last Seen")
	_ = f.SetCellValue(sensorsSheet, "F1", "Readings (24h)")
	_ = f.SetCellValue(sensorsSheet, "G1", "Avg Quality")
	for i, sensor := range report.Sensors {
		row := i + 2
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("A%d", row), sensor.SensorID)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("B%d", row), sensor.ExternalID)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("C%d", row), sensor.Protocol)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("D%d", row), string(sensor.Status))
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("E%d", row), formatLastSeen(sensor.LastSeenAt))
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("F%d", row), sensor.ReadingsLast24h)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("G%d", row), sensor.AvgQuality)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsPDF renders the fleet report as PDF.
func BuildReadingsPDF(report ReadingsReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sensor Fleet Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tenant: %s", report.Overview.TenantID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sensors: %d (%d active)", report.Overview.SensorCount, report.Overview.ActiveSensors))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings (24h): %d", report.Overview.ReadingsLast24h))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Avg Quality: %.4f", report.Overview.AvgQuality))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.Overview.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "External ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Protocol", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Readings 24h", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Avg Quality", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, sensor := range report.Sensors {
		pdf.CellFormat(45, 6, sensor.ExternalID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, sensor.Protocol, "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, string(sensor.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, formatLastSeen(sensor.LastSeenAt), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", sensor.ReadingsLast24h), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", sensor.AvgQuality), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
