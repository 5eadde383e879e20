package services

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gosimple/unidecode"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportFormat формат выгрузки подписок
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportPDF  ExportFormat = "pdf"
)

// ContentType возвращает MIME тип выгрузки
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// FormatPrice переводит цену из минимальных единиц в строку с двумя знаками
func FormatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

var exportHeaders = []string{"ID", "Клиника", "Slug", "Тариф", "Цена/мес", "Статус", "Дней пробного", "Окончание", "Создана"}

func exportRow(row SubscriptionOverview) []interface{} {
	trialDays := ""
	if row.TrialDaysLeft != nil {
		trialDays = fmt.Sprintf("%d", *row.TrialDaysLeft)
	}
	endsAt := ""
	if row.EndsAt != nil {
		endsAt = row.EndsAt.Format("2006-01-02")
	} else if row.TrialEndsAt != nil {
		endsAt = row.TrialEndsAt.Format("2006-01-02")
	}
	price := ""
	if row.PlanName != "" {
		price = FormatPrice(row.PriceMonthly)
	}
	return []interface{}{
		row.ClinicID, row.ClinicName, row.ClinicSlug, row.PlanName, price,
		string(row.Status), trialDays, endsAt, row.CreatedAt.Format("2006-01-02"),
	}
}

// WriteSubscriptionsExport записывает сводку подписок в выбранном формате
func WriteSubscriptionsExport(w io.Writer, format ExportFormat, rows []SubscriptionOverview) error {
	switch format {
	case ExportXLSX:
		return writeSubscriptionsXLSX(w, rows)
	case ExportPDF:
		return writeSubscriptionsPDF(w, rows)
	}
	return fmt.Errorf("неподдерживаемый формат выгрузки: %s", format)
}

func writeSubscriptionsXLSX(w io.Writer, rows []SubscriptionOverview) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := "Подписки"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range exportRow(row) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	lastCell, _ := excelize.CoordinatesToCellName(len(exportHeaders), len(rows)+1)
	if err := f.AutoFilter(sheetName, "A1:"+lastCell, []excelize.AutoFilterOptions{}); err != nil {
		return err
	}

	return f.Write(w)
}

// PDF собирается встроенными шрифтами, поэтому кириллица транслитерируется
func writeSubscriptionsPDF(w io.Writer, rows []SubscriptionOverview) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, fmt.Sprintf("Clinic subscriptions (%s)", time.Now().Format("2006-01-02")))
	pdf.Ln(12)

	widths := []float64{12, 60, 40, 25, 22, 22, 25, 28, 28}

	pdf.SetFont("Arial", "B", 8)
	for i, header := range exportHeaders {
		pdf.CellFormat(widths[i], 7, unidecode.Unidecode(header), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range rows {
		for i, value := range exportRow(row) {
			text := unidecode.Unidecode(fmt.Sprintf("%v", value))
			if len(text) > 40 {
				text = text[:40]
			}
			pdf.CellFormat(widths[i], 6, text, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
