package database

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/models"
)

// SeedDemoTemplates inserts a small demo catalog when the templates table is
// empty. Intended for development environments only.
func SeedDemoTemplates(db *sql.DB, logger *zap.Logger) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM templates").Scan(&count); err != nil {
		return fmt.Errorf("failed to count templates: %w", err)
	}
	if count > 0 {
		return nil
	}

	demo := []models.Template{
		{
			Name:                "Financial Dashboard Template",
			Description:         "Comprehensive financial dashboard with advanced analytics, reporting, and visualization tools.",
			DetailedDescription: "A comprehensive financial dashboard template designed for business professionals. Track key financial metrics, analyze trends, and generate reports with ease.",
			Features: []string{
				"Income and expense tracking with automated calculations",
				"Balance sheet and cash flow statement generators",
				"Interactive financial charts and visualizations",
			},
			Price:         29.99,
			Category:      string(models.CategoryFinancial),
			MainImage:     "/uploads/images/financial-dashboard.jpg",
			Thumbnails:    []string{"/uploads/images/financial-dashboard-thumb.jpg"},
			Compatibility: []string{"Excel 2016+", "Excel for Microsoft 365", "Excel for Mac"},
			FilePath:      "/templates/financial-dashboard.xlsx",
		},
		{
			Name:                "Project Management Suite",
			Description:         "Complete project management solution with Gantt charts, resource allocation, and budget tracking.",
			DetailedDescription: "Track tasks, deadlines, resources, and budgets all in one place. Visualize project timelines with Gantt charts and monitor progress with automated dashboards.",
			Features: []string{
				"Interactive Gantt chart for project scheduling",
				"Resource allocation and management tools",
				"Budget tracking and cost analysis",
			},
			Price:         34.99,
			Category:      string(models.CategoryProjectManagement),
			MainImage:     "/uploads/images/project-management.jpg",
			Thumbnails:    []string{"/uploads/images/project-management-thumb.jpg"},
			Compatibility: []string{"Excel 2016+", "Excel for Microsoft 365"},
			FilePath:      "/templates/project-management.xlsx",
		},
		{
			Name:                "HR & Payroll System",
			Description:         "Streamline your HR processes with a comprehensive HR and payroll management system.",
			DetailedDescription: "Manage employee data, track attendance, calculate payroll, and generate tax reports from a single workbook.",
			Features: []string{
				"Employee database with comprehensive record keeping",
				"Automated payroll calculation and tax deductions",
				"Leave management and attendance tracking",
			},
			Price:         39.99,
			Category:      string(models.CategoryHRPayroll),
			MainImage:     "/uploads/images/hr-payroll.jpg",
			Thumbnails:    []string{"/uploads/images/hr-payroll-thumb.jpg"},
			Compatibility: []string{"Excel 2016+", "Excel for Microsoft 365", "Excel for Mac"},
			FilePath:      "/templates/hr-payroll.xlsx",
		},
	}

	for _, t := range demo {
		_, err := db.Exec(
			`INSERT INTO templates
				(name, description, detailed_description, features, price, category,
				 main_image, thumbnails, compatibility, stripe_product_id, stripe_price_id, file_path)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			t.Name, t.Description, t.DetailedDescription, pq.Array(t.Features),
			t.Price, t.Category, t.MainImage, pq.Array(t.Thumbnails),
			pq.Array(t.Compatibility), t.StripeProductID, t.StripePriceID, t.FilePath,
		)
		if err != nil {
			return fmt.Errorf("failed to seed template %q: %w", t.Name, err)
		}
	}

	logger.Info("Seeded demo templates", zap.Int("count", len(demo)))
	return nil
}
