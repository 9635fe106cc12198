package models

import "time"

// TemplateCategory is the fixed set of catalog categories.
type TemplateCategory string

const (
	CategoryFinancial         TemplateCategory = "financial"
	CategoryProjectManagement TemplateCategory = "project_management"
	CategoryHRPayroll         TemplateCategory = "hr_payroll"
	CategoryMarketing         TemplateCategory = "marketing"
	CategoryOperations        TemplateCategory = "operations"
)

// ValidCategory reports whether c is one of the known catalog categories.
func ValidCategory(c string) bool {
	switch TemplateCategory(c) {
	case CategoryFinancial, CategoryProjectManagement, CategoryHRPayroll,
		CategoryMarketing, CategoryOperations:
		return true
	}
	return false
}

type Template struct {
	ID                  int       `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	DetailedDescription string    `json:"detailedDescription"`
	Features            []string  `json:"features"`
	Price               float64   `json:"price"`
	Category            string    `json:"category"`
	MainImage           string    `json:"mainImage"`
	Thumbnails          []string  `json:"thumbnails"`
	Compatibility       []string  `json:"compatibility"`
	StripeProductID     string    `json:"stripeProductId,omitempty"`
	StripePriceID       string    `json:"stripePriceId,omitempty"`
	FilePath            string    `json:"filePath"`
	DownloadCount       int       `json:"downloadCount"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type CreateTemplateRequest struct {
	Name                string   `json:"name" binding:"required"`
	Description         string   `json:"description" binding:"required"`
	DetailedDescription string   `json:"detailedDescription" binding:"required"`
	Features            []string `json:"features" binding:"required"`
	Price               float64  `json:"price" binding:"required,gt=0"`
	Category            string   `json:"category" binding:"required"`
	MainImage           string   `json:"mainImage" binding:"required"`
	Thumbnails          []string `json:"thumbnails"`
	Compatibility       []string `json:"compatibility"`
	StripeProductID     string   `json:"stripeProductId"`
	StripePriceID       string   `json:"stripePriceId"`
	FilePath            string   `json:"filePath" binding:"required"`
}

// UpdateTemplateRequest carries a partial update. The id, download count and
// creation timestamp are not updatable and have no fields here.
type UpdateTemplateRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	DetailedDescription string   `json:"detailedDescription"`
	Features            []string `json:"features"`
	Price               float64  `json:"price" binding:"omitempty,gt=0"`
	Category            string   `json:"category"`
	MainImage           string   `json:"mainImage"`
	Thumbnails          []string `json:"thumbnails"`
	Compatibility       []string `json:"compatibility"`
	StripeProductID     string   `json:"stripeProductId"`
	StripePriceID       string   `json:"stripePriceId"`
	FilePath            string   `json:"filePath"`
}
