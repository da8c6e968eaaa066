package models

import (
	"fmt"
	"strings"
	"time"
)

// ExportFilters is the client-supplied selection for an export session.
type ExportFilters struct {
	ExportAll    bool     `json:"export_all"`
	DateFrom     string   `json:"date_from,omitempty"`
	DateTo       string   `json:"date_to,omitempty"`
	Statuses     []string `json:"statuses,omitempty"`
	ProductTypes []string `json:"product_types,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

const filterDateLayout = "2006-01-02"

// OrderFilter converts the export selection into a store filter. With
// export_all set every order matches; date_to is inclusive of its whole day.
func (f ExportFilters) OrderFilter() OrderFilter {
	var filter OrderFilter
	if f.ExportAll {
		return filter
	}
	if from, err := time.Parse(filterDateLayout, strings.TrimSpace(f.DateFrom)); err == nil {
		filter.DateFrom = &from
	}
	if to, err := time.Parse(filterDateLayout, strings.TrimSpace(f.DateTo)); err == nil {
		end := to.AddDate(0, 0, 1)
		filter.DateTo = &end
	}
	for _, raw := range f.Statuses {
		if status, ok := ParseOrderStatus(raw); ok {
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter
}

func (f ExportFilters) ProductFilter() ProductFilter {
	var filter ProductFilter
	for _, raw := range f.ProductTypes {
		if strings.TrimSpace(raw) != "" {
			filter.Types = append(filter.Types, ParseProductType(raw))
		}
	}
	filter.Categories = nonEmpty(f.Categories)
	filter.Tags = nonEmpty(f.Tags)
	return filter
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ExportSession threads one multi-batch export through sequential calls.
type ExportSession struct {
	Token          string        `json:"token"`
	Kind           RecordKind    `json:"kind"`
	TotalRecords   int           `json:"total_records"`
	BatchesWritten int           `json:"batches_written"`
	FileName       string        `json:"file_name"`
	Path           string        `json:"path"`
	Filters        ExportFilters `json:"filters"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ImportSession holds an uploaded CSV between import batches.
type ImportSession struct {
	Token            string     `json:"token"`
	Kind             RecordKind `json:"kind"`
	Path             string     `json:"path"`
	TotalRecords     int        `json:"total_records"`
	BatchesProcessed int        `json:"batches_processed"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate rejects malformed dates and unknown order statuses.
func (f ExportFilters) Validate() error {
	dates := []struct{ name, raw string }{{"date_from", f.DateFrom}, {"date_to", f.DateTo}}
	for _, d := range dates {
		raw := strings.TrimSpace(d.raw)
		if raw == "" {
			continue
		}
		if _, err := time.Parse(filterDateLayout, raw); err != nil {
			return fmt.Errorf("%s must be YYYY-MM-DD", d.name)
		}
	}
	for _, raw := range f.Statuses {
		if _, ok := ParseOrderStatus(raw); !ok {
			return fmt.Errorf("unknown order status %q", raw)
		}
	}
	return nil
}
