package models

import "time"

// StorageReportRow aggregates per-category storage usage for admin reports.
type StorageReportRow struct {
	CategoryID    string `db:"category_id" json:"category_id"`
	CategoryName  string `db:"category_name" json:"category_name"`
	FolderCount   int    `db:"folder_count" json:"folder_count"`
	DocumentCount int    `db:"document_count" json:"document_count"`
	VersionCount  int    `db:"version_count" json:"version_count"`
	TotalBytes    int64  `db:"total_bytes" json:"total_bytes"`
}

// SystemMetrics is a lightweight aggregate of runtime counters exposed on the
// admin status endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
