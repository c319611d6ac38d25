package vault

import "time"

// ErrorResponse is the JSON body of every non-2xx response. The MIME fields
// are populated only for validation failures.
type ErrorResponse struct {
	Error            string `json:"error"`
	Filename         string `json:"filename,omitempty"`
	DeclaredMimeType string `json:"declared_mimetype,omitempty"`
	SniffedMimeType  string `json:"sniffed_mimetype,omitempty"`
}

// FileResult is the per-file outcome within an UploadResponse.
type FileResult struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
	ContentHash string `json:"content_hash"`
	IsDuplicate bool   `json:"is_duplicate"`
	SavedBytes  int64  `json:"saved_bytes"`
}

// UploadResponse is the aggregate result of one upload batch.
type UploadResponse struct {
	Message            string       `json:"message"`
	UploadedFilesCount int          `json:"uploaded_files_count"`
	TotalSize          int64        `json:"total_size"`
	TotalSavedBytes    int64        `json:"total_saved_bytes"`
	Files              []FileResult `json:"files"`
	Warnings           []string     `json:"warnings,omitempty"`
}

// FileRecord is the public projection of a stored upload record.
type FileRecord struct {
	FileID           string    `json:"file_id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	Size             int64     `json:"size"`
	ContentHash      string    `json:"content_hash"`
	IsDuplicate      bool      `json:"is_duplicate"`
	CreatedAt        time.Time `json:"created_at"`
}

type ListFilesResponse struct {
	Files []FileRecord `json:"files"`
	Count int          `json:"count"`
}

// StatsResponse reports per-owner storage and deduplication aggregates.
type StatsResponse struct {
	FileCount          int64   `json:"file_count"`
	TotalUploadedBytes int64   `json:"total_uploaded_bytes"`
	ActualStorageBytes int64   `json:"actual_storage_bytes"`
	SavedBytes         int64   `json:"saved_bytes"`
	SavingsPercent     float64 `json:"savings_percent"`
}

type DeleteResponse struct {
	Message             string `json:"message"`
	LogicalStorageFreed int64  `json:"logical_storage_freed"`
	ActualStorageFreed  int64  `json:"actual_storage_freed"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
