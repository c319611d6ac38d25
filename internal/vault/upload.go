package vault

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// batchFile carries one file through the upload pipeline: raw bytes in,
// fingerprint and sniff verdict out.
type batchFile struct {
	filename string
	content  []byte
	size     int64
	declared string

	hashHex string
	sniffed string
	warning string
	valid   bool
}

// handleUpload implements POST /api/v1/files/upload: a multipart batch of one
// (part "file") or many (parts "files") payloads. The whole batch is
// validated before anything is persisted; a single MIME mismatch rejects all
// of it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	files, errResp := s.readBatch(r)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, *errResp)
		return
	}

	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files found in upload")
		return
	}

	s.fingerprintBatch(files)

	// The abort decision is made only after every file has been inspected,
	// so persistence never starts for a batch that is going to fail.
	for _, bf := range files {
		if !bf.valid {
			vErr := &ValidationError{
				Filename: bf.filename,
				Declared: bf.declared,
				Sniffed:  bf.sniffed,
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:            vErr.Error(),
				Filename:         vErr.Filename,
				DeclaredMimeType: vErr.Declared,
				SniffedMimeType:  vErr.Sniffed,
			})
			return
		}
	}

	resp, err := s.persistBatch(r, identity.Subject, files)
	if err != nil {
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			slog.Error("Storing upload payload", "hash", storageErr.Hash, "error", storageErr.Err)
			writeError(w, http.StatusInternalServerError, "failed to store file content")
			return
		}

		slog.Error("Persisting upload batch", "owner", identity.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process file upload")
		return
	}

	slog.Info("Upload batch stored",
		"owner", identity.Subject,
		"files", resp.UploadedFilesCount,
		"total_size", humanize.Bytes(uint64(resp.TotalSize)),
		"saved", humanize.Bytes(uint64(resp.TotalSavedBytes)),
	)

	writeJSON(w, http.StatusOK, *resp)
}

// readBatch streams the multipart body part by part, keeping file parts named
// "file" (single upload) or "files" (multi upload) in wire order. Parts are
// read through a limited reader so an oversized payload aborts the request
// as soon as the limit is crossed instead of after buffering the whole body.
func (s *Server) readBatch(r *http.Request) ([]*batchFile, *ErrorResponse) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, &ErrorResponse{Error: "failed to parse multipart form"}
	}

	var files []*batchFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ErrorResponse{Error: "failed to parse multipart form"}
		}

		if field := part.FormName(); field != "file" && field != "files" {
			continue
		}
		if part.FileName() == "" {
			continue
		}

		// One byte past the limit distinguishes an oversized part from one
		// that is exactly at it.
		content, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
		if err != nil {
			return nil, &ErrorResponse{Error: fmt.Sprintf("failed to read file %s", part.FileName())}
		}

		if int64(len(content)) > s.cfg.MaxFileSize {
			return nil, &ErrorResponse{
				Error:    fmt.Sprintf("file %s exceeds the %s size limit", part.FileName(), humanize.Bytes(uint64(s.cfg.MaxFileSize))),
				Filename: part.FileName(),
			}
		}

		declared := part.Header.Get("Content-Type")
		if declared == "" {
			declared = "application/octet-stream"
		}

		files = append(files, &batchFile{
			filename: part.FileName(),
			content:  content,
			size:     int64(len(content)),
			declared: declared,
		})
	}

	return files, nil
}

// fingerprintBatch hashes and sniffs every file. Each file is independent
// here, so the work is spread over a bounded worker group.
func (s *Server) fingerprintBatch(files []*batchFile) {
	var grp errgroup.Group
	grp.SetLimit(4)

	for _, bf := range files {
		bf := bf
		grp.Go(func() error {
			sum := sha256.Sum256(bf.content)
			bf.hashHex = hex.EncodeToString(sum[:])
			bf.sniffed, bf.warning, bf.valid = s.cfg.Compat.Validate(bf.content, bf.declared)
			return nil
		})
	}

	_ = grp.Wait()
}

// persistBatch writes all metadata for a validated batch inside a single
// transaction, storing each unique payload exactly once. Duplicate detection
// and reference counting ride on the transaction's write lock, so concurrent
// batches carrying the same fingerprint cannot race the create path or lose
// an increment.
func (s *Server) persistBatch(r *http.Request, owner string, files []*batchFile) (*UploadResponse, error) {
	ctx := r.Context()

	resp := &UploadResponse{Message: "Files uploaded successfully"}

	err := WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		for _, bf := range files {
			// Atomic compare-and-increment: a hit means the payload already
			// exists and this upload is a duplicate.
			res, err := tx.ExecContext(ctx,
				`UPDATE objects SET ref_count = ref_count + 1 WHERE hash = ?`, bf.hashHex)
			if err != nil {
				return fmt.Errorf("increment ref count: %w", err)
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("increment ref count: %w", err)
			}
			isDuplicate := rows > 0

			if !isDuplicate {
				if err := s.cfg.Engine.PutObject(ctx, bf.hashHex, bf.content); err != nil {
					return &StorageError{Hash: bf.hashHex, Err: err}
				}

				storagePath := bf.hashHex[:2] + "/" + bf.hashHex
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO objects(hash, size, storage_path, ref_count, created_at) VALUES(?, ?, ?, 1, ?)`,
					bf.hashHex, bf.size, storagePath, now,
				); err != nil {
					return fmt.Errorf("insert object: %w", err)
				}
			}

			id := uuid.New().String()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO uploads(id, owner, original_filename, declared_mime_type, mime_type, size, hash, is_duplicate, created_at)
				 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, owner, bf.filename, bf.declared, bf.sniffed, bf.size, bf.hashHex, isDuplicate, now,
			); err != nil {
				return fmt.Errorf("insert upload record: %w", err)
			}

			result := FileResult{
				FileID:      id,
				Filename:    bf.filename,
				Size:        bf.size,
				MimeType:    bf.sniffed,
				ContentHash: bf.hashHex,
				IsDuplicate: isDuplicate,
			}

			if isDuplicate {
				result.SavedBytes = bf.size
				resp.TotalSavedBytes += bf.size
				resp.Warnings = append(resp.Warnings,
					fmt.Sprintf("%s: duplicate content; stored once", bf.filename))
			}

			if bf.warning != "" {
				resp.Warnings = append(resp.Warnings,
					fmt.Sprintf("%s: %s", bf.filename, bf.warning))
			}

			resp.TotalSize += bf.size
			resp.Files = append(resp.Files, result)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.UploadedFilesCount = len(resp.Files)
	return resp, nil
}
