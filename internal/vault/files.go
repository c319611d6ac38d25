package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// handleLogin implements POST /api/v1/auth/login: verifies the credentials
// against the account store and returns a signed bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if !s.cfg.Accounts.Verify(req.Email, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.IssueToken(req.Email)
	if err != nil {
		slog.Error("Issuing token", "subject", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// handleListFiles implements GET /api/v1/files: all live upload records
// owned by the caller, newest first.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_filename, mime_type, size, hash, is_duplicate, created_at
		 FROM uploads
		 WHERE owner = ? AND is_deleted = 0
		 ORDER BY created_at DESC, id`,
		identity.Subject)
	if err != nil {
		slog.Error("Listing files", "owner", identity.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	defer rows.Close()

	resp := ListFilesResponse{Files: []FileRecord{}}
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.FileID, &rec.OriginalFilename, &rec.MimeType,
			&rec.Size, &rec.ContentHash, &rec.IsDuplicate, &rec.CreatedAt); err != nil {
			slog.Error("Scanning file record", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list files")
			return
		}
		resp.Files = append(resp.Files, rec)
	}

	if err := rows.Err(); err != nil {
		slog.Error("Listing files", "owner", identity.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	resp.Count = len(resp.Files)
	writeJSON(w, http.StatusOK, resp)
}

// lookupFile loads a live upload record by id, scoped to its owner.
func (s *Server) lookupFile(r *http.Request, owner, id string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, original_filename, mime_type, size, hash, is_duplicate, created_at
		 FROM uploads
		 WHERE id = ? AND owner = ? AND is_deleted = 0`,
		id, owner).Scan(&rec.FileID, &rec.OriginalFilename, &rec.MimeType,
		&rec.Size, &rec.ContentHash, &rec.IsDuplicate, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	rec, err := s.lookupFile(r, identity.Subject, r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("Loading file record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load file")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleFileContent implements GET /api/v1/files/{id}/content: streams the
// stored payload back with its sniffed MIME type.
func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	rec, err := s.lookupFile(r, identity.Subject, r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("Loading file record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load file")
		return
	}

	content, err := s.cfg.Engine.GetObject(r.Context(), rec.ContentHash)
	if err != nil {
		slog.Error("Reading payload", "hash", rec.ContentHash, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read file content")
		return
	}

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.OriginalFilename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
	_, _ = w.Write(content)
}

// handleDeleteFile implements DELETE /api/v1/files/{id}: soft-deletes the
// upload record and decrements the payload's reference count. The payload
// itself is removed only when no live record references it anymore.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	rec, err := s.lookupFile(r, identity.Subject, r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("Loading file record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	var payloadFreed bool

	err = WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE uploads SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0`,
			time.Now().UTC(), rec.FileID)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE objects SET ref_count = ref_count - 1 WHERE hash = ?`, rec.ContentHash); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`DELETE FROM objects WHERE hash = ? AND ref_count <= 0`, rec.ContentHash)
		if err != nil {
			return err
		}

		rows, err = res.RowsAffected()
		if err != nil {
			return err
		}
		payloadFreed = rows > 0

		return nil
	})
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("Deleting file", "id", rec.FileID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	resp := DeleteResponse{
		Message:             "File deleted successfully",
		LogicalStorageFreed: rec.Size,
	}

	if payloadFreed {
		resp.ActualStorageFreed = rec.Size

		// Metadata is already committed; a failed payload removal leaves an
		// unreferenced object behind, which is tolerated.
		if err := s.cfg.Engine.DeleteObject(ctx, rec.ContentHash); err != nil {
			slog.Warn("Removing payload", "hash", rec.ContentHash, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStats implements GET /api/v1/files/stats: per-owner aggregates over
// live upload records and the unique payloads behind them.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
		return
	}

	var resp StatsResponse

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0)
		 FROM uploads
		 WHERE owner = ? AND is_deleted = 0`,
		identity.Subject).Scan(&resp.FileCount, &resp.TotalUploadedBytes)
	if err != nil {
		slog.Error("Computing stats", "owner", identity.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0)
		 FROM objects
		 WHERE hash IN (SELECT DISTINCT hash FROM uploads WHERE owner = ? AND is_deleted = 0)`,
		identity.Subject).Scan(&resp.ActualStorageBytes)
	if err != nil {
		slog.Error("Computing stats", "owner", identity.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	resp.SavedBytes = resp.TotalUploadedBytes - resp.ActualStorageBytes
	if resp.TotalUploadedBytes > 0 {
		resp.SavingsPercent = float64(resp.SavedBytes) / float64(resp.TotalUploadedBytes) * 100
	}

	writeJSON(w, http.StatusOK, resp)
}
